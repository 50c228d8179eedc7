package datastore

import "time"

// CacheEntry is a durable copy of one upstream response.
// An entry is usable only while now - StoredAt < TTL; stale rows are kept and
// overwritten on the next fetch for the same key.
type CacheEntry struct {
	Key      string    `gorm:"column:cache_key;primaryKey;size:768"`
	Payload  []byte    `gorm:"column:payload;not null"`
	StoredAt time.Time `gorm:"column:stored_at;index;not null"`
}

// TableName pins the table name regardless of naming strategy
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Fresh reports whether the entry is still usable at now for the given TTL.
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}
