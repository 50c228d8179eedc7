package datastore

import (
	"io"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
}

func openTestSQLite(t *testing.T) *Store {
	t.Helper()
	store, err := OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "cache", "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLitePutGet(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	storedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(t.Context(), &CacheEntry{
		Key:      "https://api.inaturalist.org/v1/users/autocomplete?q=kestrel",
		Payload:  []byte(`{"results":[{"id":42}]}`),
		StoredAt: storedAt,
	}))

	got, err := store.Get(t.Context(), "https://api.inaturalist.org/v1/users/autocomplete?q=kestrel")
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[{"id":42}]}`, string(got.Payload))
	assert.True(t, storedAt.Equal(got.StoredAt), "stored_at round trip: %s", got.StoredAt)
}

func TestSQLitePutOverwrites(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(t.Context(), &CacheEntry{Key: "k", Payload: []byte(`1`), StoredAt: t0}))
	require.NoError(t, store.Put(t.Context(), &CacheEntry{Key: "k", Payload: []byte(`2`), StoredAt: t0.Add(time.Hour)}))

	got, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, `2`, string(got.Payload))
	assert.True(t, t0.Add(time.Hour).Equal(got.StoredAt))

	n, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteGetMissing(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)

	_, err := store.Get(t.Context(), "absent")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSQLiteLoadSince(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{30 * time.Minute, 9 * time.Minute, time.Minute} {
		require.NoError(t, store.Put(t.Context(), &CacheEntry{
			Key:      string(rune('a' + i)),
			Payload:  []byte(`{}`),
			StoredAt: now.Add(-age),
		}))
	}

	entries, err := store.LoadSince(t.Context(), now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Key)
	assert.Equal(t, "c", entries[1].Key)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), &conf.DatastoreSettings{Driver: "bolt"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCacheEntryFresh(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{StoredAt: t0}

	assert.True(t, e.Fresh(t0.Add(10*time.Minute-time.Second), 10*time.Minute))
	assert.False(t, e.Fresh(t0.Add(10*time.Minute), 10*time.Minute))
}

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, gormConfig(testLogger()))
	require.NoError(t, err)

	return NewStore(gormDB, testLogger()), mock
}

func TestMySQLPutUsesUpsert(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)

	upsert := regexp.QuoteMeta("INSERT INTO `cache_entries`") + ".*ON DUPLICATE KEY UPDATE"
	mock.ExpectExec(upsert).
		WithArgs("k", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Put(t.Context(), &CacheEntry{Key: "k", Payload: []byte(`{}`), StoredAt: time.Now()}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLoadSince(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	storedAt := time.Date(2026, 5, 1, 11, 55, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"cache_key", "payload", "stored_at"}).
		AddRow("https://api.ebird.org/v2/data/obs/US-OH/recent", []byte(`[]`), storedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `cache_entries` WHERE stored_at > ? ORDER BY stored_at")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	entries, err := store.LoadSince(t.Context(), storedAt.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://api.ebird.org/v2/data/obs/US-OH/recent", entries[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLPutFailureIsDatabaseError(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.NewStd("connection reset"))

	err := store.Put(t.Context(), &CacheEntry{Key: "k", Payload: []byte(`{}`), StoredAt: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}
