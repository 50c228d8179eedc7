// Package datastore is the durable tier of the response cache, backed by
// gorm on SQLite (default) or MySQL.
package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// CacheRepository persists cache entries.
type CacheRepository interface {
	// Put inserts or replaces the entry for entry.Key
	Put(ctx context.Context, entry *CacheEntry) error
	// Get returns the stored entry or a not-found error
	Get(ctx context.Context, key string) (*CacheEntry, error)
	// LoadSince returns entries stored strictly after since
	LoadSince(ctx context.Context, since time.Time) ([]CacheEntry, error)
	// Count returns the number of stored entries, fresh or not
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Store implements CacheRepository with gorm.
type Store struct {
	db     *gorm.DB
	log    logger.Logger
	driver string
}

var _ CacheRepository = (*Store)(nil)

// Open opens the backend selected by settings.Driver and migrates the schema.
func Open(ctx context.Context, settings *conf.DatastoreSettings, log logger.Logger) (*Store, error) {
	switch settings.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, settings.SQLite.Path, log)
	case "mysql":
		return OpenMySQL(ctx, settings.MySQL.DSN(), log)
	default:
		return nil, errors.Newf("unsupported datastore driver %q", settings.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// OpenSQLite opens (creating if needed) the SQLite cache database at path.
func OpenSQLite(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}
	return open(ctx, sqlite.Open(path), "sqlite", log)
}

// OpenMySQL opens the MySQL cache database described by dsn.
func OpenMySQL(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	return open(ctx, mysql.Open(dsn), "mysql", log)
}

func open(ctx context.Context, dialector gorm.Dialector, driver string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	db, err := gorm.Open(dialector, gormConfig(log))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open %s database: %w", driver, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("driver", driver).
			Build()
	}

	s := NewStore(db, log)
	s.driver = driver
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Info("cache database ready", logger.String("driver", driver))
	return s, nil
}

func gormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.NewGormLoggerAdapter(log, slowQueryThreshold),
		SkipDefaultTransaction: true,
	}
}

// NewStore wraps an already opened gorm connection without migrating.
func NewStore(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &Store{db: db, log: log, driver: db.Dialector.Name()}
}

// Migrate creates or updates the cache_entries table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&CacheEntry{}); err != nil {
		return errors.New(fmt.Errorf("failed to migrate cache_entries: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("driver", s.driver).
			Build()
	}
	return nil
}

// Put upserts entry. StoredAt is persisted in UTC.
func (s *Store) Put(ctx context.Context, entry *CacheEntry) error {
	row := *entry
	row.StoredAt = row.StoredAt.UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "stored_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return errors.New(fmt.Errorf("failed to store cache entry: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "put").
			Build()
	}
	return nil
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (*CacheEntry, error) {
	var entry CacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Newf("cache entry not found").
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	case err != nil:
		return nil, errors.New(fmt.Errorf("failed to read cache entry: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get").
			Build()
	}
	return &entry, nil
}

// LoadSince returns entries stored after since, oldest first.
func (s *Store) LoadSince(ctx context.Context, since time.Time) ([]CacheEntry, error) {
	var entries []CacheEntry
	err := s.db.WithContext(ctx).
		Where("stored_at > ?", since.UTC()).
		Order("stored_at").
		Find(&entries).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to load cache entries: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "load_since").
			Build()
	}
	return entries, nil
}

// Count returns the number of rows in cache_entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&CacheEntry{}).Count(&n).Error; err != nil {
		return 0, errors.New(fmt.Errorf("failed to count cache entries: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}
