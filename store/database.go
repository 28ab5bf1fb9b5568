package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// KeyValueEntry represents a row in the database. Value holds the JSON
// encoding of the entry's payload.
type KeyValueEntry struct {
	Key   string `gorm:"primaryKey"`
	Kind  Kind   `gorm:"not null"`
	Value string `gorm:"not null"`
}

func (row *KeyValueEntry) decode() (*payload, error) {
	return decodePayload(row.Key, row.Kind, []byte(row.Value))
}

// DatabaseStore implements Store on a SQL database through gorm. Every
// mutation runs in its own transaction holding a row lock. SQLite has no
// row locks; its writers are serialised by the database and by mu.
type DatabaseStore struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewPostgresStore connects to Postgres using dsn.
func NewPostgresStore(dsn string) (*DatabaseStore, error) {
	return NewDatabaseStore(postgres.Open(dsn))
}

// NewSqliteStore opens (creating if needed) a SQLite database at path.
func NewSqliteStore(path string) (*DatabaseStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	ds, err := NewDatabaseStore(sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"))
	if err != nil {
		return nil, err
	}
	sqlDB, err := ds.db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return ds, nil
}

func NewDatabaseStore(dialector gorm.Dialector) (*DatabaseStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-create table if needed
	if err := db.AutoMigrate(&KeyValueEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DatabaseStore{db: db}, nil
}

// load reads the row at key. ok is false when the key is missing.
func load(tx *gorm.DB, key string) (row KeyValueEntry, ok bool, err error) {
	res := tx.Where("key = ?", key).Limit(1).Find(&row)
	if res.Error != nil {
		return row, false, res.Error
	}
	return row, res.RowsAffected > 0, nil
}

// mutation edits the payload of an existing or freshly created entry and
// reports whether the entry should be kept.
type mutation func(p *payload) (keep bool, err error)

// mutate runs fn against key inside a transaction. When create is set, a
// missing key is inserted with an empty payload of kind want first, so the
// row can be locked even for new keys. A missing key without create leaves
// fn uncalled.
func (ds *DatabaseStore) mutate(ctx context.Context, key string, want Kind, create bool, fn mutation) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if create {
			empty := &payload{}
			value, err := empty.encode(want)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&KeyValueEntry{Key: key, Kind: want, Value: string(value)}).Error
			if err != nil {
				return err
			}
		}

		locked := tx
		if ds.db.Dialector.Name() != "sqlite" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		row, ok, err := load(locked, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if row.Kind != want {
			return mismatch(key, want, row.Kind)
		}

		p, err := row.decode()
		if err != nil {
			return err
		}
		keep, err := fn(p)
		if err != nil {
			return err
		}
		if !keep {
			return tx.Delete(&KeyValueEntry{}, "key = ?", key).Error
		}
		value, err := p.encode(want)
		if err != nil {
			return err
		}
		return tx.Model(&KeyValueEntry{}).Where("key = ?", key).Update("value", string(value)).Error
	})
}

// read loads key and checks its kind. A missing key yields (nil, nil).
func (ds *DatabaseStore) read(ctx context.Context, key string, want Kind) (*payload, error) {
	row, ok, err := load(ds.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if row.Kind != want {
		return nil, mismatch(key, want, row.Kind)
	}
	return row.decode()
}

func (ds *DatabaseStore) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	p, err := ds.read(ctx, key, KindScalar)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", notFound(key)
	}
	return p.Scalar, nil
}

func (ds *DatabaseStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return ds.mutate(ctx, key, KindScalar, true, func(p *payload) (bool, error) {
		p.Scalar = value
		return true, nil
	})
}

func (ds *DatabaseStore) AtomicAdd(ctx context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var total int64
	err := ds.mutate(ctx, key, KindCounter, true, func(p *payload) (bool, error) {
		sum, ok := addInt64(p.Counter, delta)
		if !ok {
			return false, fmt.Errorf("%w: adding %d to counter %q overflows", ErrInvalidArgument, delta, key)
		}
		p.Counter = sum
		total = sum
		return true, nil
	})
	return total, err
}

// DelKey removes a key from database
func (ds *DatabaseStore) DelKey(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.db.WithContext(ctx).Delete(&KeyValueEntry{}, "key = ?", key).Error
}

// Exists checks if a key exists in database
func (ds *DatabaseStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var count int64
	err := ds.db.WithContext(ctx).Model(&KeyValueEntry{}).
		Where("key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func (ds *DatabaseStore) ListAdd(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := ds.mutate(ctx, key, KindList, true, func(p *payload) (bool, error) {
		p.Items = append(p.Items, item)
		n = len(p.Items)
		return true, nil
	})
	return n, err
}

func (ds *DatabaseStore) ListDelItem(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var removed int
	err := ds.mutate(ctx, key, KindList, false, func(p *payload) (bool, error) {
		p.Items, removed = removeAll(p.Items, item)
		return len(p.Items) > 0, nil
	})
	return removed, err
}

func (ds *DatabaseStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	p, err := ds.read(ctx, key, KindList)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	from, to, ok := clampRange(start, stop, len(p.Items))
	if !ok {
		return []string{}, nil
	}
	return p.Items[from : to+1], nil
}

func (ds *DatabaseStore) ListClear(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return ds.mutate(ctx, key, KindList, false, func(*payload) (bool, error) {
		return false, nil
	})
}

func (ds *DatabaseStore) SetAdd(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := ds.mutate(ctx, key, KindSet, true, func(p *payload) (bool, error) {
		n = p.addMember(value)
		return true, nil
	})
	return n, err
}

func (ds *DatabaseStore) SetRemove(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := ds.mutate(ctx, key, KindSet, false, func(p *payload) (bool, error) {
		n = p.removeMember(value)
		return n > 0, nil
	})
	return n, err
}

func (ds *DatabaseStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	p, err := ds.read(ctx, key, KindSet)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	return p.Items, nil
}

// loadSets returns the members of every named key that holds a set.
func (ds *DatabaseStore) loadSets(ctx context.Context, keys []string) (map[string][]string, error) {
	var rows []KeyValueEntry
	err := ds.db.WithContext(ctx).
		Where("key IN ? AND kind = ?", keys, KindSet).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	sets := make(map[string][]string, len(rows))
	for i := range rows {
		p, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		sets[rows[i].Key] = p.Items
	}
	return sets, nil
}

func (ds *DatabaseStore) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	sets, err := ds.loadSets(ctx, keys)
	if err != nil {
		return nil, err
	}
	groups := make([][]string, 0, len(sets))
	for _, members := range sets {
		groups = append(groups, members)
	}
	return unionOf(groups), nil
}

func (ds *DatabaseStore) SetIntersect(ctx context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	sets, err := ds.loadSets(ctx, keys)
	if err != nil {
		return nil, err
	}
	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		members, ok := sets[key]
		if !ok {
			return []string{}, nil
		}
		groups = append(groups, members)
	}
	return intersectOf(groups), nil
}

// Close closes the database connection
func (ds *DatabaseStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
