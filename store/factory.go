package store

import (
	"context"
	"fmt"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "memory" (default), "redis", "postgres", "sqlite"
	// or "bolt".
	Backend string
	// Memory configures the memory backend.
	Memory MemoryConfig
	// RedisAddr is the redis backend address.
	RedisAddr string
	// DSN is the Postgres connection string, or the SQLite or BoltDB file
	// path.
	DSN string
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"memory"   - sharded in-memory store (default)
//	"redis"    - Redis server at RedisAddr
//	"postgres" - Postgres database at DSN
//	"sqlite"   - SQLite database file at DSN
//	"bolt"     - BoltDB file at DSN (DefaultDiskStorePath when empty)
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(&cfg.Memory), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: postgres backend needs a DSN", ErrInvalidArgument)
		}
		return NewPostgresStore(cfg.DSN)
	case "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: sqlite backend needs a database path", ErrInvalidArgument)
		}
		return NewSqliteStore(cfg.DSN)
	case "bolt":
		return NewDiskStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: memory, redis, postgres, sqlite, bolt)", cfg.Backend)
	}
}
