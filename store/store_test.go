package store_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

var (
	_ store.Store = (*store.MemoryStore)(nil)
	_ store.Store = (*store.RedisStore)(nil)
	_ store.Store = (*store.DatabaseStore)(nil)
	_ store.Store = (*store.DiskStore)(nil)
)

// runStoreTests runs a common test suite against any Store implementation.
// Keys are prefixed so that suites sharing a backend do not collide.
func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	prefix := uuid.NewString() + ":"
	k := func(name string) string { return prefix + name }

	t.Run("missing key", func(t *testing.T) {
		ok, err := s.Exists(ctx, k("never"))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, k("never"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, k("scalar"), "a"))
		got, err := s.Get(ctx, k("scalar"))
		require.NoError(t, err)
		assert.Equal(t, "a", got)

		require.NoError(t, s.Set(ctx, k("scalar"), "b"))
		got, err = s.Get(ctx, k("scalar"))
		require.NoError(t, err)
		assert.Equal(t, "b", got)

		ok, err := s.Exists(ctx, k("scalar"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("atomic add", func(t *testing.T) {
		n, err := s.AtomicAdd(ctx, k("counter"), 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		n, err = s.AtomicAdd(ctx, k("counter"), -2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("atomic add overflow", func(t *testing.T) {
		_, err := s.AtomicAdd(ctx, k("big"), math.MaxInt64)
		require.NoError(t, err)
		_, err = s.AtomicAdd(ctx, k("big"), 1)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		n, err := s.AtomicAdd(ctx, k("big"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), n)
	})

	for _, callers := range []int{2, 10, 100} {
		t.Run(fmt.Sprintf("concurrent atomic add %d", callers), func(t *testing.T) {
			key := k(fmt.Sprintf("hits-%d", callers))
			var g errgroup.Group
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					_, err := s.AtomicAdd(ctx, key, 1)
					return err
				})
			}
			require.NoError(t, g.Wait())

			n, err := s.AtomicAdd(ctx, key, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(callers), n)
		})
	}

	t.Run("list add and delete all occurrences", func(t *testing.T) {
		key := k("list")
		for i, item := range []string{"x", "x", "y"} {
			n, err := s.ListAdd(ctx, key, item)
			require.NoError(t, err)
			assert.Equal(t, i+1, n)
		}

		got, err := s.ListRange(ctx, key, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "x", "y"}, got)

		removed, err := s.ListDelItem(ctx, key, "x")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		got, err = s.ListRange(ctx, key, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"y"}, got)
	})

	t.Run("emptying a list deletes the key", func(t *testing.T) {
		key := k("short-list")
		_, err := s.ListAdd(ctx, key, "only")
		require.NoError(t, err)

		removed, err := s.ListDelItem(ctx, key, "only")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		// The key is free to take another kind now.
		_, err = s.SetAdd(ctx, key, "member")
		assert.NoError(t, err)
	})

	t.Run("list delete on missing key", func(t *testing.T) {
		removed, err := s.ListDelItem(ctx, k("no-list"), "x")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("list range clamps", func(t *testing.T) {
		key := k("abc")
		for _, item := range []string{"a", "b", "c"} {
			_, err := s.ListAdd(ctx, key, item)
			require.NoError(t, err)
		}

		tests := []struct {
			name        string
			start, stop int
			want        []string
		}{
			{"full", 0, 2, []string{"a", "b", "c"}},
			{"wide", -100, 100, []string{"a", "b", "c"}},
			{"past end", 5, 10, []string{}},
			{"negative tail", -2, -1, []string{"b", "c"}},
			{"single", 1, 1, []string{"b"}},
			{"inverted", 2, 1, []string{}},
			{"stop before head", 0, -100, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListRange(ctx, key, tt.start, tt.stop)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}

		got, err := s.ListRange(ctx, k("no-list"), 0, -1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("list clear", func(t *testing.T) {
		key := k("doomed")
		_, err := s.ListAdd(ctx, key, "a")
		require.NoError(t, err)

		require.NoError(t, s.ListClear(ctx, key))
		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, s.ListClear(ctx, key))
	})

	t.Run("set add deduplicates", func(t *testing.T) {
		key := k("set")
		for _, want := range []struct {
			value string
			card  int
		}{{"a", 1}, {"b", 2}, {"a", 2}} {
			n, err := s.SetAdd(ctx, key, want.value)
			require.NoError(t, err)
			assert.Equal(t, want.card, n)
		}

		members, err := s.SetMembers(ctx, key)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)
	})

	t.Run("set remove", func(t *testing.T) {
		key := k("removable")
		_, err := s.SetAdd(ctx, key, "a")
		require.NoError(t, err)
		_, err = s.SetAdd(ctx, key, "b")
		require.NoError(t, err)

		n, err := s.SetRemove(ctx, key, "zzz")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.SetRemove(ctx, key, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.SetRemove(ctx, key, "b")
		require.NoError(t, err)
		assert.Zero(t, n)

		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err = s.SetRemove(ctx, k("no-set"), "a")
		require.NoError(t, err)
		assert.Zero(t, n)

		members, err := s.SetMembers(ctx, k("no-set"))
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("set algebra", func(t *testing.T) {
		s1, s2 := k("s1"), k("s2")
		for _, m := range []string{"a", "b"} {
			_, err := s.SetAdd(ctx, s1, m)
			require.NoError(t, err)
		}
		for _, m := range []string{"b", "c"} {
			_, err := s.SetAdd(ctx, s2, m)
			require.NoError(t, err)
		}
		require.NoError(t, s.Set(ctx, k("not-a-set"), "x"))

		union, err := s.SetUnion(ctx, s1, s2)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, union)

		union, err = s.SetUnion(ctx, s1, k("missing"), k("not-a-set"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, union)

		inter, err := s.SetIntersect(ctx, s1, s2)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, inter)

		inter, err = s.SetIntersect(ctx, s1, k("missing"))
		require.NoError(t, err)
		assert.Empty(t, inter)

		inter, err = s.SetIntersect(ctx, s1, k("not-a-set"))
		require.NoError(t, err)
		assert.Empty(t, inter)

		union, err = s.SetUnion(ctx)
		require.NoError(t, err)
		assert.Empty(t, union)

		inter, err = s.SetIntersect(ctx)
		require.NoError(t, err)
		assert.Empty(t, inter)
	})

	t.Run("type mismatch", func(t *testing.T) {
		key := k("typed-counter")
		_, err := s.AtomicAdd(ctx, key, 1)
		require.NoError(t, err)

		_, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		_, err = s.ListAdd(ctx, key, "x")
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		_, err = s.SetAdd(ctx, key, "x")
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		assert.ErrorIs(t, s.Set(ctx, key, "x"), store.ErrTypeMismatch)
		assert.ErrorIs(t, s.ListClear(ctx, key), store.ErrTypeMismatch)

		// Nothing was mutated by the failed calls.
		n, err := s.AtomicAdd(ctx, key, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		list := k("typed-list")
		_, err = s.ListAdd(ctx, list, "x")
		require.NoError(t, err)
		_, err = s.AtomicAdd(ctx, list, 1)
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		_, err = s.SetMembers(ctx, list)
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		_, err = s.SetRemove(ctx, list, "x")
		assert.ErrorIs(t, err, store.ErrTypeMismatch)

		set := k("typed-set")
		_, err = s.SetAdd(ctx, set, "x")
		require.NoError(t, err)
		_, err = s.ListRange(ctx, set, 0, -1)
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
		_, err = s.ListDelItem(ctx, set, "x")
		assert.ErrorIs(t, err, store.ErrTypeMismatch)
	})

	t.Run("del key is idempotent", func(t *testing.T) {
		key := k("gone")
		require.NoError(t, s.Set(ctx, key, "v"))
		require.NoError(t, s.DelKey(ctx, key))
		require.NoError(t, s.DelKey(ctx, key))

		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, s.Set(ctx, "", "v"), store.ErrInvalidArgument)
		_, err := s.Exists(ctx, "")
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
		_, err = s.SetUnion(ctx, k("s1"), "")
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore(nil)
	runStoreTests(t, s)
}

func TestMemoryStoreSingleShard(t *testing.T) {
	s := store.NewMemoryStore(&store.MemoryConfig{ShardCount: 1})
	runStoreTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

func TestDiskStore(t *testing.T) {
	s, err := store.NewDiskStore(filepath.Join(t.TempDir(), "kv.bolt"))
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

func TestDiskStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.bolt")

	s, err := store.NewDiskStore(path)
	require.NoError(t, err)
	_, err = s.AtomicAdd(ctx, "hits", 7)
	require.NoError(t, err)
	_, err = s.SetAdd(ctx, "tags", "go")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewDiskStore(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	total, err := s.AtomicAdd(ctx, "hits", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	members, err := s.SetMembers(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, members)
}

// TestPostgresStore requires DATABASE_DSN to point at a Postgres server.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set")
	}
	s, err := store.NewPostgresStore(dsn)
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

// TestRedisStore requires Redis running on REDIS_ADDR or localhost:6379.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := store.NewRedisStore(ctx, addr)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer s.Close()
	runStoreTests(t, s)
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     store.Config
		wantErr bool
	}{
		{name: "default", cfg: store.Config{}},
		{name: "memory", cfg: store.Config{Backend: "memory", Memory: store.MemoryConfig{ShardCount: 4}}},
		{name: "sqlite", cfg: store.Config{Backend: "sqlite", DSN: filepath.Join(dir, "factory.db")}},
		{name: "sqlite without path", cfg: store.Config{Backend: "sqlite"}, wantErr: true},
		{name: "bolt", cfg: store.Config{Backend: "bolt", DSN: filepath.Join(dir, "factory.bolt")}},
		{name: "postgres without dsn", cfg: store.Config{Backend: "postgres"}, wantErr: true},
		{name: "unknown", cfg: store.Config{Backend: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := store.New(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Close())
		})
	}
}
