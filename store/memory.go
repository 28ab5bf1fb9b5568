package store

import (
	"context"
	"fmt"
)

// MemoryStore keeps every entry in memory. Keys are spread over shards by
// hash and each shard has its own lock, so operations on keys in different
// shards do not block each other. Safe for concurrent use.
type MemoryStore struct {
	shards []*memoryShard
}

// NewMemoryStore creates a MemoryStore. A nil cfg uses the defaults.
func NewMemoryStore(cfg *MemoryConfig) *MemoryStore {
	n := cfg.GetShardCount()
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = newMemoryShard()
	}
	return &MemoryStore{shards: shards}
}

func (ms *MemoryStore) Get(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	sh := ms.getShardByKey(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, err := sh.lookup(key, KindScalar)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", notFound(key)
	}
	return e.scalar, nil
}

func (ms *MemoryStore) Set(_ context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindScalar)
	if err != nil {
		return err
	}
	if e == nil {
		sh.entries[key] = &entry{kind: KindScalar, scalar: value}
		return nil
	}
	e.scalar = value
	return nil
}

func (ms *MemoryStore) AtomicAdd(_ context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindCounter)
	if err != nil {
		return 0, err
	}
	var current int64
	if e != nil {
		current = e.counter
	}
	total, ok := addInt64(current, delta)
	if !ok {
		return 0, fmt.Errorf("%w: adding %d to counter %q overflows", ErrInvalidArgument, delta, key)
	}
	if e == nil {
		sh.entries[key] = &entry{kind: KindCounter, counter: total}
		return total, nil
	}
	e.counter = total
	return total, nil
}

func (ms *MemoryStore) DelKey(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.entries, key)
	return nil
}

func (ms *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	_, ok := sh.entries[key]
	return ok, nil
}

func (ms *MemoryStore) ListAdd(_ context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindList)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: KindList}
		sh.entries[key] = e
	}
	e.list = append(e.list, item)
	return len(e.list), nil
}

func (ms *MemoryStore) ListDelItem(_ context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindList)
	if err != nil || e == nil {
		return 0, err
	}
	kept, removed := removeAll(e.list, item)
	if len(kept) == 0 {
		delete(sh.entries, key)
		return removed, nil
	}
	e.list = kept
	return removed, nil
}

func (ms *MemoryStore) ListRange(_ context.Context, key string, start, stop int) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, err := sh.lookup(key, KindList)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	from, to, ok := clampRange(start, stop, len(e.list))
	if !ok {
		return []string{}, nil
	}
	return cloneList(e.list[from : to+1]), nil
}

func (ms *MemoryStore) ListClear(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindList)
	if err != nil || e == nil {
		return err
	}
	delete(sh.entries, key)
	return nil
}

func (ms *MemoryStore) SetAdd(_ context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: KindSet, set: make(map[string]struct{})}
		sh.entries[key] = e
	}
	e.set[value] = struct{}{}
	return len(e.set), nil
}

func (ms *MemoryStore) SetRemove(_ context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := sh.lookup(key, KindSet)
	if err != nil || e == nil {
		return 0, err
	}
	delete(e.set, value)
	if len(e.set) == 0 {
		delete(sh.entries, key)
		return 0, nil
	}
	return len(e.set), nil
}

func (ms *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	sh := ms.getShardByKey(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, err := sh.lookup(key, KindSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	return setKeys(e.set), nil
}

// SetUnion reads each key under its own shard lock; the result is not a
// single snapshot across keys.
func (ms *MemoryStore) SetUnion(_ context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		if members, ok := ms.getShardByKey(key).setSnapshot(key); ok {
			groups = append(groups, members)
		}
	}
	return unionOf(groups), nil
}

// SetIntersect reads each key under its own shard lock; the result is not a
// single snapshot across keys.
func (ms *MemoryStore) SetIntersect(_ context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		members, ok := ms.getShardByKey(key).setSnapshot(key)
		if !ok {
			return []string{}, nil
		}
		groups = append(groups, members)
	}
	return intersectOf(groups), nil
}

// Len returns the number of keys currently stored.
func (ms *MemoryStore) Len() int {
	n := 0
	for _, sh := range ms.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (ms *MemoryStore) Close() error {
	return nil
}
