package store

import (
	"slices"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
)

// entry is the tagged value stored under a key. Only the field matching
// kind is meaningful.
type entry struct {
	kind    Kind
	counter int64
	scalar  string
	list    []string
	set     map[string]struct{}
}

// memoryShard owns a slice of the keyspace behind its own lock.
type memoryShard struct {
	entries map[string]*entry
	mu      sync.RWMutex
}

func newMemoryShard() *memoryShard {
	return &memoryShard{entries: make(map[string]*entry)}
}

// lookup returns the entry at key when it holds want. A missing key yields
// (nil, nil).
func (sh *memoryShard) lookup(key string, want Kind) (*entry, error) {
	e, ok := sh.entries[key]
	if !ok {
		return nil, nil
	}
	if e.kind != want {
		return nil, mismatch(key, want, e.kind)
	}
	return e, nil
}

// setSnapshot copies the members of the set at key. ok is false when the key
// is missing or holds another kind.
func (sh *memoryShard) setSnapshot(key string) (members []string, ok bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, exists := sh.entries[key]
	if !exists || e.kind != KindSet {
		return nil, false
	}
	return setKeys(e.set), true
}

// hashKey maps key onto a shard index.
func (ms *MemoryStore) hashKey(key string) int {
	if len(ms.shards) == 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(len(ms.shards)))
}

func (ms *MemoryStore) getShardByKey(key string) *memoryShard {
	return ms.shards[ms.hashKey(key)]
}

func cloneList(list []string) []string {
	if len(list) == 0 {
		return []string{}
	}
	return slices.Clone(list)
}
