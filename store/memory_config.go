package store

import "runtime"

// MaxShardCount caps the number of shards a MemoryStore may use.
const MaxShardCount = 1024

// MemoryConfig holds memory-store-specific configuration.
type MemoryConfig struct {
	// ShardCount sets the number of independently locked shards.
	// If <= 0, defaults to runtime.NumCPU().
	// If > MaxShardCount, capped at MaxShardCount.
	ShardCount int
}

// GetShardCount returns the effective shard count.
func (cfg *MemoryConfig) GetShardCount() int {
	var shards int
	if cfg != nil {
		shards = cfg.ShardCount
	}

	if shards <= 0 {
		shards = max(1, runtime.NumCPU())
	}

	if shards > MaxShardCount {
		shards = MaxShardCount
	}

	return shards
}
