package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Counters live in a hash field so that Redis itself rejects scalar reads
// and writes against them with WRONGTYPE.
const counterField = "counter"

var (
	// setScalar refuses to overwrite a key that holds anything but a string.
	setScalar = redis.NewScript(`
local t = redis.call('TYPE', KEYS[1]).ok
if t ~= 'none' and t ~= 'string' then
	return redis.error_reply('WRONGTYPE Operation against a key holding the wrong kind of value')
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

	clearList = redis.NewScript(`
local t = redis.call('TYPE', KEYS[1]).ok
if t == 'none' then
	return 0
end
if t ~= 'list' then
	return redis.error_reply('WRONGTYPE Operation against a key holding the wrong kind of value')
end
return redis.call('DEL', KEYS[1])
`)

	unionSets = redis.NewScript(`
local sets = {}
for _, k in ipairs(KEYS) do
	if redis.call('TYPE', k).ok == 'set' then
		table.insert(sets, k)
	end
end
if #sets == 0 then
	return {}
end
return redis.call('SUNION', unpack(sets))
`)

	intersectSets = redis.NewScript(`
for _, k in ipairs(KEYS) do
	if redis.call('TYPE', k).ok ~= 'set' then
		return {}
	end
end
return redis.call('SINTER', unpack(KEYS))
`)
)

// RedisStore implements Store on a Redis server. Each kind maps onto a
// native Redis type: scalars are strings, counters are hashes, lists are
// lists and sets are sets.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// redisError translates Redis replies into store errors.
func redisError(key string, want Kind, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return mismatch(key, want, KindNone)
	case strings.Contains(msg, "overflow"):
		return fmt.Errorf("%w: counter %q: %s", ErrInvalidArgument, key, msg)
	}
	return fmt.Errorf("redis: %w", err)
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(key)
	}
	if err != nil {
		return "", redisError(key, KindScalar, err)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := setScalar.Run(ctx, r.client, []string{key}, value).Err()
	return redisError(key, KindScalar, err)
}

func (r *RedisStore) AtomicAdd(ctx context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	total, err := r.client.HIncrBy(ctx, key, counterField, delta).Result()
	if err != nil {
		return 0, redisError(key, KindCounter, err)
	}
	return total, nil
}

func (r *RedisStore) DelKey(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return redisError(key, KindNone, r.client.Del(ctx, key).Err())
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, redisError(key, KindNone, err)
	}
	return n > 0, nil
}

func (r *RedisStore) ListAdd(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	n, err := r.client.RPush(ctx, key, item).Result()
	if err != nil {
		return 0, redisError(key, KindList, err)
	}
	return int(n), nil
}

// ListDelItem relies on Redis deleting a list once its last element is gone.
func (r *RedisStore) ListDelItem(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	n, err := r.client.LRem(ctx, key, 0, item).Result()
	if err != nil {
		return 0, redisError(key, KindList, err)
	}
	return int(n), nil
}

func (r *RedisStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	vals, err := r.client.LRange(ctx, key, int64(start), int64(stop)).Result()
	if err != nil {
		return nil, redisError(key, KindList, err)
	}
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

func (r *RedisStore) ListClear(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := clearList.Run(ctx, r.client, []string{key}).Err()
	return redisError(key, KindList, err)
}

func (r *RedisStore) SetAdd(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, value)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, redisError(key, KindSet, err)
	}
	return int(card.Val()), nil
}

func (r *RedisStore) SetRemove(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, key, value)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, redisError(key, KindSet, err)
	}
	return int(card.Val()), nil
}

func (r *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, redisError(key, KindSet, err)
	}
	return sorted(members), nil
}

func (r *RedisStore) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	return r.setAlgebra(ctx, unionSets, keys)
}

func (r *RedisStore) SetIntersect(ctx context.Context, keys ...string) ([]string, error) {
	return r.setAlgebra(ctx, intersectSets, keys)
}

func (r *RedisStore) setAlgebra(ctx context.Context, script *redis.Script, keys []string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	members, err := script.Run(ctx, r.client, keys).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("redis: %w", err)
	}
	return sorted(members), nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sorted(members []string) []string {
	if members == nil {
		return []string{}
	}
	slices.Sort(members)
	return members
}
