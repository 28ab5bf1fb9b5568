package algorithms

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// Buckets is the token bucket state for one key. It is stored as the scalar
// "tokens:lastRefillUnixNano" at ratelimit:token:{key}.
type Buckets struct {
	tokens       int
	lastRefillTs time.Time
}

func (b *Buckets) encode() string {
	return strconv.Itoa(b.tokens) + ":" + strconv.FormatInt(b.lastRefillTs.UnixNano(), 10)
}

func decodeBuckets(raw string) (*Buckets, error) {
	tokens, ts, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("malformed bucket %q", raw)
	}
	n, err := strconv.Atoi(tokens)
	if err != nil {
		return nil, fmt.Errorf("malformed bucket %q: %w", raw, err)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed bucket %q: %w", raw, err)
	}
	return &Buckets{tokens: n, lastRefillTs: time.Unix(0, nanos)}, nil
}

type TokenBucket struct {
	Capacity   int
	RefillRate float64 // tokens per second, may be below 1
	store      store.Store
	mu         sync.Mutex
	now        func() time.Time
}

func NewTokenBucket(capacity int, refillRate float64, s store.Store) *TokenBucket {
	return &TokenBucket{
		Capacity:   capacity,
		RefillRate: refillRate,
		store:      s,
		now:        time.Now,
	}
}

func (tb *TokenBucket) bucketKey(key string) string {
	return "ratelimit:token:" + key
}

// interval is the time it takes to refill one token.
func (tb *TokenBucket) interval() time.Duration {
	return time.Duration(math.Round(float64(time.Second) / tb.RefillRate))
}

func (tb *TokenBucket) tokensFor(elapsed time.Duration) int {
	if tb.RefillRate <= 0 || elapsed <= 0 {
		return 0
	}
	iv := tb.interval()
	if iv <= 0 {
		return tb.Capacity
	}
	return int(elapsed / iv)
}

// Allow checks if a request is allowed using token bucket rate limiting.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	bk := tb.bucketKey(key)

	var bucket *Buckets
	raw, err := tb.store.Get(ctx, bk)
	switch {
	case errors.Is(err, store.ErrNotFound):
		bucket = &Buckets{tokens: tb.Capacity, lastRefillTs: now}
	case err != nil:
		return Result{}, fmt.Errorf("failed to load bucket state: %w", err)
	default:
		bucket, err = decodeBuckets(raw)
		if err != nil {
			bucket = &Buckets{tokens: tb.Capacity, lastRefillTs: now}
		}
	}

	// Refill whole tokens for the elapsed time. The refill clock advances
	// by exactly the time those tokens took, so a partial token carries
	// over. A full bucket does not bank time.
	tokensToAdd := tb.tokensFor(now.Sub(bucket.lastRefillTs))
	if tokensToAdd > 0 {
		bucket.tokens += tokensToAdd
		if bucket.tokens >= tb.Capacity {
			bucket.tokens = tb.Capacity
			bucket.lastRefillTs = now
		} else {
			bucket.lastRefillTs = bucket.lastRefillTs.Add(time.Duration(tokensToAdd) * tb.interval())
		}
	}

	allowed := bucket.tokens > 0
	if allowed {
		bucket.tokens--
	}

	// SAVE even if denied
	if err := tb.store.Set(ctx, bk, bucket.encode()); err != nil {
		return Result{}, fmt.Errorf("failed to save bucket state: %w", err)
	}

	if allowed {
		return Result{
			Allowed:    true,
			Limit:      tb.Capacity,
			Remaining:  bucket.tokens,
			RetryAfter: 0,
		}, nil
	}

	var retryAfter time.Duration
	if tb.RefillRate > 0 {
		retryAfter = max(tb.interval()-now.Sub(bucket.lastRefillTs), 0)
	}
	return Result{
		Allowed:    false,
		Limit:      tb.Capacity,
		Remaining:  bucket.tokens,
		RetryAfter: retryAfter,
	}, nil
}

func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	bk := tb.bucketKey(key)
	exists, err := tb.store.Exists(ctx, bk)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNoBucket, key)
	}
	return tb.store.DelKey(ctx, bk)
}
