package algorithms

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// SlidingWindow keeps the timestamps of recent requests for each key in the
// list ratelimit:sliding:{key}.
type SlidingWindow struct {
	Limit      int           // Max requests allowed
	WindowSize time.Duration // How long to track (e.g., 1 minute)
	store      store.Store   // Where to persist request timestamps
	mu         sync.Mutex
	now        func() time.Time
}

func NewSlidingWindow(limit int, windowSize time.Duration, s store.Store) *SlidingWindow {
	if windowSize <= 0 {
		panic("WindowSize must be greater than 0")
	}
	return &SlidingWindow{
		Limit:      limit,
		WindowSize: windowSize,
		store:      s,
		now:        time.Now,
	}
}

func (sw *SlidingWindow) listKey(key string) string {
	return "ratelimit:sliding:" + key
}

// Allow checks if a request is allowed under sliding window rate limit
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (Result, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now().UnixNano()
	windowStart := now - sw.WindowSize.Nanoseconds()
	lk := sw.listKey(key)

	stamps, err := sw.store.ListRange(ctx, lk, 0, -1)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load request log: %w", err)
	}

	var valid []int64
	for _, raw := range stamps {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && ts > windowStart {
			valid = append(valid, ts)
			continue
		}
		if _, err := sw.store.ListDelItem(ctx, lk, raw); err != nil {
			return Result{}, fmt.Errorf("failed to expire request: %w", err)
		}
	}

	if len(valid) < sw.Limit {
		if _, err := sw.store.ListAdd(ctx, lk, strconv.FormatInt(now, 10)); err != nil {
			return Result{}, fmt.Errorf("failed to record request: %w", err)
		}
		return Result{
			Allowed:    true,
			Limit:      sw.Limit,
			Remaining:  sw.Limit - len(valid) - 1,
			RetryAfter: 0,
		}, nil
	}

	// The list is in arrival order, so the oldest valid stamp frees up first.
	var retryAfter time.Duration
	if len(valid) > 0 {
		retryAfter = time.Duration(valid[0] - windowStart)
	}
	return Result{
		Allowed:    false,
		Limit:      sw.Limit,
		Remaining:  0,
		RetryAfter: retryAfter,
	}, nil
}

func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	lk := sw.listKey(key)
	exists, err := sw.store.Exists(ctx, lk)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNoBucket, key)
	}

	return sw.store.ListClear(ctx, lk)
}
