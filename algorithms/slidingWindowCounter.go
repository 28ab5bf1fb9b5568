package algorithms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// SlidingWindowCounter approximates a sliding window from two fixed-window
// counters: the previous window's count is weighted by how much of it still
// overlaps the sliding window.
type SlidingWindowCounter struct {
	Limit      int
	WindowSize time.Duration
	store      store.Store
	mu         sync.Mutex
	now        func() time.Time
}

func NewSlidingWindowCounter(limit int, windowSize time.Duration, s store.Store) *SlidingWindowCounter {
	if windowSize <= 0 {
		panic("windowSize must be greater than 0")
	}
	return &SlidingWindowCounter{
		Limit:      limit,
		WindowSize: windowSize,
		store:      s,
		now:        time.Now,
	}
}

func (swc *SlidingWindowCounter) windowKey(key string, window int64) string {
	return fmt.Sprintf("ratelimit:swc:%s:%d", key, window)
}

// readCounter returns the counter at key without creating it.
func readCounter(ctx context.Context, s store.Store, key string) (int64, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil || !exists {
		return 0, err
	}
	return s.AtomicAdd(ctx, key, 0)
}

func (swc *SlidingWindowCounter) Allow(ctx context.Context, key string) (Result, error) {
	swc.mu.Lock()
	defer swc.mu.Unlock()

	nowNanos := swc.now().UnixNano()
	windowSizeNanos := swc.WindowSize.Nanoseconds()
	currentWindow := nowNanos / windowSizeNanos

	// Anything older than the previous window no longer matters.
	if err := swc.store.DelKey(ctx, swc.windowKey(key, currentWindow-2)); err != nil {
		return Result{}, fmt.Errorf("failed to drop stale window: %w", err)
	}

	previous, err := readCounter(ctx, swc.store, swc.windowKey(key, currentWindow-1))
	if err != nil {
		return Result{}, fmt.Errorf("failed to load previous window: %w", err)
	}
	current, err := readCounter(ctx, swc.store, swc.windowKey(key, currentWindow))
	if err != nil {
		return Result{}, fmt.Errorf("failed to load current window: %w", err)
	}

	// How far into current window are we?
	timeIntoWindow := nowNanos % windowSizeNanos

	// How much of previous window overlaps with our sliding window?
	overlap := windowSizeNanos - timeIntoWindow
	overlapPercentage := float64(overlap) / float64(windowSizeNanos)

	// Estimate total requests in the sliding window
	estimate := float64(previous)*overlapPercentage + float64(current)

	if estimate < float64(swc.Limit) {
		if _, err := swc.store.AtomicAdd(ctx, swc.windowKey(key, currentWindow), 1); err != nil {
			return Result{}, fmt.Errorf("failed to count request: %w", err)
		}
		return Result{
			Allowed:    true,
			Limit:      swc.Limit,
			Remaining:  swc.Limit - int(estimate) - 1,
			RetryAfter: 0,
		}, nil
	}

	nextWindowStart := (currentWindow + 1) * windowSizeNanos
	return Result{
		Allowed:    false,
		Limit:      swc.Limit,
		Remaining:  0,
		RetryAfter: time.Duration(nextWindowStart - nowNanos),
	}, nil
}

func (swc *SlidingWindowCounter) Reset(ctx context.Context, key string) error {
	swc.mu.Lock()
	defer swc.mu.Unlock()

	currentWindow := swc.now().UnixNano() / swc.WindowSize.Nanoseconds()
	found := false
	for _, w := range []int64{currentWindow, currentWindow - 1} {
		k := swc.windowKey(key, w)
		exists, err := swc.store.Exists(ctx, k)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		found = true
		if err := swc.store.DelKey(ctx, k); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoBucket, key)
	}
	return nil
}
