package algorithms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// FixedWindow counts requests per key in consecutive windows of WindowSize.
// Each window is a counter at ratelimit:fixed:{key}:{window}.
type FixedWindow struct {
	Limit      int
	WindowSize time.Duration
	store      store.Store
	mu         sync.Mutex
	now        func() time.Time
}

func NewFixedWindow(limit int, windowSize time.Duration, s store.Store) *FixedWindow {
	if windowSize <= 0 {
		panic("windowSize must be greater than 0")
	}
	return &FixedWindow{
		Limit:      limit,
		WindowSize: windowSize,
		store:      s,
		now:        time.Now,
	}
}

func (fw *FixedWindow) windowKey(key string, window int64) string {
	return fmt.Sprintf("ratelimit:fixed:%s:%d", key, window)
}

func (fw *FixedWindow) currentWindow() int64 {
	return fw.now().UnixNano() / fw.WindowSize.Nanoseconds()
}

func (fw *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	window := fw.currentWindow()
	count, err := fw.store.AtomicAdd(ctx, fw.windowKey(key, window), 1)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count request: %w", err)
	}
	// First request of a new window: the previous one is over.
	if count == 1 {
		if err := fw.store.DelKey(ctx, fw.windowKey(key, window-1)); err != nil {
			return Result{}, fmt.Errorf("failed to drop previous window: %w", err)
		}
	}

	if count > int64(fw.Limit) {
		nextWindowStart := time.Unix(0, (window+1)*fw.WindowSize.Nanoseconds())
		return Result{
			Allowed:    false,
			Limit:      fw.Limit,
			Remaining:  0,
			RetryAfter: nextWindowStart.Sub(fw.now()),
		}, nil
	}

	return Result{
		Allowed:    true,
		Limit:      fw.Limit,
		Remaining:  fw.Limit - int(count),
		RetryAfter: 0,
	}, nil
}

func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	window := fw.currentWindow()
	found := false
	for _, w := range []int64{window, window - 1} {
		k := fw.windowKey(key, w)
		exists, err := fw.store.Exists(ctx, k)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		found = true
		if err := fw.store.DelKey(ctx, k); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoBucket, key)
	}
	return nil
}
