// Package algorithms implements rate limiters whose state lives in a
// store.Store.
package algorithms

import (
	"context"
	"errors"
	"time"
)

// ErrNoBucket is returned by Reset for a key the limiter has never seen.
var ErrNoBucket = errors.New("bucket does not exist")

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	Reset(ctx context.Context, key string) error
}
