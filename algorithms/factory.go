package algorithms

import (
	"fmt"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// New builds the limiter named by algorithm, allowing limit requests per
// window. Supported: "fixed" (default), "sliding", "sliding-counter", "token".
func New(algorithm string, limit int, window time.Duration, s store.Store) (RateLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be greater than 0, got %s", window)
	}
	switch algorithm {
	case "fixed", "":
		return NewFixedWindow(limit, window, s), nil
	case "sliding":
		return NewSlidingWindow(limit, window, s), nil
	case "sliding-counter":
		return NewSlidingWindowCounter(limit, window, s), nil
	case "token":
		return NewTokenBucket(limit, float64(limit)/window.Seconds(), s), nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm: %q (supported: fixed, sliding, sliding-counter, token)", algorithm)
	}
}
