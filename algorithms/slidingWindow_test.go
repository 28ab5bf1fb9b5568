package algorithms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

func newTestSlidingWindow(limit int, s store.Store) (*SlidingWindow, *fakeClock) {
	clock := newFakeClock()
	sw := NewSlidingWindow(limit, 1*time.Second, s)
	sw.now = clock.Now
	return sw, clock
}

func TestSlidingWindowAllow(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		requests int
		expected int
	}{
		{
			name:     "basic allow within limit",
			limit:    5,
			requests: 5,
			expected: 5,
		},
		{
			name:     "deny when limit exceeded",
			limit:    3,
			requests: 5,
			expected: 3,
		},
		{
			name:     "single request",
			limit:    10,
			requests: 1,
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sw, clock := newTestSlidingWindow(tt.limit, store.NewMemoryStore(nil))

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				result, err := sw.Allow(ctx, "user1")
				if err != nil {
					t.Fatalf("Allow returned error: %v", err)
				}
				if result.Allowed {
					allowed++
				}
				clock.Advance(time.Millisecond)
			}

			if allowed != tt.expected {
				t.Errorf("got %d, want %d", allowed, tt.expected)
			}
		})
	}
}

func TestSlidingWindowMultipleUsers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	sw, clock := newTestSlidingWindow(3, s)

	for _, user := range []string{"user1", "user2"} {
		for i := 0; i < 3; i++ {
			result, err := sw.Allow(ctx, user)
			if err != nil || !result.Allowed {
				t.Errorf("%s request %d should be allowed", user, i+1)
			}
			clock.Advance(time.Millisecond)
		}
	}

	// Both should have 3 timestamps in their log
	for _, user := range []string{"user1", "user2"} {
		stamps, err := s.ListRange(ctx, sw.listKey(user), 0, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(stamps) != 3 {
			t.Errorf("%s timestamps: got %d, want 3", user, len(stamps))
		}
	}
}

func TestSlidingWindowExpiry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	sw, clock := newTestSlidingWindow(2, s)

	sw.Allow(ctx, "user1")
	sw.Allow(ctx, "user1")

	clock.Advance(400 * time.Millisecond)
	result, err := sw.Allow(ctx, "user1")
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if result.Allowed {
		t.Fatal("third request inside the window should be denied")
	}
	if result.RetryAfter != 600*time.Millisecond {
		t.Errorf("retry after: got %s, want 600ms", result.RetryAfter)
	}

	clock.Advance(700 * time.Millisecond)
	result, err = sw.Allow(ctx, "user1")
	if err != nil || !result.Allowed {
		t.Fatal("request after the window slid should be allowed")
	}

	stamps, _ := s.ListRange(ctx, sw.listKey("user1"), 0, -1)
	if len(stamps) != 1 {
		t.Errorf("expired timestamps should be removed, got %v", stamps)
	}
}

func TestSlidingWindowReset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	sw, _ := newTestSlidingWindow(5, s)

	sw.Allow(ctx, "user1")
	if err := sw.Reset(ctx, "user1"); err != nil {
		t.Errorf("reset failed: %v", err)
	}

	exists, _ := s.Exists(ctx, sw.listKey("user1"))
	if exists {
		t.Error("after reset, user1 should not exist in store")
	}

	if err := sw.Reset(ctx, "user1"); !errors.Is(err, ErrNoBucket) {
		t.Errorf("second reset: got %v, want ErrNoBucket", err)
	}
}
