package algorithms

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

// Fixed Window Benchmarks
func BenchmarkFixedWindowAllow(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	fw := NewFixedWindow(100, 1*time.Second, s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fw.Allow(ctx, "user1")
	}
}

func BenchmarkFixedWindowMultipleUsers(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	fw := NewFixedWindow(100, 1*time.Second, s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fw.Allow(ctx, "user"+strconv.Itoa(i%1000))
	}
}

// Sliding Window Counter Benchmarks
func BenchmarkSlidingWindowCounterAllow(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	swc := NewSlidingWindowCounter(100, 1*time.Second, s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		swc.Allow(ctx, "user1")
	}
}

// Sliding Window Benchmarks
func BenchmarkSlidingWindowAllow(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	sw := NewSlidingWindow(100, 1*time.Second, s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sw.Allow(ctx, "user1")
	}
}

// Token Bucket Benchmarks
func BenchmarkTokenBucketAllow(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	tb := NewTokenBucket(100, 10, s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Allow(ctx, "user1")
	}
}

// Concurrent Benchmarks
func BenchmarkFixedWindowConcurrent(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	fw := NewFixedWindow(10000, 1*time.Second, s)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			fw.Allow(ctx, "user1")
		}
	})
}

func BenchmarkTokenBucketConcurrent(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	tb := NewTokenBucket(10000, 100, s)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tb.Allow(ctx, "user1")
		}
	})
}
