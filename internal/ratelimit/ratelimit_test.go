package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()
	l := New(10, 5)
	if l.maxTokens != 10 {
		t.Errorf("maxTokens = %v, want 10", l.maxTokens)
	}
	if l.refillRate != 5 {
		t.Errorf("refillRate = %v, want 5", l.refillRate)
	}
	if l.tokens != 10 {
		t.Errorf("initial tokens = %v, want 10", l.tokens)
	}
}

func TestAllow(t *testing.T) {
	t.Parallel()
	t.Run("allows when tokens available", func(t *testing.T) {
		t.Parallel()
		l := New(5, 1)
		for i := 0; i < 5; i++ {
			if !l.Allow() {
				t.Errorf("Allow() = false on attempt %d, want true", i+1)
			}
		}
	})

	t.Run("denies when no tokens", func(t *testing.T) {
		t.Parallel()
		l := New(2, 0) // No refill
		l.Allow()
		l.Allow()
		if l.Allow() {
			t.Error("Allow() = true when no tokens, want false")
		}
	})

	t.Run("refills over time", func(t *testing.T) {
		t.Parallel()
		l := New(1, 100) // Fast refill for testing
		l.Allow()        // Consume the token

		// Wait for refill
		time.Sleep(20 * time.Millisecond)

		if !l.Allow() {
			t.Error("Allow() = false after refill time, want true")
		}
	})
}

func TestAvailable(t *testing.T) {
	t.Parallel()
	l := New(10, 1)
	l.Allow()
	l.Allow()

	available := l.Available()
	// Allow some tolerance for timing
	if available < 7.9 || available > 8.1 {
		t.Errorf("Available() = %v, want ~8", available)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	l := New(100, 100)

	var wg sync.WaitGroup
	allowed := make(chan struct{}, 200)

	// Spawn 50 goroutines each trying to get 2 tokens
	for range 50 {
		wg.Go(func() {
			if l.Allow() {
				allowed <- struct{}{}
			}
			if l.Allow() {
				allowed <- struct{}{}
			}
		})
	}

	wg.Wait()
	close(allowed)

	count := 0
	for range allowed {
		count++
	}

	// Should have allowed exactly 100 (initial tokens)
	if count != 100 {
		t.Errorf("concurrent Allow() allowed %d requests, want 100", count)
	}
}

func TestIsFull(t *testing.T) {
	t.Parallel()
	t.Run("full when at max capacity", func(t *testing.T) {
		t.Parallel()
		l := New(10, 1)
		if !l.IsFull() {
			t.Error("IsFull() = false for new limiter, want true")
		}
	})

	t.Run("not full after consuming tokens", func(t *testing.T) {
		t.Parallel()
		l := New(10, 0) // No refill
		l.Allow()
		if l.IsFull() {
			t.Error("IsFull() = true after Allow(), want false")
		}
	})

	t.Run("becomes full after refill", func(t *testing.T) {
		t.Parallel()
		l := New(1, 100) // Fast refill
		l.Allow()        // Consume

		// Wait for refill
		time.Sleep(20 * time.Millisecond)

		if !l.IsFull() {
			t.Error("IsFull() = false after refill, want true")
		}
	})
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := newWithClock(2, 4, clock) // one token every 250ms
	if d := l.RetryAfter(); d != 0 {
		t.Errorf("RetryAfter() on full bucket = %v, want 0", d)
	}

	l.Allow()
	l.Allow()
	if d := l.RetryAfter(); d != 250*time.Millisecond {
		t.Errorf("RetryAfter() on empty bucket = %v, want 250ms", d)
	}

	now = now.Add(100 * time.Millisecond)
	if d := l.RetryAfter(); d != 150*time.Millisecond {
		t.Errorf("RetryAfter() after 100ms = %v, want 150ms", d)
	}

	now = now.Add(150 * time.Millisecond)
	if !l.Allow() {
		t.Error("Allow() = false once a token refilled, want true")
	}
}
