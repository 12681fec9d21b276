package exchange

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketStartsFull(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(10, 1)
	if tb.tokens != 10 {
		t.Errorf("tokens = %v, want 10", tb.tokens)
	}
}

func TestTokenBucketBurstDoesNotBlock(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(5, 1)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of 5 took %v, expected immediate", elapsed)
	}
}

func TestTokenBucketBlocksUntilRefill(t *testing.T) {
	t.Parallel()
	// 1 token, 10/sec refill → next token in ~100ms.
	tb := NewTokenBucket(1, 10)

	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected ~100ms of blocking", elapsed)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("second Wait blocked too long: %v", elapsed)
	}
}

func TestTokenBucketHonorsContext(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.1) // refill far slower than the test deadline

	_ = tb.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Error("expected context error while waiting on an empty bucket")
	}
}

func TestNewRateLimiterCategories(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter()

	if rl.Order == nil || rl.Query == nil || rl.Market == nil {
		t.Fatal("all rate limiter categories must be initialized")
	}
	if err := rl.Order.Wait(context.Background()); err != nil {
		t.Errorf("Order.Wait: %v", err)
	}
}
