package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestAllowEnforcesBurst(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should pass within the burst", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("request should be limited once the bucket is empty")
	}

	// One token refills after 100ms at 10 req/s.
	time.Sleep(110 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatal("request should pass after replenishment")
	}
}

func TestZeroRateMeansUnlimited(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter rejected request %d", i)
		}
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first request: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("second request: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Fatalf("waited %v, expected roughly 100ms", elapsed)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	limiter := New(1, 1)
	limiter.Allow() // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait should fail once the context expires")
	}
}
