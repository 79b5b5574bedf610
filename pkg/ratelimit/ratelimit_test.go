package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	tb := NewTokenBucket(3, 100)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should pass with a full bucket", i)
		}
	}
	if tb.Allow() {
		t.Fatal("empty bucket must deny")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("wait should succeed after refill: %v", err)
	}
}

func TestTokenBucketRefillsSubSecond(t *testing.T) {
	tb := NewTokenBucket(1, 100)
	if !tb.Allow() {
		t.Fatal("full bucket must allow")
	}
	if tb.Allow() {
		t.Fatal("empty bucket must deny")
	}

	// at 100 tokens/s a handful of milliseconds must mint a token; a refill
	// that only counts whole seconds would starve here
	time.Sleep(30 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("bucket did not refill within the sub-second quantum")
	}
}

func TestSlidingWindowLimit(t *testing.T) {
	sw := NewSlidingWindow(2, 200*time.Millisecond)
	if !sw.Allow() || !sw.Allow() {
		t.Fatal("first two requests should pass")
	}
	if sw.Allow() {
		t.Fatal("third request inside the window must be denied")
	}

	time.Sleep(250 * time.Millisecond)
	if !sw.Allow() {
		t.Fatal("window expired, request should pass")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	sw := NewSlidingWindow(1, time.Minute)
	sw.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sw.Wait(ctx); err == nil {
		t.Fatal("wait must give up when the context is done")
	}
}
