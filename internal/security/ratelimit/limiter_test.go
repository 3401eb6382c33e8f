package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	defer l.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("u1") || !l.Allow("u1") {
		t.Fatal("expected first two requests to pass")
	}
	if l.Allow("u1") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("u2") {
		t.Fatal("expected other identity to have its own bucket")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("u1") {
		t.Fatal("expected window to slide")
	}
}

func TestAllowAnonymousAndDisabled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()
	for i := 0; i < 5; i++ {
		if !l.Allow("") {
			t.Fatal("expected anonymous requests to pass")
		}
	}

	off := NewLimiter(0, time.Minute)
	defer off.Stop()
	for i := 0; i < 5; i++ {
		if !off.Allow("u1") {
			t.Fatal("expected zero limit to disable limiting")
		}
	}
}

func TestAllowStrictSeparateBucket(t *testing.T) {
	l := NewLimiter(10, time.Minute)
	defer l.Stop()

	if !l.AllowStrict("1.2.3.4", 1, time.Minute) {
		t.Fatal("expected first strict request to pass")
	}
	if l.AllowStrict("1.2.3.4", 1, time.Minute) {
		t.Fatal("expected second strict request to be limited")
	}
	if !l.Allow("1.2.3.4") {
		t.Fatal("strict bucket must not consume the regular limit")
	}
}

func TestEvictStale(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("u1")

	now = now.Add(20 * time.Minute)
	l.evictStale(15 * time.Minute)

	l.mu.RLock()
	n := len(l.buckets)
	l.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected stale bucket evicted, %d left", n)
	}
}
