package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(3), nil, "dial", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("boom")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("unexpected result %d %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Do(context.Background(), fastConfig(2), nil, "dial", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestDoUnlimitedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, fastConfig(0), nil, "dial", func(ctx context.Context) (int, error) {
		calls++
		if calls == 5 {
			cancel()
		}
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatalf("expected error after cancel")
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := &Config{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, BackoffMultiplier: 2}
	if got := calculateBackoff(0, cfg); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := calculateBackoff(10, cfg); got != 30*time.Second {
		t.Fatalf("expected cap at 30s, got %v", got)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	denied := errors.New("token revoked")
	calls := 0
	_, err := Do(context.Background(), fastConfig(0), nil, "subscribe", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(denied)
	})
	if !errors.Is(err, denied) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
