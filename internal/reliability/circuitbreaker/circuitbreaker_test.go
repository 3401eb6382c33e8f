package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTripsAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, time.Minute)
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	fail := errors.New("upstream down")
	_ = cb.Execute(func() error { return fail })
	_ = cb.Execute(func() error { return fail })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open after 2 failures, got %v", cb.GetState())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) || called {
		t.Fatalf("expected fast fail while open, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after probe success, got %v", cb.GetState())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("unexpected transitions %v", transitions)
		}
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 1, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	if !cb.AllowRequest() || cb.GetState() != StateHalfOpen {
		t.Fatalf("expected half open probe")
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected reopen, got %v", cb.GetState())
	}
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 1, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	if !cb.AllowRequest() {
		t.Fatal("expected first probe allowed")
	}
	if cb.AllowRequest() {
		t.Fatal("expected second probe rejected while the first is in flight")
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.GetState())
	}
}

func TestNeutralErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("no address")
	cb := NewCircuitBreaker(1, 1, time.Minute)
	cb.Neutral(func(err error) bool { return errors.Is(err, notFound) })

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return notFound }); !errors.Is(err, notFound) {
			t.Fatalf("expected neutral error returned, got %v", err)
		}
		if err := cb.Execute(func() error { return context.Canceled }); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation returned, got %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after neutral errors, got %v", cb.GetState())
	}
}
