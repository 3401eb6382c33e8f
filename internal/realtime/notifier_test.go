package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub(4, nil)
	ctx := context.Background()

	a, _ := hub.Subscribe(ctx)
	b, _ := hub.Subscribe(ctx)
	defer a.Close()
	defer b.Close()

	event := domain.LocationEvent{Type: domain.LocationInserted, Record: &domain.LocationSample{ID: "s1"}}
	if err := hub.Publish(ctx, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for _, sub := range []Subscription{a, b} {
		select {
		case got := <-sub.Events():
			if got.Record.ID != "s1" {
				t.Fatalf("unexpected record %s", got.Record.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(1, nil)
	sub, _ := hub.Subscribe(context.Background())

	sub.Close()
	sub.Close()

	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after close, got %d", hub.Subscribers())
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed events channel")
	}
	// Publishing after close must not panic.
	hub.Publish(context.Background(), domain.LocationEvent{Type: domain.LocationInserted})
}

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	sub, _ := hub.Subscribe(context.Background())
	defer sub.Close()

	hub.Publish(context.Background(), domain.LocationEvent{Type: domain.LocationInserted})
	hub.Publish(context.Background(), domain.LocationEvent{Type: domain.LocationUpdated})

	got := <-sub.Events()
	if got.Type != domain.LocationInserted {
		t.Fatalf("expected first event to be kept, got %s", got.Type)
	}
	select {
	case extra := <-sub.Events():
		t.Fatalf("expected overflow to be dropped, got %v", extra)
	default:
	}
}
