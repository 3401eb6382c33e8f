package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// Channel is the pub/sub channel carrying location table changes
const Channel = "trackpartner:user_locations"

// Subscription delivers location events until Close is called
type Subscription interface {
	Events() <-chan domain.LocationEvent
	Close() error
}

// Notifier publishes location table changes and hands out subscriptions.
// Events are not filtered per recipient.
type Notifier interface {
	Publish(ctx context.Context, event domain.LocationEvent) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// Hub is an in-process Notifier used with the memory store
type Hub struct {
	mu     sync.RWMutex
	subs   map[*hubSubscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer events
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[*hubSubscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Publish fans event out to every subscriber; a full subscriber drops the event
func (h *Hub) Publish(ctx context.Context, event domain.LocationEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("dropping location event for slow subscriber")
		}
	}
	return nil
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe(ctx context.Context) (Subscription, error) {
	sub := &hubSubscription{hub: h, ch: make(chan domain.LocationEvent, h.buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub, nil
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type hubSubscription struct {
	hub  *Hub
	ch   chan domain.LocationEvent
	once sync.Once
}

func (s *hubSubscription) Events() <-chan domain.LocationEvent {
	return s.ch
}

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
	return nil
}
