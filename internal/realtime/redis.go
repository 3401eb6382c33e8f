package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/infrastructure/redis"
)

// RedisNotifier carries location events over Redis pub/sub so every server
// instance sees inserts made by any other instance
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier creates a Redis-backed notifier
func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, logger: logger}
}

// Publish encodes the event as JSON on Channel
func (n *RedisNotifier) Publish(ctx context.Context, event domain.LocationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal location event: %w", err)
	}
	if err := n.client.Publish(ctx, Channel, payload); err != nil {
		return fmt.Errorf("failed to publish location event: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection for the caller
func (n *RedisNotifier) Subscribe(ctx context.Context) (Subscription, error) {
	ps, err := n.client.Subscribe(ctx, Channel)
	if err != nil {
		return nil, err
	}

	sub := &redisSubscription{
		ps:     ps,
		ch:     make(chan domain.LocationEvent, 16),
		done:   make(chan struct{}),
		logger: n.logger,
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps     *goredis.PubSub
	ch     chan domain.LocationEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *redisSubscription) pump() {
	defer close(s.ch)

	for msg := range s.ps.Channel() {
		var event domain.LocationEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Warn("discarding malformed location event", slog.String("error", err.Error()))
			continue
		}
		select {
		case s.ch <- event:
		case <-s.done:
			return
		default:
			s.logger.Warn("dropping location event for slow subscriber")
		}
	}
}

func (s *redisSubscription) Events() <-chan domain.LocationEvent {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
