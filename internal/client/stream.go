package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/realtime"
)

func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/locations"
	u.RawQuery = url.Values{"token": {c.Token()}}.Encode()
	return u.String(), nil
}

// Subscribe opens the location push channel. The subscription's event
// channel closes when the connection drops.
func (c *Client) Subscribe(ctx context.Context) (realtime.Subscription, error) {
	if c.Token() == "" {
		return nil, ErrNoSession
	}
	target, err := c.streamURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("failed to open location stream: %w", domain.ErrInvalidCredentials)
		}
		if resp != nil {
			return nil, fmt.Errorf("failed to open location stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open location stream: %w", err)
	}

	sub := &wsSubscription{
		conn:   conn,
		ch:     make(chan domain.LocationEvent, 16),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go sub.read()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	ch     chan domain.LocationEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *wsSubscription) read() {
	defer close(s.ch)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("location stream dropped", slog.String("error", err.Error()))
			}
			return
		}
		var event domain.LocationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warn("discarding malformed location event", slog.String("error", err.Error()))
			continue
		}
		select {
		case s.ch <- event:
		case <-s.done:
			return
		}
	}
}

func (s *wsSubscription) Events() <-chan domain.LocationEvent {
	return s.ch
}

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
