package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/realtime"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
	// audienceRefresh bounds how long a connection keeps a stale view of
	// who the viewer tracks
	audienceRefresh = 5 * time.Second
)

type audienceLister interface {
	VisibleOwners(ctx context.Context, viewerID string) ([]string, error)
}

// StreamHandler pushes location inserts to websocket clients. A client only
// receives events for itself and for active users it tracks.
type StreamHandler struct {
	notifier       realtime.Notifier
	audience       audienceLister
	logger         *slog.Logger
	allowedOrigins []string
	refresh        time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(notifier realtime.Notifier, audience audienceLister, logger *slog.Logger, allowedOrigins []string) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		notifier:       notifier,
		audience:       audience,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		refresh:        audienceRefresh,
	}
}

// viewerAudience caches the owners one connection may hear about. It is only
// used from the connection's pump goroutine.
type viewerAudience struct {
	lister   audienceLister
	viewerID string
	refresh  time.Duration
	owners   map[string]bool
	loadedAt time.Time
	logger   *slog.Logger
}

func (a *viewerAudience) allows(ctx context.Context, ownerID string) bool {
	if ownerID == a.viewerID {
		return true
	}
	if a.lister == nil {
		return false
	}
	if a.owners == nil || time.Since(a.loadedAt) >= a.refresh {
		ids, err := a.lister.VisibleOwners(ctx, a.viewerID)
		if err != nil {
			a.logger.Warn("failed to load stream audience",
				slog.String("user_id", a.viewerID),
				slog.String("error", err.Error()),
			)
			a.owners = nil
			return false
		}
		a.owners = make(map[string]bool, len(ids))
		for _, id := range ids {
			a.owners[id] = true
		}
		a.loadedAt = time.Now()
	}
	return a.owners[ownerID]
}

func (h *StreamHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Allow requests with no origin (e.g., non-browser clients)
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/locations?token=
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.notifier.Subscribe(ctx)
	if err != nil {
		writeError(w, h.logger, "subscribe", err)
		return
	}
	defer sub.Close()

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	metrics.IncrementSubscribers()
	defer metrics.DecrementSubscribers()
	h.logger.Debug("location stream opened", slog.String("user_id", claims.UserID))

	// The client never sends data; reading surfaces close frames and drops.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.pump(ctx, ws, sub, claims.UserID); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			h.logger.Debug("websocket closed", slog.String("user_id", claims.UserID), slog.String("reason", err.Error()))
		}
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

func (h *StreamHandler) pump(ctx context.Context, ws *websocket.Conn, sub realtime.Subscription, viewerID string) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	audience := &viewerAudience{lister: h.audience, viewerID: viewerID, refresh: h.refresh, logger: h.logger}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if event.Record == nil || !audience.allows(ctx, event.Record.UserID) {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to encode location event", slog.String("error", err.Error()))
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}
