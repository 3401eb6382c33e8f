// Package livesync keeps a client session's view of the partner location
// fresh from push events, a poll ticker and manual refreshes.
package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/realtime"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/reliability/retry"
)

// DefaultPollInterval is the poll fallback cadence
const DefaultPollInterval = 30 * time.Second

// Resolver answers the current partner location; domain.ErrNotFound means
// no partner or no sample yet
type Resolver interface {
	PartnerLocation(ctx context.Context) (*domain.PartnerLocation, error)
}

// Subscriber opens the push channel
type Subscriber interface {
	Subscribe(ctx context.Context) (realtime.Subscription, error)
}

// Trigger names what caused a resolve
type Trigger string

const (
	TriggerStart   Trigger = "start"
	TriggerPush    Trigger = "push"
	TriggerPoll    Trigger = "poll"
	TriggerRefresh Trigger = "refresh"
)

// View is the client visible state
type View struct {
	// Location is the last resolved partner location; nil when none
	Location *domain.PartnerLocation
	// Err is the last resolve failure; the previous Location is kept
	Err error
	// Resolved is false until the first resolve completes
	Resolved  bool
	UpdatedAt time.Time
}

// Options configures a Controller
type Options struct {
	PollInterval time.Duration
	Reconnect    *retry.Config
	// OnChange is called with every applied view from the resolve goroutine.
	// It must not call Close, which waits for that goroutine.
	OnChange func(View)
}

// Controller owns one client session. Triggers are coalesced into a single
// pending slot served by one resolve loop, so at most one resolve is in flight
// and results apply in completion order.
type Controller struct {
	resolver   Resolver
	subscriber Subscriber
	opts       Options
	logger     *slog.Logger

	kick chan Trigger

	mu      sync.Mutex
	view    View
	live    bool
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sub     realtime.Subscription
}

// New creates a controller; subscriber may be nil to rely on polling only
func New(resolver Resolver, subscriber Subscriber, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Reconnect == nil {
		opts.Reconnect = retry.ReconnectConfig()
	}
	return &Controller{
		resolver:   resolver,
		subscriber: subscriber,
		opts:       opts,
		logger:     logger,
		kick:       make(chan Trigger, 1),
	}
}

// Start launches the session and queues an initial resolve. A controller
// runs at most once; Start after Close does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.started = true
	c.live = true
	c.cancel = cancel
	c.wg.Add(2)
	if c.subscriber != nil {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	go c.resolveLoop(ctx)
	go c.pollLoop(ctx)
	if c.subscriber != nil {
		go c.pushLoop(ctx)
	}
	c.trigger(TriggerStart)
}

// Refresh queues a manual resolve
func (c *Controller) Refresh() {
	c.trigger(TriggerRefresh)
}

// View returns the current view
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Close ends the session: the ticker stops and the push subscription is
// released. Results arriving afterwards are discarded. Close is idempotent
// and may precede Start.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.live = false
	cancel := c.cancel
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		_ = sub.Close()
	}
	c.wg.Wait()
}

// trigger fills the pending slot; a full slot already covers this request
func (c *Controller) trigger(t Trigger) {
	select {
	case c.kick <- t:
	default:
	}
}

func (c *Controller) resolveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.kick:
			c.resolve(ctx, t)
		}
	}
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.trigger(TriggerPoll)
		}
	}
}

func (c *Controller) pushLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		sub, err := retry.Do(ctx, c.opts.Reconnect, c.logger, "subscribe location events",
			func(ctx context.Context) (realtime.Subscription, error) {
				sub, err := c.subscriber.Subscribe(ctx)
				if errors.Is(err, domain.ErrInvalidCredentials) {
					return nil, retry.Permanent(err)
				}
				return sub, err
			})
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push channel unavailable, polling only", slog.String("error", err.Error()))
			}
			return
		}

		c.mu.Lock()
		if !c.live {
			c.mu.Unlock()
			_ = sub.Close()
			return
		}
		c.sub = sub
		c.mu.Unlock()

		c.consume(ctx, sub)

		c.mu.Lock()
		if c.sub == sub {
			c.sub = nil
		}
		c.mu.Unlock()
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel dropped, reconnecting")
		// Catch up on anything missed while disconnected.
		c.trigger(TriggerPush)
	}
}

func (c *Controller) consume(ctx context.Context, sub realtime.Subscription) {
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			// Events are not filtered by partner; any change re-resolves.
			c.trigger(TriggerPush)
		}
	}
}

func (c *Controller) resolve(ctx context.Context, t Trigger) {
	loc, err := c.resolver.PartnerLocation(ctx)

	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return
	}
	next := c.view
	next.Resolved = true
	switch {
	case err == nil:
		next.Location = loc
		next.Err = nil
	case errors.Is(err, domain.ErrNotFound):
		next.Location = nil
		next.Err = nil
	default:
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		next.Err = err
	}
	if sameView(c.view, next) {
		c.mu.Unlock()
		return
	}
	next.UpdatedAt = time.Now()
	c.view = next
	c.mu.Unlock()

	c.logger.Debug("partner view updated", slog.String("trigger", string(t)))
	if c.opts.OnChange != nil {
		c.opts.OnChange(next)
	}
}

func sameView(a, b View) bool {
	if a.Resolved != b.Resolved {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err != nil && a.Err.Error() != b.Err.Error() {
		return false
	}
	if a.Location == nil || b.Location == nil {
		return a.Location == nil && b.Location == nil
	}
	return a.Location.ID == b.Location.ID && a.Location.Name == b.Location.Name
}
