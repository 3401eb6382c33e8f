// Package sampler runs the device side of location sharing: it reads
// positions, enriches them with an address and hands them to a writer.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/geocode"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/geolocation"
)

// State is the observable sampler state
type State int

const (
	Idle State = iota
	Sampling
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	default:
		return "error"
	}
}

// LocationWriter persists one sample for the signed in identity
type LocationWriter interface {
	RecordLocation(ctx context.Context, sample domain.LocationSample) (*domain.LocationSample, error)
}

// Options configures a Sampler. The callbacks run on the session goroutines
// and must not call Stop, which waits for those goroutines.
type Options struct {
	GeocodeTimeout time.Duration
	// OnState is called after every state change, outside the sampler lock
	OnState func(state State, err error)
	// OnSample is called after a sample is stored
	OnSample func(sample *domain.LocationSample)
}

// Sampler turns device readings into stored samples. Start and Stop may be
// called from any goroutine.
type Sampler struct {
	geo      geolocation.Geolocator
	geocoder geocode.ReverseGeocoder
	writer   LocationWriter
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	active  bool
	gen     uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an idle sampler
func New(geo geolocation.Geolocator, geocoder geocode.ReverseGeocoder, writer LocationWriter, opts Options, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 5 * time.Second
	}
	return &Sampler{
		geo:      geo,
		geocoder: geocoder,
		writer:   writer,
		opts:     opts,
		logger:   logger,
	}
}

// State returns the current state and the last device or store error
func (s *Sampler) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastErr
}

// Active reports whether a sampling session is live
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start begins a session: a one-shot read and, independently, a continuous
// watch. The session ends on its own once the watch feed closes and the
// one-shot read is done. Starting while active is a no-op.
func (s *Sampler) Start(ctx context.Context) error {
	if s.geo == nil {
		s.mu.Lock()
		s.setStateLocked(Error, geolocation.ErrUnsupported)
		s.mu.Unlock()
		s.notify()
		return geolocation.ErrUnsupported
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		s.logger.Info("sampler already running")
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	s.gen++
	gen := s.gen
	s.active = true
	s.cancel = cancel
	s.setStateLocked(Sampling, nil)
	s.wg.Add(2)
	s.mu.Unlock()
	s.notify()

	s.logger.Info("sampler started")
	first := make(chan struct{})
	go s.oneShot(sessionCtx, gen, first)
	go s.watch(sessionCtx, gen, first)
	return nil
}

// Stop ends the session and waits for in-flight handlers. No sample is
// stored after Stop returns. Stopping an idle sampler is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.endLocked(Idle, nil)
	s.mu.Unlock()
	s.notify()

	s.wg.Wait()
	s.logger.Info("sampler stopped")
}

// endLocked tears the session down; callers hold mu
func (s *Sampler) endLocked(state State, err error) {
	s.active = false
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setStateLocked(state, err)
}

func (s *Sampler) setStateLocked(state State, err error) {
	s.state = state
	s.lastErr = err
}

func (s *Sampler) notify() {
	if s.opts.OnState == nil {
		return
	}
	state, err := s.State()
	s.opts.OnState(state, err)
}

func (s *Sampler) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.gen == gen
}

func (s *Sampler) oneShot(ctx context.Context, gen uint64, done chan<- struct{}) {
	defer s.wg.Done()
	defer close(done)

	reading, err := s.geo.CurrentPosition(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("initial position failed", slog.String("error", err.Error()))
		s.deviceError(gen, err, geolocation.Fatal(err))
		return
	}
	s.handle(ctx, gen, reading)
}

func (s *Sampler) watch(ctx context.Context, gen uint64, first <-chan struct{}) {
	defer s.wg.Done()

	readings, err := s.geo.Watch(ctx)
	if err != nil {
		s.logger.Warn("position watch failed", slog.String("error", err.Error()))
		s.deviceError(gen, err, true)
		return
	}
	for reading := range readings {
		if reading.Err != nil {
			s.logger.Warn("position watch error", slog.String("error", reading.Err.Error()))
			s.deviceError(gen, reading.Err, false)
			continue
		}
		s.handle(ctx, gen, reading)
	}

	select {
	case <-first:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		return
	}
	s.feedEnded(gen)
}

// feedEnded closes a session whose source ran dry. A device or store error
// is kept so the caller can report it.
func (s *Sampler) feedEnded(gen uint64) {
	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		return
	}
	state, err := Idle, error(nil)
	if s.state == Error {
		state, err = Error, s.lastErr
	}
	s.endLocked(state, err)
	s.mu.Unlock()
	s.notify()
	s.logger.Info("position feed ended, sampler stopped")
}

// deviceError moves to Error; stop ends the session as well
func (s *Sampler) deviceError(gen uint64, err error, stop bool) {
	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		return
	}
	if stop {
		s.endLocked(Error, err)
	} else {
		s.setStateLocked(Error, err)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Sampler) handle(ctx context.Context, gen uint64, reading geolocation.Reading) {
	if !s.live(gen) {
		return
	}

	address := geocode.AddressOrCoordinates(ctx, s.geocoder, reading.Latitude, reading.Longitude, s.opts.GeocodeTimeout, s.logger)
	sample := domain.LocationSample{
		Latitude:  reading.Latitude,
		Longitude: reading.Longitude,
		Accuracy:  reading.Accuracy,
		Address:   address,
		Timestamp: reading.CapturedAt,
	}

	// Stop may have run while geocoding.
	if !s.live(gen) {
		return
	}
	stored, err := s.writer.RecordLocation(ctx, sample)
	if err != nil {
		if errors.Is(err, context.Canceled) && !s.live(gen) {
			return
		}
		s.logger.Error("failed to store location", slog.String("error", err.Error()))
		s.mu.Lock()
		if s.active && s.gen == gen {
			s.setStateLocked(Error, err)
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	s.mu.Lock()
	recovered := s.active && s.gen == gen && s.state == Error
	if recovered {
		s.setStateLocked(Sampling, nil)
	}
	s.mu.Unlock()
	if recovered {
		s.notify()
	}
	if s.opts.OnSample != nil {
		s.opts.OnSample(stored)
	}
}
