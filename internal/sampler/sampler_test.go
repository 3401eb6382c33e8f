package sampler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/geolocation"
)

type fakeGeo struct {
	mu       sync.Mutex
	current  geolocation.Reading
	err      error
	oneShots int
	feed     chan geolocation.Reading
	ended    chan struct{}
	block    bool
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{feed: make(chan geolocation.Reading), ended: make(chan struct{})}
}

func (g *fakeGeo) CurrentPosition(ctx context.Context) (geolocation.Reading, error) {
	g.mu.Lock()
	g.oneShots++
	r, err, block := g.current, g.err, g.block
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return geolocation.Reading{}, ctx.Err()
	}
	return r, err
}

func (g *fakeGeo) Watch(ctx context.Context) (<-chan geolocation.Reading, error) {
	out := make(chan geolocation.Reading)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.ended:
				return
			case r := <-g.feed:
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (g *fakeGeo) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.oneShots
}

type fakeGeocoder struct {
	addr    string
	err     error
	entered chan struct{}
	wait    bool
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.addr, f.err
}

type fakeWriter struct {
	mu      sync.Mutex
	samples []domain.LocationSample
	err     error
	stored  chan struct{}
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{stored: make(chan struct{}, 16)}
}

func (w *fakeWriter) RecordLocation(ctx context.Context, s domain.LocationSample) (*domain.LocationSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		err := w.err
		w.stored <- struct{}{}
		return nil, err
	}
	w.samples = append(w.samples, s)
	w.stored <- struct{}{}
	return &s, nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *fakeWriter) waitStored(t *testing.T) {
	t.Helper()
	select {
	case <-w.stored:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a sample")
	}
}

func reading(lat, lng float64) geolocation.Reading {
	acc := 10.0
	return geolocation.Reading{Latitude: lat, Longitude: lng, Accuracy: &acc, CapturedAt: time.Now().UTC()}
}

func TestStartStoresOneShotAndWatchReadings(t *testing.T) {
	geo := newFakeGeo()
	geo.current = reading(-23.5505, -46.6333)
	writer := newFakeWriter()
	s := New(geo, &fakeGeocoder{addr: "São Paulo, SP"}, writer, Options{}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	writer.waitStored(t)
	geo.feed <- reading(-23.56, -46.64)
	writer.waitStored(t)

	if writer.count() != 2 {
		t.Fatalf("expected 2 samples, got %d", writer.count())
	}
	first := writer.samples[0]
	if first.Address != "São Paulo, SP" || first.Accuracy == nil || *first.Accuracy != 10 {
		t.Fatalf("unexpected sample %+v", first)
	}
	if state, _ := s.State(); state != Sampling {
		t.Fatalf("expected sampling, got %v", state)
	}
}

func TestStartIsReentrant(t *testing.T) {
	geo := newFakeGeo()
	geo.block = true
	s := New(geo, nil, newFakeWriter(), Options{}, nil)

	_ = s.Start(context.Background())
	_ = s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	if geo.calls() != 1 {
		t.Fatalf("expected a single one-shot read, got %d", geo.calls())
	}
}

func TestStopIdleIsNoop(t *testing.T) {
	s := New(newFakeGeo(), nil, newFakeWriter(), Options{}, nil)
	s.Stop()
	if state, _ := s.State(); state != Idle {
		t.Fatalf("expected idle, got %v", state)
	}
}

func TestNoSampleAfterStop(t *testing.T) {
	geo := newFakeGeo()
	geo.block = true
	entered := make(chan struct{}, 1)
	writer := newFakeWriter()
	s := New(geo, &fakeGeocoder{entered: entered, wait: true}, writer, Options{GeocodeTimeout: time.Minute}, nil)

	_ = s.Start(context.Background())
	geo.feed <- reading(1, 2)
	<-entered // reading in flight, geocoding

	s.Stop()
	if writer.count() != 0 {
		t.Fatalf("in-flight reading stored after stop")
	}

	select {
	case geo.feed <- reading(3, 4):
		t.Fatalf("watch still consuming after stop")
	case <-time.After(20 * time.Millisecond):
	}
	if writer.count() != 0 {
		t.Fatalf("expected no samples, got %d", writer.count())
	}
	if state, _ := s.State(); state != Idle || s.Active() {
		t.Fatalf("expected idle after stop, got %v", state)
	}
}

func TestGeocodeFailureFallsBackToCoordinates(t *testing.T) {
	geo := newFakeGeo()
	geo.current = reading(-23.55052, -46.633308)
	writer := newFakeWriter()
	s := New(geo, &fakeGeocoder{err: errors.New("nominatim down")}, writer, Options{}, nil)

	_ = s.Start(context.Background())
	defer s.Stop()
	writer.waitStored(t)

	if got := writer.samples[0].Address; got != "-23.5505, -46.6333" {
		t.Fatalf("unexpected fallback address %q", got)
	}
}

func TestWatchErrorKeepsSessionLive(t *testing.T) {
	geo := newFakeGeo()
	geo.block = true
	writer := newFakeWriter()

	var mu sync.Mutex
	var states []State
	s := New(geo, nil, writer, Options{OnState: func(st State, err error) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}}, nil)

	_ = s.Start(context.Background())
	defer s.Stop()

	geo.feed <- geolocation.Reading{Err: geolocation.ErrPositionUnavailable}
	geo.feed <- reading(1, 2) // delivered only once the error was handled
	writer.waitStored(t)

	if !s.Active() {
		t.Fatalf("device error must not end the session")
	}
	deadline := time.Now().Add(time.Second)
	for {
		state, err := s.State()
		if state == Sampling && err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected recovery to sampling, got %v %v", state, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	sawError := false
	for _, st := range states {
		sawError = sawError || st == Error
	}
	if !sawError {
		t.Fatalf("expected an Error state, got %v", states)
	}
}

func TestPermissionDeniedStopsSampling(t *testing.T) {
	geo := newFakeGeo()
	geo.err = geolocation.ErrPermissionDenied
	s := New(geo, nil, newFakeWriter(), Options{}, nil)

	_ = s.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for s.Active() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	state, err := s.State()
	if s.Active() || state != Error || !errors.Is(err, geolocation.ErrPermissionDenied) {
		t.Fatalf("expected stopped with permission error, got %v %v", state, err)
	}
}

func TestStoreErrorSurfaces(t *testing.T) {
	geo := newFakeGeo()
	geo.current = reading(1, 2)
	writer := newFakeWriter()
	writer.err = errors.New("503")
	s := New(geo, nil, writer, Options{}, nil)

	_ = s.Start(context.Background())
	defer s.Stop()
	writer.waitStored(t)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if state, _ := s.State(); state == Error {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected Error state after store failure")
}

func waitInactive(t *testing.T, s *Sampler) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.Active() {
		if time.Now().After(deadline) {
			t.Fatalf("session still active")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedEndEndsSession(t *testing.T) {
	geo := newFakeGeo()
	geo.current = reading(1, 2)
	writer := newFakeWriter()

	var mu sync.Mutex
	var states []State
	s := New(geo, nil, writer, Options{OnState: func(st State, err error) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}}, nil)

	_ = s.Start(context.Background())
	writer.waitStored(t)
	close(geo.ended)
	waitInactive(t, s)

	if state, err := s.State(); state != Idle || err != nil {
		t.Fatalf("expected idle without error, got %v %v", state, err)
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != Sampling || states[1] != Idle {
		t.Fatalf("expected sampling then idle, got %v", states)
	}
}

func TestFeedEndWaitsForOneShot(t *testing.T) {
	geo := newFakeGeo()
	geo.block = true
	s := New(geo, nil, newFakeWriter(), Options{}, nil)

	_ = s.Start(context.Background())
	close(geo.ended)
	time.Sleep(50 * time.Millisecond)
	if !s.Active() {
		t.Fatalf("session ended while the initial read was pending")
	}
	s.Stop()
	if state, _ := s.State(); state != Idle {
		t.Fatalf("expected idle after stop, got %v", state)
	}
}

func TestFeedEndKeepsLastError(t *testing.T) {
	geo := newFakeGeo()
	geo.current = reading(1, 2)
	writer := newFakeWriter()
	writer.err = errors.New("503")
	s := New(geo, nil, writer, Options{}, nil)

	_ = s.Start(context.Background())
	writer.waitStored(t)
	close(geo.ended)
	waitInactive(t, s)

	if state, err := s.State(); state != Error || err == nil || err.Error() != "503" {
		t.Fatalf("expected the store error to survive, got %v %v", state, err)
	}
}

func TestStreamEOFEndsSession(t *testing.T) {
	feed := strings.NewReader("-23.5505,-46.6333,12\n-23.5510,-46.6340\n")
	geo := geolocation.NewStream(feed, geolocation.DefaultOptions(), nil)
	writer := newFakeWriter()
	s := New(geo, nil, writer, Options{}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	writer.waitStored(t)
	waitInactive(t, s)

	if writer.count() < 1 {
		t.Fatalf("expected at least one stored sample")
	}
}
