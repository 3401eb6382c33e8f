package geolocation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Stream is a Geolocator fed by a line-oriented position feed, one reading per line:
//
//	-23.5505,-46.6333,12
//	error:permission_denied
//
// The third field (accuracy in meters) is optional. Error lines name one of
// permission_denied, position_unavailable or timeout. Blank lines and lines
// starting with # are skipped.
type Stream struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	last     *Reading
	watchers map[chan Reading]struct{}
	waiters  []chan Reading
	done     chan struct{}
}

// NewStream starts reading r in the background
func NewStream(r io.Reader, opts Options, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		watchers: map[chan Reading]struct{}{},
		done:     make(chan struct{}),
	}
	go s.read(r)
	return s
}

// ParseLine decodes one feed line
func ParseLine(line string, capturedAt time.Time) (Reading, error) {
	if code, ok := strings.CutPrefix(line, "error:"); ok {
		switch strings.TrimSpace(code) {
		case "permission_denied":
			return Reading{CapturedAt: capturedAt, Err: ErrPermissionDenied}, nil
		case "position_unavailable":
			return Reading{CapturedAt: capturedAt, Err: ErrPositionUnavailable}, nil
		case "timeout":
			return Reading{CapturedAt: capturedAt, Err: ErrTimeout}, nil
		default:
			return Reading{}, fmt.Errorf("unknown device error %q", code)
		}
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return Reading{}, fmt.Errorf("expected lat,lng[,accuracy], got %q", line)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid longitude: %w", err)
	}
	reading := Reading{Latitude: lat, Longitude: lng, CapturedAt: capturedAt}
	if len(fields) == 3 {
		acc, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("invalid accuracy: %w", err)
		}
		reading.Accuracy = &acc
	}
	return reading, nil
}

func (s *Stream) read(r io.Reader) {
	defer s.finish()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reading, err := ParseLine(line, s.now())
		if err != nil {
			s.logger.Warn("skipping position line", slog.String("error", err.Error()))
			continue
		}
		s.publish(reading)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("position feed failed", slog.String("error", err.Error()))
	}
}

func (s *Stream) publish(reading Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reading.Err == nil {
		r := reading
		s.last = &r
	}
	for _, w := range s.waiters {
		w <- reading
	}
	s.waiters = nil
	for w := range s.watchers {
		select {
		case w <- reading:
		default:
			s.logger.Warn("dropping position reading for slow watcher")
		}
	}
}

func (s *Stream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.done)
	for w := range s.watchers {
		close(w)
	}
	s.watchers = map[chan Reading]struct{}{}
}

// CurrentPosition returns a cached reading younger than MaximumAge or waits
// for the next one, up to Timeout
func (s *Stream) CurrentPosition(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	if s.last != nil && s.opts.MaximumAge > 0 && s.now().Sub(s.last.CapturedAt) <= s.opts.MaximumAge {
		r := *s.last
		s.mu.Unlock()
		return r, nil
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return Reading{}, ErrPositionUnavailable
	default:
	}
	wait := make(chan Reading, 1)
	s.waiters = append(s.waiters, wait)
	s.mu.Unlock()

	var timeout <-chan time.Time
	if s.opts.Timeout > 0 {
		timer := time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-wait:
		if r.Err != nil {
			return Reading{}, r.Err
		}
		return r, nil
	case <-timeout:
		return Reading{}, ErrTimeout
	case <-s.done:
		return Reading{}, ErrPositionUnavailable
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	}
}

// Watch delivers every subsequent reading until ctx is cancelled
func (s *Stream) Watch(ctx context.Context) (<-chan Reading, error) {
	ch := make(chan Reading, 8)

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		close(ch)
		return ch, nil
	default:
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}()
	return ch, nil
}
