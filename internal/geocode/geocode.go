// Package geocode turns coordinates into display addresses.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/reliability/circuitbreaker"
	"github.com/bastos77-sc/parceiro-tracker-code-link/pkg/cache"
)

// ErrNoAddress is returned when the service knows no address for the point
var ErrNoAddress = errors.New("no address for coordinates")

// ErrUnavailable is returned when geocoding is switched off
var ErrUnavailable = errors.New("reverse geocoding unavailable")

// ReverseGeocoder resolves a coordinate pair to a display address
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Config holds Nominatim client settings
type Config struct {
	BaseURL   string
	Language  string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

// Nominatim is a ReverseGeocoder backed by the OpenStreetMap Nominatim API.
// Lookups are cached per rounded coordinate and guarded by a circuit breaker.
type Nominatim struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	cache   *cache.Cache[string]
	logger  *slog.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewNominatim creates a Nominatim client
func NewNominatim(cfg Config, logger *slog.Logger) *Nominatim {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "pt-BR"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "trackpartner-cli"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}

	breaker := circuitbreaker.NewCircuitBreaker(3, 1, 30*time.Second)
	// The service answered; the point simply has no address.
	breaker.Neutral(func(err error) bool { return errors.Is(err, ErrNoAddress) })
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("geocoder circuit state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &Nominatim{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		cache:   cache.New[string](cfg.CacheSize),
		logger:  logger,
	}
}

func cacheKey(lat, lng float64) string {
	// ~1 m at the equator
	return fmt.Sprintf("%.5f,%.5f", lat, lng)
}

// ReverseGeocode returns the display name Nominatim reports for the point
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)
	if addr, ok := n.cache.Get(key); ok {
		return addr, nil
	}

	var addr string
	err := n.breaker.Execute(func() error {
		var err error
		addr, err = n.lookup(ctx, lat, lng)
		return err
	})
	if errors.Is(err, ErrNoAddress) {
		return "", ErrNoAddress
	}
	if err != nil {
		return "", fmt.Errorf("failed to reverse geocode: %w", err)
	}

	if n.cfg.CacheTTL > 0 {
		n.cache.Set(key, addr, n.cfg.CacheTTL)
	}
	return addr, nil
}

func (n *Nominatim) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("accept-language", n.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if body.DisplayName == "" {
		return "", ErrNoAddress
	}
	return body.DisplayName, nil
}

// Offline never resolves; used when the offline geocoder flag is on
type Offline struct{}

// ReverseGeocode always fails with ErrUnavailable
func (Offline) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return "", ErrUnavailable
}

// AddressOrCoordinates resolves an address within timeout and falls back to
// the formatted coordinates on any failure
func AddressOrCoordinates(ctx context.Context, g ReverseGeocoder, lat, lng float64, timeout time.Duration, logger *slog.Logger) string {
	if g == nil {
		return domain.FormatCoordinates(lat, lng)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	addr, err := g.ReverseGeocode(ctx, lat, lng)
	if err != nil || addr == "" {
		if logger != nil && err != nil && !errors.Is(err, ErrUnavailable) {
			logger.Warn("reverse geocoding failed, using coordinates", slog.String("error", err.Error()))
		}
		return domain.FormatCoordinates(lat, lng)
	}
	return addr
}
