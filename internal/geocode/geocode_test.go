package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNominatimReverseGeocode(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("accept-language") != "pt-BR" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("lat") != "-23.5505" || q.Get("lon") != "-46.6333" {
			t.Errorf("unexpected coordinates %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"São Paulo, SP"}`))
	}))
	defer server.Close()

	n := NewNominatim(Config{BaseURL: server.URL, CacheTTL: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		addr, err := n.ReverseGeocode(context.Background(), -23.5505, -46.6333)
		if err != nil {
			t.Fatalf("reverse geocode failed: %v", err)
		}
		if addr != "São Paulo, SP" {
			t.Fatalf("unexpected address %q", addr)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached second lookup, got %d hits", hits.Load())
	}
}

func TestNominatimNoAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	n := NewNominatim(Config{BaseURL: server.URL}, nil)
	if _, err := n.ReverseGeocode(context.Background(), 0, 0); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
}

func TestNominatimCircuitOpensOnFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := NewNominatim(Config{BaseURL: server.URL}, nil)
	for i := 0; i < 5; i++ {
		if _, err := n.ReverseGeocode(context.Background(), float64(i), 0); err == nil {
			t.Fatalf("expected failure")
		}
	}
	if hits.Load() != 3 {
		t.Fatalf("expected breaker to stop calls after 3 failures, got %d", hits.Load())
	}
}

func TestAddressOrCoordinatesFallback(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	n := NewNominatim(Config{BaseURL: slow.URL}, nil)
	got := AddressOrCoordinates(context.Background(), n, -23.55052, -46.633308, 20*time.Millisecond, nil)
	if got != "-23.5505, -46.6333" {
		t.Fatalf("unexpected fallback %q", got)
	}

	if got := AddressOrCoordinates(context.Background(), Offline{}, 1, 2, 0, nil); got != "1.0000, 2.0000" {
		t.Fatalf("unexpected offline fallback %q", got)
	}
}
