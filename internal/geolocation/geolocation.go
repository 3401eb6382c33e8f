// Package geolocation provides device position sources for the CLI.
package geolocation

import (
	"context"
	"errors"
	"time"
)

// Device errors
var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("position request timed out")
	ErrUnsupported         = errors.New("geolocation not supported")
)

// Options mirror the device API knobs
type Options struct {
	// Timeout bounds a one-shot position request
	Timeout time.Duration
	// MaximumAge lets CurrentPosition answer with a cached reading this young
	MaximumAge time.Duration
}

// DefaultOptions matches what the tracking screen asks of the device
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second, MaximumAge: 30 * time.Second}
}

// Reading is one device callback. Err is set for device reported errors.
type Reading struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	CapturedAt time.Time
	Err        error
}

// Geolocator is the device position API: a one-shot read and a continuous watch.
// The watch channel closes when ctx is cancelled or the source ends.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (Reading, error)
	Watch(ctx context.Context) (<-chan Reading, error)
}

// Fatal reports whether err means no further readings will arrive
func Fatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported)
}
