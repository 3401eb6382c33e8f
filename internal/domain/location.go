package domain

import (
	"context"
	"fmt"
	"time"
)

// LocationSample is one timestamped device position record
type LocationSample struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// PartnerLocation is the derived "current position of my partner" view
type PartnerLocation struct {
	LocationSample
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DefaultPartnerName is shown when the partner has no display name
const DefaultPartnerName = "Usuário"

// FormatCoordinates renders the fallback address used when reverse geocoding fails
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lng)
}

// ValidateCoordinates checks the decimal-degree ranges
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidInput)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidInput)
	}
	return nil
}

// LocationRepository defines data access for the append-only location series
type LocationRepository interface {
	Append(ctx context.Context, sample *LocationSample) error
	// LatestAmong returns the single most recent sample by timestamp across userIDs,
	// or ErrNotFound.
	LatestAmong(ctx context.Context, userIDs []string) (*LocationSample, error)
	History(ctx context.Context, userID string, limit int) ([]*LocationSample, error)
	Count(ctx context.Context) (int, error)
}

// LocationEvent is pushed to subscribers whenever the location table changes
type LocationEvent struct {
	Type   string          `json:"type"` // INSERT or UPDATE
	Record *LocationSample `json:"record"`
}

// Location event types
const (
	LocationInserted = "INSERT"
	LocationUpdated  = "UPDATE"
)
