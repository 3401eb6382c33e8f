package domain

import (
	"context"
	"regexp"
	"time"
)

// TrackingCodePrefix is prepended to every tracking code
const TrackingCodePrefix = "PRT"

var trackingCodePattern = regexp.MustCompile(`^PRT-\d{6}$`)

// ValidTrackingCode reports whether code has the PRT-###### shape
func ValidTrackingCode(code string) bool {
	return trackingCodePattern.MatchString(code)
}

// Profile is the durable record kept per identity
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"name"`
	TrackingCode   string    `json:"trackingCode"`
	TrackingActive bool      `json:"trackingActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Label returns the display name, or the email when no name is set
func (p *Profile) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// CodeInfo is the public view of a profile looked up by tracking code
type CodeInfo struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TrackingActive bool   `json:"trackingActive"`
}

// ProfileRepository defines data access for profiles.
// Create and Update return ErrTrackingCodeTaken when the code is already in use.
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByTrackingCode(ctx context.Context, code string) (*Profile, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Profile, error)
	ExistsByTrackingCode(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, profile *Profile) error
	Count(ctx context.Context) (total int, active int, err error)
}
