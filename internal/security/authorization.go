package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// Action identifies what operation is being performed on a user's locations
type Action string

const (
	ActionReadLatest  Action = "read_latest"
	ActionReadHistory Action = "read_history"
	ActionWrite       Action = "write"
)

// relationshipReader is the part of the relationship store the policy needs
type relationshipReader interface {
	Get(ctx context.Context, trackerID, trackedID string) (*domain.Relationship, error)
}

// profileReader is the part of the profile store the policy needs
type profileReader interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
}

// AuthorizationService decides who may read whose location data.
// Owners may do anything with their own samples. A tracker may read the
// samples of users it holds a relationship with while their tracking is on.
// Nobody writes for others.
type AuthorizationService struct {
	relationships relationshipReader
	profiles      profileReader
	logger        *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(relationships relationshipReader, profiles profileReader, logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		relationships: relationships,
		profiles:      profiles,
		logger:        logger,
	}
}

// ValidateLocationAccess returns domain.ErrForbidden unless viewerID may perform
// action on ownerID's locations
func (as *AuthorizationService) ValidateLocationAccess(ctx context.Context, viewerID, ownerID string, action Action) error {
	if viewerID == ownerID {
		return nil
	}
	if action == ActionWrite {
		as.deny(viewerID, ownerID, action)
		return fmt.Errorf("%w: cannot write locations for another user", domain.ErrForbidden)
	}

	_, err := as.relationships.Get(ctx, viewerID, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		as.deny(viewerID, ownerID, action)
		return fmt.Errorf("%w: no tracking relationship", domain.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("failed to check relationship: %w", err)
	}

	owner, err := as.profiles.GetByID(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		as.deny(viewerID, ownerID, action)
		return fmt.Errorf("%w: no profile", domain.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("failed to load owner profile: %w", err)
	}
	if !owner.TrackingActive {
		as.deny(viewerID, ownerID, action)
		return fmt.Errorf("%w: tracking paused", domain.ErrForbidden)
	}
	return nil
}

func (as *AuthorizationService) deny(viewerID, ownerID string, action Action) {
	as.logger.Warn("location access denied",
		slog.String("viewer_id", viewerID),
		slog.String("owner_id", ownerID),
		slog.String("action", string(action)),
	)
}
