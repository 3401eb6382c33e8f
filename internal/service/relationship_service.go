package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
)

// RelationshipService maintains the directed tracker -> tracked graph
type RelationshipService struct {
	profiles      domain.ProfileRepository
	relationships domain.RelationshipRepository
	logger        *slog.Logger
}

// ConnectResult describes the edge produced by Connect
type ConnectResult struct {
	Relationship *domain.Relationship `json:"relationship"`
	Partner      *domain.Profile      `json:"partner"`
	Created      bool                 `json:"created"`
}

// NewRelationshipService creates a new relationship service
func NewRelationshipService(
	profiles domain.ProfileRepository,
	relationships domain.RelationshipRepository,
	logger *slog.Logger,
) *RelationshipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationshipService{
		profiles:      profiles,
		relationships: relationships,
		logger:        logger,
	}
}

// Connect makes trackerID a tracker of the profile holding code.
// An existing edge is returned unchanged with Created=false.
func (s *RelationshipService) Connect(ctx context.Context, trackerID, code string) (*ConnectResult, error) {
	target, err := lookupCode(ctx, s.profiles, code)
	if err != nil {
		metrics.ObserveRelationship("connect", domain.ErrorCode(err))
		return nil, err
	}
	if target.ID == trackerID {
		metrics.ObserveRelationship("connect", domain.ErrorCode(domain.ErrSelfTracking))
		return nil, domain.ErrSelfTracking
	}
	if !target.TrackingActive {
		metrics.ObserveRelationship("connect", domain.ErrorCode(domain.ErrTargetInactive))
		return nil, domain.ErrTargetInactive
	}

	existing, err := s.relationships.Get(ctx, trackerID, target.ID)
	if err == nil {
		metrics.ObserveRelationship("connect", "existing")
		return &ConnectResult{Relationship: existing, Partner: target}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check relationship: %w", err)
	}

	rel := &domain.Relationship{
		ID:        uuid.NewString(),
		TrackerID: trackerID,
		TrackedID: target.ID,
	}
	if err := s.relationships.Create(ctx, rel); err != nil {
		if errors.Is(err, domain.ErrRelationshipExists) {
			// Lost a race with a concurrent connect for the same pair.
			existing, err := s.relationships.Get(ctx, trackerID, target.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload relationship: %w", err)
			}
			metrics.ObserveRelationship("connect", "existing")
			return &ConnectResult{Relationship: existing, Partner: target}, nil
		}
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	metrics.ObserveRelationship("connect", "created")
	s.logger.Info("relationship created",
		slog.String("tracker_id", trackerID),
		slog.String("tracked_id", target.ID),
	)
	return &ConnectResult{Relationship: rel, Partner: target, Created: true}, nil
}

// Disconnect removes the edge trackerID -> owner of code. A missing edge is not an error.
func (s *RelationshipService) Disconnect(ctx context.Context, trackerID, code string) error {
	target, err := lookupCode(ctx, s.profiles, code)
	if err != nil {
		metrics.ObserveRelationship("disconnect", domain.ErrorCode(err))
		return err
	}
	if err := s.relationships.Delete(ctx, trackerID, target.ID); err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}

	metrics.ObserveRelationship("disconnect", "ok")
	s.logger.Info("relationship removed",
		slog.String("tracker_id", trackerID),
		slog.String("tracked_id", target.ID),
	)
	return nil
}

// ListTracked returns the ids trackerID observes
func (s *RelationshipService) ListTracked(ctx context.Context, trackerID string) ([]string, error) {
	ids, err := s.relationships.ListTracked(ctx, trackerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked users: %w", err)
	}
	return ids, nil
}

// ListTrackedProfiles returns the profiles trackerID observes
func (s *RelationshipService) ListTrackedProfiles(ctx context.Context, trackerID string) ([]*domain.Profile, error) {
	ids, err := s.ListTracked(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Profile{}, nil
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked profiles: %w", err)
	}
	return profiles, nil
}
