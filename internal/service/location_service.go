package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/tracing"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security"
)

// History limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type locationPublisher interface {
	Publish(ctx context.Context, event domain.LocationEvent) error
}

type accessPolicy interface {
	ValidateLocationAccess(ctx context.Context, viewerID, ownerID string, action security.Action) error
}

// RecordInput is one device reading submitted for persistence
type RecordInput struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationService records samples and answers "where is my partner"
type LocationService struct {
	locations     domain.LocationRepository
	profiles      domain.ProfileRepository
	relationships domain.RelationshipRepository
	publisher     locationPublisher
	policy        accessPolicy
	logger        *slog.Logger
	now           func() time.Time
}

// NewLocationService creates a new location service
func NewLocationService(
	locations domain.LocationRepository,
	profiles domain.ProfileRepository,
	relationships domain.RelationshipRepository,
	publisher locationPublisher,
	policy accessPolicy,
	logger *slog.Logger,
) *LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationService{
		locations:     locations,
		profiles:      profiles,
		relationships: relationships,
		publisher:     publisher,
		policy:        policy,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Record appends a sample for userID and announces it to push subscribers.
// An empty address falls back to the formatted coordinates.
func (s *LocationService) Record(ctx context.Context, userID string, in RecordInput) (*domain.LocationSample, error) {
	if err := domain.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.Accuracy != nil && *in.Accuracy < 0 {
		return nil, fmt.Errorf("%w: accuracy must not be negative", domain.ErrInvalidInput)
	}

	address := strings.TrimSpace(in.Address)
	source := "geocoded"
	if address == "" {
		address = domain.FormatCoordinates(in.Latitude, in.Longitude)
		source = "coordinates"
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	sample := &domain.LocationSample{
		ID:        uuid.NewString(),
		UserID:    userID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Accuracy:  in.Accuracy,
		Address:   address,
		Timestamp: ts.UTC(),
	}
	if err := s.locations.Append(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to record location: %w", err)
	}
	metrics.ObserveLocationSample(source)

	if s.publisher != nil && s.announces(ctx, userID) {
		event := domain.LocationEvent{Type: domain.LocationInserted, Record: sample}
		if err := s.publisher.Publish(ctx, event); err != nil {
			// Subscribers still catch up on their next poll.
			s.logger.Warn("failed to publish location event",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Debug("location recorded",
		slog.String("user_id", userID),
		slog.String("sample_id", sample.ID),
	)
	return sample, nil
}

// ResolveLatest returns the most recent sample across every active user
// trackerID observes, annotated with the owner's name and email.
// ErrNotFound covers both "no partners" and "no samples yet".
func (s *LocationService) ResolveLatest(ctx context.Context, trackerID string) (*domain.PartnerLocation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "LocationService.ResolveLatest")
	defer span.End()
	span.SetAttributes(attribute.String("tracker.id", trackerID))

	start := time.Now()
	loc, err := s.resolveLatest(ctx, trackerID)
	switch {
	case err == nil:
		metrics.ObserveResolve("found", time.Since(start))
		span.SetAttributes(attribute.String("sample.id", loc.ID))
	case errors.Is(err, domain.ErrNotFound):
		metrics.ObserveResolve("not_found", time.Since(start))
	default:
		metrics.ObserveResolve("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return loc, err
}

// announces reports whether userID's samples go out to push subscribers.
// Samples of a paused profile are stored but not announced.
func (s *LocationService) announces(ctx context.Context, userID string) bool {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load profile for location event",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	return p.TrackingActive
}

// activeTracked returns the profiles trackerID observes whose tracking is on,
// keyed by id
func (s *LocationService) activeTracked(ctx context.Context, trackerID string) (map[string]*domain.Profile, error) {
	ids, err := s.relationships.ListTracked(ctx, trackerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked users: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked profiles: %w", err)
	}
	owners := make(map[string]*domain.Profile, len(profiles))
	for _, p := range profiles {
		if p.TrackingActive {
			owners[p.ID] = p
		}
	}
	return owners, nil
}

// VisibleOwners lists the users whose new samples viewerID may receive:
// viewerID itself and every active user it tracks
func (s *LocationService) VisibleOwners(ctx context.Context, viewerID string) ([]string, error) {
	owners, err := s.activeTracked(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owners)+1)
	ids = append(ids, viewerID)
	for id := range owners {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *LocationService) resolveLatest(ctx context.Context, trackerID string) (*domain.PartnerLocation, error) {
	owners, err := s.activeTracked(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, domain.ErrNotFound
	}
	active := make([]string, 0, len(owners))
	for id := range owners {
		active = append(active, id)
	}

	sample, err := s.locations.LatestAmong(ctx, active)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load latest location: %w", err)
	}

	loc := &domain.PartnerLocation{LocationSample: *sample, Name: domain.DefaultPartnerName}
	if owner, ok := owners[sample.UserID]; ok {
		if owner.DisplayName != "" {
			loc.Name = owner.DisplayName
		}
		loc.Email = owner.Email
	}
	return loc, nil
}

// History returns ownerID's samples newest first. viewerID must be the owner,
// or hold a relationship with an owner whose tracking is on.
func (s *LocationService) History(ctx context.Context, viewerID, ownerID string, limit int) ([]*domain.LocationSample, error) {
	if ownerID == "" {
		ownerID = viewerID
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	if s.policy != nil {
		if err := s.policy.ValidateLocationAccess(ctx, viewerID, ownerID, security.ActionReadHistory); err != nil {
			return nil, err
		}
	}

	samples, err := s.locations.History(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load location history: %w", err)
	}
	return samples, nil
}
