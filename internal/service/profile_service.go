package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// ProfileService owns the profile lifecycle: creation on first sign in,
// tracking code assignment and the tracking toggle
type ProfileService struct {
	profiles domain.ProfileRepository
	codes    *CodeGenerator
	logger   *slog.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(profiles domain.ProfileRepository, codes *CodeGenerator, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		profiles: profiles,
		codes:    codes,
		logger:   logger,
	}
}

// EnsureProfile returns the identity's profile, creating it with a fresh code
// and tracking enabled when missing. A profile without a code is backfilled.
// Calling it repeatedly or concurrently for one identity yields one profile.
func (s *ProfileService) EnsureProfile(ctx context.Context, identity *domain.Identity) (*domain.Profile, error) {
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: identity required", domain.ErrInvalidInput)
	}

	existing, err := s.profiles.GetByID(ctx, identity.ID)
	if err == nil {
		if existing.TrackingCode != "" {
			return existing, nil
		}
		return s.assignCode(ctx, existing)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	for attempt := 1; attempt <= s.codes.MaxAttempts(); attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}

		p := &domain.Profile{
			ID:             identity.ID,
			Email:          identity.Email,
			DisplayName:    identity.Name,
			TrackingCode:   code,
			TrackingActive: true,
		}
		err = s.profiles.Create(ctx, p)
		switch {
		case err == nil:
			s.logger.Info("profile created",
				slog.String("user_id", p.ID),
				slog.String("tracking_code", p.TrackingCode),
			)
			return p, nil
		case errors.Is(err, domain.ErrTrackingCodeTaken):
			s.logger.Warn("tracking code taken at insert, redrawing", slog.String("code", code))
			continue
		case errors.Is(err, domain.ErrProfileExists):
			// Another session created it first.
			existing, err := s.profiles.GetByID(ctx, identity.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload profile: %w", err)
			}
			if existing.TrackingCode != "" {
				return existing, nil
			}
			return s.assignCode(ctx, existing)
		default:
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	return nil, domain.ErrCodeGenerationExhausted
}

// assignCode stores a freshly generated code on p
func (s *ProfileService) assignCode(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	previous := p.TrackingCode
	for attempt := 1; attempt <= s.codes.MaxAttempts(); attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}
		if code == previous {
			continue
		}

		p.TrackingCode = code
		err = s.profiles.Update(ctx, p)
		if errors.Is(err, domain.ErrTrackingCodeTaken) {
			continue
		}
		if err != nil {
			p.TrackingCode = previous
			return nil, fmt.Errorf("failed to assign tracking code: %w", err)
		}

		s.logger.Info("tracking code assigned",
			slog.String("user_id", p.ID),
			slog.String("tracking_code", code),
		)
		return p, nil
	}

	p.TrackingCode = previous
	return nil, domain.ErrCodeGenerationExhausted
}

// GetProfile returns the profile for id
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// RegenerateCode replaces the profile's code; the old code stops resolving
// immediately
func (s *ProfileService) RegenerateCode(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.assignCode(ctx, p)
}

// SetTrackingActive toggles whether the profile can be connected to and resolved
func (s *ProfileService) SetTrackingActive(ctx context.Context, id string, active bool) (*domain.Profile, error) {
	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TrackingActive == active {
		return p, nil
	}

	p.TrackingActive = active
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update tracking state: %w", err)
	}
	s.logger.Info("tracking state changed",
		slog.String("user_id", id),
		slog.Bool("active", active),
	)
	return p, nil
}

// UpdateDisplayName sets the name shown to trackers
func (s *ProfileService) UpdateDisplayName(ctx context.Context, id, name string) (*domain.Profile, error) {
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return nil, fmt.Errorf("%w: name too long", domain.ErrInvalidInput)
	}

	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	p.DisplayName = name
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// ValidateCode looks a code up without creating a relationship
func (s *ProfileService) ValidateCode(ctx context.Context, code string) (*domain.CodeInfo, error) {
	p, err := lookupCode(ctx, s.profiles, code)
	if err != nil {
		return nil, err
	}
	return &domain.CodeInfo{
		Code:           p.TrackingCode,
		Name:           p.DisplayName,
		Email:          p.Email,
		TrackingActive: p.TrackingActive,
	}, nil
}

// lookupCode trims code and resolves it to a profile, mapping a miss to
// ErrCodeNotFound
func lookupCode(ctx context.Context, profiles domain.ProfileRepository, code string) (*domain.Profile, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: tracking code required", domain.ErrInvalidInput)
	}

	p, err := profiles.GetByTrackingCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracking code: %w", err)
	}
	return p, nil
}
