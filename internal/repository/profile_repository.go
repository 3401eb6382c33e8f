package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// PostgresProfileRepository implements domain.ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProfileRepository creates a new profile repository
func NewPostgresProfileRepository(db *sql.DB, logger *slog.Logger) *PostgresProfileRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresProfileRepository{
		db:     db,
		logger: logger,
	}
}

const profileColumns = `id, email, name, COALESCE(tracking_code, ''), is_tracking_active, created_at, updated_at`

// Create inserts a new profile
func (r *PostgresProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, email, name, tracking_code, is_tracking_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.Email,
		p.DisplayName,
		p.TrackingCode,
		p.TrackingActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "profiles_tracking_code_key" {
				return domain.ErrTrackingCodeTaken
			}
			return domain.ErrProfileExists
		}
		r.logger.Error("failed to create profile",
			slog.String("id", p.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by identity id
func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByTrackingCode retrieves a profile by exact tracking code match
func (r *PostgresProfileRepository) GetByTrackingCode(ctx context.Context, code string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE tracking_code = $1`
	return r.getOne(ctx, query, code)
}

func (r *PostgresProfileRepository) getOne(ctx context.Context, query string, arg string) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&p.TrackingCode,
		&p.TrackingActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListByIDs returns the profiles for ids that exist
func (r *PostgresProfileRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p := &domain.Profile{}
		if err := rows.Scan(
			&p.ID,
			&p.Email,
			&p.DisplayName,
			&p.TrackingCode,
			&p.TrackingActive,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// ExistsByTrackingCode reports whether any profile holds code
func (r *PostgresProfileRepository) ExistsByTrackingCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE tracking_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tracking code: %w", err)
	}
	return exists, nil
}

// Update writes the mutable profile fields
func (r *PostgresProfileRepository) Update(ctx context.Context, p *domain.Profile) error {
	query := `
		UPDATE profiles
		SET email = $1, name = $2, tracking_code = NULLIF($3, ''), is_tracking_active = $4, updated_at = $5
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.Email,
		p.DisplayName,
		p.TrackingCode,
		p.TrackingActive,
		time.Now().UTC(),
		p.ID,
	).Scan(&p.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if _, ok := uniqueConstraint(err); ok {
			return domain.ErrTrackingCodeTaken
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}

// Count returns the number of profiles and how many have tracking active
func (r *PostgresProfileRepository) Count(ctx context.Context) (int, int, error) {
	var total, active int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_tracking_active) FROM profiles`,
	).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return total, active, nil
}
