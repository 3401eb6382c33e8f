package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// PostgresLocationRepository implements domain.LocationRepository using PostgreSQL
type PostgresLocationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLocationRepository creates a new location repository
func NewPostgresLocationRepository(db *sql.DB, logger *slog.Logger) *PostgresLocationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLocationRepository{db: db, logger: logger}
}

const locationColumns = `id, user_id, latitude, longitude, accuracy, address, timestamp, created_at`

// Append inserts a sample
func (r *PostgresLocationRepository) Append(ctx context.Context, s *domain.LocationSample) error {
	query := `
		INSERT INTO user_locations (id, user_id, latitude, longitude, accuracy, address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	var accuracy sql.NullFloat64
	if s.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *s.Accuracy, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.UserID,
		s.Latitude,
		s.Longitude,
		accuracy,
		s.Address,
		s.Timestamp,
	).Scan(&s.CreatedAt)
	if err != nil {
		r.logger.Error("failed to append location",
			slog.String("user_id", s.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to append location: %w", err)
	}
	return nil
}

// LatestAmong returns the newest sample across userIDs
func (r *PostgresLocationRepository) LatestAmong(ctx context.Context, userIDs []string) (*domain.LocationSample, error) {
	if len(userIDs) == 0 {
		return nil, domain.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+locationColumns+`
		FROM user_locations
		WHERE user_id = ANY($1)
		ORDER BY timestamp DESC, created_at DESC
		LIMIT 1
	`, pq.Array(userIDs))

	s, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest location: %w", err)
	}
	return s, nil
}

// History returns up to limit samples for userID, newest first
func (r *PostgresLocationRepository) History(ctx context.Context, userID string, limit int) ([]*domain.LocationSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+locationColumns+`
		FROM user_locations
		WHERE user_id = $1
		ORDER BY timestamp DESC, created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list location history: %w", err)
	}
	defer rows.Close()

	var samples []*domain.LocationSample
	for rows.Next() {
		s, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Count returns the number of stored samples
func (r *PostgresLocationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_locations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*domain.LocationSample, error) {
	s := &domain.LocationSample{}
	var accuracy sql.NullFloat64
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Latitude,
		&s.Longitude,
		&accuracy,
		&s.Address,
		&s.Timestamp,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if accuracy.Valid {
		v := accuracy.Float64
		s.Accuracy = &v
	}
	return s, nil
}
