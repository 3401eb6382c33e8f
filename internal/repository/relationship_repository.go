package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// PostgresRelationshipRepository implements domain.RelationshipRepository using PostgreSQL
type PostgresRelationshipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRelationshipRepository creates a new relationship repository
func NewPostgresRelationshipRepository(db *sql.DB, logger *slog.Logger) *PostgresRelationshipRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRelationshipRepository{db: db, logger: logger}
}

// Create inserts a tracking relationship
func (r *PostgresRelationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	query := `
		INSERT INTO tracking_relationships (id, tracker_id, tracked_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, rel.ID, rel.TrackerID, rel.TrackedID).Scan(&rel.CreatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return domain.ErrRelationshipExists
		}
		r.logger.Error("failed to create relationship",
			slog.String("tracker_id", rel.TrackerID),
			slog.String("tracked_id", rel.TrackedID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

// Get returns the relationship for the ordered pair
func (r *PostgresRelationshipRepository) Get(ctx context.Context, trackerID, trackedID string) (*domain.Relationship, error) {
	rel := &domain.Relationship{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tracker_id, tracked_id, created_at
		FROM tracking_relationships
		WHERE tracker_id = $1 AND tracked_id = $2
	`, trackerID, trackedID).Scan(&rel.ID, &rel.TrackerID, &rel.TrackedID, &rel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// Delete removes the relationship for the ordered pair; a missing row is not an error
func (r *PostgresRelationshipRepository) Delete(ctx context.Context, trackerID, trackedID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tracking_relationships WHERE tracker_id = $1 AND tracked_id = $2`,
		trackerID, trackedID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	return nil
}

// ListTracked returns the tracked ids for trackerID
func (r *PostgresRelationshipRepository) ListTracked(ctx context.Context, trackerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tracked_id FROM tracking_relationships
		WHERE tracker_id = $1
		ORDER BY created_at
	`, trackerID)
	if err != nil {
		r.logger.Error("failed to list tracked identities",
			slog.String("tracker_id", trackerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list tracked: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tracked id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of relationships
func (r *PostgresRelationshipRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracking_relationships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return n, nil
}
