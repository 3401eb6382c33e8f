package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// PostgresIdentityRepository implements domain.IdentityRepository using PostgreSQL
type PostgresIdentityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresIdentityRepository creates a new identity repository
func NewPostgresIdentityRepository(db *sql.DB, logger *slog.Logger) *PostgresIdentityRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresIdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new identity
func (r *PostgresIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	query := `
		INSERT INTO identities (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Name,
		identity.PasswordHash,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return domain.ErrEmailTaken
		}
		r.logger.Error("failed to create identity",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by ID
func (r *PostgresIdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM identities
		WHERE id = $1
	`, id)
}

// GetByEmail retrieves an identity by email
func (r *PostgresIdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM identities
		WHERE email = $1
	`, email)
}

func (r *PostgresIdentityRepository) getOne(ctx context.Context, query, arg string) (*domain.Identity, error) {
	identity := &domain.Identity{}

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.ID,
		&identity.Email,
		&identity.Name,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get identity",
			slog.String("key", arg),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// UpdatePassword replaces the password hash
func (r *PostgresIdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET password_hash = $1, updated_at = $2
		WHERE id = $3
	`, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}
