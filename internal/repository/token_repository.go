package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/infrastructure/redis"
)

// RedisResetTokenRepository keeps password reset tokens in Redis with a TTL
type RedisResetTokenRepository struct {
	redis *redis.Client
}

// NewRedisResetTokenRepository creates a new reset token repository
func NewRedisResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{redis: client}
}

func resetKey(token string) string {
	return "reset:" + token
}

// Save stores token for identityID until ttl elapses
func (r *RedisResetTokenRepository) Save(ctx context.Context, token, identityID string, ttl time.Duration) error {
	if err := r.redis.Set(ctx, resetKey(token), identityID, ttl); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

// Consume returns the identity for token and deletes it
func (r *RedisResetTokenRepository) Consume(ctx context.Context, token string) (string, error) {
	id, err := r.redis.GetDel(ctx, resetKey(token))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("failed to read reset token: %w", err)
	}
	return id, nil
}

// RedisSessionRepository records revoked session ids until their tokens expire
type RedisSessionRepository struct {
	redis *redis.Client
}

// NewRedisSessionRepository creates a new session repository
func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{redis: client}
}

func revokedKey(sessionID string) string {
	return "revoked:" + sessionID
}

// Revoke marks sessionID as signed out for ttl
func (r *RedisSessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, revokedKey(sessionID), "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether sessionID was signed out
func (r *RedisSessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	ok, err := r.redis.Exists(ctx, revokedKey(sessionID))
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return ok, nil
}
