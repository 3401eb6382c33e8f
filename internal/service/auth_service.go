package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

// ResetTokenStore keeps single-use password reset tokens
type ResetTokenStore interface {
	Save(ctx context.Context, token, identityID string, ttl time.Duration) error
	Consume(ctx context.Context, token string) (string, error)
}

// SessionStore remembers signed out sessions until their tokens expire
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionListener is told about every session change
type SessionListener func(ctx context.Context, event domain.SessionEvent) error

// ResetSender delivers a reset token to the account owner
type ResetSender func(ctx context.Context, email, token string)

// AuthConfig holds token lifetimes and the bcrypt work factor
type AuthConfig struct {
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	// PasswordCost defaults to bcrypt.DefaultCost when out of range
	PasswordCost int
}

// Session is returned on sign up and sign in
type Session struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Identity  *domain.Identity `json:"user"`
}

// AuthService is the built-in email/password identity provider
type AuthService struct {
	identities  domain.IdentityRepository
	resetTokens ResetTokenStore
	sessions    SessionStore
	tokens      *auth.TokenManager
	cfg         AuthConfig
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners []SessionListener
	sendReset ResetSender
}

// NewAuthService creates a new authentication service
func NewAuthService(
	identities domain.IdentityRepository,
	resetTokens ResetTokenStore,
	sessions SessionStore,
	tokens *auth.TokenManager,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if cfg.PasswordCost < bcrypt.MinCost || cfg.PasswordCost > bcrypt.MaxCost {
		cfg.PasswordCost = bcrypt.DefaultCost
	}

	s := &AuthService{
		identities:  identities,
		resetTokens: resetTokens,
		sessions:    sessions,
		tokens:      tokens,
		cfg:         cfg,
		logger:      logger,
	}
	s.sendReset = func(ctx context.Context, email, token string) {
		// No mail transport; operators relay the token.
		s.logger.Info("password reset requested",
			slog.String("email", email),
			slog.String("reset_token", token),
		)
	}
	return s
}

// OnSessionEvent registers fn for session changes
func (s *AuthService) OnSessionEvent(fn SessionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetResetSender replaces the reset token delivery
func (s *AuthService) SetResetSender(fn ResetSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendReset = fn
}

func (s *AuthService) dispatch(ctx context.Context, event domain.SessionEvent) {
	s.mu.RLock()
	listeners := append([]SessionListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		if err := fn(ctx, event); err != nil {
			s.logger.Error("session listener failed",
				slog.String("event", string(event.Event)),
				slog.String("user_id", event.Identity.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinPasswordLength)
	}
	return nil
}

// SignUp creates an account and opens a session for it
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.PasswordCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	s.logger.Info("identity registered", slog.String("user_id", identity.ID))
	return s.openSession(ctx, identity)
}

// SignIn verifies credentials and opens a session
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password required", domain.ErrInvalidInput)
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("sign in with unknown email", slog.String("email", email))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("sign in with wrong password", slog.String("email", email))
		return nil, domain.ErrInvalidCredentials
	}

	return s.openSession(ctx, identity)
}

func (s *AuthService) openSession(ctx context.Context, identity *domain.Identity) (*Session, error) {
	token, _, err := s.tokens.GenerateToken(identity.ID, identity.Email, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("user signed in",
		slog.String("user_id", identity.ID),
		slog.String("email", identity.Email),
	)
	s.dispatch(ctx, domain.SessionEvent{Event: domain.SignedIn, Identity: identity})

	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: time.Now().Add(s.cfg.TokenTTL).UTC(),
		Identity:  identity,
	}, nil
}

// Authenticate validates a bearer token and rejects signed out sessions
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: session signed out", domain.ErrInvalidCredentials)
	}
	return claims, nil
}

// SignOut ends the session behind claims
func (s *AuthService) SignOut(ctx context.Context, claims *auth.Claims) error {
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.sessions.Revoke(ctx, claims.ID, ttl); err != nil {
		return err
	}

	s.logger.Info("user signed out", slog.String("user_id", claims.UserID))
	s.dispatch(ctx, domain.SessionEvent{
		Event:    domain.SignedOut,
		Identity: &domain.Identity{ID: claims.UserID, Email: claims.Email},
	})
	return nil
}

// Identity returns the account for id
func (s *AuthService) Identity(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return identity, nil
}

// ResetPassword issues a reset token for email. Unknown emails succeed silently.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("password reset for unknown email", slog.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}
	if err := s.resetTokens.Save(ctx, token, identity.ID, s.cfg.ResetTokenTTL); err != nil {
		return err
	}

	s.mu.RLock()
	send := s.sendReset
	s.mu.RUnlock()
	send(ctx, identity.Email, token)
	return nil
}

// ConfirmReset sets a new password using a reset token. Tokens are single use.
func (s *AuthService) ConfirmReset(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	identityID, err := s.resetTokens.Consume(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: reset token invalid or expired", domain.ErrInvalidCredentials)
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.PasswordCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.identities.UpdatePassword(ctx, identityID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err == nil {
		s.dispatch(ctx, domain.SessionEvent{Event: domain.PasswordRecovery, Identity: identity})
	}
	s.logger.Info("password reset completed", slog.String("user_id", identityID))
	return nil
}

func newResetToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
