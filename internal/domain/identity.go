package domain

import (
	"context"
	"time"
)

// Identity is an account held by the identity provider
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IdentityRepository defines data access for identities.
// Create returns ErrEmailTaken when the email is registered.
type IdentityRepository interface {
	Create(ctx context.Context, identity *Identity) error
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionEventType names a session change
type SessionEventType string

// Session change events
const (
	SignedIn         SessionEventType = "SIGNED_IN"
	SignedOut        SessionEventType = "SIGNED_OUT"
	PasswordRecovery SessionEventType = "PASSWORD_RECOVERY"
)

// SessionEvent is delivered to listeners when a session changes
type SessionEvent struct {
	Event    SessionEventType
	Identity *Identity
}
