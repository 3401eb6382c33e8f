package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/repository/memstore"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
)

func newAuthService(store *memstore.Store) *AuthService {
	return NewAuthService(
		store.Identities(),
		store.ResetTokens(),
		store.Sessions(),
		auth.NewTokenManager("secret", ""),
		AuthConfig{TokenTTL: time.Hour, ResetTokenTTL: time.Hour, PasswordCost: bcrypt.MinCost},
		nil,
	)
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	s := newAuthService(memstore.New())

	session, err := s.SignUp(ctx, "Ana@Example.com ", "segredo1", "Ana")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}
	if session.Token == "" || session.Identity.Email != "ana@example.com" {
		t.Fatalf("unexpected session %+v", session)
	}

	if _, err := s.SignUp(ctx, "ana@example.com", "segredo2", ""); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	signedIn, err := s.SignIn(ctx, "ana@example.com", "segredo1")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	claims, err := s.Authenticate(ctx, signedIn.Token)
	if err != nil || claims.UserID != session.Identity.ID {
		t.Fatalf("authenticate failed: %+v %v", claims, err)
	}

	if _, err := s.SignIn(ctx, "ana@example.com", "errado"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "segredo1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	s := newAuthService(memstore.New())
	cases := []struct{ email, password string }{
		{"", "segredo1"},
		{"not-an-email", "segredo1"},
		{"ana@example.com", "123"},
	}
	for _, tc := range cases {
		if _, err := s.SignUp(context.Background(), tc.email, tc.password, ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", tc, err)
		}
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	ctx := context.Background()
	s := newAuthService(memstore.New())
	session, _ := s.SignUp(ctx, "ana@example.com", "segredo1", "")

	claims, err := s.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if err := s.SignOut(ctx, claims); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, session.Token); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("signed out token accepted: %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	s := newAuthService(memstore.New())
	_, _ = s.SignUp(ctx, "ana@example.com", "segredo1", "")

	var sent string
	s.SetResetSender(func(ctx context.Context, email, token string) { sent = token })

	if err := s.ResetPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should not error: %v", err)
	}
	if sent != "" {
		t.Fatalf("no token should be sent for unknown email")
	}

	if err := s.ResetPassword(ctx, "ana@example.com"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if sent == "" {
		t.Fatalf("expected reset token to be sent")
	}

	var recovered bool
	s.OnSessionEvent(func(ctx context.Context, e domain.SessionEvent) error {
		recovered = recovered || e.Event == domain.PasswordRecovery
		return nil
	})

	if err := s.ConfirmReset(ctx, sent, "novasenha"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !recovered {
		t.Fatalf("expected PASSWORD_RECOVERY event")
	}
	if err := s.ConfirmReset(ctx, sent, "outrasenha"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("reset token reused: %v", err)
	}
	if _, err := s.SignIn(ctx, "ana@example.com", "segredo1"); err == nil {
		t.Fatalf("old password still works")
	}
	if _, err := s.SignIn(ctx, "ana@example.com", "novasenha"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestSignedInListenerEnsuresProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := newAuthService(f.store)
	s.OnSessionEvent(func(ctx context.Context, e domain.SessionEvent) error {
		if e.Event != domain.SignedIn {
			return nil
		}
		_, err := f.profiles.EnsureProfile(ctx, e.Identity)
		return err
	})

	session, err := s.SignUp(ctx, "ana@example.com", "segredo1", "Ana")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}
	p, err := f.profiles.GetProfile(ctx, session.Identity.ID)
	if err != nil {
		t.Fatalf("profile not created on sign in: %v", err)
	}
	if p.DisplayName != "Ana" || !domain.ValidTrackingCode(p.TrackingCode) {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := s.SignIn(ctx, "ana@example.com", "segredo1"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if total, _, _ := f.store.Profiles().Count(ctx); total != 1 {
		t.Fatalf("expected one profile after repeated sign in, got %d", total)
	}
}

func TestPasswordCost(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name       string
		configured int
		want       int
	}{
		{"configured", bcrypt.MinCost, bcrypt.MinCost},
		{"zero falls back", 0, bcrypt.DefaultCost},
		{"above max falls back", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memstore.New()
			s := NewAuthService(store.Identities(), store.ResetTokens(), store.Sessions(),
				auth.NewTokenManager("secret", ""), AuthConfig{PasswordCost: tc.configured}, nil)
			if got := s.cfg.PasswordCost; got != tc.want {
				t.Fatalf("expected cost %d, got %d", tc.want, got)
			}
		})
	}

	store := memstore.New()
	s := newAuthService(store)
	session, err := s.SignUp(ctx, "ana@example.com", "segredo1", "Ana")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}
	identity, err := store.Identities().GetByID(ctx, session.Identity.ID)
	if err != nil {
		t.Fatalf("identity lookup: %v", err)
	}
	if cost, err := bcrypt.Cost([]byte(identity.PasswordHash)); err != nil || cost != bcrypt.MinCost {
		t.Fatalf("expected stored hash at cost %d, got %d (%v)", bcrypt.MinCost, cost, err)
	}
}
