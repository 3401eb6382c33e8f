// Package app wires repositories, services and handlers into the HTTP
// server shared by cmd/server and the end-to-end tests.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/handler"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/realtime"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/repository/memstore"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/audit"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/middleware"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/ratelimit"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/service"
)

// Stores are the persistence and push dependencies of the server
type Stores struct {
	Identities    domain.IdentityRepository
	Profiles      domain.ProfileRepository
	Relationships domain.RelationshipRepository
	Locations     domain.LocationRepository
	ResetTokens   service.ResetTokenStore
	Sessions      service.SessionStore
	Notifier      realtime.Notifier
	Checks        map[string]handler.CheckFunc
}

// MemoryStores backs every store with store and notifications with hub
func MemoryStores(store *memstore.Store, hub *realtime.Hub) Stores {
	return Stores{
		Identities:    store.Identities(),
		Profiles:      store.Profiles(),
		Relationships: store.Relationships(),
		Locations:     store.Locations(),
		ResetTokens:   store.ResetTokens(),
		Sessions:      store.Sessions(),
		Notifier:      hub,
	}
}

// Options tunes the server
type Options struct {
	JWTSecret          string
	TokenTTL           time.Duration
	ResetTokenTTL      time.Duration
	PasswordCost       int
	CodeMaxAttempts    int
	RateLimitPerMinute int
	AuthRatePerMinute  int
	AllowedOrigins     []string
}

// App holds the built services and the root handler
type App struct {
	Auth          *service.AuthService
	Profiles      *service.ProfileService
	Relationships *service.RelationshipService
	Locations     *service.LocationService
	Handler       http.Handler
	limiter       *ratelimit.Limiter
}

// New builds services and the middleware chain over stores
func New(stores Stores, opts Options, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}

	tokenManager := auth.NewTokenManager(opts.JWTSecret, "trackpartner")
	codes := service.NewCodeGenerator(stores.Profiles, opts.CodeMaxAttempts, log)
	profiles := service.NewProfileService(stores.Profiles, codes, log)
	relationships := service.NewRelationshipService(stores.Profiles, stores.Relationships, log)
	policy := security.NewAuthorizationService(stores.Relationships, stores.Profiles, log)
	locations := service.NewLocationService(stores.Locations, stores.Profiles, stores.Relationships, stores.Notifier, policy, log)
	authService := service.NewAuthService(
		stores.Identities,
		stores.ResetTokens,
		stores.Sessions,
		tokenManager,
		service.AuthConfig{
			TokenTTL:      opts.TokenTTL,
			ResetTokenTTL: opts.ResetTokenTTL,
			PasswordCost:  opts.PasswordCost,
		},
		log,
	)

	// Every sign in provisions the profile and its tracking code.
	authService.OnSessionEvent(func(ctx context.Context, event domain.SessionEvent) error {
		if event.Event != domain.SignedIn {
			return nil
		}
		_, err := profiles.EnsureProfile(ctx, event.Identity)
		return err
	})

	handlers := &handler.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Profile:       handler.NewProfileHandler(authService, profiles, log),
		Relationships: handler.NewRelationshipsHandler(relationships, log),
		Locations:     handler.NewLocationsHandler(locations, log),
		Stream:        handler.NewStreamHandler(stores.Notifier, locations, log, opts.AllowedOrigins),
		Health:        handler.NewHealthHandler(stores.Checks, log),
	}

	mux := http.NewServeMux()
	handlers.Register(mux, log)
	mux.Handle("GET /metrics", promhttp.Handler())

	limiter := ratelimit.NewLimiter(opts.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// request ID -> CORS -> sanitize -> content type -> JWT -> rate limit -> audit -> metrics -> mux
	var root http.Handler = metrics.HTTPMetricsMiddleware(mux)
	root = middleware.AuditMiddleware(auditLogger)(root)
	root = middleware.RateLimitMiddleware(limiter, opts.AuthRatePerMinute, log)(root)
	root = middleware.JWTMiddleware(authService, log)(root)
	root = middleware.ValidateJSONContentType(log)(root)
	root = middleware.SanitizeInputs(log)(root)
	root = middleware.CORS(opts.AllowedOrigins)(root)
	root = middleware.RequestID(log)(root)
	root = otelhttp.NewHandler(root, "trackpartner")

	return &App{
		Auth:          authService,
		Profiles:      profiles,
		Relationships: relationships,
		Locations:     locations,
		Handler:       root,
		limiter:       limiter,
	}
}

// Close stops background helpers owned by the app
func (a *App) Close() {
	a.limiter.Stop()
}
