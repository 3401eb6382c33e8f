package handler

import (
	"log/slog"
	"net/http"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/middleware"
)

// Handlers groups every API handler served by the mux
type Handlers struct {
	Auth          *AuthHandler
	Profile       *ProfileHandler
	Relationships *RelationshipsHandler
	Locations     *LocationsHandler
	Stream        *StreamHandler
	Health        *HealthHandler
}

// Register installs the API routes on mux
func (h *Handlers) Register(mux *http.ServeMux, log *slog.Logger) {
	requireCode := middleware.RequireJSONFields([]string{"code"}, log)
	requireCoords := middleware.RequireJSONFields([]string{"latitude", "longitude"}, log)

	mux.HandleFunc("POST /api/auth/signup", h.Auth.SignUp)
	mux.HandleFunc("POST /api/auth/signin", h.Auth.SignIn)
	mux.HandleFunc("POST /api/auth/signout", h.Auth.SignOut)
	mux.HandleFunc("POST /api/auth/reset-password", h.Auth.ResetPassword)
	mux.HandleFunc("POST /api/auth/reset-password/confirm", h.Auth.ConfirmReset)

	mux.HandleFunc("GET /api/profile", h.Profile.Get)
	mux.HandleFunc("PATCH /api/profile", h.Profile.Update)
	mux.HandleFunc("POST /api/profile/code", h.Profile.RegenerateCode)
	mux.HandleFunc("GET /api/codes/{code}", h.Profile.ValidateCode)

	mux.HandleFunc("GET /api/relationships", h.Relationships.List)
	mux.Handle("POST /api/relationships", requireCode(http.HandlerFunc(h.Relationships.Connect)))
	mux.HandleFunc("DELETE /api/relationships/{code}", h.Relationships.Disconnect)

	mux.Handle("POST /api/locations", requireCoords(http.HandlerFunc(h.Locations.Record)))
	mux.HandleFunc("GET /api/locations/history", h.Locations.History)
	mux.HandleFunc("GET /api/partner/location", h.Locations.Partner)

	mux.Handle("GET "+middleware.StreamPath, h.Stream)

	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.HandleFunc("GET /readyz", h.Health.Ready)
}
