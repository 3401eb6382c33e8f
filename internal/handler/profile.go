package handler

import (
	"log/slog"
	"net/http"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/service"
)

// ProfileHandler serves the caller's own profile and tracking code
type ProfileHandler struct {
	authService    *service.AuthService
	profileService *service.ProfileService
	logger         *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(authService *service.AuthService, profileService *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		authService:    authService,
		profileService: profileService,
		logger:         logger,
	}
}

// UpdateProfileRequest carries the optional fields of PATCH /api/profile
type UpdateProfileRequest struct {
	Name           *string `json:"name"`
	TrackingActive *bool   `json:"trackingActive"`
}

// Get handles GET /api/profile. The profile is created on first read so a
// failed sign-in hook never leaves the caller without a code.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	identity, err := h.authService.Identity(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, "load identity", err)
		return
	}

	profile, err := h.profileService.EnsureProfile(r.Context(), identity)
	if err != nil {
		writeError(w, h.logger, "ensure profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update handles PATCH /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	if req.Name == nil && req.TrackingActive == nil {
		writeError(w, h.logger, "update profile", domain.ErrInvalidInput)
		return
	}

	var (
		profile *domain.Profile
		err     error
	)
	if req.Name != nil {
		if profile, err = h.profileService.UpdateDisplayName(r.Context(), claims.UserID, *req.Name); err != nil {
			writeError(w, h.logger, "update profile", err)
			return
		}
	}
	if req.TrackingActive != nil {
		if profile, err = h.profileService.SetTrackingActive(r.Context(), claims.UserID, *req.TrackingActive); err != nil {
			writeError(w, h.logger, "update profile", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, profile)
}

// RegenerateCode handles POST /api/profile/code
func (h *ProfileHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.RegenerateCode(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, "regenerate code", err)
		return
	}

	h.logger.Info("tracking code regenerated",
		slog.String("user_id", claims.UserID),
		slog.String("code", profile.TrackingCode),
	)
	writeJSON(w, http.StatusOK, profile)
}

// ValidateCode handles GET /api/codes/{code}
func (h *ProfileHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	info, err := h.profileService.ValidateCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, h.logger, "validate code", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
