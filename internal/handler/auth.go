package handler

import (
	"log/slog"
	"net/http"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// SignUpRequest represents a registration request
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SignInRequest represents a sign in request
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordRequest starts a password reset
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// ConfirmResetRequest completes a password reset
type ConfirmResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "sign up", err)
		return
	}

	session, err := h.authService.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, h.logger, "sign up", err)
		return
	}

	h.logger.Info("user registered", slog.String("user_id", session.Identity.ID))
	writeJSON(w, http.StatusCreated, session)
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "sign in", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, "sign in", domain.ErrInvalidInput)
		return
	}

	session, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "sign in", err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	if err := h.authService.SignOut(r.Context(), claims); err != nil {
		writeError(w, h.logger, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /api/auth/reset-password. It answers 202 whether
// or not the email is registered.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "reset password", err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, "reset password", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ConfirmReset handles POST /api/auth/reset-password/confirm
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "confirm reset", err)
		return
	}

	if err := h.authService.ConfirmReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, h.logger, "confirm reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
