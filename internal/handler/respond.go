package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/middleware"
)

// ErrorResponse is the body of every failed API call. Code is stable for
// clients; Message is shown to the user.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps a domain error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCodeNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSelfTracking), errors.Is(err, domain.ErrTargetInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCodeGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", slog.String("error", err.Error()))
		w.Header().Set("Retry-After", "5")
	} else {
		logger.Debug(op+" rejected", slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Code: domain.ErrorCode(err), Message: domain.UserMessage(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// claimsFrom returns the caller's claims; the JWT middleware guarantees them
// on every non-public route
func claimsFrom(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Code:    domain.ErrorCode(domain.ErrInvalidCredentials),
			Message: domain.UserMessage(domain.ErrInvalidCredentials),
		})
		return nil, false
	}
	return claims, true
}
