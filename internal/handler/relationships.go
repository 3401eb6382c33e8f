package handler

import (
	"log/slog"
	"net/http"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/service"
)

// RelationshipsHandler manages the caller's outgoing tracking edges
type RelationshipsHandler struct {
	relationships *service.RelationshipService
	logger        *slog.Logger
}

// NewRelationshipsHandler creates a new relationships handler
func NewRelationshipsHandler(relationships *service.RelationshipService, logger *slog.Logger) *RelationshipsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationshipsHandler{relationships: relationships, logger: logger}
}

// ConnectRequest names the tracking code to connect to
type ConnectRequest struct {
	Code string `json:"code"`
}

// TrackedResponse lists the profiles the caller tracks
type TrackedResponse struct {
	Tracked []*domain.Profile `json:"tracked"`
}

// List handles GET /api/relationships
func (h *RelationshipsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	profiles, err := h.relationships.ListTrackedProfiles(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, "list relationships", err)
		return
	}
	if profiles == nil {
		profiles = []*domain.Profile{}
	}
	writeJSON(w, http.StatusOK, TrackedResponse{Tracked: profiles})
}

// Connect handles POST /api/relationships. A repeated connect answers 200
// with the existing edge; a new edge answers 201.
func (h *RelationshipsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "connect", err)
		return
	}

	result, err := h.relationships.Connect(r.Context(), claims.UserID, req.Code)
	if err != nil {
		writeError(w, h.logger, "connect", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// Disconnect handles DELETE /api/relationships/{code}
func (h *RelationshipsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	if err := h.relationships.Disconnect(r.Context(), claims.UserID, r.PathValue("code")); err != nil {
		writeError(w, h.logger, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
