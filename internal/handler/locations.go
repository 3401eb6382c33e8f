package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/service"
)

// LocationsHandler records samples and answers partner location queries
type LocationsHandler struct {
	locations *service.LocationService
	logger    *slog.Logger
}

// NewLocationsHandler creates a new locations handler
func NewLocationsHandler(locations *service.LocationService, logger *slog.Logger) *LocationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationsHandler{locations: locations, logger: logger}
}

// HistoryResponse wraps a page of samples, newest first
type HistoryResponse struct {
	UserID  string                   `json:"userId"`
	Samples []*domain.LocationSample `json:"samples"`
}

// Record handles POST /api/locations
func (h *LocationsHandler) Record(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	var in service.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, "record location", err)
		return
	}

	sample, err := h.locations.Record(r.Context(), claims.UserID, in)
	if err != nil {
		writeError(w, h.logger, "record location", err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

// History handles GET /api/locations/history?user=&limit=
func (h *LocationsHandler) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.logger, "location history", domain.ErrInvalidInput)
			return
		}
		limit = n
	}

	owner := r.URL.Query().Get("user")
	samples, err := h.locations.History(r.Context(), claims.UserID, owner, limit)
	if err != nil {
		writeError(w, h.logger, "location history", err)
		return
	}
	if owner == "" {
		owner = claims.UserID
	}
	if samples == nil {
		samples = []*domain.LocationSample{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{UserID: owner, Samples: samples})
}

// Partner handles GET /api/partner/location. 404 with code not_found means
// there is no partner or no sample yet.
func (h *LocationsHandler) Partner(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	loc, err := h.locations.ResolveLatest(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, "resolve partner location", err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
