package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/deploybay/region-failover/internal/registry"
)

// RegisterRegion handles POST /api/regions
func (h *Handler) RegisterRegion(w http.ResponseWriter, r *http.Request) {
	var params registry.RegisterParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	region, err := h.registry.Register(r.Context(), params)
	if err != nil {
		h.logger.Warn("failed to register region",
			slog.String("name", params.Name),
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, region)
}

// ListRegions handles GET /api/regions
func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list regions",
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, regions)
}

// GetRegion handles GET /api/regions/{id}
func (h *Handler) GetRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "region id is required")
		return
	}

	region, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, region)
}

// GetRegionHealthHistory handles GET /api/regions/{id}/health
func (h *Handler) GetRegionHealthHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "region id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.monitor.History(r.Context(), id, limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}
