package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AllRegionHealth handles GET /api/health
func (h *Handler) AllRegionHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.monitor.AllRegionHealth(r.Context())
	if err != nil {
		h.logger.Error("failed to get region health",
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, health)
}

// CheckRegion handles POST /api/regions/{id}/check, forcing an
// immediate health check of the region
func (h *Handler) CheckRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "region id is required")
		return
	}

	health, err := h.monitor.CheckRegionHealth(r.Context(), id)
	if err != nil {
		h.logger.Warn("on-demand health check failed",
			slog.String("region_id", id),
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, health)
}
