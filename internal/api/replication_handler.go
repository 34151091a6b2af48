package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deploybay/region-failover/internal/model"
)

// replicationUpdateRequest is the callback payload from the external
// replication mechanism
type replicationUpdateRequest struct {
	Status       model.ReplicationState `json:"status"`
	LastSyncedAt time.Time              `json:"last_synced_at"`
	LagEstimate  time.Duration          `json:"lag_estimate"`
}

// ListReplication handles GET /api/replication
func (h *Handler) ListReplication(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.replication.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list replication statuses",
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, statuses)
}

// GetReplication handles GET /api/replication/{source}/{target}
func (h *Handler) GetReplication(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	target := chi.URLParam(r, "target")
	if source == "" || target == "" {
		h.respondError(w, http.StatusBadRequest, "source and target region ids are required")
		return
	}

	status, err := h.replication.GetStatus(r.Context(), source, target)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// PutReplication handles PUT /api/replication/{source}/{target}
func (h *Handler) PutReplication(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	target := chi.URLParam(r, "target")
	if source == "" || target == "" {
		h.respondError(w, http.StatusBadRequest, "source and target region ids are required")
		return
	}

	var req replicationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := &model.ReplicationStatus{
		SourceRegionID: source,
		TargetRegionID: target,
		Status:         req.Status,
		LastSyncedAt:   req.LastSyncedAt,
		LagEstimate:    req.LagEstimate,
	}
	if status.LastSyncedAt.IsZero() {
		status.LastSyncedAt = time.Now()
	}

	if err := h.replication.Record(r.Context(), status); err != nil {
		h.logger.Warn("failed to record replication status",
			slog.String("source", source),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}
