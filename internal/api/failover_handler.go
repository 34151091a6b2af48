package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/orchestrator"
)

const defaultHistoryLimit = 50

// executeFailoverRequest is the POST /api/failover payload
type executeFailoverRequest struct {
	FromRegionID             string `json:"from_region_id"`
	ToRegionID               string `json:"to_region_id"`
	InitiatedBy              string `json:"initiated_by"`
	OverrideReplicationCheck bool   `json:"override_replication_check"`
}

// rollbackRequest is the POST /api/failover/{id}/rollback payload
type rollbackRequest struct {
	InitiatedBy string `json:"initiated_by"`
}

// cancelResponse reports the outcome of a cancellation attempt
type cancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// ExecuteFailover handles POST /api/failover. The HTTP surface only
// accepts manual failovers; automatic ones come from the in-process
// policy.
func (h *Handler) ExecuteFailover(w http.ResponseWriter, r *http.Request) {
	var req executeFailoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.orchestrator.ExecuteFailover(r.Context(), orchestrator.ExecuteParams{
		FromRegionID:             req.FromRegionID,
		ToRegionID:               req.ToRegionID,
		Trigger:                  model.TriggerManual,
		InitiatedBy:              req.InitiatedBy,
		OverrideReplicationCheck: req.OverrideReplicationCheck,
	})
	if err != nil {
		h.logger.Warn("failover request rejected",
			slog.String("from", req.FromRegionID),
			slog.String("to", req.ToRegionID),
			slog.String("error", err.Error()),
		)
		// A failed commit still produced an event worth returning for
		// postmortem review
		if event != nil {
			h.respondJSON(w, http.StatusBadGateway, event)
			return
		}
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, event)
}

// RollbackFailover handles POST /api/failover/{id}/rollback
func (h *Handler) RollbackFailover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "event id is required")
		return
	}

	var req rollbackRequest
	if r.Body != nil {
		// Body is optional; ignore decode errors on an empty body
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	event, err := h.orchestrator.RollbackFailover(r.Context(), id, req.InitiatedBy)
	if err != nil {
		h.logger.Warn("rollback request rejected",
			slog.String("event_id", id),
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, event)
}

// CancelFailover handles POST /api/failover/{id}/cancel. A cancellation
// that lost the race against the commit is a normal outcome reported
// with 200, not an error.
func (h *Handler) CancelFailover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "event id is required")
		return
	}

	cancelled, err := h.orchestrator.CancelFailover(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	resp := cancelResponse{Cancelled: cancelled}
	if !cancelled {
		resp.Reason = "event is no longer pending"
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// FailoverStatus handles GET /api/failover/status
func (h *Handler) FailoverStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to get failover status",
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// FailoverHistory handles GET /api/failover/history
func (h *Handler) FailoverHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.orchestrator.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get failover history",
			slog.String("error", err.Error()),
		)
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, events)
}
