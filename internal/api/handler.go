package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deploybay/region-failover/internal/model"
	"github.com/deploybay/region-failover/internal/monitor"
	"github.com/deploybay/region-failover/internal/orchestrator"
	"github.com/deploybay/region-failover/internal/registry"
	"github.com/deploybay/region-failover/internal/replication"
)

// Handler holds the HTTP handlers and dependencies
type Handler struct {
	registry     registry.Registry
	monitor      monitor.Monitor
	replication  replication.Tracker
	orchestrator orchestrator.Orchestrator
	logger       *slog.Logger
	basePath     string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	reg registry.Registry,
	mon monitor.Monitor,
	tracker replication.Tracker,
	orch orchestrator.Orchestrator,
	basePath string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:     reg,
		monitor:      mon,
		replication:  tracker,
		orchestrator: orch,
		logger:       logger,
		basePath:     basePath,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	routes := h.createRoutes()

	if h.basePath != "" {
		r.Mount(h.basePath, routes)
	} else {
		r.Mount("/", routes)
	}

	return r
}

// createRoutes creates the API routes
func (h *Handler) createRoutes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		// Region routes
		r.Post("/regions", h.RegisterRegion)
		r.Get("/regions", h.ListRegions)
		r.Get("/regions/{id}", h.GetRegion)
		r.Get("/regions/{id}/health", h.GetRegionHealthHistory)
		r.Post("/regions/{id}/check", h.CheckRegion)

		// Health routes
		r.Get("/health", h.AllRegionHealth)

		// Replication routes
		r.Get("/replication", h.ListReplication)
		r.Get("/replication/{source}/{target}", h.GetReplication)
		r.Put("/replication/{source}/{target}", h.PutReplication)

		// Failover routes
		r.Post("/failover", h.ExecuteFailover)
		r.Get("/failover/status", h.FailoverStatus)
		r.Get("/failover/history", h.FailoverHistory)
		r.Post("/failover/{id}/rollback", h.RollbackFailover)
		r.Post("/failover/{id}/cancel", h.CancelFailover)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

// errorResponse represents an error response
type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			slog.String("error", err.Error()),
		)
	}
}

// respondError writes an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, errorResponse{Error: message})
}

// respondDomainError maps sentinel errors to HTTP status codes.
// FailoverInProgress gets its own conflict status so callers know to
// poll the failover status instead of retrying blindly.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrDuplicateRegion),
		errors.Is(err, model.ErrFailoverInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrRegionNotHealthy),
		errors.Is(err, model.ErrTargetNotHealthy),
		errors.Is(err, model.ErrReplicationNotReady),
		errors.Is(err, model.ErrCapacityExceeded),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidState):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrFailoverFailed):
		h.respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
