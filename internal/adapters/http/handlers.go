package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

const (
	healthCheckTimeout = 5 * time.Second

	// responseGrace is the time left to write a summary after a run hits its limit
	responseGrace = 10 * time.Second
)

// Pinger is a dependency that can report reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains all HTTP handlers
type Handler struct {
	refreshSvc ports.RefreshService
	metricsSvc ports.MetricsService
	resolver   ports.PriceResolver
	db         Pinger
	store      Pinger
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewHandler creates a new handler. Manual runs are bounded by runTimeout.
func NewHandler(
	refreshSvc ports.RefreshService,
	metricsSvc ports.MetricsService,
	resolver ports.PriceResolver,
	db Pinger,
	store Pinger,
	runTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		refreshSvc: refreshSvc,
		metricsSvc: metricsSvc,
		resolver:   resolver,
		db:         db,
		store:      store,
		runTimeout: runTimeout,
		logger:     logger.With("component", "http_handler"),
	}
}

// Health returns service health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := ports.HealthStatus{
		Status:   "healthy",
		Database: "healthy",
		Store:    "healthy",
		Sources:  h.resolver.Health(ctx),
	}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("database health check failed", "error", err)
		health.Database = "unhealthy"
		health.Status = "degraded"
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store health check failed", "error", err)
		health.Store = "unhealthy"
		health.Status = "degraded"
	}

	for _, status := range health.Sources {
		if status != "healthy" {
			health.Status = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, health)
}

// GetStats returns persisted run statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.metricsSvc.GetRunMetrics(r.Context())
	if err != nil {
		h.logger.Error("failed to read run metrics", "error", err)
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, metrics)
}

// TriggerRefresh runs the full refresh once and returns its summary
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	// the run keeps going if the caller disconnects, so the lock is always released cleanly
	ctx := context.WithoutCancel(r.Context())
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()

		// the server write timeout is shorter than a full run
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(h.runTimeout + responseGrace)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("failed to extend write deadline", "error", err)
		}
	}

	summary, err := h.refreshSvc.Run(ctx)
	if err != nil {
		h.logger.Error("manual refresh failed", "error", err)
		handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if summary.Status == domain.RunSkipped {
		status = http.StatusConflict
	}

	respondJSON(w, status, summary)
}

// RefreshToken refreshes a single token by symbol, address or CEX symbol
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	value := strings.TrimSpace(r.PathValue("value"))
	if value == "" {
		respondError(w, http.StatusBadRequest, "token symbol, address or cex symbol is required")
		return
	}

	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			handleDomainError(w, domain.NewDomainError(domain.ErrInvalidRequest,
				"user_id must be a positive integer", "INVALID_USER_ID"))
			return
		}
		userID = id
	}

	result, err := h.refreshSvc.RefreshToken(r.Context(), userID, value)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case domain.StatusSuccess:
		status = http.StatusCreated
	case domain.StatusError:
		status = http.StatusBadGateway
	}

	respondJSON(w, status, result)
}
