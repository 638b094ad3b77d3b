// Package handler exposes the audit trail read API.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attest/internal/platform/middleware"
	"attest/internal/trail/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Service is the read-side contract the handler depends on.
type Service interface {
	ListLogs(ctx context.Context, filter models.ListFilter) (models.LogPage, error)
	GetLogDetail(ctx context.Context, logID uuid.UUID, filter models.ChangeFilter) (models.LogDetail, error)
	RecentActivity(ctx context.Context, limit int) ([]models.AuditLog, error)
	VerifyChain(ctx context.Context, entityType, entityID string) (models.ChainReport, error)
}

// Handler serves the audit-log endpoints.
type Handler struct {
	logger       *slog.Logger
	query        Service
	jwtValidator middleware.JWTValidator
}

// New creates the audit trail Handler.
func New(query Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		query:        query,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the audit-log routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	trailRouter := chi.NewRouter()
	trailRouter.Use(middleware.Recovery(h.logger))
	trailRouter.Use(middleware.RequestID)
	trailRouter.Use(middleware.RequestTime)
	trailRouter.Use(middleware.ClientMetadata)
	trailRouter.Use(middleware.Logger(h.logger))
	trailRouter.Use(middleware.Timeout(30 * time.Second))
	trailRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	trailRouter.Get("/", h.handleListLogs)
	trailRouter.Get("/recent", h.handleRecentActivity)
	trailRouter.Get("/verify", h.handleVerifyChain)
	trailRouter.Get("/{logID}", h.handleLogDetail)

	// Mounted under a module prefix so several handlers can share one parent
	// router; chi refuses duplicate mounts on the same path.
	r.Mount("/audit-logs", trailRouter)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := models.ListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	page, err := h.query.ListLogs(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit logs",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// detailResponse flattens the header fields to the top level next to the
// change page, matching what the history drawer consumes.
type detailResponse struct {
	models.AuditLog
	Changes    []models.AuditLogChange `json:"changes"`
	Pagination models.Pagination       `json:"pagination"`
}

func (h *Handler) handleLogDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logID, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit log not found"))
		return
	}

	filter := models.ChangeFilter{
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
		Direction: models.SortDirection(r.URL.Query().Get("direction")),
	}
	// Unknown sort fields fall back to canonical order rather than erroring.
	if field, ok := models.ParseSortField(r.URL.Query().Get("sort")); ok {
		filter.SortField = field
	}

	detail, err := h.query.GetLogDetail(ctx, logID, filter)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to load audit log detail",
				"request_id", requestcontext.RequestID(ctx),
				"log_id", logID.String(),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, detailResponse{
		AuditLog:   detail.Log,
		Changes:    detail.Changes,
		Pagination: detail.Pagination,
	})
}

func (h *Handler) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logs, err := h.query.RecentActivity(ctx, queryInt(r, "limit"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list recent activity",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityType := r.URL.Query().Get("entityType")
	entityID := r.URL.Query().Get("entityId")
	if entityType == "" || entityID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entityType and entityId are required"))
		return
	}

	report, err := h.query.VerifyChain(ctx, entityType, entityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify audit chain",
			"request_id", requestcontext.RequestID(ctx),
			"entity_type", entityType,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// queryInt parses an integer query parameter. Missing or malformed values
// return zero; the query service clamps zeros to its defaults.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
