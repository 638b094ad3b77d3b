// Package handler exposes the control CRUD endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attest/internal/control/models"
	"attest/internal/platform/middleware"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Service defines the control operations the handler depends on.
type Service interface {
	Create(ctx context.Context, control *models.Control) (*models.Control, error)
	Update(ctx context.Context, control *models.Control) (*models.Control, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Control, error)
	List(ctx context.Context, limit, offset int) ([]models.Control, int, error)
}

// Handler handles control endpoints.
type Handler struct {
	logger       *slog.Logger
	controls     Service
	jwtValidator middleware.JWTValidator
}

// New creates a control Handler.
func New(controls Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		controls:     controls,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the control routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	controlRouter := chi.NewRouter()
	controlRouter.Use(middleware.Recovery(h.logger))
	controlRouter.Use(middleware.RequestID)
	controlRouter.Use(middleware.RequestTime)
	controlRouter.Use(middleware.ClientMetadata)
	controlRouter.Use(middleware.Logger(h.logger))
	controlRouter.Use(middleware.Timeout(30 * time.Second))
	controlRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	controlRouter.Post("/", h.handleCreate)
	controlRouter.Get("/", h.handleList)
	controlRouter.Get("/{controlID}", h.handleGet)
	controlRouter.Put("/{controlID}", h.handleUpdate)
	controlRouter.Delete("/{controlID}", h.handleDelete)

	r.Mount("/controls", controlRouter)
}

type controlRequest struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	OwnerID     string     `json:"owner_id"`
	FrameworkID string     `json:"framework_id"`
	ReviewDate  *time.Time `json:"review_date"`
}

func (req controlRequest) toModel() *models.Control {
	return &models.Control{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		OwnerID:     req.OwnerID,
		FrameworkID: req.FrameworkID,
		ReviewDate:  req.ReviewDate,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	control, err := h.controls.Create(ctx, req.toModel())
	if err != nil {
		h.logFailure(ctx, "failed to create control", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, control)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "control not found"))
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	control := req.toModel()
	control.ID = id
	control, err = h.controls.Update(ctx, control)
	if err != nil {
		h.logFailure(ctx, "failed to update control", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "control not found"))
		return
	}

	if err := h.controls.Delete(ctx, id); err != nil {
		h.logFailure(ctx, "failed to delete control", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "controlID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "control not found"))
		return
	}

	control, err := h.controls.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	controls, total, err := h.controls.List(ctx, limit, offset)
	if err != nil {
		h.logFailure(ctx, "failed to list controls", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":  controls,
		"total": total,
	})
}

// logFailure records server-side failures; expected client errors stay quiet.
func (h *Handler) logFailure(ctx context.Context, message string, err error) {
	if dErrors.Is(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, message,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
}
