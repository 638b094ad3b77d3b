package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/control/models"
	"attest/internal/platform/middleware"
	trailhandler "attest/internal/trail/handler"
	trailmodels "attest/internal/trail/models"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid-token" {
		return nil, errors.New("invalid token")
	}
	return &middleware.JWTClaims{UserID: "u-1", UserName: "alice.ciso"}, nil
}

type stubControls struct{}

func (stubControls) Create(_ context.Context, control *models.Control) (*models.Control, error) {
	control.ID = uuid.New()
	return control, nil
}

func (stubControls) Update(_ context.Context, control *models.Control) (*models.Control, error) {
	return control, nil
}

func (stubControls) Delete(context.Context, uuid.UUID) error { return nil }

func (stubControls) Get(_ context.Context, id uuid.UUID) (*models.Control, error) {
	return &models.Control{ID: id, Code: "GOV-01"}, nil
}

func (stubControls) List(context.Context, int, int) ([]models.Control, int, error) {
	return nil, 0, nil
}

type stubTrail struct{}

func (stubTrail) ListLogs(context.Context, trailmodels.ListFilter) (trailmodels.LogPage, error) {
	return trailmodels.LogPage{}, nil
}

func (stubTrail) GetLogDetail(context.Context, uuid.UUID, trailmodels.ChangeFilter) (trailmodels.LogDetail, error) {
	return trailmodels.LogDetail{}, nil
}

func (stubTrail) RecentActivity(context.Context, int) ([]trailmodels.AuditLog, error) {
	return nil, nil
}

func (stubTrail) VerifyChain(_ context.Context, entityType, entityID string) (trailmodels.ChainReport, error) {
	return trailmodels.ChainReport{EntityType: entityType, EntityID: entityID, Intact: true}, nil
}

func newRouter() chi.Router {
	router := chi.NewRouter()
	New(stubControls{}, slog.New(slog.NewTextHandler(io.Discard, nil)), stubValidator{}).Register(router)
	return router
}

func do(t *testing.T, router chi.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestModulesShareOneParentRouter mirrors the server wiring: every module
// handler registers on the same parent router, so each must claim its own
// mount prefix or chi panics on the duplicate mount.
func TestModulesShareOneParentRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()

	require.NotPanics(t, func() {
		trailhandler.New(stubTrail{}, logger, stubValidator{}).Register(router)
		New(stubControls{}, logger, stubValidator{}).Register(router)
	})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/audit-logs", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/audit-logs/recent", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/controls", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/controls/"+uuid.NewString(), nil).Code)
}

func TestCreateControl(t *testing.T) {
	router := newRouter()

	body, err := json.Marshal(map[string]string{
		"code": "GOV-01", "name": "Security Policy", "status": models.StatusCompliant,
	})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/controls", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Control
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "GOV-01", created.Code)
}

func TestCreateControlRejectsMalformedBody(t *testing.T) {
	rec := do(t, newRouter(), http.MethodPost, "/controls", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlRoutesRequireAuth(t *testing.T) {
	router := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/controls", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnparseableControlIDReadsAsAbsent(t *testing.T) {
	rec := do(t, newRouter(), http.MethodGet, "/controls/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
