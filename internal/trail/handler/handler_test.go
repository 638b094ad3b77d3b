package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/platform/middleware"
	"attest/internal/trail/models"
	"attest/internal/trail/service"
	memorystore "attest/internal/trail/store/memory"
	"attest/pkg/requestcontext"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid-token" {
		return nil, errors.New("invalid token")
	}
	return &middleware.JWTClaims{UserID: "u-1", UserName: "alice.ciso"}, nil
}

type fixture struct {
	router chi.Router
	store  *memorystore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memorystore.New()
	query := service.NewQuery(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := chi.NewRouter()
	New(query, logger, stubValidator{}).Register(router)

	return &fixture{router: router, store: store}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, ref string, changeCount int, at time.Time) uuid.UUID {
	t.Helper()
	log := &models.AuditLog{
		ID:              uuid.New(),
		EntityType:      "Control",
		EntityID:        "ctrl-" + ref,
		ReferenceNumber: ref,
		UserName:        "alice.ciso",
		Operation:       models.OperationUpdate,
		AttributeCount:  changeCount,
		Checksum:        "sum",
		CreatedAt:       at,
	}
	var changes []models.AuditLogChange
	for i := 0; i < changeCount; i++ {
		changes = append(changes, models.AuditLogChange{
			ID:            uuid.New(),
			LogID:         log.ID,
			Position:      i,
			AttributeName: []string{"name", "status", "owner", "description", "reviewDate"}[i%5],
			ModuleName:    "General",
			OldValue:      "old",
			NewValue:      "new",
		})
	}
	require.NoError(t, f.store.Append(context.Background(), log, changes))
	return log.ID
}

func TestListLogsRequiresAuth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListLogsEnvelope(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		f.seed(t, "GOV-"+uuid.NewString()[:8], 1, base.Add(time.Duration(i)*time.Minute))
	}

	rec := f.get(t, "/audit-logs")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data    []models.AuditLog `json:"data"`
		Total   int               `json:"total"`
		Limit   int               `json:"limit"`
		Offset  int               `json:"offset"`
		HasMore bool              `json:"hasMore"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Data, models.DefaultLogLimit, "limit defaults to 20")
	assert.Equal(t, 25, page.Total)
	assert.True(t, page.HasMore)

	rec = f.get(t, "/audit-logs?limit=10&offset=20")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Data, 5)
	assert.False(t, page.HasMore)
}

func TestListLogsClampsMalformedParams(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "GOV-01", 1, time.Now().UTC())

	rec := f.get(t, "/audit-logs?limit=banana&offset=-4")
	require.Equal(t, http.StatusOK, rec.Code, "malformed paging clamps, never 400s")

	var page struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, models.DefaultLogLimit, page.Limit)
	assert.Equal(t, 0, page.Offset)
}

func TestLogDetailEnvelope(t *testing.T) {
	f := newFixture(t)
	logID := f.seed(t, "GOV-01", 5, time.Now().UTC())

	rec := f.get(t, "/audit-logs/"+logID.String()+"?limit=2&offset=4")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail struct {
		ID              uuid.UUID               `json:"id"`
		ReferenceNumber string                  `json:"reference_number"`
		Operation       string                  `json:"type"`
		AttributeCount  int                     `json:"attribute_count"`
		Changes         []models.AuditLogChange `json:"changes"`
		Pagination      models.Pagination       `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, logID, detail.ID, "header fields sit at the top level")
	assert.Equal(t, "GOV-01", detail.ReferenceNumber)
	assert.Equal(t, "update", detail.Operation)
	assert.Equal(t, 5, detail.AttributeCount)
	assert.Len(t, detail.Changes, 1, "page past the boundary holds the remainder")
	assert.False(t, detail.Pagination.HasMore)
	assert.Equal(t, 3, detail.Pagination.CurrentPage)
}

func TestLogDetailNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/audit-logs/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])

	rec = f.get(t, "/audit-logs/not-a-uuid")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unparseable IDs read as absent")
}

func TestLogDetailSortParams(t *testing.T) {
	f := newFixture(t)
	logID := f.seed(t, "GOV-01", 3, time.Now().UTC())

	rec := f.get(t, "/audit-logs/"+logID.String()+"?sort=attributeName&direction=asc")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail struct {
		Changes []models.AuditLogChange `json:"changes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.Len(t, detail.Changes, 3)
	assert.Equal(t, "name", detail.Changes[0].AttributeName)
	assert.Equal(t, "status", detail.Changes[2].AttributeName)

	// An unknown sort field falls back to canonical order instead of erroring.
	rec = f.get(t, "/audit-logs/"+logID.String()+"?sort=checksum&direction=asc")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, "name", detail.Changes[0].AttributeName)
}

func TestRecentActivity(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.seed(t, "GOV-0"+uuid.NewString()[:4], 1, base.Add(time.Duration(i)*time.Minute))
	}

	rec := f.get(t, "/audit-logs/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []models.AuditLog `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Data, 2)
}

func TestVerifyChainEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/audit-logs/verify")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "entity coordinates are required")

	rec = f.get(t, "/audit-logs/verify?entityType=Risk&entityId=risk-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.ChainReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.Intact)
	assert.Equal(t, 0, report.Records)
}

func TestAuthPopulatesActingUser(t *testing.T) {
	// The middleware chain stores the display name for the capture path.
	var capturedName string
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth(stubValidator{}, slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		capturedName = requestcontext.UserName(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice.ciso", capturedName)
}
