//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attest/internal/control/models"
	"attest/internal/control/store/postgres"
	"attest/internal/grc/catalog"
	"attest/internal/trail/registry"
	trailservice "attest/internal/trail/service"
	trailpostgres "attest/internal/trail/store/postgres"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
	"attest/pkg/testutil/containers"
)

type ControlStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestControlStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ControlStoreSuite))
}

func (s *ControlStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *ControlStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"controls", "audit_outbox", "audit_log_changes", "audit_logs"))
}

func newTestControl(code string) *models.Control {
	now := time.Now().UTC()
	return &models.Control{
		ID:          uuid.New(),
		Code:        code,
		Name:        "Information Security Policy",
		Description: "Top-level policy document",
		Status:      models.StatusCompliant,
		OwnerID:     "u-1",
		FrameworkID: "fw-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *ControlStoreSuite) TestCrudRoundTrip() {
	ctx := context.Background()
	control := newTestControl("GOV-01")

	s.Require().NoError(s.store.Create(ctx, control))

	found, err := s.store.FindByID(ctx, control.ID)
	s.Require().NoError(err)
	s.Equal("GOV-01", found.Code)

	found.Status = models.StatusNonCompliant
	s.Require().NoError(s.store.Update(ctx, found))

	found, err = s.store.FindByID(ctx, control.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusNonCompliant, found.Status)

	s.Require().NoError(s.store.Delete(ctx, control.ID))
	_, err = s.store.FindByID(ctx, control.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ControlStoreSuite) TestDuplicateCodeConflicts() {
	ctx := context.Background()

	s.Require().NoError(s.store.Create(ctx, newTestControl("GOV-01")))
	err := s.store.Create(ctx, newTestControl("GOV-01"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

// TestMutationAndCaptureShareOneTransaction drives the full collaborator
// contract against a real database: the business write and the audit write
// commit together or not at all.
func (s *ControlStoreSuite) TestMutationAndCaptureShareOneTransaction() {
	ctx := context.Background()

	reg := registry.New()
	catalog.Register(reg, catalog.StaticDirectory{
		Users:      map[string]string{"u-1": "Alice Ciso"},
		Frameworks: map[string]string{"fw-1": "ISO 27001"},
	})
	trailStore := trailpostgres.New(s.postgres.DB)
	capturer := trailservice.NewCapturer(trailStore, reg)

	s.Run("rollback removes both writes", func() {
		control := newTestControl("GOV-01")

		tx, err := s.postgres.DB.BeginTx(ctx, nil)
		s.Require().NoError(err)
		txCtx := txcontext.WithTx(ctx, tx)

		s.Require().NoError(s.store.Create(txCtx, control))
		s.Require().NoError(capturer.CaptureEntity(txCtx, "create", nil, control))
		s.Require().NoError(tx.Rollback())

		_, err = s.store.FindByID(ctx, control.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		var count int
		s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_logs WHERE entity_id = $1`, control.ID.String()).Scan(&count))
		s.Equal(0, count, "no orphaned audit rows for an aborted mutation")
	})

	s.Run("commit persists both writes", func() {
		control := newTestControl("GOV-02")

		tx, err := s.postgres.DB.BeginTx(ctx, nil)
		s.Require().NoError(err)
		txCtx := txcontext.WithTx(ctx, tx)

		s.Require().NoError(s.store.Create(txCtx, control))
		s.Require().NoError(capturer.CaptureEntity(txCtx, "create", nil, control))
		s.Require().NoError(tx.Commit())

		_, err = s.store.FindByID(ctx, control.ID)
		s.Require().NoError(err)

		var count int
		s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_logs WHERE entity_id = $1`, control.ID.String()).Scan(&count))
		s.Equal(1, count)
	})
}
