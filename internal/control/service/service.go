// Package service owns control mutations and shows the collaborator side of
// the audit contract: every write runs inside one transaction together with
// its audit capture, so neither can commit without the other.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"attest/internal/control/models"
	trailmodels "attest/internal/trail/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Store is the control persistence contract. Implementations participate in
// a caller-owned transaction when one is carried in the context.
type Store interface {
	Create(ctx context.Context, control *models.Control) error
	Update(ctx context.Context, control *models.Control) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Control, error)
	List(ctx context.Context, limit, offset int) ([]models.Control, int, error)
}

// Capturer is the audit interceptor this service invokes inside each
// mutation's transaction.
type Capturer interface {
	CaptureEntity(ctx context.Context, op trailmodels.Operation, before, after trailmodels.Snapshotter) error
}

// TxRunner runs fn inside one transaction, carried in fn's context so both
// the control store and the audit store write through it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates control CRUD with audit capture.
type Service struct {
	store    Store
	capturer Capturer
	runner   TxRunner
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New constructs a Service.
func New(store Store, capturer Capturer, runner TxRunner, opts ...Option) *Service {
	s := &Service{
		store:    store,
		capturer: capturer,
		runner:   runner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new control with its audit record.
func (s *Service) Create(ctx context.Context, control *models.Control) (*models.Control, error) {
	if err := control.Validate(); err != nil {
		return nil, err
	}

	control.ID = uuid.New()
	now := requestcontext.Now(ctx).UTC()
	control.CreatedAt = now
	control.UpdatedAt = now

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, control); err != nil {
			return err
		}
		return s.capturer.CaptureEntity(ctx, trailmodels.OperationCreate, nil, control)
	})
	if err != nil {
		return nil, s.mutationError(ctx, err, "failed to create control")
	}
	return control, nil
}

// Update applies the changed fields and captures the field-level diff. The
// before snapshot is read inside the transaction so the diff reflects the
// state the update actually replaced.
func (s *Service) Update(ctx context.Context, control *models.Control) (*models.Control, error) {
	if err := control.Validate(); err != nil {
		return nil, err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.FindByID(ctx, control.ID)
		if err != nil {
			return err
		}
		control.CreatedAt = before.CreatedAt
		control.UpdatedAt = requestcontext.Now(ctx).UTC()
		if err := s.store.Update(ctx, control); err != nil {
			return err
		}
		return s.capturer.CaptureEntity(ctx, trailmodels.OperationUpdate, before, control)
	})
	if err != nil {
		return nil, s.mutationError(ctx, err, "failed to update control")
	}
	return control, nil
}

// Delete removes a control and records its final state.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		return s.capturer.CaptureEntity(ctx, trailmodels.OperationDelete, before, nil)
	})
	if err != nil {
		return s.mutationError(ctx, err, "failed to delete control")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Control, error) {
	control, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "control not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load control")
	}
	return control, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Control, int, error) {
	if limit <= 0 {
		limit = trailmodels.DefaultLogLimit
	}
	if offset < 0 {
		offset = 0
	}
	controls, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	return controls, total, nil
}

// mutationError maps store sentinels to domain codes. Coded errors from the
// capture path pass through untouched: an audit failure already carries its
// own cause and must fail the mutation.
func (s *Service) mutationError(ctx context.Context, err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "control not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "control code already in use")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	s.logger.ErrorContext(ctx, message, "error", err.Error())
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
