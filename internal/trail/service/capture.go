package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/trail/diff"
	"attest/internal/trail/metrics"
	"attest/internal/trail/models"
	"attest/internal/trail/registry"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// CaptureRequest carries everything a collaborator's mutation path knows
// about the change it is documenting. Before is nil for creates, After is
// nil for deletes.
type CaptureRequest struct {
	EntityType      string
	EntityID        string
	ReferenceNumber string
	UserName        string
	Operation       models.Operation
	Before          models.Snapshot
	After           models.Snapshot
}

// Capturer is the change interceptor: it diffs the snapshots and persists
// one header plus its change rows through the caller's transaction.
//
// Collaborators call Capture inside the same transaction as the business
// write it documents and propagate any error as a failure of the whole
// mutation. That is the entire consistency story: a rolled-back mutation
// takes its audit rows with it, and a failed audit write aborts the
// mutation.
type Capturer struct {
	store    Store
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewCapturer constructs the change interceptor.
func NewCapturer(store Store, reg *registry.Registry, opts ...Option) *Capturer {
	cfg := newConfig(opts)
	return &Capturer{
		store:    store,
		registry: reg,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		tracer:   otel.Tracer("attest/trail"),
	}
}

// Capture records the field-level diff of one mutation. An empty diff is a
// silent no-op: no header, no rows, nil error.
func (c *Capturer) Capture(ctx context.Context, req CaptureRequest) error {
	ctx, span := c.tracer.Start(ctx, "trail.capture")
	defer span.End()

	// Histograms time the operation itself; requestcontext.Now is pinned to
	// request arrival and is only right for CreatedAt.
	start := time.Now()
	if c.metrics != nil {
		defer c.metrics.ObserveCapture(start)
	}

	if err := models.ValidateOperation(req.Operation); err != nil {
		return err
	}
	if req.EntityType == "" || req.EntityID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "entity type and id are required")
	}

	changes, skipped := diff.Compute(req.EntityType, req.Before, req.After, c.registry)
	for _, skip := range skipped {
		// Partial-capture policy: drop the attribute, keep the entry.
		c.logger.WarnContext(ctx, "audit attribute skipped",
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
			"attribute", skip.Attribute,
			"error", skip.Err.Error(),
		)
		if c.metrics != nil {
			c.metrics.PartialSkips.Inc()
		}
	}
	if len(changes) == 0 {
		if c.metrics != nil {
			c.metrics.NoopCaptures.Inc()
		}
		return nil
	}

	userName := req.UserName
	if userName == "" {
		userName = requestcontext.UserName(ctx)
	}

	log := &models.AuditLog{
		ID:              uuid.New(),
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		ReferenceNumber: req.ReferenceNumber,
		UserName:        userName,
		ClientIP:        requestcontext.ClientIP(ctx),
		UserAgent:       userAgentSummary(requestcontext.UserAgent(ctx)),
		Operation:       req.Operation,
		AttributeCount:  len(changes),
		CreatedAt:       requestcontext.Now(ctx).UTC(),
	}
	for i := range changes {
		changes[i].ID = uuid.New()
		changes[i].LogID = log.ID
	}

	prev, err := c.store.LastChecksum(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load checksum chain")
	}
	log.Checksum = chainChecksum(prev, log, changes)

	if err := c.store.Append(ctx, log, changes); err != nil {
		// Persistence failures are never recovered here: the caller's
		// transaction must abort so the mutation fails with its audit.
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist audit record")
	}

	if c.metrics != nil {
		c.metrics.CapturesTotal.WithLabelValues(string(req.Operation)).Inc()
	}
	return nil
}

// CaptureEntity is a convenience for collaborators whose entities implement
// the Snapshotter capability. Either side may be nil for create/delete.
func (c *Capturer) CaptureEntity(ctx context.Context, op models.Operation, before, after models.Snapshotter) error {
	ref := before
	if ref == nil {
		ref = after
	}
	if ref == nil {
		return dErrors.New(dErrors.CodeBadRequest, "capture needs at least one snapshot")
	}

	req := CaptureRequest{
		EntityType:      ref.EntityType(),
		EntityID:        ref.EntityID(),
		ReferenceNumber: ref.ReferenceNumber(),
		Operation:       op,
	}
	if before != nil {
		req.Before = before.Snapshot()
	}
	if after != nil {
		req.After = after.Snapshot()
	}
	return c.Capture(ctx, req)
}
