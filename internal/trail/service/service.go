// Package service orchestrates audit capture and the read-side queries.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"attest/internal/trail/metrics"
	"attest/internal/trail/models"
)

// Store is the append-only persistence contract for the audit trail.
// Implementations participate in a caller-owned transaction when one is
// carried in the context (pkg/platform/tx).
type Store interface {
	// Append writes one header and its change rows as a single atomic unit.
	Append(ctx context.Context, log *models.AuditLog, changes []models.AuditLogChange) error
	// LastChecksum returns the newest checksum for an entity, or "" when the
	// entity has no audit history yet.
	LastChecksum(ctx context.Context, entityType, entityID string) (string, error)
	// ListLogs returns one page of headers (createdAt descending) and the
	// total matching count. The page is bounded at the storage layer.
	ListLogs(ctx context.Context, filter models.ListFilter) ([]models.AuditLog, int, error)
	// FindLog fetches one header by ID; sentinel.ErrNotFound when absent.
	FindLog(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
	// ListChanges returns one page of a header's change rows plus the total
	// count, ordered per the filter (canonical insertion order by default).
	ListChanges(ctx context.Context, logID uuid.UUID, filter models.ChangeFilter) ([]models.AuditLogChange, int, error)
	// ListByEntity pages one entity's headers in commit order (ascending),
	// for chain verification.
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

// ActivityFeed serves the most recent committed audit events from a cache
// populated post-commit by the outbox relay.
type ActivityFeed interface {
	Recent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

type config struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	feed    ActivityFeed
}

// Option configures the capture and query services.
type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithActivityFeed wires the recent-activity cache into the query service.
func WithActivityFeed(feed ActivityFeed) Option {
	return func(c *config) { c.feed = feed }
}

func newConfig(opts []Option) config {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
