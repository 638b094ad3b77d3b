package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"attest/internal/trail/metrics"
)

const relayBatchSize = 50

// Publisher delivers an encoded audit event to the event stream.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// FeedPusher mirrors a published event into the recent-activity cache.
type FeedPusher interface {
	Push(ctx context.Context, event Event) error
}

// Relay drains the outbox table and publishes committed audit events. Rows
// are claimed with FOR UPDATE SKIP LOCKED so multiple replicas can run the
// relay concurrently without double-claiming a batch.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	feed      FeedPusher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
}

// RelayOption configures the relay.
type RelayOption func(*Relay)

func WithFeed(feed FeedPusher) RelayOption {
	return func(r *Relay) { r.feed = feed }
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(db *sql.DB, publisher Publisher, interval time.Duration, opts ...RelayOption) *Relay {
	r := &Relay{
		db:        db,
		publisher: publisher,
		logger:    slog.Default(),
		interval:  interval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until the context is cancelled. A failed batch is
// logged and retried on the next tick; rows stay unpublished until delivery
// succeeds, so downstream consumers see at-least-once delivery.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err.Error())
				if r.metrics != nil {
					r.metrics.OutboxRetries.Inc()
				}
			}
		}
	}
}

type outboxRow struct {
	id      uuid.UUID
	logID   uuid.UUID
	payload []byte
}

// drainOnce claims and publishes one batch. Publishing happens inside the
// claiming transaction: if delivery fails the claim rolls back and the rows
// become visible to the next tick.
func (r *Relay) drainOnce(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox batch: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, log_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, relayBatchSize)
	if err != nil {
		return fmt.Errorf("claim outbox batch: %w", err)
	}

	var batch []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.logID, &row.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(batch) == 0 {
		return nil
	}

	for _, row := range batch {
		if err := r.publisher.Publish(ctx, row.logID.String(), row.payload); err != nil {
			return fmt.Errorf("publish audit event %s: %w", row.logID, err)
		}
		if r.feed != nil {
			event, err := DecodeEvent(row.payload)
			if err != nil {
				r.logger.WarnContext(ctx, "skipping feed push for malformed payload",
					"outbox_id", row.id.String(), "error", err.Error())
			} else if err := r.feed.Push(ctx, event); err != nil {
				// The feed is a cache; a push failure must not hold back
				// delivery to the event stream.
				r.logger.WarnContext(ctx, "activity feed push failed",
					"log_id", row.logID.String(), "error", err.Error())
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = NOW() WHERE id = $1`, row.id,
		); err != nil {
			return fmt.Errorf("mark outbox row published: %w", err)
		}
		if r.metrics != nil {
			r.metrics.OutboxPublished.Inc()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox batch: %w", err)
	}
	r.logger.DebugContext(ctx, "outbox batch published", "count", len(batch))
	return nil
}
