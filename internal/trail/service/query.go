package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/trail/metrics"
	"attest/internal/trail/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

const verifyBatchSize = 100

// Query is the read-only API over the audit log store. All reads are
// limit-bounded at the storage layer; nothing fetches the full corpus to
// filter or sort in memory.
type Query struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	feed    ActivityFeed
	tracer  trace.Tracer
}

// NewQuery constructs the query service.
func NewQuery(store Store, opts ...Option) *Query {
	cfg := newConfig(opts)
	return &Query{
		store:   store,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		feed:    cfg.feed,
		tracer:  otel.Tracer("attest/trail"),
	}
}

// ListLogs returns one page of headers, most recent first. Malformed paging
// input is clamped to defaults, never rejected.
func (q *Query) ListLogs(ctx context.Context, filter models.ListFilter) (models.LogPage, error) {
	ctx, span := q.tracer.Start(ctx, "trail.list_logs")
	defer span.End()
	if q.metrics != nil {
		defer q.metrics.ObserveList(time.Now())
	}

	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, models.DefaultLogLimit)

	logs, total, err := q.store.ListLogs(ctx, filter)
	if err != nil {
		return models.LogPage{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit logs")
	}
	return models.LogPage{
		Logs:    logs,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: filter.Offset+len(logs) < total,
	}, nil
}

// GetLogDetail returns one header plus a page of its changes. The page is in
// canonical insertion order unless the filter carries a valid sort field and
// direction; the UI's tri-state toggle maps onto that by simply omitting the
// sort on its third click.
func (q *Query) GetLogDetail(ctx context.Context, logID uuid.UUID, filter models.ChangeFilter) (models.LogDetail, error) {
	ctx, span := q.tracer.Start(ctx, "trail.get_log_detail")
	defer span.End()
	if q.metrics != nil {
		defer q.metrics.ObserveDetail(time.Now())
	}

	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, models.DefaultChangeLimit)
	if !filter.Sorted() {
		filter.SortField = ""
		filter.Direction = models.SortNone
	}

	log, err := q.store.FindLog(ctx, logID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.LogDetail{}, dErrors.New(dErrors.CodeNotFound, "audit log not found")
		}
		return models.LogDetail{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit log")
	}

	changes, total, err := q.store.ListChanges(ctx, logID, filter)
	if err != nil {
		return models.LogDetail{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit changes")
	}

	return models.LogDetail{
		Log:        *log,
		Changes:    changes,
		Pagination: models.NewPagination(total, filter.Limit, filter.Offset, len(changes)),
	}, nil
}

// RecentActivity serves the newest committed events, preferring the
// post-commit feed cache and falling back to the store when the cache is
// unavailable or empty.
func (q *Query) RecentActivity(ctx context.Context, limit int) ([]models.AuditLog, error) {
	limit, _ = clampPage(limit, 0, models.DefaultLogLimit)

	if q.feed != nil {
		logs, err := q.feed.Recent(ctx, limit)
		if err != nil {
			q.logger.WarnContext(ctx, "activity feed unavailable, falling back to store", "error", err.Error())
		} else if len(logs) > 0 {
			return logs, nil
		}
	}

	logs, _, err := q.store.ListLogs(ctx, models.ListFilter{Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recent activity")
	}
	return logs, nil
}

// VerifyChain recomputes the checksum chain for one entity's history and
// reports the first record that no longer matches. It pages through the
// history so memory stays bounded regardless of history length.
func (q *Query) VerifyChain(ctx context.Context, entityType, entityID string) (models.ChainReport, error) {
	ctx, span := q.tracer.Start(ctx, "trail.verify_chain")
	defer span.End()

	report := models.ChainReport{EntityType: entityType, EntityID: entityID, Intact: true}

	prev := ""
	for offset := 0; ; offset += verifyBatchSize {
		logs, err := q.store.ListByEntity(ctx, entityType, entityID, verifyBatchSize, offset)
		if err != nil {
			return models.ChainReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to walk audit history")
		}
		if len(logs) == 0 {
			return report, nil
		}
		for i := range logs {
			log := logs[i]
			changes, _, err := q.store.ListChanges(ctx, log.ID, models.ChangeFilter{Limit: log.AttributeCount})
			if err != nil {
				return models.ChainReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit changes")
			}
			report.Records++
			if chainChecksum(prev, &log, changes) != log.Checksum {
				report.Intact = false
				id := log.ID
				report.BrokenAt = &id
				return report, nil
			}
			prev = log.Checksum
		}
		if len(logs) < verifyBatchSize {
			return report, nil
		}
	}
}

// clampPage normalizes caller-supplied paging values: non-positive limits
// fall back to the default, negative offsets to zero.
func clampPage(limit, offset, defaultLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
