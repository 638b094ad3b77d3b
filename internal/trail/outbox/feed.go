package outbox

import (
	"context"
	"fmt"

	platformredis "attest/internal/platform/redis"
	"attest/internal/trail/models"
	"attest/pkg/platform/sentinel"
)

const (
	feedKey    = "attest:activity-feed"
	feedMaxLen = 200
)

// RedisFeed caches the most recent published audit events. The relay pushes
// into it after commit, so the feed never exposes uncommitted captures. It is
// a cache only; the store remains the source of truth.
type RedisFeed struct {
	client *platformredis.Client
}

func NewRedisFeed(client *platformredis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

// Push prepends an event and trims the feed to its bounded length.
func (f *RedisFeed) Push(ctx context.Context, event Event) error {
	payload, err := EncodeEvent(event.Log, event.Changes)
	if err != nil {
		return err
	}
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, feedKey, payload)
	pipe.LTrim(ctx, feedKey, 0, feedMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push activity feed: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Recent returns up to limit of the newest published headers, newest first.
func (f *RedisFeed) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = models.DefaultLogLimit
	}
	raw, err := f.client.LRange(ctx, feedKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity feed: %w: %w", sentinel.ErrUnavailable, err)
	}

	logs := make([]models.AuditLog, 0, len(raw))
	for _, item := range raw {
		event, err := DecodeEvent([]byte(item))
		if err != nil {
			// A malformed cache entry is skipped rather than failing the read.
			continue
		}
		logs = append(logs, event.Log)
	}
	return logs, nil
}
