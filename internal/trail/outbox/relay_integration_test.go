//go:build integration

package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	platformredis "attest/internal/platform/redis"
	"attest/internal/trail/models"
	"attest/internal/trail/outbox"
	trailpostgres "attest/internal/trail/store/postgres"
	"attest/pkg/testutil/containers"
)

const testTopic = "attest.audit-trail.test"

type RelaySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	redpanda  *containers.RedpandaContainer
	redis     *containers.RedisContainer
	store     *trailpostgres.Store
	publisher *outbox.KafkaPublisher
	feed      *outbox.RedisFeed
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.redis = mgr.GetRedis(s.T())
	s.store = trailpostgres.New(s.postgres.DB)

	publisher, err := outbox.NewKafkaPublisher(context.Background(), s.redpanda.Brokers, testTopic)
	s.Require().NoError(err)
	s.publisher = publisher

	client, err := platformredis.New(s.redis.URL)
	s.Require().NoError(err)
	s.feed = outbox.NewRedisFeed(client)
}

func (s *RelaySuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "audit_outbox", "audit_log_changes", "audit_logs"))
	s.Require().NoError(s.redis.FlushAll(ctx))
}

func (s *RelaySuite) appendLog(ctx context.Context, ref string) *models.AuditLog {
	log := &models.AuditLog{
		ID:              uuid.New(),
		EntityType:      "Control",
		EntityID:        "ctrl-" + ref,
		ReferenceNumber: ref,
		UserName:        "alice.ciso",
		Operation:       models.OperationUpdate,
		AttributeCount:  1,
		Checksum:        "sum-" + uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
	}
	changes := []models.AuditLogChange{{
		ID: uuid.New(), LogID: log.ID, Position: 0,
		AttributeName: "status", ModuleName: "Assessment",
		OldValue: "Compliant", NewValue: "Non-Compliant",
	}}
	s.Require().NoError(s.store.Append(ctx, log, changes))
	return log
}

func (s *RelaySuite) TestRelayPublishesCommittedEvents() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := s.appendLog(ctx, "GOV-01")

	relay := outbox.NewRelay(s.postgres.DB, s.publisher, 100*time.Millisecond,
		outbox.WithFeed(s.feed))
	go func() { _ = relay.Run(ctx) }()

	// Wait for the outbox row to be claimed and marked published.
	s.Require().Eventually(func() bool {
		var count int
		err := s.postgres.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NOT NULL`).Scan(&count)
		return err == nil && count == 1
	}, 10*time.Second, 100*time.Millisecond)

	// The event must be consumable from the topic, keyed by log ID.
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Second)
	defer fetchCancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)
	var found bool
	for _, record := range records {
		if string(record.Key) != log.ID.String() {
			continue
		}
		found = true
		event, err := outbox.DecodeEvent(record.Value)
		s.Require().NoError(err)
		s.Equal(log.Checksum, event.Log.Checksum)
		s.Len(event.Changes, 1)
	}
	s.True(found, "expected the published event on the topic")

	// The activity feed mirrors the published event.
	logs, err := s.feed.Recent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(log.ID, logs[0].ID)
}

func (s *RelaySuite) TestFeedIsBoundedAndNewestFirst() {
	ctx := context.Background()

	var last uuid.UUID
	for i := 0; i < 5; i++ {
		log := s.appendLog(ctx, uuid.NewString()[:8])
		event := outbox.Event{Log: *log}
		s.Require().NoError(s.feed.Push(ctx, event))
		last = log.ID
	}

	logs, err := s.feed.Recent(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(logs, 3)
	s.Equal(last, logs[0].ID, "newest entry leads the feed")
}
