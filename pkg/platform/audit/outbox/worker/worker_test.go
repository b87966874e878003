package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	audit "eventgate/pkg/platform/audit"
	"eventgate/pkg/platform/audit/outbox"
	"eventgate/pkg/platform/audit/outbox/metrics"
)

type memoryOutbox struct {
	mu       sync.Mutex
	entries  []*outbox.Entry
	fetchErr error
}

func (m *memoryOutbox) Append(_ context.Context, entry *outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryOutbox) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.IsPending() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryOutbox) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id && e.IsPending() {
			e.ProcessedAt = &at
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memoryOutbox) CountPending(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (m *memoryOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var n int64
	for _, e := range m.entries {
		if !e.IsPending() && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

type sentRecord struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	mu     sync.Mutex
	sent   []sentRecord
	failOn map[string]bool
}

func (p *fakeProducer) Produce(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[string(key)] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, sentRecord{topic: topic, key: string(key), value: value})
	return nil
}

func (p *fakeProducer) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, r := range p.sent {
		out = append(out, r.key)
	}
	return out
}

type WorkerSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memoryOutbox
	producer *fakeProducer
	metrics  *metrics.Metrics
	now      time.Time
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &memoryOutbox{}
	s.producer = &fakeProducer{failOn: map[string]bool{}}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *WorkerSuite) newWorker(opts ...Option) *Worker {
	base := []Option{
		WithTopic("ledger"),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	}
	return New(s.store, s.producer, append(base, opts...)...)
}

func (s *WorkerSuite) append(token string) *outbox.Entry {
	entry, err := outbox.NewEntry(audit.Event{
		Timestamp:  s.now,
		Action:     string(audit.ActionCheckpointCollected),
		Token:      token,
		Checkpoint: "prasad1",
		Outcome:    "applied",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, entry))
	return entry
}

func (s *WorkerSuite) TestPollRelaysPendingInOrderAndMarksThem() {
	s.append("T1")
	s.append("T2")
	w := s.newWorker()

	s.Equal(2, w.Poll(s.ctx))
	s.Equal([]string{"T1", "T2"}, s.producer.keys())
	s.Equal("ledger", s.producer.sent[0].topic)
	s.JSONEq(`{"timestamp":"2026-03-01T09:00:00Z","action":"checkpoint_collected","token":"T1","checkpoint":"prasad1","outcome":"applied"}`,
		string(s.producer.sent[0].value))

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.PublishedTotal))

	s.Zero(w.Poll(s.ctx), "relayed entries are not sent twice")
}

func (s *WorkerSuite) TestFailedPublishStaysPendingForRetry() {
	s.append("T1")
	failing := s.append("T2")
	s.producer.failOn["T2"] = true
	w := s.newWorker()

	s.Equal(1, w.Poll(s.ctx))
	s.True(failing.IsPending())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PendingDepth))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PublishFailures))

	delete(s.producer.failOn, "T2")
	s.Equal(1, w.Poll(s.ctx))
	s.False(failing.IsPending())
	s.Equal([]string{"T1", "T2"}, s.producer.keys())
}

func (s *WorkerSuite) TestFetchErrorCountsFailure() {
	s.store.fetchErr = errors.New("connection reset")
	w := s.newWorker()

	s.Zero(w.Poll(s.ctx))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PublishFailures))
}

func (s *WorkerSuite) TestBatchSizeLimitsOnePoll() {
	for _, tok := range []string{"T1", "T2", "T3"} {
		s.append(tok)
	}
	w := s.newWorker(WithBatchSize(2))

	s.Equal(2, w.Poll(s.ctx))
	s.Equal(1, w.Poll(s.ctx))
}

func (s *WorkerSuite) TestPurgeDropsOnlyOldRelayedEntries() {
	s.append("T1")
	w := s.newWorker(WithRetention(time.Hour))
	s.Require().Equal(1, w.Poll(s.ctx))
	pending := s.append("T2")

	s.now = s.now.Add(2 * time.Hour)
	w.Purge(s.ctx)

	s.Len(s.store.entries, 1)
	s.Equal(pending.ID, s.store.entries[0].ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PurgedTotal))
}

func (s *WorkerSuite) TestRunDrainsOnShutdown() {
	w := s.newWorker(WithPollInterval(time.Hour))
	s.append("T1")

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.Require().NoError(w.Run(ctx))
	s.Equal([]string{"T1"}, s.producer.keys())
}
