package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	audit "eventgate/pkg/platform/audit"
	"eventgate/pkg/platform/audit/metrics"
	"eventgate/pkg/platform/audit/store/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err error
}

func (s *failingStore) Append(context.Context, audit.Event) error { return s.err }
func (s *failingStore) ListByToken(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}
func (s *failingStore) ListRecent(context.Context, int) ([]audit.Event, error) { return nil, nil }

type recordingProducer struct {
	mu   sync.Mutex
	keys []string
	msgs [][]byte
	err  error
}

func (p *recordingProducer) Produce(_ context.Context, _ string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.msgs = append(p.msgs, value)
	return p.err
}

func TestPublisher_EmitStoresEvent(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())

	err := pub.Emit(context.Background(), audit.Event{
		Action:     string(audit.ActionCheckpointCollected),
		Token:      "T200",
		Checkpoint: "prasad1",
	})
	require.NoError(t, err)

	events, err := pub.ListByToken(context.Background(), "T200")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "prasad1", events[0].Checkpoint)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	at := time.Date(2025, 1, 14, 6, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Token: "T200", Timestamp: at}))

	events, err := pub.ListByToken(context.Background(), "T200")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].Timestamp)
}

func TestPublisher_EmitReturnsStoreError(t *testing.T) {
	storeErr := errors.New("append failed")
	pub := NewPublisher(&failingStore{err: storeErr})

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.ActionEntryRecorded)})
	require.ErrorIs(t, err, storeErr)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))

	for range 5 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Token: "T200"}))
	}
	pub.Close()

	events, err := store.ListByToken(context.Background(), "T200")
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_KafkaSink(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(memory.NewInMemoryStore(), WithSink(NewKafkaSink(producer, "checkpoint-audit")))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Token: "T200", Action: string(audit.ActionEntryRecorded)}))

	require.Len(t, producer.msgs, 1)
	assert.Equal(t, "T200", producer.keys[0])
	var got audit.Event
	require.NoError(t, json.Unmarshal(producer.msgs[0], &got))
	assert.Equal(t, string(audit.ActionEntryRecorded), got.Action)
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	pub := NewPublisher(memory.NewInMemoryStore(), WithSink(NewKafkaSink(producer, "checkpoint-audit")))

	assert.NoError(t, pub.Emit(context.Background(), audit.Event{Token: "T200"}))
}

func TestPublisher_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	producer := &recordingProducer{err: errors.New("broker down")}
	pub := NewPublisher(memory.NewInMemoryStore(),
		WithAsyncBuffer(8),
		WithMetrics(m),
		WithSink(NewKafkaSink(producer, "checkpoint-audit")),
	)

	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Token: "T200"}))
	}
	pub.Close()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsEnqueued))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsProcessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SinkFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth))
	assert.Zero(t, testutil.ToFloat64(m.PersistFailures))
}

func TestPublisher_MetricsCountPersistFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pub := NewPublisher(&failingStore{err: errors.New("append failed")}, WithMetrics(m))

	require.Error(t, pub.Emit(context.Background(), audit.Event{Token: "T200"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
	assert.Zero(t, testutil.ToFloat64(m.EventsProcessed))
}
