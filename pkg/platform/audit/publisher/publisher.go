package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "eventgate/pkg/domain-errors"
	audit "eventgate/pkg/platform/audit"
	"eventgate/pkg/platform/audit/metrics"
)

// Sink receives every event after it has been stored, e.g. a Kafka topic.
type Sink interface {
	Send(ctx context.Context, event audit.Event) error
}

// Publisher captures structured audit events. It is append-only; the store
// is the source of truth and sinks are best-effort.
type Publisher struct {
	store   audit.Store
	sinks   []Sink
	events  chan audit.Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	async   bool
	now     func() time.Time
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer queues events and persists them on a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.metrics.DecQueueDepth()
		if err := p.persist(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"token", event.Token,
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.store.Append(ctx, event)
	p.metrics.ObservePersist(time.Since(start).Seconds(), err)
	if err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Send(ctx, event); err != nil {
			p.metrics.IncSinkFailures()
			if p.logger != nil {
				p.logger.WarnContext(ctx, "audit sink failed",
					"error", err,
					"action", event.Action,
				)
			}
		}
	}
	return nil
}

// Close drains pending events. Emit must not be called afterwards.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if !p.async {
		return p.persist(ctx, event)
	}
	select {
	case p.events <- event:
		p.metrics.IncEnqueued()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"action", event.Action,
				"token", event.Token,
			)
		}
		return dErrors.New(dErrors.CodeUnavailable, "audit buffer full")
	}
}

func (p *Publisher) ListByToken(ctx context.Context, token string) ([]audit.Event, error) {
	return p.store.ListByToken(ctx, token)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
