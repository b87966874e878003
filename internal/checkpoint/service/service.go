package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventgate/internal/checkpoint/metrics"
	"eventgate/internal/checkpoint/models"
	"eventgate/internal/checkpoint/policy"
	"eventgate/internal/platform/middleware"
	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/audit"
	"eventgate/pkg/platform/audit/outbox"
	"eventgate/pkg/platform/sentinel"
)

// Store defines the persistence interface for token records.
// See package store for the error contract.
type Store interface {
	FindByToken(ctx context.Context, token string) (*models.TokenRecord, error)
	GetOrCreate(ctx context.Context, token string) (*models.TokenRecord, error)
	Execute(ctx context.Context, token string, validate func(*models.TokenRecord) error, mutate func(*models.TokenRecord)) (*models.TokenRecord, error)
}

// GuestDirectory reports whether a token belongs to a registered guest.
type GuestDirectory interface {
	Exists(ctx context.Context, token string) (bool, error)
}

type Option func(*Service)

// Service is the entry/distribution gateway. Every mutation re-runs the
// checkpoint policy inside the store's per-token transaction, so a stale
// client decision can never commit.
type Service struct {
	store   Store
	guests  GuestDirectory
	catalog *models.Catalog
	auditor audit.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, guests GuestDirectory, catalog *models.Catalog, opts ...Option) *Service {
	if store == nil {
		panic("checkpoint store is required")
	}
	if guests == nil {
		panic("guest directory is required")
	}
	if catalog == nil {
		panic("checkpoint catalog is required")
	}
	svc := &Service{
		store:   store,
		guests:  guests,
		catalog: catalog,
		logger:  slog.Default(),
		tracer:  otel.Tracer("eventgate/checkpoint"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) Catalog() *models.Catalog {
	return s.catalog
}

// Status returns the token's record, creating the all-false default on
// first query for a registered guest.
func (s *Service) Status(ctx context.Context, token string) (*models.TokenRecord, error) {
	if err := s.requireGuest(ctx, token); err != nil {
		s.metrics.IncStatusLookup(false)
		return nil, err
	}
	record, err := s.store.GetOrCreate(ctx, token)
	if err != nil {
		return nil, s.storeError(ctx, "status", err)
	}
	s.metrics.IncStatusLookup(true)
	return record, nil
}

var errEntryAlreadyRecorded = errors.New("entry already recorded")

// UpdateEntryGate records entry. It is idempotent: a repeat call returns the
// current record with applied=false and no error.
func (s *Service) UpdateEntryGate(ctx context.Context, token string) (*models.TokenRecord, bool, error) {
	cp := models.EntryGate
	ctx, span := s.tracer.Start(ctx, "checkpoint.update_entry",
		trace.WithAttributes(attribute.String("checkpoint", cp.String())))
	defer span.End()

	if err := s.requireGuest(ctx, token); err != nil {
		s.metrics.IncScan(cp.String(), metrics.OutcomeNotFound)
		return nil, false, err
	}

	var current *models.TokenRecord
	start := time.Now()
	record, err := s.store.Execute(ctx, token,
		func(r *models.TokenRecord) error {
			if policy.Decide(r, cp) == policy.AlreadyDone {
				current = r.Clone()
				return errEntryAlreadyRecorded
			}
			return nil
		},
		func(r *models.TokenRecord) {
			r.Mark(cp, s.now())
		},
	)
	s.metrics.ObserveMutation(cp.String(), time.Since(start).Seconds())

	switch {
	case errors.Is(err, errEntryAlreadyRecorded):
		span.SetAttributes(attribute.Bool("applied", false))
		s.metrics.IncScan(cp.String(), metrics.OutcomeAlreadyDone)
		s.emit(ctx, audit.ActionEntryRecorded, token, cp, metrics.OutcomeAlreadyDone, "")
		return current, false, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry update failed")
		s.metrics.IncScan(cp.String(), metrics.OutcomeStoreError)
		return nil, false, s.storeError(ctx, "update_entry", err)
	}

	span.SetAttributes(attribute.Bool("applied", true))
	s.metrics.IncScan(cp.String(), metrics.OutcomeApplied)
	s.emit(ctx, audit.ActionEntryRecorded, token, cp, metrics.OutcomeApplied, "")
	s.logger.InfoContext(ctx, "entry recorded",
		"token", token,
		"request_id", middleware.GetRequestID(ctx),
	)
	return record, true, nil
}

// UpdateCheckpoint records a dispense at cp. It fails with CodeAlreadyDone
// when the checkpoint was already collected and CodePreconditionRequired when
// entry has not been recorded.
func (s *Service) UpdateCheckpoint(ctx context.Context, token string, cp models.CheckpointID) (*models.TokenRecord, error) {
	if cp.IsEntryGate() || !s.catalog.Has(cp) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown checkpoint %q", cp))
	}

	ctx, span := s.tracer.Start(ctx, "checkpoint.update",
		trace.WithAttributes(attribute.String("checkpoint", cp.String())))
	defer span.End()

	if err := s.requireGuest(ctx, token); err != nil {
		s.metrics.IncScan(cp.String(), metrics.OutcomeNotFound)
		return nil, err
	}

	start := time.Now()
	record, err := s.store.Execute(ctx, token,
		func(r *models.TokenRecord) error {
			switch policy.Decide(r, cp) {
			case policy.AlreadyDone:
				return dErrors.New(dErrors.CodeAlreadyDone, fmt.Sprintf("%s already collected", cp))
			case policy.BlockedPrecondition:
				return dErrors.New(dErrors.CodePreconditionRequired, "entry gate required before prasad")
			}
			return nil
		},
		func(r *models.TokenRecord) {
			r.Mark(cp, s.now())
		},
	)
	s.metrics.ObserveMutation(cp.String(), time.Since(start).Seconds())

	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeAlreadyDone):
			span.SetAttributes(attribute.String("decision", string(policy.AlreadyDone)))
			s.metrics.IncScan(cp.String(), metrics.OutcomeAlreadyDone)
			s.emit(ctx, audit.ActionCheckpointRejected, token, cp, metrics.OutcomeAlreadyDone, policy.ReasonAlreadyCollected)
			return nil, err
		case dErrors.HasCode(err, dErrors.CodePreconditionRequired):
			span.SetAttributes(attribute.String("decision", string(policy.BlockedPrecondition)))
			s.metrics.IncScan(cp.String(), metrics.OutcomeBlocked)
			s.emit(ctx, audit.ActionCheckpointRejected, token, cp, metrics.OutcomeBlocked, policy.ReasonEntryGateRequired)
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint update failed")
		s.metrics.IncScan(cp.String(), metrics.OutcomeStoreError)
		return nil, s.storeError(ctx, "update_checkpoint", err)
	}

	span.SetAttributes(attribute.String("decision", string(policy.Allow)))
	s.metrics.IncScan(cp.String(), metrics.OutcomeApplied)
	s.emit(ctx, audit.ActionCheckpointCollected, token, cp, metrics.OutcomeApplied, "")
	return record, nil
}

func (s *Service) requireGuest(ctx context.Context, token string) error {
	if token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	ok, err := s.guests.Exists(ctx, token)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return nil
}

// storeError translates store sentinels into domain errors.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "token record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry the scan")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store timed out")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
	}
	s.logger.ErrorContext(ctx, "checkpoint store failure",
		"operation", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update token record")
}

// LedgerEntry describes a committed record change as an outbox entry. It
// returns nil when before and after carry the same flags.
func LedgerEntry(ctx context.Context, before, after *models.TokenRecord) (*outbox.Entry, error) {
	var (
		action audit.Action
		cp     models.CheckpointID
	)
	switch {
	case !before.EntryGate && after.EntryGate:
		action, cp = audit.ActionEntryRecorded, models.EntryGate
	default:
		for id, done := range after.Checkpoints {
			if done && !before.Checkpoints[id] {
				action, cp = audit.ActionCheckpointCollected, id
				break
			}
		}
	}
	if action == "" {
		return nil, nil
	}
	event := audit.Event{
		Timestamp:  after.UpdatedAt,
		Action:     string(action),
		Token:      after.Token,
		Checkpoint: cp.String(),
		Outcome:    metrics.OutcomeApplied,
		Device:     middleware.GetDevice(ctx),
		RequestID:  middleware.GetRequestID(ctx),
	}
	if staff, ok := middleware.GetStaff(ctx); ok {
		event.Actor = staff.Email
	}
	return outbox.NewEntry(event)
}

// emit records an audit event. Failures are logged and never fail the scan.
func (s *Service) emit(ctx context.Context, action audit.Action, token string, cp models.CheckpointID, outcome, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:     string(action),
		Token:      token,
		Checkpoint: cp.String(),
		Outcome:    outcome,
		Reason:     reason,
		Device:     middleware.GetDevice(ctx),
		RequestID:  middleware.GetRequestID(ctx),
	}
	if staff, ok := middleware.GetStaff(ctx); ok {
		event.Actor = staff.Email
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"token", token,
			"error", err,
		)
	}
}
