package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/checkpoint/policy"
	guestmodels "eventgate/internal/guest/models"
)

const (
	DefaultDebounce      = 1000 * time.Millisecond
	DefaultSuccessDelay  = 2 * time.Second
	DefaultDecisionDelay = 4500 * time.Millisecond
	DefaultLookupTimeout = 5 * time.Second

	minSuccessDelay = 1500 * time.Millisecond
	maxSuccessDelay = 4 * time.Second
)

var (
	ErrNothingToConfirm = errors.New("no allowed decision to confirm")
	ErrSessionClosed    = errors.New("scan session closed")
)

type Option func(*Controller)

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithSuccessDelay sets how long SUCCESS stays on screen, clamped to 1.5s..4s.
func WithSuccessDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.successDelay = min(max(d, minSuccessDelay), maxSuccessDelay)
	}
}

func WithDecisionDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.decisionDelay = d
		}
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller runs the scan cycle for one device at one station:
// IDLE_SCANNING -> LOOKUP_PENDING -> DECISION_SHOWN -> (SUCCESS) -> IDLE_SCANNING.
// Every transition away from idle starts a new session; results that arrive
// for an older session are dropped.
type Controller struct {
	station  models.CheckpointID
	gateway  Gateway
	renderer Renderer
	clock    Clock
	logger   *slog.Logger

	debounce      time.Duration
	successDelay  time.Duration
	decisionDelay time.Duration
	lookupTimeout time.Duration

	mu           sync.Mutex
	view         View
	session      uint64
	lastAccepted time.Time
	scanned      bool
	mutating     bool
	mutatingFor  uint64
	reset        Timer

	inflight sync.WaitGroup
}

func NewController(station models.CheckpointID, gateway Gateway, renderer Renderer, opts ...Option) *Controller {
	if gateway == nil {
		panic("scanner gateway is required")
	}
	if renderer == nil {
		panic("scanner renderer is required")
	}
	c := &Controller{
		station:       station,
		gateway:       gateway,
		renderer:      renderer,
		clock:         realClock{},
		logger:        slog.Default(),
		debounce:      DefaultDebounce,
		successDelay:  DefaultSuccessDelay,
		decisionDelay: DefaultDecisionDelay,
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.view = View{State: StateIdle, Checkpoint: station}
	return c
}

func (c *Controller) Station() models.CheckpointID {
	return c.station
}

// View returns the current screen.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Scan offers a decoded payload. It returns false when the scan is dropped:
// empty payload, not idle, or within the debounce window of the last
// accepted scan. Accepted scans are looked up in the background.
func (c *Controller) Scan(ctx context.Context, payload string) bool {
	token := strings.TrimSpace(payload)
	if token == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State != StateIdle {
		return false
	}
	now := c.clock.Now()
	if c.scanned && now.Sub(c.lastAccepted) < c.debounce {
		c.logger.DebugContext(ctx, "scan debounced", "token", token)
		return false
	}
	c.scanned = true
	c.lastAccepted = now

	c.session++
	session := c.session
	c.setViewLocked(View{State: StateLookupPending, Token: token})

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.lookup(ctx, session, token)
	}()
	return true
}

// lookup fetches profile and status concurrently. Both reads always run to
// completion so one failure does not mask the other.
func (c *Controller) lookup(ctx context.Context, session uint64, token string) {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	var (
		g                     errgroup.Group
		profile               *guestmodels.Profile
		record                *models.TokenRecord
		profileErr, statusErr error
	)
	g.Go(func() error {
		profile, profileErr = c.gateway.FetchProfile(ctx, token)
		return nil
	})
	g.Go(func() error {
		record, statusErr = c.gateway.FetchStatus(ctx, token)
		return nil
	})
	_ = g.Wait()

	next := View{State: StateDecisionShown, Token: token, Profile: profile, Record: record}
	switch {
	case profileErr != nil || profile == nil:
		next.Decision, next.Message = KindNotFound, MessageNotFound
		if profileErr != nil {
			c.logger.InfoContext(ctx, "profile lookup failed", "token", token, "error", profileErr)
		}
	case statusErr != nil:
		next.Decision, next.Message = KindError, MessageStatusUnavailable
		c.logger.WarnContext(ctx, "status lookup failed", "token", token, "error", statusErr)
	default:
		next.Decision, next.Message = decisionView(policy.Decide(record, c.station))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if session != c.session || c.view.State != StateLookupPending {
		c.logger.DebugContext(ctx, "dropping stale lookup", "token", token, "session", session)
		return
	}
	c.setViewLocked(next)
	if next.Decision != KindAllowed {
		c.scheduleResetLocked(c.decisionDelay)
	}
}

// Confirm dispenses for an ALLOWED decision. On success the controller shows
// SUCCESS and resets after the success delay. A server rejection is rendered
// as ALREADY_DONE or BLOCKED. Any other failure leaves the decision on screen
// so the operator can retry or close.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if !c.view.CanConfirm() || (c.mutating && c.mutatingFor == c.session) {
		c.mu.Unlock()
		return ErrNothingToConfirm
	}
	c.mutating = true
	c.mutatingFor = c.session
	session := c.session
	token := c.view.Token
	c.mu.Unlock()

	record, applied, err := c.mutate(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	// a closed session's request must not clear the flag of a newer one
	if c.mutatingFor == session {
		c.mutating = false
	}
	if session != c.session {
		return ErrSessionClosed
	}

	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			next := c.view
			decision, _ := policy.FromReason(rejected.Reason)
			next.Decision, next.Message = decisionView(decision)
			if next.Decision == KindError {
				next.Message = rejected.Message
			}
			c.setViewLocked(next)
			c.scheduleResetLocked(c.decisionDelay)
			return err
		}
		next := c.view
		next.Message = fmt.Sprintf("update failed: %v", err)
		c.setViewLocked(next)
		return err
	}

	next := c.view
	next.Record = record
	if !applied {
		next.Decision, next.Message = KindAlreadyDone, MessageAlreadyDone
		c.setViewLocked(next)
		c.scheduleResetLocked(c.decisionDelay)
		return nil
	}
	next.State, next.Message = StateSuccess, MessageRecorded
	c.setViewLocked(next)
	c.scheduleResetLocked(c.successDelay)
	return nil
}

func (c *Controller) mutate(ctx context.Context, token string) (*models.TokenRecord, bool, error) {
	if c.station.IsEntryGate() {
		return c.gateway.RecordEntry(ctx, token)
	}
	record, err := c.gateway.RecordCheckpoint(ctx, token, c.station)
	return record, err == nil, err
}

// Close returns to IDLE_SCANNING from any state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toIdleLocked()
}

// Notify shows a transient message (camera or reader trouble) without
// leaving the current state.
func (c *Controller) Notify(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.view
	next.Message = message
	c.setViewLocked(next)
}

// Wait blocks until background lookups have finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) scheduleResetLocked(d time.Duration) {
	c.stopResetLocked()
	session := c.session
	c.reset = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if session == c.session && c.view.State != StateIdle {
			c.toIdleLocked()
		}
	})
}

func (c *Controller) stopResetLocked() {
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
}

func (c *Controller) toIdleLocked() {
	c.stopResetLocked()
	c.session++
	c.setViewLocked(View{State: StateIdle})
}

func (c *Controller) setViewLocked(v View) {
	v.Checkpoint = c.station
	v.SessionID = c.session
	c.view = v
	c.renderer.Render(v)
}

func decisionView(d policy.Decision) (Kind, string) {
	switch d {
	case policy.Allow:
		return KindAllowed, ""
	case policy.AlreadyDone:
		return KindAlreadyDone, MessageAlreadyDone
	case policy.BlockedPrecondition:
		return KindBlocked, MessageBlocked
	case policy.NotFound:
		return KindNotFound, MessageNotFound
	default:
		return KindError, MessageStatusUnavailable
	}
}
