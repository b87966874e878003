package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/checkpoint/policy"
	guestmodels "eventgate/internal/guest/models"
	"eventgate/pkg/platform/sentinel"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		if !t.stopped {
			t.fn()
		}
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	profiles map[string]*guestmodels.Profile
	records  map[string]*models.TokenRecord

	statusErr error
	mutateErr error
	block     chan struct{}
	hold      map[string]chan struct{}
	started   chan string
	lookups   atomic.Int32
	mutations atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		profiles: make(map[string]*guestmodels.Profile),
		records:  make(map[string]*models.TokenRecord),
	}
}

func (g *fakeGateway) addGuest(token string, entry bool, done ...models.CheckpointID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[token] = &guestmodels.Profile{Token: token, Name: guestmodels.Name{FirstName: "Guest " + token}}
	r := models.NewTokenRecord(token, time.Now())
	r.EntryGate = entry
	for _, cp := range done {
		r.Checkpoints[cp] = true
	}
	g.records[token] = r
}

func (g *fakeGateway) FetchProfile(ctx context.Context, token string) (*guestmodels.Profile, error) {
	g.lookups.Add(1)
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) FetchStatus(_ context.Context, token string) (*models.TokenRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	r, ok := g.records[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (g *fakeGateway) RecordEntry(_ context.Context, token string) (*models.TokenRecord, bool, error) {
	g.mutations.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutateErr != nil {
		return nil, false, g.mutateErr
	}
	r := g.records[token]
	applied := !r.EntryGate
	r.Mark(models.EntryGate, time.Now())
	return r.Clone(), applied, nil
}

func (g *fakeGateway) RecordCheckpoint(ctx context.Context, token string, cp models.CheckpointID) (*models.TokenRecord, error) {
	g.mutations.Add(1)
	if hold, ok := g.hold[token]; ok {
		g.started <- token
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutateErr != nil {
		return nil, g.mutateErr
	}
	r := g.records[token]
	if d := policy.Decide(r, cp); d != policy.Allow {
		return nil, &RejectedError{Reason: d.Reason(), Message: "rejected by server"}
	}
	r.Mark(cp, time.Now())
	return r.Clone(), nil
}

type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) Render(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *recorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

type ControllerSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *fakeClock
	gateway *fakeGateway
	render  *recorder
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.gateway = newFakeGateway()
	s.render = &recorder{}
}

func (s *ControllerSuite) newController(station models.CheckpointID, opts ...Option) *Controller {
	base := []Option{
		WithClock(s.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewController(station, s.gateway, s.render, append(base, opts...)...)
}

// scan submits payload and waits for the lookup to settle.
func (s *ControllerSuite) scan(c *Controller, payload string) bool {
	ok := c.Scan(s.ctx, payload)
	c.Wait()
	return ok
}

func (s *ControllerSuite) TestUnknownGuestShowsNotFoundAndResets() {
	c := s.newController("prasad1")

	s.Require().True(s.scan(c, "T100"))
	v := c.View()
	s.Equal(StateDecisionShown, v.State)
	s.Equal(KindNotFound, v.Decision)
	s.Equal("Guest not found", v.Message)
	s.False(v.CanConfirm())

	s.clock.Advance(DefaultDecisionDelay)
	s.Equal(StateIdle, c.View().State)
}

func (s *ControllerSuite) TestDispenseBeforeEntryIsBlocked() {
	s.gateway.addGuest("T200", false)
	c := s.newController("prasad1")

	s.Require().True(s.scan(c, "T200"))
	v := c.View()
	s.Equal(KindBlocked, v.Decision)
	s.Equal("entry gate required before prasad", v.Message)

	s.ErrorIs(c.Confirm(s.ctx), ErrNothingToConfirm)
	s.Zero(s.gateway.mutations.Load())
}

func (s *ControllerSuite) TestAllowedConfirmThenRepeatIsAlreadyDone() {
	s.gateway.addGuest("T200", true)
	c := s.newController("prasad1")

	s.Require().True(s.scan(c, "T200"))
	v := c.View()
	s.Equal(KindAllowed, v.Decision)
	s.True(v.CanConfirm())
	s.Equal("Guest T200", v.Profile.Name.FirstName)

	// allowed decisions wait for the operator
	s.clock.Advance(10 * time.Second)
	s.Equal(StateDecisionShown, c.View().State)

	s.Require().NoError(c.Confirm(s.ctx))
	v = c.View()
	s.Equal(StateSuccess, v.State)
	s.True(v.Record.Checkpoints["prasad1"])
	s.Equal(int32(1), s.gateway.mutations.Load())

	s.clock.Advance(DefaultSuccessDelay)
	s.Equal(StateIdle, c.View().State)

	s.Require().True(s.scan(c, "T200"))
	v = c.View()
	s.Equal(KindAlreadyDone, v.Decision)
	s.Equal("Already scanned", v.Message)
	s.ErrorIs(c.Confirm(s.ctx), ErrNothingToConfirm)
	s.Equal(int32(1), s.gateway.mutations.Load())
}

func (s *ControllerSuite) TestDoubleScanWithinDebounceIsDropped() {
	s.gateway.addGuest("T300", true)
	c := s.newController("prasad2")

	s.Require().True(s.scan(c, "T300"))
	c.Close()

	s.clock.Advance(500 * time.Millisecond)
	s.False(s.scan(c, "T300"))
	s.Equal(int32(1), s.gateway.lookups.Load())

	s.clock.Advance(500 * time.Millisecond)
	s.True(s.scan(c, "T300"))
	s.Equal(int32(2), s.gateway.lookups.Load())
}

func (s *ControllerSuite) TestScanWhileLookupInFlightIsDropped() {
	s.gateway.addGuest("T1", true)
	s.gateway.block = make(chan struct{})
	c := s.newController("prasad1", WithDebounce(0))

	s.Require().True(c.Scan(s.ctx, "T1"))
	s.Equal(StateLookupPending, c.View().State)
	s.False(c.Scan(s.ctx, "T2"))

	close(s.gateway.block)
	c.Wait()
	s.Equal(int32(1), s.gateway.lookups.Load())
	s.Equal(KindAllowed, c.View().Decision)
}

func (s *ControllerSuite) TestCloseDropsLateLookup() {
	s.gateway.addGuest("T1", true)
	s.gateway.block = make(chan struct{})
	c := s.newController("prasad1")

	s.Require().True(c.Scan(s.ctx, "T1"))
	c.Close()
	close(s.gateway.block)
	c.Wait()

	s.Equal(StateIdle, c.View().State)
	for _, v := range s.render.all() {
		s.NotEqual(StateDecisionShown, v.State, "stale lookup must not render")
	}
}

func (s *ControllerSuite) TestCloseDuringConfirmDoesNotBlockNextGuest() {
	s.gateway.addGuest("T1", true)
	s.gateway.addGuest("T2", true)
	s.gateway.hold = map[string]chan struct{}{"T1": make(chan struct{})}
	s.gateway.started = make(chan string, 1)
	c := s.newController("prasad1")

	s.Require().True(s.scan(c, "T1"))
	stale := make(chan error, 1)
	go func() { stale <- c.Confirm(s.ctx) }()
	s.Equal("T1", <-s.gateway.started)

	c.Close()
	s.clock.Advance(2 * time.Second)
	s.Require().True(s.scan(c, "T2"))
	s.Require().Equal(KindAllowed, c.View().Decision)

	s.Require().NoError(c.Confirm(s.ctx))
	v := c.View()
	s.Equal(StateSuccess, v.State)
	s.Equal("T2", v.Token)

	close(s.gateway.hold["T1"])
	s.ErrorIs(<-stale, ErrSessionClosed)
	s.Equal(StateSuccess, c.View().State)
	s.Equal("T2", c.View().Token)
}

func (s *ControllerSuite) TestEmptyPayloadIgnored() {
	c := s.newController("prasad1")
	s.False(c.Scan(s.ctx, "   "))
	s.Zero(s.gateway.lookups.Load())
}

func (s *ControllerSuite) TestStatusFailureWithProfileIsError() {
	s.gateway.addGuest("T1", true)
	s.gateway.statusErr = errors.New("connection refused")
	c := s.newController("prasad1")

	s.Require().True(s.scan(c, "T1"))
	v := c.View()
	s.Equal(KindError, v.Decision)
	s.Equal("status unavailable", v.Message)

	s.clock.Advance(DefaultDecisionDelay)
	s.Equal(StateIdle, c.View().State)
}

func (s *ControllerSuite) TestTransportFailureOnConfirmKeepsDecision() {
	s.gateway.addGuest("T1", true)
	c := s.newController("prasad1")
	s.Require().True(s.scan(c, "T1"))

	s.gateway.mutateErr = errors.New("timeout")
	s.Error(c.Confirm(s.ctx))
	v := c.View()
	s.Equal(StateDecisionShown, v.State)
	s.True(v.CanConfirm())
	s.Contains(v.Message, "update failed")

	s.gateway.mutateErr = nil
	s.Require().NoError(c.Confirm(s.ctx))
	s.Equal(StateSuccess, c.View().State)
}

func (s *ControllerSuite) TestServerRejectionIsRerendered() {
	s.gateway.addGuest("T1", true)
	c := s.newController("prasad1")
	s.Require().True(s.scan(c, "T1"))

	// another device dispensed after our lookup
	s.gateway.mu.Lock()
	s.gateway.records["T1"].Checkpoints["prasad1"] = true
	s.gateway.mu.Unlock()

	err := c.Confirm(s.ctx)
	var rejected *RejectedError
	s.Require().ErrorAs(err, &rejected)
	v := c.View()
	s.Equal(KindAlreadyDone, v.Decision)
	s.False(v.CanConfirm())

	s.clock.Advance(DefaultDecisionDelay)
	s.Equal(StateIdle, c.View().State)
}

func (s *ControllerSuite) TestEntryStation() {
	s.gateway.addGuest("T1", false)
	c := s.newController(models.EntryGate)

	s.Require().True(s.scan(c, "T1"))
	s.Equal(KindAllowed, c.View().Decision)
	s.Require().NoError(c.Confirm(s.ctx))
	s.True(c.View().Record.EntryGate)

	s.clock.Advance(DefaultSuccessDelay)
	s.clock.Advance(DefaultDebounce)
	s.Require().True(s.scan(c, "T1"))
	s.Equal(KindAlreadyDone, c.View().Decision)
}

func (s *ControllerSuite) TestSessionIDsAreMonotonic() {
	s.gateway.addGuest("T1", true)
	c := s.newController("prasad1", WithDebounce(0))

	var last uint64
	for range 3 {
		s.Require().True(s.scan(c, "T1"))
		id := c.View().SessionID
		s.Greater(id, last)
		last = id
		c.Close()
	}
}

func (s *ControllerSuite) TestSuccessDelayIsClamped() {
	s.Equal(1500*time.Millisecond, NewController("p", s.gateway, s.render, WithSuccessDelay(time.Millisecond)).successDelay)
	s.Equal(4*time.Second, NewController("p", s.gateway, s.render, WithSuccessDelay(time.Minute)).successDelay)
	s.Equal(3*time.Second, NewController("p", s.gateway, s.render, WithSuccessDelay(3*time.Second)).successDelay)
}

func (s *ControllerSuite) TestNotifyKeepsStateScannable() {
	c := s.newController("prasad1")
	c.Notify("camera unavailable")
	v := c.View()
	s.Equal(StateIdle, v.State)
	s.Equal("camera unavailable", v.Message)
	s.True(s.scan(c, "T404"))
}
