package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("gateway", WithFailureThreshold(2), WithCooldown(time.Second), WithClock(clock.Now))

	assert.True(t, b.Allow())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("gateway", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now))
	b.RecordFailure()

	clock.Advance(time.Second)
	assert.True(t, b.Allow(), "first call after cooldown probes")
	assert.False(t, b.Allow(), "only one probe in flight")

	t.Run("failed probe re-opens", func(t *testing.T) {
		assert.True(t, b.RecordFailure())
		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.Allow())
	})

	t.Run("successful probe closes", func(t *testing.T) {
		clock.Advance(2 * time.Second)
		assert.True(t, b.Allow())
		assert.True(t, b.RecordSuccess())
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	})
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("gateway", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.RecordFailure())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "gateway", b.Name())
	assert.Equal(t, "closed", b.State().String())
}
