package policy

import (
	"testing"
	"time"

	"eventgate/internal/checkpoint/models"

	"github.com/stretchr/testify/assert"
)

func record(entry bool, collected ...models.CheckpointID) *models.TokenRecord {
	r := models.NewTokenRecord("T200", time.Time{})
	r.EntryGate = entry
	for _, cp := range collected {
		r.Checkpoints[cp] = true
	}
	return r
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		record     *models.TokenRecord
		checkpoint models.CheckpointID
		want       Decision
	}{
		{"no record", nil, "prasad1", NotFound},
		{"no record at entry", nil, models.EntryGate, NotFound},
		{"entry first time", record(false), models.EntryGate, Allow},
		{"entry repeated", record(true), models.EntryGate, AlreadyDone},
		{"prasad before entry", record(false), "prasad1", BlockedPrecondition},
		{"prasad after entry", record(true), "prasad1", Allow},
		{"prasad collected", record(true, "prasad1"), "prasad1", AlreadyDone},
		{"other prasad independent", record(true, "prasad1"), "prasad2", Allow},
		{"precondition checked before collected", record(false, "prasad1"), "prasad1", BlockedPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.record, tt.checkpoint))
		})
	}
}

func TestDecide_DoesNotMutate(t *testing.T) {
	r := record(true)
	_ = Decide(r, "prasad1")
	assert.False(t, r.Checkpoints["prasad1"])
	assert.Len(t, r.Checkpoints, 0)
}

func TestReasonRoundTrip(t *testing.T) {
	for _, d := range []Decision{AlreadyDone, BlockedPrecondition} {
		got, ok := FromReason(d.Reason())
		assert.True(t, ok)
		assert.Equal(t, d, got)
	}
	assert.Empty(t, Allow.Reason())
	_, ok := FromReason("conflict")
	assert.False(t, ok)
}
