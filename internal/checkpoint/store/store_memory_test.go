package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/checkpoint/policy"
	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/sentinel"
	"eventgate/pkg/testutil"
)

var errRejected = errors.New("rejected")

// decideAndMark mirrors the service's validate/mutate pair.
func decideAndMark(cp models.CheckpointID) (func(*models.TokenRecord) error, func(*models.TokenRecord)) {
	validate := func(r *models.TokenRecord) error {
		switch policy.Decide(r, cp) {
		case policy.AlreadyDone:
			return dErrors.New(dErrors.CodeAlreadyDone, "already collected")
		case policy.BlockedPrecondition:
			return dErrors.New(dErrors.CodePreconditionRequired, "entry gate required")
		}
		return nil
	}
	mutate := func(r *models.TokenRecord) { r.Mark(cp, time.Now()) }
	return validate, mutate
}

func TestInMemoryStoreOperations(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	// Find before create
	_, err := store.FindByToken(ctx, "tok-1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Lazy default
	record, err := store.GetOrCreate(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, record.EntryGate)
	assert.Empty(t, record.Checkpoints)

	// Copy integrity
	record.EntryGate = true
	fetched, err := store.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, fetched.EntryGate)

	// Rejected validate writes nothing
	_, err = store.Execute(ctx, "tok-1",
		func(*models.TokenRecord) error { return errRejected },
		func(r *models.TokenRecord) { r.EntryGate = true },
	)
	require.ErrorIs(t, err, errRejected)
	fetched, err = store.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, fetched.EntryGate)

	// Execute creates a missing record
	validate, mutate := decideAndMark(models.EntryGate)
	updated, err := store.Execute(ctx, "tok-2", validate, mutate)
	require.NoError(t, err)
	assert.True(t, updated.EntryGate)
}

func TestInMemoryStoreExecuteHonoursContext(t *testing.T) {
	store := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	validate, mutate := decideAndMark(models.EntryGate)
	_, err := store.Execute(ctx, "tok", validate, mutate)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	const workers = 50

	t.Run("concurrent dispense on one checkpoint succeeds exactly once", func(t *testing.T) {
		store := NewInMemory()
		enter, mark := decideAndMark(models.EntryGate)
		_, err := store.Execute(ctx, "tok", enter, mark)
		require.NoError(t, err)

		validate, mutate := decideAndMark("prasad1")
		result := testutil.RunConcurrent(workers, func(int) error {
			_, err := store.Execute(ctx, "tok", validate, mutate)
			return err
		})
		assert.Equal(t, int32(1), result.Successes)
		assert.Equal(t, int32(workers-1), result.AlreadyDone)
		assert.Zero(t, result.Errors)
	})

	t.Run("dispense racing entry never commits without the gate", func(t *testing.T) {
		for round := range 20 {
			store := NewInMemory()
			token := fmt.Sprintf("tok-%d", round)
			result := testutil.RunConcurrent(workers, func(idx int) error {
				cp := models.CheckpointID("prasad1")
				if idx == 0 {
					cp = models.EntryGate
				}
				validate, mutate := decideAndMark(cp)
				_, err := store.Execute(ctx, token, validate, mutate)
				return err
			})
			assert.Equal(t, int32(workers), result.Total())
			assert.Zero(t, result.Errors)

			final, err := store.FindByToken(ctx, token)
			require.NoError(t, err)
			assert.True(t, final.EntryGate)
			if final.Checkpoints["prasad1"] {
				// exactly one success for the gate plus one for the dispense
				assert.Equal(t, int32(2), result.Successes)
			} else {
				assert.Equal(t, int32(1), result.Successes)
			}
		}
	})

	t.Run("independent checkpoints on one token all succeed", func(t *testing.T) {
		store := NewInMemory()
		enter, mark := decideAndMark(models.EntryGate)
		_, err := store.Execute(ctx, "tok", enter, mark)
		require.NoError(t, err)

		checkpoints := []models.CheckpointID{"prasad1", "prasad2", "prasad3"}
		result := testutil.RunConcurrent(len(checkpoints), func(idx int) error {
			validate, mutate := decideAndMark(checkpoints[idx])
			_, err := store.Execute(ctx, "tok", validate, mutate)
			return err
		})
		assert.Equal(t, int32(len(checkpoints)), result.Successes)

		final, err := store.FindByToken(ctx, "tok")
		require.NoError(t, err)
		for _, cp := range checkpoints {
			assert.True(t, final.Checkpoints[cp], cp)
		}
	})
}
