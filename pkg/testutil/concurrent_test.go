package testutil

import (
	"errors"
	"fmt"
	"testing"

	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/sentinel"

	"github.com/stretchr/testify/assert"
)

func TestRunConcurrent_Classifies(t *testing.T) {
	outcomes := []error{
		nil,
		fmt.Errorf("store: %w", dErrors.New(dErrors.CodeAlreadyDone, "already collected")),
		dErrors.New(dErrors.CodeAlreadyDone, "already collected"),
		dErrors.New(dErrors.CodePreconditionRequired, "entry gate required"),
		sentinel.ErrConflict,
		sentinel.ErrNotFound,
		errors.New("boom"),
	}

	res := RunConcurrent(len(outcomes), func(idx int) error { return outcomes[idx] })

	assert.Equal(t, int32(1), res.Successes)
	assert.Equal(t, int32(2), res.AlreadyDone)
	assert.Equal(t, int32(1), res.Blocked)
	assert.Equal(t, int32(1), res.Conflicts)
	assert.Equal(t, int32(1), res.NotFounds)
	assert.Equal(t, int32(1), res.Errors)
	assert.Equal(t, int32(len(outcomes)), res.Total())
}
