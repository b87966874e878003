package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/sentinel"
)

// ConcurrentResult tallies outcomes of RunConcurrent by error category.
type ConcurrentResult struct {
	Successes   int32
	AlreadyDone int32
	Blocked     int32
	Conflicts   int32
	NotFounds   int32
	Errors      int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.AlreadyDone + r.Blocked + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent runs fn on n goroutines released together and classifies
// each return value. Both store sentinels and service domain errors are recognised.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                                    sync.WaitGroup
		successes, done, blocked, conflicts, notFounds, other atomic.Int32
	)
	start := make(chan struct{})

	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyDone):
				done.Add(1)
			case dErrors.HasCode(err, dErrors.CodePreconditionRequired):
				blocked.Add(1)
			case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		AlreadyDone: done.Load(),
		Blocked:     blocked.Load(),
		Conflicts:   conflicts.Load(),
		NotFounds:   notFounds.Load(),
		Errors:      other.Load(),
	}
}

// RunConcurrentCtx is RunConcurrent with a shared context.
func RunConcurrentCtx(ctx context.Context, n int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(n, func(idx int) error {
		return fn(ctx, idx)
	})
}
