package scanner

import (
	"context"
	"fmt"

	"eventgate/internal/checkpoint/models"
	guestmodels "eventgate/internal/guest/models"
)

// Gateway is the network-facing API the controller drives.
// Error Contract:
//   - FetchProfile and FetchStatus return sentinel.ErrNotFound for unknown tokens
//   - RecordCheckpoint returns *RejectedError when the server refuses the dispense
//   - any other error is a transport failure
type Gateway interface {
	FetchProfile(ctx context.Context, token string) (*guestmodels.Profile, error)
	FetchStatus(ctx context.Context, token string) (*models.TokenRecord, error)
	RecordEntry(ctx context.Context, token string) (record *models.TokenRecord, applied bool, err error)
	RecordCheckpoint(ctx context.Context, token string, cp models.CheckpointID) (*models.TokenRecord, error)
}

// RejectedError is a 409 from the gateway carrying a policy reason.
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Message)
}
