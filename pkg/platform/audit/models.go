package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to record a scan outcome or account action.
// It is transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Token      string    `json:"token,omitempty"`
	Checkpoint string    `json:"checkpoint,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Device     string    `json:"device,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

type Action string

const (
	ActionEntryRecorded       Action = "entry_recorded"
	ActionCheckpointCollected Action = "checkpoint_collected"
	ActionCheckpointRejected  Action = "checkpoint_rejected"
	ActionAccountRegistered   Action = "account_registered"
	ActionPasswordReset       Action = "password_reset"
	ActionAccountApproved     Action = "account_approved"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByToken(ctx context.Context, token string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Emitter is satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
