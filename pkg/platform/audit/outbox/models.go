package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "eventgate/pkg/platform/audit"
)

// Entry is a committed token mutation waiting to be relayed to the ledger
// topic. It is written in the same transaction as the token record.
type Entry struct {
	ID          uuid.UUID
	Token       string
	EventType   string
	Payload     []byte // JSON-encoded audit.Event
	CreatedAt   time.Time
	ProcessedAt *time.Time // nil until relayed
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry encodes event as a pending entry keyed by its token.
func NewEntry(event audit.Event) (*Entry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	createdAt := event.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Entry{
		ID:        uuid.New(),
		Token:     event.Token,
		EventType: event.Action,
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}
