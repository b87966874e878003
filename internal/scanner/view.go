package scanner

import (
	"eventgate/internal/checkpoint/models"
	guestmodels "eventgate/internal/guest/models"
)

// State is the controller's position in the scan cycle.
type State int

const (
	StateIdle State = iota
	StateLookupPending
	StateDecisionShown
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE_SCANNING"
	case StateLookupPending:
		return "LOOKUP_PENDING"
	case StateDecisionShown:
		return "DECISION_SHOWN"
	case StateSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// Kind is the decision rendered while in StateDecisionShown.
type Kind string

const (
	KindNone        Kind = ""
	KindAllowed     Kind = "ALLOWED"
	KindAlreadyDone Kind = "ALREADY_DONE"
	KindBlocked     Kind = "BLOCKED"
	KindNotFound    Kind = "NOT_FOUND"
	KindError       Kind = "ERROR"
)

const (
	MessageNotFound          = "Guest not found"
	MessageAlreadyDone       = "Already scanned"
	MessageBlocked           = "entry gate required before prasad"
	MessageStatusUnavailable = "status unavailable"
	MessageRecorded          = "Recorded"
)

// View is everything a renderer needs to draw the current screen.
type View struct {
	State      State
	Decision   Kind
	Checkpoint models.CheckpointID
	Token      string
	Profile    *guestmodels.Profile
	Record     *models.TokenRecord
	Message    string
	SessionID  uint64
}

// CanConfirm reports whether the operator may dispense from this view.
func (v View) CanConfirm() bool {
	return v.State == StateDecisionShown && v.Decision == KindAllowed
}

// Renderer draws views. Render is called with the controller locked and
// must not call back into it.
type Renderer interface {
	Render(v View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }
