// Package policy decides whether a token may pass a checkpoint. It is pure:
// callers evaluate against a snapshot and the gateway re-evaluates the same
// rules inside its per-token transaction before committing.
package policy

import (
	"eventgate/internal/checkpoint/models"
)

// Decision is the verdict for one (record, checkpoint) pair.
type Decision string

const (
	Allow               Decision = "ALLOW"
	AlreadyDone         Decision = "ALREADY_DONE"
	BlockedPrecondition Decision = "BLOCKED_PRECONDITION"
	NotFound            Decision = "NOT_FOUND"
)

// Reason strings are the wire values for rejected updates.
const (
	ReasonAlreadyCollected  = "already_collected"
	ReasonEntryGateRequired = "entry_gate_required"
)

func Decide(record *models.TokenRecord, checkpoint models.CheckpointID) Decision {
	if record == nil {
		return NotFound
	}
	if checkpoint.IsEntryGate() {
		if record.EntryGate {
			return AlreadyDone
		}
		return Allow
	}
	if !record.EntryGate {
		return BlockedPrecondition
	}
	if record.Checkpoints[checkpoint] {
		return AlreadyDone
	}
	return Allow
}

// Reason maps a rejecting decision to its wire reason; empty for Allow and NotFound.
func (d Decision) Reason() string {
	switch d {
	case AlreadyDone:
		return ReasonAlreadyCollected
	case BlockedPrecondition:
		return ReasonEntryGateRequired
	default:
		return ""
	}
}

// FromReason is the inverse of Reason, used by clients rendering a 409.
func FromReason(reason string) (Decision, bool) {
	switch reason {
	case ReasonAlreadyCollected:
		return AlreadyDone, true
	case ReasonEntryGateRequired:
		return BlockedPrecondition, true
	default:
		return "", false
	}
}
