package models

import (
	"strings"

	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/validation"
)

// UpdateEntryRequest records a token passing the entry gate.
type UpdateEntryRequest struct {
	Token     string `json:"token" validate:"required,token"`
	EntryGate *bool  `json:"entryGate"`
}

func (r *UpdateEntryRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *UpdateEntryRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	// entry cannot be undone
	if r.EntryGate != nil && !*r.EntryGate {
		return dErrors.New(dErrors.CodeValidation, "entryGate must be true")
	}
	return nil
}

// UpdateCheckpointRequest records a dispense at a distribution station.
type UpdateCheckpointRequest struct {
	Token      string `json:"token" validate:"required,token"`
	PrasadType string `json:"prasadType" validate:"required,notblank,max=64"`
}

func (r *UpdateCheckpointRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.PrasadType = strings.TrimSpace(r.PrasadType)
}

func (r *UpdateCheckpointRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if CheckpointID(r.PrasadType).IsEntryGate() {
		return dErrors.New(dErrors.CodeValidation, "prasadType must be a distribution checkpoint; use /api/prasad/entry")
	}
	return nil
}
