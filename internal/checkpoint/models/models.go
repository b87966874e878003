package models

import (
	"maps"
	"slices"
	"time"
)

// CheckpointID names a station a token passes through.
type CheckpointID string

// EntryGate is the checkpoint every distribution station depends on.
const EntryGate CheckpointID = "entryGate"

func (c CheckpointID) String() string { return string(c) }

func (c CheckpointID) IsEntryGate() bool { return c == EntryGate }

// TokenRecord is the per-token gate and distribution state.
// EntryGate and every checkpoint flag only ever move from false to true;
// a checkpoint never becomes true while EntryGate is false.
// Missing keys in Checkpoints read as false.
type TokenRecord struct {
	Token       string
	EntryGate   bool
	Checkpoints map[CheckpointID]bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTokenRecord returns the all-false default record.
func NewTokenRecord(token string, now time.Time) *TokenRecord {
	return &TokenRecord{
		Token:       token,
		Checkpoints: make(map[CheckpointID]bool),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Done reports whether the checkpoint has been passed.
func (r *TokenRecord) Done(cp CheckpointID) bool {
	if cp.IsEntryGate() {
		return r.EntryGate
	}
	return r.Checkpoints[cp]
}

// Mark sets the flag for cp. Callers are expected to have run the policy first.
func (r *TokenRecord) Mark(cp CheckpointID, at time.Time) {
	if cp.IsEntryGate() {
		r.EntryGate = true
	} else {
		if r.Checkpoints == nil {
			r.Checkpoints = make(map[CheckpointID]bool)
		}
		r.Checkpoints[cp] = true
	}
	r.UpdatedAt = at
}

func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Checkpoints = maps.Clone(r.Checkpoints)
	if c.Checkpoints == nil {
		c.Checkpoints = make(map[CheckpointID]bool)
	}
	return &c
}

// Catalog is the configured set of distribution checkpoints, in display order.
type Catalog struct {
	ids []CheckpointID
	set map[CheckpointID]struct{}
}

func NewCatalog(ids ...string) *Catalog {
	c := &Catalog{set: make(map[CheckpointID]struct{}, len(ids))}
	for _, id := range ids {
		cp := CheckpointID(id)
		if cp == "" || cp.IsEntryGate() {
			continue
		}
		if _, dup := c.set[cp]; dup {
			continue
		}
		c.set[cp] = struct{}{}
		c.ids = append(c.ids, cp)
	}
	return c
}

// IDs returns the distribution checkpoints, excluding the entry gate.
func (c *Catalog) IDs() []CheckpointID {
	return slices.Clone(c.ids)
}

// Has reports whether cp is the entry gate or a configured checkpoint.
func (c *Catalog) Has(cp CheckpointID) bool {
	if cp.IsEntryGate() {
		return true
	}
	_, ok := c.set[cp]
	return ok
}

// Flags renders a record as {"entryGate": b, "<checkpoint>": b, ...} with
// every configured checkpoint present.
func (c *Catalog) Flags(r *TokenRecord) map[string]bool {
	out := make(map[string]bool, len(c.ids)+1)
	out[string(EntryGate)] = r.EntryGate
	for _, cp := range c.ids {
		out[string(cp)] = r.Checkpoints[cp]
	}
	return out
}
