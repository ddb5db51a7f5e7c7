package model

import "time"

// HoldStatus enumerates the lifecycle of a hold.  The status column is the
// mutual-exclusion gate for release and commit: a transition away from
// ACTIVE happens at most once, so the inventory adjustment tied to the
// transition happens at most once as well.
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusCommitted HoldStatus = "COMMITTED"
	HoldStatusReleased  HoldStatus = "RELEASED"
)

// Hold is a time-bounded claim on tier inventory owned by exactly one
// checkout session.  Ownership never transfers.  Holds are soft-deleted via
// status; the row survives for audit.
//
// Fields:
//  ID        – opaque UUID primary key.
//  SessionID – checkout session that owns this hold.
//  TierID    – tier whose inventory is claimed.
//  Quantity  – number of tickets claimed.
//  Status    – current lifecycle state.
//  ExpiresAt – instant after which the hold no longer counts.
//  CreatedAt – creation timestamp.
type Hold struct {
	ID        string     // holds.id
	SessionID string     // holds.session_id
	TierID    uint64     // holds.tier_id
	Quantity  int        // holds.quantity
	Status    HoldStatus // holds.status
	ExpiresAt time.Time  // holds.expires_at
	CreatedAt time.Time  // holds.created_at
}

// Lapsed reports whether the hold's TTL has passed, regardless of whether
// the sweep has already flipped the status.  Readers must treat a lapsed
// ACTIVE hold as expired (lazy expiry).
func (h Hold) Lapsed(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
