package model

import "time"

// GuestAccessCode grants checkout eligibility to guests without an
// account, optionally scoped to a single tier.  The plaintext code is
// never stored; CodeHash holds a bcrypt hash and validation compares
// against it.  UsedCount is incremented only when an owning session
// converts, so an abandoned checkout never burns a use.
//
// Fields:
//  ID        – primary key identifier.
//  EventID   – event the code is valid for.
//  CodeHash  – bcrypt hash of the plaintext code.
//  TierID    – optional tier restriction; nil means any tier.
//  MaxUses   – maximum number of converted sessions allowed.
//  UsedCount – converted sessions so far.
//  ExpiresAt – optional expiry; nil means no expiry.
type GuestAccessCode struct {
	ID        uint64     // guest_access_codes.id
	EventID   uint64     // guest_access_codes.event_id
	CodeHash  string     // guest_access_codes.code_hash
	TierID    *uint64    // guest_access_codes.tier_id (nullable)
	MaxUses   int        // guest_access_codes.max_uses
	UsedCount int        // guest_access_codes.used_count
	ExpiresAt *time.Time // guest_access_codes.expires_at (nullable)
	CreatedAt time.Time  // guest_access_codes.created_at
}

// Expired reports whether the code's own expiry has passed.
func (g GuestAccessCode) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Exhausted reports whether every allowed use has been consumed.
func (g GuestAccessCode) Exhausted() bool {
	return g.UsedCount >= g.MaxUses
}

// RemainingUses returns how many redemptions are left.
func (g GuestAccessCode) RemainingUses() int {
	if r := g.MaxUses - g.UsedCount; r > 0 {
		return r
	}
	return 0
}
