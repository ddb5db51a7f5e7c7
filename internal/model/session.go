package model

import "time"

// SessionStatus enumerates the checkout session state machine.  PENDING is
// the only non-terminal state; EXPIRED, CONVERTED, FAILED and CANCELLED
// are terminal.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusConverted SessionStatus = "CONVERTED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusPending
}

// LineItem is one tier selection inside a checkout session.  TotalCents is
// the grossed-up charge for this line alone; the session total is the sum
// of line totals so that rounding never drifts across lines.
type LineItem struct {
	ID             uint64 // session_items.id
	SessionID      string // session_items.session_id
	TierID         uint64 // session_items.tier_id
	HoldID         string // session_items.hold_id
	Quantity       int    // session_items.quantity
	UnitPriceCents int64  // session_items.unit_price_cents
	SubtotalCents  int64  // session_items.subtotal_cents
	FeeCents       int64  // session_items.fee_cents
	TotalCents     int64  // session_items.total_cents
}

// CheckoutSession ties a buyer's selections, their holds, the computed
// charge and the payment-provider handoff into one state machine.  The
// session id doubles as the opaque token handed to the client; all
// authoritative state lives server-side.
//
// Fields:
//  ID            – opaque UUID primary key, returned to the client.
//  EventID       – event the selections belong to.
//  Buyer         – tagged member/guest reference.
//  Status        – current state machine position.
//  SubtotalCents – sum of line face values.
//  FeeCents      – sum of line fees.
//  TotalCents    – sum of line totals (the amount sent to the provider).
//  Currency      – ISO currency code for the charge.
//  ProviderRef   – external payment session/intent id, set on handoff.
//  AccessCodeID  – guest access code redeemed by this session, if any.
//  ExtendCount   – how many extensions have been granted.
//  ExpiresAt     – shortest remaining hold TTL at creation time.
type CheckoutSession struct {
	ID            string        // sessions.id
	EventID       uint64        // sessions.event_id
	Buyer         BuyerRef      // sessions.buyer_* columns
	Status        SessionStatus // sessions.status
	SubtotalCents int64         // sessions.subtotal_cents
	FeeCents      int64         // sessions.fee_cents
	TotalCents    int64         // sessions.total_cents
	Currency      string        // sessions.currency
	ProviderRef   string        // sessions.provider_ref
	AccessCodeID  *uint64       // sessions.access_code_id (nullable)
	ExtendCount   int           // sessions.extend_count
	ExpiresAt     time.Time     // sessions.expires_at
	CreatedAt     time.Time     // sessions.created_at
	UpdatedAt     time.Time     // sessions.updated_at

	Items []LineItem // loaded from session_items
}

// Lapsed reports whether the session TTL has passed.  A PENDING session
// whose TTL has lapsed must be treated as EXPIRED by every reader even
// before the sweep has flipped the row (lazy expiry).
func (s CheckoutSession) Lapsed(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// EffectiveStatus applies the lazy-expiry rule to the stored status.
func (s CheckoutSession) EffectiveStatus(now time.Time) SessionStatus {
	if s.Status == SessionStatusPending && s.Lapsed(now) {
		return SessionStatusExpired
	}
	return s.Status
}
