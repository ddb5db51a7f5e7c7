package model

import "time"

// TicketTier is a purchasable ticket category with a fixed total capacity.
// Reserved and Issued are the authoritative inventory counters: the
// invariant reserved + issued <= capacity is enforced by the ledger at
// every mutation via conditional UPDATEs, never merely checked in Go.
//
// Fields:
//  ID          – primary key identifier.
//  EventID     – event this tier belongs to.
//  Name        – display name (e.g. "General Admission").
//  PriceCents  – face value per ticket in minor currency units.
//  Capacity    – total number of tickets that can ever be issued.
//  Reserved    – tickets currently claimed by active holds.
//  Issued      – tickets permanently issued to paid orders.
//  MaxPerOrder – cap on quantity per checkout session line item.
type TicketTier struct {
	ID          uint64    // ticket_tiers.id
	EventID     uint64    // ticket_tiers.event_id
	Name        string    // ticket_tiers.name
	PriceCents  int64     // ticket_tiers.price_cents
	Capacity    int       // ticket_tiers.capacity
	Reserved    int       // ticket_tiers.reserved
	Issued      int       // ticket_tiers.issued
	MaxPerOrder int       // ticket_tiers.max_per_order
	CreatedAt   time.Time // ticket_tiers.created_at
	UpdatedAt   time.Time // ticket_tiers.updated_at
}

// Available returns how many tickets can still be reserved on this tier.
func (t TicketTier) Available() int {
	return t.Capacity - t.Reserved - t.Issued
}
