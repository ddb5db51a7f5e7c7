package model

import "time"

// OrderStatus enumerates the post-payment states of an order.
type OrderStatus string

const (
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// Order is created only by the webhook reconciler when a session
// converts.  It is immutable once PAID except for the refund transition.
//
// Fields:
//  ID         – opaque UUID primary key.
//  SessionID  – converted session this order settles.
//  Status     – PAID or REFUNDED.
//  TotalCents – amount charged, copied from the session.
//  Currency   – ISO currency code.
type Order struct {
	ID         string      // orders.id
	SessionID  string      // orders.session_id
	Status     OrderStatus // orders.status
	TotalCents int64       // orders.total_cents
	Currency   string      // orders.currency
	CreatedAt  time.Time   // orders.created_at
	UpdatedAt  time.Time   // orders.updated_at

	Tickets []Ticket // loaded from tickets
}

// Ticket is a single issued ticket belonging to an order.  Tickets are
// minted at commit time, one row per unit of quantity.
type Ticket struct {
	ID       string    // tickets.id
	OrderID  string    // tickets.order_id
	TierID   uint64    // tickets.tier_id
	IssuedAt time.Time // tickets.issued_at
}
