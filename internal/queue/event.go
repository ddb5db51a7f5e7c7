// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderConfirmedEvent is published when a checkout session converts and
// tickets are issued.  It carries enough information for downstream
// consumers to notify buyers or feed reporting without querying the
// primary database.
type OrderConfirmedEvent struct {
	OrderID          string `json:"order_id"`
	SessionID        string `json:"session_id"`
	EventID          uint64 `json:"event_id"`
	BuyerKind        string `json:"buyer_kind"`
	Buyer            string `json:"buyer"`
	TicketCount      int    `json:"ticket_count"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	Currency         string `json:"currency"`
	ConfirmedAt      string `json:"confirmed_at"`
}

// ReconciliationExceptionEvent is published when a payment outcome cannot
// be applied to inventory, typically a success arriving after the hold
// already expired.  Consumers route it to the operational alert log for
// manual refund or ticket-grant resolution; it is never surfaced to the
// buyer as a failure.
type ReconciliationExceptionEvent struct {
	SessionID       string `json:"session_id"`
	ProviderRef     string `json:"provider_ref"`
	ProviderEventID string `json:"provider_event_id"`
	Reason          string `json:"reason"`
	OccurredAt      string `json:"occurred_at"`
}
