package service

import (
	"context"
	"time"

	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/queue"
)

// Ledger is the authoritative inventory interface.  Reserve must be
// atomic with respect to capacity; Release and Commit are idempotent
// through the hold status transition gate.  Production wires
// repository.LedgerRepo.
type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID uint64) (model.Event, error)
	GetTier(ctx context.Context, tierID uint64) (model.TicketTier, error)
	ListTiersByEvent(ctx context.Context, eventID uint64) ([]model.TicketTier, error)
	Reserve(ctx context.Context, tierID uint64, quantity int) error
	Release(ctx context.Context, holdID string) error
	Expire(ctx context.Context, holdID string) error
	Commit(ctx context.Context, holdID string) error
}

// HoldStore persists hold rows.  Production wires repository.HoldRepo.
type HoldStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, h model.Hold) error
	Get(ctx context.Context, holdID string) (model.Hold, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Hold, error)
	ExtendExpiry(ctx context.Context, holdID string, newExpiry, now time.Time) error
	ListLapsedActive(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
}

// SessionStore persists checkout sessions.  Production wires
// repository.SessionRepo.
type SessionStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, s model.CheckoutSession) error
	AddItems(ctx context.Context, sessionID string, items []model.LineItem) error
	Get(ctx context.Context, sessionID string) (model.CheckoutSession, error)
	GetByProviderRef(ctx context.Context, providerRef string) (model.CheckoutSession, error)
	SetProviderRef(ctx context.Context, sessionID, providerRef string) error
	Transition(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error)
	Extend(ctx context.Context, sessionID string, newExpiry, now time.Time, maxExtensions int) (bool, error)
	ListLapsedPending(ctx context.Context, now time.Time, limit int) ([]model.CheckoutSession, error)
}

// AccessCodeStore persists guest access codes.  Production wires
// repository.AccessCodeRepo.
type AccessCodeStore interface {
	Get(ctx context.Context, codeID uint64) (model.GuestAccessCode, error)
	FindByPlaintext(ctx context.Context, eventID uint64, plaintext string) (model.GuestAccessCode, error)
	ConsumeUse(ctx context.Context, codeID uint64) error
}

// OrderStore persists orders and tickets.  Production wires
// repository.OrderRepo.
type OrderStore interface {
	Create(ctx context.Context, o model.Order) error
	Get(ctx context.Context, orderID string) (model.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (model.Order, error)
	MarkRefunded(ctx context.Context, orderID string) (bool, error)
}

// WebhookEventStore records processed provider events for dedup.
// Production wires repository.WebhookEventRepo.
type WebhookEventStore interface {
	Record(ctx context.Context, providerEventID, providerRef, outcome string, receivedAt time.Time) error
}

// ExceptionStore persists reconciliation exceptions.  Production wires
// repository.ReconciliationExceptionRepo.
type ExceptionStore interface {
	Record(ctx context.Context, sessionID, providerRef, providerEventID, reason string) error
}

// EventPublisher emits checkout events to the broker.  Production wires
// queue.Publisher; publish failures are logged, never fatal to the
// request path.
type EventPublisher interface {
	OrderConfirmed(ctx context.Context, event queue.OrderConfirmedEvent) error
	ReconciliationException(ctx context.Context, event queue.ReconciliationExceptionEvent) error
}
