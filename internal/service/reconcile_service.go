package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/queue"
	"github.com/ticketcore/checkout-service/internal/repository"
)

// ReconcileService applies asynchronous payment outcomes to sessions.
// Provider notifications may arrive out of order, duplicated, or after
// the session has already expired; the reconciler resolves all of that
// against the state machine without ever overselling a hold that the
// sweep has already released.
type ReconcileService struct {
	ledger     Ledger
	sessions   SessionStore
	codes      *AccessCodeService
	orders     OrderStore
	events     WebhookEventStore
	exceptions ExceptionStore
	publisher  EventPublisher
	clock      clock.Clock
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(
	ledger Ledger,
	sessions SessionStore,
	codes *AccessCodeService,
	orders OrderStore,
	events WebhookEventStore,
	exceptions ExceptionStore,
	publisher EventPublisher,
	clk clock.Clock,
) *ReconcileService {
	return &ReconcileService{
		ledger:     ledger,
		sessions:   sessions,
		codes:      codes,
		orders:     orders,
		events:     events,
		exceptions: exceptions,
		publisher:  publisher,
		clock:      clk,
	}
}

// HandleNotification processes one provider notification.  Delivery is
// at-least-once on the provider side, so the provider event id is
// claimed inside the same transaction that applies the outcome: when
// processing fails the claim rolls back with it and the provider's
// redelivery gets a clean run instead of a duplicate no-op.  A nil
// return tells the handler to acknowledge the delivery.
func (s *ReconcileService) HandleNotification(ctx context.Context, n payment.Notification) error {
	if n.EventID == "" || n.ProviderRef == "" {
		return fmt.Errorf("%w: provider event id and reference are required", ErrValidation)
	}

	var confirmed *model.Order
	var confirmedSession model.CheckoutSession

	err := s.sessions.WithTx(ctx, func(ctx context.Context) error {
		if err := s.events.Record(ctx, n.EventID, n.ProviderRef, n.Outcome, s.clock.Now()); err != nil {
			return err
		}

		session, err := s.sessions.GetByProviderRef(ctx, n.ProviderRef)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				// Nothing to reconcile against; keep the record and flag it.
				return s.raiseException(ctx, "", n, "no session for provider reference")
			}
			return err
		}

		switch n.Outcome {
		case payment.OutcomeSucceeded:
			order, err := s.applySuccess(ctx, session, n)
			if err != nil {
				return err
			}
			if order != nil {
				confirmed = order
				confirmedSession = session
			}
			return nil
		case payment.OutcomeFailed:
			return s.applyFailure(ctx, session, n)
		case payment.OutcomeRefunded:
			return s.applyRefund(ctx, session, n)
		default:
			log.Printf("reconcile: ignoring outcome %q for session %s", n.Outcome, session.ID)
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateWebhookEvent) {
			log.Printf("reconcile: duplicate provider event %s, skipping", n.EventID)
			return nil
		}
		return err
	}

	// Announce only after the transaction has committed.
	if confirmed != nil {
		confirmedSession.Status = model.SessionStatusConverted
		publishOrderConfirmed(ctx, s.publisher, confirmedSession, *confirmed, s.clock.Now())
	}
	return nil
}

// applySuccess converts a pending session inside the caller's
// transaction: commit every hold, consume the access code, mint the
// order.  A success that lands after the session has expired or been
// cancelled cannot convert, because the sweep may have already resold
// the inventory; it becomes a reconciliation exception for operator
// follow-up instead.  The returned order is non-nil only when this call
// performed the conversion.
func (s *ReconcileService) applySuccess(ctx context.Context, session model.CheckoutSession, n payment.Notification) (*model.Order, error) {
	now := s.clock.Now()

	switch session.Status {
	case model.SessionStatusConverted:
		log.Printf("reconcile: session %s already converted, skipping event %s", session.ID, n.EventID)
		return nil, nil
	case model.SessionStatusExpired, model.SessionStatusCancelled, model.SessionStatusFailed:
		return nil, s.raiseException(ctx, session.ID, n, "payment succeeded after session reached "+string(session.Status))
	}

	won, err := s.sessions.Transition(ctx, session.ID, model.SessionStatusPending, model.SessionStatusConverted)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.resolveStaleSuccess(ctx, session.ID, n)
	}
	for _, it := range session.Items {
		if err := s.ledger.Commit(ctx, it.HoldID); err != nil {
			if errors.Is(err, repository.ErrAlreadyCommitted) {
				continue
			}
			return nil, err
		}
	}
	if session.AccessCodeID != nil {
		if err := s.codes.Consume(ctx, *session.AccessCodeID); err != nil {
			// The code gated entry to checkout; paid money wins over
			// the use counter.  Log and keep converting.
			log.Printf("reconcile: consume access code %d for session %s: %v", *session.AccessCodeID, session.ID, err)
		}
	}
	order := buildOrder(session, now)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return &order, nil
}

// resolveStaleSuccess re-reads the session after losing the conversion
// gate.  The session converting first through another path is fine; the
// sweep or a cancel winning means the money arrived too late.
func (s *ReconcileService) resolveStaleSuccess(ctx context.Context, sessionID string, n payment.Notification) error {
	current, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Status == model.SessionStatusConverted {
		return nil
	}
	return s.raiseException(ctx, sessionID, n, "payment succeeded after session reached "+string(current.Status))
}

// applyFailure fails a pending session and releases its holds so the
// inventory sells again immediately.  Terminal sessions ignore the
// notification.
func (s *ReconcileService) applyFailure(ctx context.Context, session model.CheckoutSession, n payment.Notification) error {
	if session.Status.Terminal() {
		log.Printf("reconcile: session %s already %s, ignoring failure event %s", session.ID, session.Status, n.EventID)
		return nil
	}
	won, err := s.sessions.Transition(ctx, session.ID, model.SessionStatusPending, model.SessionStatusFailed)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	for _, it := range session.Items {
		if err := s.ledger.Release(ctx, it.HoldID); err != nil {
			return err
		}
	}
	return nil
}

// applyRefund marks the session's order refunded.  Tickets stay issued;
// invalidation is a fulfilment concern handled downstream.
func (s *ReconcileService) applyRefund(ctx context.Context, session model.CheckoutSession, n payment.Notification) error {
	order, err := s.orders.GetBySessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return s.raiseException(ctx, session.ID, n, "refund received for session without an order")
		}
		return err
	}
	changed, err := s.orders.MarkRefunded(ctx, order.ID)
	if err != nil {
		return err
	}
	if !changed {
		log.Printf("reconcile: order %s already refunded, skipping event %s", order.ID, n.EventID)
	}
	return nil
}

// raiseException persists the exception row, emits the operator alert,
// and logs.  The notification itself is acknowledged: retrying it cannot
// fix a late success.
func (s *ReconcileService) raiseException(ctx context.Context, sessionID string, n payment.Notification, reason string) error {
	if err := s.exceptions.Record(ctx, sessionID, n.ProviderRef, n.EventID, reason); err != nil {
		return err
	}
	if s.publisher != nil {
		alert := queue.ReconciliationExceptionEvent{
			SessionID:       sessionID,
			ProviderRef:     n.ProviderRef,
			ProviderEventID: n.EventID,
			Reason:          reason,
			OccurredAt:      s.clock.Now().Format(time.RFC3339),
		}
		if err := s.publisher.ReconciliationException(ctx, alert); err != nil {
			log.Printf("reconcile: publish exception alert for session %s: %v", sessionID, err)
		}
	}
	log.Printf("reconcile: exception for session %s (event %s): %s", sessionID, n.EventID, reason)
	return nil
}
