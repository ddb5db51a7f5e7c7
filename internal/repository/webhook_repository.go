package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WebhookEventRepo records every processed provider notification.  The
// unique key on provider_event_id is the dedup gate for duplicate webhook
// deliveries: whichever insert wins processes the outcome, later inserts
// get ErrDuplicateWebhookEvent and must no-op.
type WebhookEventRepo struct {
	db *sql.DB
}

// NewWebhookEventRepo returns a WebhookEventRepo bound to the provided database.
func NewWebhookEventRepo(db *sql.DB) *WebhookEventRepo { return &WebhookEventRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *WebhookEventRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Record inserts the event, claiming the provider event id.  A duplicate
// delivery returns ErrDuplicateWebhookEvent.
func (r *WebhookEventRepo) Record(ctx context.Context, providerEventID, providerRef, outcome string, receivedAt time.Time) error {
	const stmt = `INSERT INTO webhook_events (provider_event_id, provider_ref, outcome, received_at)
                  VALUES (?, ?, ?, ?)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, stmt, providerEventID, providerRef, outcome, receivedAt.UTC()); err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateWebhookEvent
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// ReconciliationExceptionRepo persists payment outcomes that could not be
// applied to inventory (late success on a lapsed session).  Rows stay
// unresolved until an operator settles the refund or grants tickets
// manually.
type ReconciliationExceptionRepo struct {
	db *sql.DB
}

// NewReconciliationExceptionRepo returns a repo bound to the provided database.
func NewReconciliationExceptionRepo(db *sql.DB) *ReconciliationExceptionRepo {
	return &ReconciliationExceptionRepo{db: db}
}

// WithTx runs fn inside a transaction shared via the context.
func (r *ReconciliationExceptionRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Record persists a reconciliation exception.
func (r *ReconciliationExceptionRepo) Record(ctx context.Context, sessionID, providerRef, providerEventID, reason string) error {
	const stmt = `INSERT INTO reconciliation_exceptions (session_id, provider_ref, provider_event_id, reason)
                  VALUES (?, ?, ?, ?)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, stmt, sessionID, providerRef, providerEventID, reason); err != nil {
		return fmt.Errorf("record reconciliation exception: %w", err)
	}
	return nil
}
