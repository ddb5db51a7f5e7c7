package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ticketcore/checkout-service/internal/model"
)

// SessionRepo provides data access to the sessions and session_items
// tables.  Status transitions are expressed as conditional UPDATEs so
// that the webhook path, the sweep and buyer cancellation can race
// without ever applying the same transition twice.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *SessionRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Create inserts the session row.  Line items are added with AddItems
// once the holds they reference exist, since session_items carries a
// foreign key onto holds.
func (r *SessionRepo) Create(ctx context.Context, s model.CheckoutSession) error {
	const stmt = `INSERT INTO sessions
        (id, event_id, buyer_kind, member_id, guest_email, guest_name, status,
         subtotal_cents, fee_cents, total_cents, currency, provider_ref,
         access_code_id, extend_count, expires_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		s.ID, s.EventID, string(s.Buyer.Kind),
		nullString(s.Buyer.MemberID), nullString(s.Buyer.Email), nullString(s.Buyer.DisplayName),
		string(s.Status), s.SubtotalCents, s.FeeCents, s.TotalCents, s.Currency,
		nullString(s.ProviderRef), s.AccessCodeID, s.ExtendCount,
		s.ExpiresAt.UTC(), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// AddItems inserts the session's line items in one statement.
func (r *SessionRepo) AddItems(ctx context.Context, sessionID string, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO session_items
        (session_id, tier_id, hold_id, quantity, unit_price_cents, subtotal_cents, fee_cents, total_cents) VALUES `
	args := make([]any, 0, len(items)*8)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, sessionID, it.TierID, it.HoldID, it.Quantity,
			it.UnitPriceCents, it.SubtotalCents, it.FeeCents, it.TotalCents)
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create session items: %w", err)
	}
	return nil
}

// Get loads a session with its line items.
func (r *SessionRepo) Get(ctx context.Context, sessionID string) (model.CheckoutSession, error) {
	const q = sessionColumns + ` WHERE id = ?`
	s, err := r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, q, sessionID))
	if err != nil {
		return model.CheckoutSession{}, err
	}
	if s.Items, err = r.listItems(ctx, s.ID); err != nil {
		return model.CheckoutSession{}, err
	}
	return s, nil
}

// GetByProviderRef resolves the session a payment notification refers to.
func (r *SessionRepo) GetByProviderRef(ctx context.Context, providerRef string) (model.CheckoutSession, error) {
	const q = sessionColumns + ` WHERE provider_ref = ?`
	s, err := r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, q, providerRef))
	if err != nil {
		return model.CheckoutSession{}, err
	}
	if s.Items, err = r.listItems(ctx, s.ID); err != nil {
		return model.CheckoutSession{}, err
	}
	return s, nil
}

// SetProviderRef records the payment handoff reference on a session.
func (r *SessionRepo) SetProviderRef(ctx context.Context, sessionID, providerRef string) error {
	const stmt = `UPDATE sessions SET provider_ref = ? WHERE id = ?`
	if _, err := conn(ctx, r.db).ExecContext(ctx, stmt, providerRef, sessionID); err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	return nil
}

// Transition flips a session from one status to another.  It reports
// whether this call performed the transition; false means another path
// moved the session first.
func (r *SessionRepo) Transition(ctx context.Context, sessionID string, from, to model.SessionStatus) (bool, error) {
	const stmt = `UPDATE sessions SET status = ? WHERE id = ? AND status = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt, string(to), sessionID, string(from))
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	return affected == 1, nil
}

// Extend pushes expires_at forward and bumps extend_count, but only while
// the session is PENDING, unlapsed, and still under the extension limit.
func (r *SessionRepo) Extend(ctx context.Context, sessionID string, newExpiry, now time.Time, maxExtensions int) (bool, error) {
	const stmt = `UPDATE sessions SET expires_at = ?, extend_count = extend_count + 1
                  WHERE id = ? AND status = ? AND expires_at > ? AND extend_count < ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		newExpiry.UTC(), sessionID, string(model.SessionStatusPending), now.UTC(), maxExtensions)
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	return affected == 1, nil
}

// ListLapsedPending returns up to limit sessions whose TTL has passed
// while the status column still says PENDING, for the sweep to settle.
// Line items are loaded so the sweep can release the holds they own.
func (r *SessionRepo) ListLapsedPending(ctx context.Context, now time.Time, limit int) ([]model.CheckoutSession, error) {
	const q = sessionColumns + ` WHERE status = ? AND expires_at <= ? ORDER BY expires_at LIMIT ?`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, string(model.SessionStatusPending), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list lapsed sessions: %w", err)
	}
	defer rows.Close()
	var sessions []model.CheckoutSession
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lapsed sessions: %w", err)
	}
	rows.Close()
	for i := range sessions {
		items, err := r.listItems(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Items = items
	}
	return sessions, nil
}

const sessionColumns = `SELECT id, event_id, buyer_kind, member_id, guest_email, guest_name, status,
       subtotal_cents, fee_cents, total_cents, currency, provider_ref,
       access_code_id, extend_count, expires_at, created_at, updated_at
FROM sessions`

func (r *SessionRepo) listItems(ctx context.Context, sessionID string) ([]model.LineItem, error) {
	const q = `SELECT id, session_id, tier_id, hold_id, quantity, unit_price_cents, subtotal_cents, fee_cents, total_cents
               FROM session_items WHERE session_id = ? ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session items: %w", err)
	}
	defer rows.Close()
	var items []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ID, &it.SessionID, &it.TierID, &it.HoldID, &it.Quantity,
			&it.UnitPriceCents, &it.SubtotalCents, &it.FeeCents, &it.TotalCents); err != nil {
			return nil, fmt.Errorf("scan session item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SessionRepo) scanOne(row *sql.Row) (model.CheckoutSession, error) {
	s, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return model.CheckoutSession{}, ErrSessionNotFound
	}
	return s, err
}

func (r *SessionRepo) scanRow(row rowScanner) (model.CheckoutSession, error) {
	var s model.CheckoutSession
	var kind, status string
	var memberID, guestEmail, guestName, providerRef sql.NullString
	var accessCodeID sql.NullInt64
	err := row.Scan(&s.ID, &s.EventID, &kind, &memberID, &guestEmail, &guestName, &status,
		&s.SubtotalCents, &s.FeeCents, &s.TotalCents, &s.Currency, &providerRef,
		&accessCodeID, &s.ExtendCount, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.CheckoutSession{}, err
		}
		return model.CheckoutSession{}, fmt.Errorf("scan session: %w", err)
	}
	s.Buyer = model.BuyerRef{
		Kind:        model.BuyerKind(kind),
		MemberID:    memberID.String,
		Email:       guestEmail.String,
		DisplayName: guestName.String,
	}
	s.Status = model.SessionStatus(status)
	s.ProviderRef = providerRef.String
	if accessCodeID.Valid {
		id := uint64(accessCodeID.Int64)
		s.AccessCodeID = &id
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
