package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ticketcore/checkout-service/internal/model"
)

// HoldRepo provides data access to the holds table.  Counter adjustments
// that accompany a status transition live on LedgerRepo; this repository
// covers creation, lookup and the sweep query.  All timestamps are UTC.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *HoldRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Create inserts a new hold row.
func (r *HoldRepo) Create(ctx context.Context, h model.Hold) error {
	const stmt = `INSERT INTO holds (id, session_id, tier_id, quantity, status, expires_at, created_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		h.ID, h.SessionID, h.TierID, h.Quantity, string(h.Status), h.ExpiresAt.UTC(), h.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

// Get loads a hold by id.
func (r *HoldRepo) Get(ctx context.Context, holdID string) (model.Hold, error) {
	const q = `SELECT id, session_id, tier_id, quantity, status, expires_at, created_at FROM holds WHERE id = ?`
	return r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, q, holdID))
}

// ListBySession returns all holds owned by a session ordered by creation.
func (r *HoldRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Hold, error) {
	const q = `SELECT id, session_id, tier_id, quantity, status, expires_at, created_at
               FROM holds WHERE session_id = ? ORDER BY created_at, id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		var status string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.TierID, &h.Quantity, &status, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		h.Status = model.HoldStatus(status)
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	return holds, nil
}

// ExtendExpiry pushes a hold's expires_at forward.  Only ACTIVE holds
// that have not yet lapsed are extended; the predicate makes the check
// and the write one statement.
func (r *HoldRepo) ExtendExpiry(ctx context.Context, holdID string, newExpiry, now time.Time) error {
	const stmt = `UPDATE holds SET expires_at = ? WHERE id = ? AND status = ? AND expires_at > ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		newExpiry.UTC(), holdID, string(model.HoldStatusActive), now.UTC())
	if err != nil {
		return fmt.Errorf("extend hold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend hold: %w", err)
	}
	if affected == 0 {
		return ErrHoldNotActive
	}
	return nil
}

// ListLapsedActive returns up to limit holds whose TTL has passed while
// the status column still says ACTIVE.  The sweep settles each one
// through LedgerRepo.Expire; running multiple sweepers concurrently is
// safe because the settle transition only succeeds once.
func (r *HoldRepo) ListLapsedActive(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	const q = `SELECT id, session_id, tier_id, quantity, status, expires_at, created_at
               FROM holds WHERE status = ? AND expires_at <= ? ORDER BY expires_at LIMIT ?`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, string(model.HoldStatusActive), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list lapsed holds: %w", err)
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		var status string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.TierID, &h.Quantity, &status, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		h.Status = model.HoldStatus(status)
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lapsed holds: %w", err)
	}
	return holds, nil
}

func (r *HoldRepo) scanOne(row *sql.Row) (model.Hold, error) {
	var h model.Hold
	var status string
	err := row.Scan(&h.ID, &h.SessionID, &h.TierID, &h.Quantity, &status, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Hold{}, ErrHoldNotFound
		}
		return model.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	h.Status = model.HoldStatus(status)
	return h, nil
}
