package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticketcore/checkout-service/internal/model"
)

// LedgerRepo is the authoritative owner of the per-tier inventory
// counters.  Every mutation of reserved/issued goes through a single
// conditional UPDATE whose predicate re-states the capacity invariant, so
// the invariant can never be violated by a read-then-write interleaving:
// the row lock taken by the UPDATE serialises concurrent reservations and
// the rows-affected count tells us whether the reservation fit.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a LedgerRepo bound to the provided database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *LedgerRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// GetEvent loads an event by id.
func (r *LedgerRepo) GetEvent(ctx context.Context, eventID uint64) (model.Event, error) {
	const q = `SELECT id, name, starts_at, ends_at, created_at, updated_at FROM events WHERE id = ?`
	var e model.Event
	err := conn(ctx, r.db).QueryRowContext(ctx, q, eventID).
		Scan(&e.ID, &e.Name, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Event{}, ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetTier loads a tier by id, counters included.
func (r *LedgerRepo) GetTier(ctx context.Context, tierID uint64) (model.TicketTier, error) {
	const q = `SELECT id, event_id, name, price_cents, capacity, reserved, issued, max_per_order, created_at, updated_at
               FROM ticket_tiers WHERE id = ?`
	var t model.TicketTier
	err := conn(ctx, r.db).QueryRowContext(ctx, q, tierID).
		Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents, &t.Capacity, &t.Reserved, &t.Issued, &t.MaxPerOrder, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.TicketTier{}, ErrTierNotFound
		}
		return model.TicketTier{}, fmt.Errorf("get tier: %w", err)
	}
	return t, nil
}

// ListTiersByEvent returns all tiers of an event ordered by id.
func (r *LedgerRepo) ListTiersByEvent(ctx context.Context, eventID uint64) ([]model.TicketTier, error) {
	const q = `SELECT id, event_id, name, price_cents, capacity, reserved, issued, max_per_order, created_at, updated_at
               FROM ticket_tiers WHERE event_id = ? ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()
	var tiers []model.TicketTier
	for rows.Next() {
		var t model.TicketTier
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents, &t.Capacity, &t.Reserved, &t.Issued, &t.MaxPerOrder, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	return tiers, nil
}

// Reserve atomically claims quantity on a tier.  The UPDATE only matches
// while the claim still fits under capacity, so a reservation is reported
// successful only after it has durably reduced available capacity.  When
// no row is updated the tier is either missing or sold out.
func (r *LedgerRepo) Reserve(ctx context.Context, tierID uint64, quantity int) error {
	const stmt = `UPDATE ticket_tiers
                  SET reserved = reserved + ?
                  WHERE id = ? AND reserved + issued + ? <= capacity`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt, quantity, tierID, quantity)
	if err != nil {
		if isLockConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("reserve tier %d: %w", tierID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve tier %d: %w", tierID, err)
	}
	if affected == 0 {
		if _, err := r.GetTier(ctx, tierID); err != nil {
			return err
		}
		return ErrSoldOut
	}
	return nil
}

// Release returns a hold's quantity to availability and marks the hold
// RELEASED.  Calling it again on a hold that already left the ACTIVE
// state is a no-op: the status transition is the gate, and only the
// caller that wins the transition decrements the reserved counter.
func (r *LedgerRepo) Release(ctx context.Context, holdID string) error {
	return r.settle(ctx, holdID, model.HoldStatusReleased)
}

// Expire is Release under the EXPIRED status, used by the sweep so the
// audit trail distinguishes buyer-released holds from timed-out ones.
func (r *LedgerRepo) Expire(ctx context.Context, holdID string) error {
	return r.settle(ctx, holdID, model.HoldStatusExpired)
}

func (r *LedgerRepo) settle(ctx context.Context, holdID string, to model.HoldStatus) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		hold, err := r.getHold(ctx, holdID)
		if err != nil {
			return err
		}
		const gate = `UPDATE holds SET status = ? WHERE id = ? AND status = ?`
		res, err := conn(ctx, r.db).ExecContext(ctx, gate, string(to), holdID, string(model.HoldStatusActive))
		if err != nil {
			return fmt.Errorf("transition hold %s: %w", holdID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("transition hold %s: %w", holdID, err)
		}
		if affected == 0 {
			// Lost the transition race or the hold was settled earlier.
			return nil
		}
		const dec = `UPDATE ticket_tiers SET reserved = reserved - ? WHERE id = ? AND reserved >= ?`
		res, err = conn(ctx, r.db).ExecContext(ctx, dec, hold.Quantity, hold.TierID, hold.Quantity)
		if err != nil {
			return fmt.Errorf("release tier %d: %w", hold.TierID, err)
		}
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("release tier %d: %w", hold.TierID, err)
		} else if affected == 0 {
			return fmt.Errorf("release tier %d: reserved counter below hold quantity %d", hold.TierID, hold.Quantity)
		}
		return nil
	})
}

// Commit moves a hold's quantity from reserved to issued exactly once.
// The ACTIVE->COMMITTED transition is the gate: a second call finds the
// hold committed and fails closed with ErrAlreadyCommitted instead of
// issuing twice.  A hold that expired or was released cannot be
// committed at all.
func (r *LedgerRepo) Commit(ctx context.Context, holdID string) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		const gate = `UPDATE holds SET status = ? WHERE id = ? AND status = ?`
		res, err := conn(ctx, r.db).ExecContext(ctx, gate, string(model.HoldStatusCommitted), holdID, string(model.HoldStatusActive))
		if err != nil {
			return fmt.Errorf("commit hold %s: %w", holdID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("commit hold %s: %w", holdID, err)
		}
		if affected == 0 {
			hold, err := r.getHold(ctx, holdID)
			if err != nil {
				return err
			}
			if hold.Status == model.HoldStatusCommitted {
				return ErrAlreadyCommitted
			}
			return ErrHoldNotActive
		}
		hold, err := r.getHold(ctx, holdID)
		if err != nil {
			return err
		}
		const move = `UPDATE ticket_tiers SET reserved = reserved - ?, issued = issued + ?
                      WHERE id = ? AND reserved >= ?`
		res, err = conn(ctx, r.db).ExecContext(ctx, move, hold.Quantity, hold.Quantity, hold.TierID, hold.Quantity)
		if err != nil {
			return fmt.Errorf("issue tier %d: %w", hold.TierID, err)
		}
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("issue tier %d: %w", hold.TierID, err)
		} else if affected == 0 {
			return fmt.Errorf("issue tier %d: reserved counter below hold quantity %d", hold.TierID, hold.Quantity)
		}
		return nil
	})
}

func (r *LedgerRepo) getHold(ctx context.Context, holdID string) (model.Hold, error) {
	const q = `SELECT id, session_id, tier_id, quantity, status, expires_at, created_at FROM holds WHERE id = ?`
	var h model.Hold
	var status string
	err := conn(ctx, r.db).QueryRowContext(ctx, q, holdID).
		Scan(&h.ID, &h.SessionID, &h.TierID, &h.Quantity, &status, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Hold{}, ErrHoldNotFound
		}
		return model.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	h.Status = model.HoldStatus(status)
	return h, nil
}
