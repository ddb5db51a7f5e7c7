package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticketcore/checkout-service/internal/model"
)

// OrderRepo provides data access to orders and tickets.  Orders are
// created only by the webhook reconciler when a session converts and are
// immutable afterwards except for the refund transition.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *OrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Create inserts the order row and its ticket rows.
func (r *OrderRepo) Create(ctx context.Context, o model.Order) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		const stmt = `INSERT INTO orders (id, session_id, status, total_cents, currency, created_at, updated_at)
                      VALUES (?, ?, ?, ?, ?, ?, ?)`
		_, err := conn(ctx, r.db).ExecContext(ctx, stmt,
			o.ID, o.SessionID, string(o.Status), o.TotalCents, o.Currency, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if len(o.Tickets) == 0 {
			return nil
		}
		query := `INSERT INTO tickets (id, order_id, tier_id, issued_at) VALUES `
		args := make([]any, 0, len(o.Tickets)*4)
		for i, t := range o.Tickets {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?)"
			args = append(args, t.ID, t.OrderID, t.TierID, t.IssuedAt.UTC())
		}
		if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("create tickets: %w", err)
		}
		return nil
	})
}

// Get loads an order with its tickets.
func (r *OrderRepo) Get(ctx context.Context, orderID string) (model.Order, error) {
	const q = `SELECT id, session_id, status, total_cents, currency, created_at, updated_at
               FROM orders WHERE id = ?`
	return r.load(ctx, conn(ctx, r.db).QueryRowContext(ctx, q, orderID))
}

// GetBySessionID loads the order created for a session, if any.
func (r *OrderRepo) GetBySessionID(ctx context.Context, sessionID string) (model.Order, error) {
	const q = `SELECT id, session_id, status, total_cents, currency, created_at, updated_at
               FROM orders WHERE session_id = ?`
	return r.load(ctx, conn(ctx, r.db).QueryRowContext(ctx, q, sessionID))
}

// MarkRefunded flips a PAID order to REFUNDED.  Idempotent: a second call
// matches no row and reports false.
func (r *OrderRepo) MarkRefunded(ctx context.Context, orderID string) (bool, error) {
	const stmt = `UPDATE orders SET status = ? WHERE id = ? AND status = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		string(model.OrderStatusRefunded), orderID, string(model.OrderStatusPaid))
	if err != nil {
		return false, fmt.Errorf("refund order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("refund order: %w", err)
	}
	return affected == 1, nil
}

func (r *OrderRepo) load(ctx context.Context, row *sql.Row) (model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.SessionID, &status, &o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	const q = `SELECT id, order_id, tier_id, issued_at FROM tickets WHERE order_id = ? ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, o.ID)
	if err != nil {
		return model.Order{}, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TierID, &t.IssuedAt); err != nil {
			return model.Order{}, fmt.Errorf("scan ticket: %w", err)
		}
		o.Tickets = append(o.Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return model.Order{}, fmt.Errorf("list tickets: %w", err)
	}
	return o, nil
}
