package repository

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ticketcore/checkout-service/internal/model"
)

// AccessCodeRepo provides data access to guest_access_codes.  Codes are
// stored as bcrypt hashes, so lookup by plaintext walks the event's codes
// and compares each hash; code sets per event are small enough for that.
type AccessCodeRepo struct {
	db *sql.DB
}

// NewAccessCodeRepo returns an AccessCodeRepo bound to the provided database.
func NewAccessCodeRepo(db *sql.DB) *AccessCodeRepo { return &AccessCodeRepo{db: db} }

// WithTx runs fn inside a transaction shared via the context.
func (r *AccessCodeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// Create inserts a new access code with the given bcrypt cost.  It is
// used by seeding tooling and integration tests; the checkout core only
// reads and consumes codes.
func (r *AccessCodeRepo) Create(ctx context.Context, code model.GuestAccessCode, plaintext string, bcryptCost int) (uint64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash access code: %w", err)
	}
	const stmt = `INSERT INTO guest_access_codes (event_id, code_hash, tier_id, max_uses, used_count, expires_at)
                  VALUES (?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt,
		code.EventID, string(hash), code.TierID, code.MaxUses, code.UsedCount, code.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("create access code: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create access code: %w", err)
	}
	return uint64(id), nil
}

// Get loads an access code by id.
func (r *AccessCodeRepo) Get(ctx context.Context, codeID uint64) (model.GuestAccessCode, error) {
	const q = `SELECT id, event_id, code_hash, tier_id, max_uses, used_count, expires_at, created_at
               FROM guest_access_codes WHERE id = ?`
	var c model.GuestAccessCode
	var tierID sql.NullInt64
	var expiresAt sql.NullTime
	err := conn(ctx, r.db).QueryRowContext(ctx, q, codeID).
		Scan(&c.ID, &c.EventID, &c.CodeHash, &tierID, &c.MaxUses, &c.UsedCount, &expiresAt, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.GuestAccessCode{}, ErrCodeNotFound
		}
		return model.GuestAccessCode{}, fmt.Errorf("get access code: %w", err)
	}
	if tierID.Valid {
		id := uint64(tierID.Int64)
		c.TierID = &id
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

// FindByPlaintext resolves a plaintext code within an event by comparing
// bcrypt hashes.  ErrCodeNotFound is returned when nothing matches.
func (r *AccessCodeRepo) FindByPlaintext(ctx context.Context, eventID uint64, plaintext string) (model.GuestAccessCode, error) {
	const q = `SELECT id, event_id, code_hash, tier_id, max_uses, used_count, expires_at, created_at
               FROM guest_access_codes WHERE event_id = ?`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, eventID)
	if err != nil {
		return model.GuestAccessCode{}, fmt.Errorf("list access codes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c model.GuestAccessCode
		var tierID sql.NullInt64
		var expiresAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.EventID, &c.CodeHash, &tierID, &c.MaxUses, &c.UsedCount, &expiresAt, &c.CreatedAt); err != nil {
			return model.GuestAccessCode{}, fmt.Errorf("scan access code: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(plaintext)) != nil {
			continue
		}
		if tierID.Valid {
			id := uint64(tierID.Int64)
			c.TierID = &id
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			c.ExpiresAt = &t
		}
		return c, nil
	}
	if err := rows.Err(); err != nil {
		return model.GuestAccessCode{}, fmt.Errorf("list access codes: %w", err)
	}
	return model.GuestAccessCode{}, ErrCodeNotFound
}

// ConsumeUse burns one use of a code.  The predicate keeps used_count
// under max_uses in the same statement, so concurrent conversions cannot
// overshoot the limit.
func (r *AccessCodeRepo) ConsumeUse(ctx context.Context, codeID uint64) error {
	const stmt = `UPDATE guest_access_codes SET used_count = used_count + 1
                  WHERE id = ? AND used_count < max_uses`
	res, err := conn(ctx, r.db).ExecContext(ctx, stmt, codeID)
	if err != nil {
		return fmt.Errorf("consume access code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume access code: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, codeID); err != nil {
			return err
		}
		return ErrUsesExhausted
	}
	return nil
}
