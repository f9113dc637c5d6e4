package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// HoldRepo provides data access to the carts and cart_items tables.  A
// cart item is a hold: a time-bounded claim on one seat.  All methods
// behave with respect to UTC timestamps – callers must ensure that
// expiration comparisons are performed in UTC.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// holdColumns selects a hold together with the owning user so that
// callers never need a second lookup to notify the holder.
const holdColumns = `SELECT ci.id, ci.cart_id, c.user_id, ci.seat_id, ci.reserved_until, ci.created_at
                     FROM cart_items ci
                     JOIN carts c ON c.id = ci.cart_id`

// GetOrCreateCart returns the user's cart, creating it on first use.
// The unique index on carts.user_id makes concurrent first calls
// converge on a single row.
func (r *HoldRepo) GetOrCreateCart(ctx context.Context, userID string) (model.Cart, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO carts (id, user_id) VALUES (?, ?)`,
		uuid.NewString(), userID,
	); err != nil {
		return model.Cart{}, err
	}
	return r.FindCartByUser(ctx, userID)
}

// FindCartByUser returns the cart owned by the user or ErrCartNotFound.
func (r *HoldRepo) FindCartByUser(ctx context.Context, userID string) (model.Cart, error) {
	var c model.Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cart{}, ErrCartNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return c, nil
}

// CreateHold inserts a cart item for the seat and returns it with the
// owner resolved.  The unique index on cart_items.seat_id rejects a
// second hold on the same seat.
func (r *HoldRepo) CreateHold(ctx context.Context, cartID, seatID string, reservedUntil time.Time) (model.Hold, error) {
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, cart_id, seat_id, reserved_until) VALUES (?, ?, ?, ?)`,
		id, cartID, seatID, reservedUntil.UTC(),
	); err != nil {
		return model.Hold{}, err
	}
	return r.FindHold(ctx, id)
}

// FindHold returns the hold with the given ID or ErrHoldNotFound.
func (r *HoldRepo) FindHold(ctx context.Context, id string) (model.Hold, error) {
	row := r.db.QueryRowContext(ctx, holdColumns+` WHERE ci.id = ?`, id)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, ErrHoldNotFound
	}
	return h, err
}

// ListHoldsByCart returns every hold in the cart ordered by creation
// time.  Expired holds that have not been swept yet are included.
func (r *HoldRepo) ListHoldsByCart(ctx context.Context, cartID string) ([]model.Hold, error) {
	return r.queryHolds(ctx, holdColumns+` WHERE ci.cart_id = ? ORDER BY ci.created_at, ci.id`, cartID)
}

// FindHoldsExpiredBefore returns the holds whose deadline is strictly
// before t.  The reserved_until index keeps this proportional to the
// number of expired rows.
func (r *HoldRepo) FindHoldsExpiredBefore(ctx context.Context, t time.Time) ([]model.Hold, error) {
	return r.queryHolds(ctx, holdColumns+` WHERE ci.reserved_until < ? ORDER BY ci.reserved_until`, t.UTC())
}

// DeleteHold removes a hold.  It reports false when the row was already
// gone, which callers treat as an idempotent success.
func (r *HoldRepo) DeleteHold(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *HoldRepo) queryHolds(ctx context.Context, q string, args ...interface{}) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	holds := make([]model.Hold, 0)
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHold(s rowScanner) (model.Hold, error) {
	var h model.Hold
	if err := s.Scan(&h.ID, &h.CartID, &h.UserID, &h.SeatID, &h.ReservedUntil, &h.CreatedAt); err != nil {
		return model.Hold{}, err
	}
	h.ReservedUntil = h.ReservedUntil.UTC()
	return h, nil
}

// placeholders returns "?, ?, ..." with n markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
