package model

import "time"

// Cart is a loose grouping of a user's holds.  A cart is created lazily
// the first time the user holds a seat and is never deleted; holds come
// and go underneath it.
type Cart struct {
	ID        string    // carts.id
	UserID    string    // carts.user_id (unique)
	CreatedAt time.Time // carts.created_at
}

// Hold represents a user's temporary claim on a seat (a cart item).  At
// most one hold references a seat at any time.  A hold disappears when
// it is released by the user, swept after ReservedUntil, or converted
// into an order line at checkout.
//
// Fields:
//  ID            – primary key identifier (the cart item id).
//  CartID        – owning cart.
//  UserID        – owner of the cart, resolved through the carts table.
//  SeatID        – seat being held.
//  ReservedUntil – absolute deadline after which the hold is expired.
//  CreatedAt     – when the hold was created.
type Hold struct {
	ID            string    // cart_items.id
	CartID        string    // cart_items.cart_id
	UserID        string    // carts.user_id
	SeatID        string    // cart_items.seat_id
	ReservedUntil time.Time // cart_items.reserved_until
	CreatedAt     time.Time // cart_items.created_at
}

// Expired reports whether the hold's deadline is at or before now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ReservedUntil.After(now)
}

// ReservationRecord mirrors the key fields of a hold in the lock store
// under a key derived from the seat id.  Read paths use it to answer
// "time left" without touching the ledger.
type ReservationRecord struct {
	CartItemID    string    `json:"cartItemId"`
	UserID        string    `json:"userId"`
	ReservedUntil time.Time `json:"reservedUntil"`
}

// TimeLeft returns the whole seconds remaining until the deadline,
// clamped at zero.
func (r ReservationRecord) TimeLeft(now time.Time) int64 {
	left := r.ReservedUntil.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}
