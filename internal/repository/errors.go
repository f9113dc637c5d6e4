// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// reservation engine and handlers to distinguish between different
// failure scenarios with errors.Is.
package repository

import "errors"

// ErrSeatNotFound is returned when a seat lookup yields no rows.
var ErrSeatNotFound = errors.New("seat not found")

// ErrCartNotFound is returned when the user has never held a seat.
var ErrCartNotFound = errors.New("cart not found")

// ErrHoldNotFound is returned when a cart item does not exist.  Callers
// also use it when the cart item exists but belongs to another cart.
var ErrHoldNotFound = errors.New("hold not found")

// ErrQueueEntryNotFound is returned when a queue entry lookup yields no rows.
var ErrQueueEntryNotFound = errors.New("queue entry not found")

// ErrOrderNotFound is returned when an order does not exist for the user.
var ErrOrderNotFound = errors.New("order not found")

// ErrConflict is returned when a write cannot be applied because the
// rows it depends on changed underneath it, such as a seat that is no
// longer RESERVED when an order is created from its hold.  The
// surrounding transaction is rolled back.
var ErrConflict = errors.New("conflict")
