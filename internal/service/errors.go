package service

import (
	"errors"

	"github.com/iliyamo/concert-ticket-booking/internal/repository"
)

// Errors returned by the reservation engine.  Handlers map them to 4xx
// responses; anything else is an infrastructure failure.
var (
	ErrContended         = errors.New("seat is being processed by another request")
	ErrSeatUnavailable   = errors.New("seat is not available")
	ErrExpiredHold       = errors.New("reservation has expired")
	ErrInconsistentState = errors.New("reservation mirror diverges from hold")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrIllegalTransition = errors.New("illegal seat status transition")

	ErrSeatNotFound       = repository.ErrSeatNotFound
	ErrHoldNotFound       = repository.ErrHoldNotFound
	ErrQueueEntryNotFound = repository.ErrQueueEntryNotFound
	ErrOrderNotFound      = repository.ErrOrderNotFound
)
