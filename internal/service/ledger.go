package service

import (
	"context"
	"time"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// SeatLedger is the durable record of seat status.
type SeatLedger interface {
	FindSeat(ctx context.Context, id string) (model.Seat, error)
	UpdateSeatStatus(ctx context.Context, id string, status model.SeatStatus) error
	CompareAndSetSeatStatus(ctx context.Context, id string, from, to model.SeatStatus) (bool, error)
	CountSeatsByStatus(ctx context.Context, eventID string, status model.SeatStatus) (int, error)
}

// HoldLedger stores carts and the holds inside them.
type HoldLedger interface {
	GetOrCreateCart(ctx context.Context, userID string) (model.Cart, error)
	FindCartByUser(ctx context.Context, userID string) (model.Cart, error)
	CreateHold(ctx context.Context, cartID, seatID string, reservedUntil time.Time) (model.Hold, error)
	FindHold(ctx context.Context, id string) (model.Hold, error)
	ListHoldsByCart(ctx context.Context, cartID string) ([]model.Hold, error)
	FindHoldsExpiredBefore(ctx context.Context, t time.Time) ([]model.Hold, error)
	DeleteHold(ctx context.Context, id string) (bool, error)
}

// QueueLedger stores queue entries.
type QueueLedger interface {
	CreateQueueEntry(ctx context.Context, userID, seatID string, position int64) (model.QueueEntry, error)
	FindQueueEntry(ctx context.Context, id string) (model.QueueEntry, error)
	UpdateQueueEntryStatus(ctx context.Context, id string, status model.QueueStatus) error
}

// OrderLedger runs the checkout transaction and reads orders back.
type OrderLedger interface {
	CreateOrderFromHolds(ctx context.Context, userID string, holds []model.Hold) (model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	FindOrderForUser(ctx context.Context, userID, orderID string) (model.Order, error)
}

// Ledger is everything the engine needs from the relational store.
// *repository.Ledger satisfies it.
type Ledger interface {
	SeatLedger
	HoldLedger
	QueueLedger
	OrderLedger
}
