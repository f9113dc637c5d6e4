package model

import "time"

// SeatStatus is the sale state of a seat as recorded by the seat ledger.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE" // free to reserve or enqueue
	SeatInQueue   SeatStatus = "IN_QUEUE"  // a queue entry is waiting for promotion
	SeatReserved  SeatStatus = "RESERVED"  // backed by exactly one active hold
	SeatSold      SeatStatus = "SOLD"      // terminal
)

// Seat describes one bookable unit of an event.  Seats are identified
// by a flat identifier; venue layout is not modelled.  The status
// column is owned by the seat ledger and is only changed through the
// reservation engine while the seat's lock is held.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – event (concert) the seat belongs to.
//  SeatNumber – human readable label printed on the ticket.
//  PriceCents – price of the seat in cents.
//  Status     – sale status (AVAILABLE, IN_QUEUE, RESERVED, SOLD).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – timestamp of last update.
type Seat struct {
	ID         string     // seats.id
	EventID    string     // seats.event_id
	SeatNumber string     // seats.seat_number
	PriceCents uint32     // seats.price_cents
	Status     SeatStatus // seats.status
	CreatedAt  time.Time  // seats.created_at
	UpdatedAt  time.Time  // seats.updated_at
}
