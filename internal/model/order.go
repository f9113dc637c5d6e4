package model

import "time"

// Order statuses.  Orders are created PENDING; payment is handled
// elsewhere.
const (
	OrderPending = "PENDING"
	OrderPaid    = "PAID"
)

// Order records a user's purchase of one or more seats.  It is created
// in the same transaction that marks the seats SOLD and removes the
// holds that backed them.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – purchaser.
//  Status           – PENDING or PAID.
//  TotalAmountCents – sum of the line prices.
//  Items            – one line per sold seat.
//  CreatedAt        – creation timestamp.
type Order struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	Status           string      `json:"status"`
	TotalAmountCents uint32      `json:"totalAmountCents"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// OrderItem links an order to a sold seat and the price paid for it.
type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"orderId"`
	SeatID     string `json:"seatId"`
	PriceCents uint32 `json:"priceCents"`
}
