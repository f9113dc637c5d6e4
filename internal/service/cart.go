package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/concert-ticket-booking/internal/repository"
)

// CartItem is one hold as shown to its owner.
type CartItem struct {
	CartItemID      string    `json:"cartItemId"`
	SeatID          string    `json:"seatId"`
	EventID         string    `json:"eventId"`
	SeatNumber      string    `json:"seatNumber"`
	PriceCents      uint32    `json:"priceCents"`
	ReservedUntil   time.Time `json:"reservedUntil"`
	TimeLeftSeconds int64     `json:"timeLeftSeconds"`
}

// CartView is the user's cart with time left on every hold.
type CartView struct {
	CartID     string     `json:"cartId,omitempty"`
	Items      []CartItem `json:"items"`
	TotalCents uint32     `json:"totalCents"`
}

// Cart lists the user's holds.  Time left comes from the reservation
// mirror; a user without a cart gets an empty view.
func (m *ReservationManager) Cart(ctx context.Context, userID string) (CartView, error) {
	view := CartView{Items: []CartItem{}}
	cart, err := m.ledger.FindCartByUser(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return view, nil
	}
	if err != nil {
		return CartView{}, err
	}
	view.CartID = cart.ID

	holds, err := m.ledger.ListHoldsByCart(ctx, cart.ID)
	if err != nil {
		return CartView{}, err
	}
	now := m.now()
	for _, h := range holds {
		seat, err := m.ledger.FindSeat(ctx, h.SeatID)
		if err != nil {
			return CartView{}, err
		}
		rec := m.mirror(ctx, h)
		view.Items = append(view.Items, CartItem{
			CartItemID:      h.ID,
			SeatID:          seat.ID,
			EventID:         seat.EventID,
			SeatNumber:      seat.SeatNumber,
			PriceCents:      seat.PriceCents,
			ReservedUntil:   rec.ReservedUntil,
			TimeLeftSeconds: rec.TimeLeft(now),
		})
		view.TotalCents += seat.PriceCents
	}
	return view, nil
}
