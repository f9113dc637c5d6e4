package service

import (
	"context"
	"errors"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
	"github.com/iliyamo/concert-ticket-booking/internal/repository"
)

// Checkout turns a user's cart into an order and reads orders back.
type Checkout struct {
	res *ReservationManager
}

// NewCheckout returns a Checkout backed by the reservation manager.
func NewCheckout(res *ReservationManager) *Checkout {
	return &Checkout{res: res}
}

// CreateOrderFromCart sells every hold in the user's cart as one order.
func (c *Checkout) CreateOrderFromCart(ctx context.Context, userID string) (model.Order, error) {
	m := c.res
	cart, err := m.ledger.FindCartByUser(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return model.Order{}, ErrEmptyCart
	}
	if err != nil {
		return model.Order{}, err
	}
	holds, err := m.ledger.ListHoldsByCart(ctx, cart.ID)
	if err != nil {
		return model.Order{}, err
	}
	if len(holds) == 0 {
		return model.Order{}, ErrEmptyCart
	}
	ids := make([]string, len(holds))
	for i, h := range holds {
		ids[i] = h.ID
	}

	order, err := m.ConfirmSale(ctx, userID, ids)
	if err != nil {
		return model.Order{}, err
	}
	m.sink.Emit(ctx, notify.Event{
		Type:   notify.OrderStatus,
		UserID: userID,
		At:     m.now(),
		Payload: map[string]interface{}{
			"orderId":          order.ID,
			"status":           order.Status,
			"totalAmountCents": order.TotalAmountCents,
		},
	})
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (c *Checkout) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return c.res.ledger.ListOrdersByUser(ctx, userID)
}

// GetOrder returns one of the user's orders or ErrOrderNotFound.
func (c *Checkout) GetOrder(ctx context.Context, userID, orderID string) (model.Order, error) {
	return c.res.ledger.FindOrderForUser(ctx, userID, orderID)
}
