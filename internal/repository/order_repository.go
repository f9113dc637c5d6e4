package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// OrderRepo provides the checkout transaction and read access to orders
// and their lines.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateOrderFromHolds converts holds into a PENDING order inside a
// single transaction:
//
//  1. lock and price the referenced seats
//  2. insert the order header and one line per hold
//  3. mark each seat SOLD, guarded on status RESERVED
//  4. delete the cart items that backed the holds
//
// ErrConflict is returned (and nothing is written) when a seat is no
// longer RESERVED or a hold row has already disappeared.
func (r *OrderRepo) CreateOrderFromHolds(ctx context.Context, userID string, holds []model.Hold) (model.Order, error) {
	if len(holds) == 0 {
		return model.Order{}, fmt.Errorf("create order: no holds")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seatIDs := make([]interface{}, len(holds))
	holdIDs := make([]interface{}, len(holds))
	for i, h := range holds {
		seatIDs[i] = h.SeatID
		holdIDs[i] = h.ID
	}

	prices := make(map[string]uint32, len(holds))
	rows, err := tx.QueryContext(ctx,
		`SELECT id, price_cents FROM seats WHERE id IN (`+placeholders(len(seatIDs))+`) FOR UPDATE`,
		seatIDs...,
	)
	if err != nil {
		return model.Order{}, err
	}
	for rows.Next() {
		var id string
		var price uint32
		if err := rows.Scan(&id, &price); err != nil {
			rows.Close()
			return model.Order{}, err
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return model.Order{}, err
	}
	rows.Close()

	order := model.Order{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: model.OrderPending,
		Items:  make([]model.OrderItem, 0, len(holds)),
	}
	for _, h := range holds {
		price, ok := prices[h.SeatID]
		if !ok {
			return model.Order{}, ErrSeatNotFound
		}
		order.TotalAmountCents += price
		order.Items = append(order.Items, model.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			SeatID:     h.SeatID,
			PriceCents: price,
		})
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount_cents) VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.Status, order.TotalAmountCents,
	); err != nil {
		return model.Order{}, err
	}

	// Bulk insert the order lines in one statement.
	args := make([]interface{}, 0, len(order.Items)*4)
	values := ""
	for i, it := range order.Items {
		if i > 0 {
			values += ", "
		}
		values += "(?, ?, ?, ?)"
		args = append(args, it.ID, it.OrderID, it.SeatID, it.PriceCents)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, seat_id, price_cents) VALUES `+values,
		args...,
	); err != nil {
		return model.Order{}, err
	}

	for _, h := range holds {
		res, err := tx.ExecContext(ctx,
			`UPDATE seats SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ? AND status = ?`,
			string(model.SeatSold), h.SeatID, string(model.SeatReserved),
		)
		if err != nil {
			return model.Order{}, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return model.Order{}, err
		} else if n != 1 {
			return model.Order{}, fmt.Errorf("seat %s: %w", h.SeatID, ErrConflict)
		}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id IN (`+placeholders(len(holdIDs))+`)`,
		holdIDs...,
	)
	if err != nil {
		return model.Order{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Order{}, err
	} else if n != int64(len(holdIDs)) {
		return model.Order{}, fmt.Errorf("holds removed concurrently: %w", ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	committed = true
	return order, nil
}

// FindOrderForUser loads an order and its lines.  Orders owned by other
// users are reported as ErrOrderNotFound.
func (r *OrderRepo) FindOrderForUser(ctx context.Context, userID, orderID string) (model.Order, error) {
	var o model.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, total_amount_cents, created_at
         FROM orders WHERE id = ? AND user_id = ?`, orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmountCents, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	items, err := r.listItems(ctx, o.ID)
	if err != nil {
		return model.Order{}, err
	}
	o.Items = items
	return o, nil
}

// ListOrdersByUser returns the user's orders newest first, each with its
// lines.
func (r *OrderRepo) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, status, total_amount_cents, created_at
         FROM orders WHERE user_id = ? ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmountCents, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range orders {
		items, err := r.listItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *OrderRepo) listItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, seat_id, price_cents FROM order_items WHERE order_id = ? ORDER BY id`, orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.OrderItem, 0)
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SeatID, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
