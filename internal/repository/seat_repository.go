package repository // repository defines data access for the seat ledger

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors for sql.ErrNoRows comparisons

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// SeatRepo provides access to the seats table, which is the durable
// source of truth for a seat's sale status.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// Create inserts a single seat.  The seat's ID must already be set.
// Status defaults to AVAILABLE when empty.
func (r *SeatRepo) Create(ctx context.Context, s *model.Seat) error {
	if s.Status == "" {
		s.Status = model.SeatAvailable
	}
	const q = `INSERT INTO seats (id, event_id, seat_number, price_cents, status) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.EventID, s.SeatNumber, s.PriceCents, string(s.Status))
	return err
}

// FindSeat returns the seat with the given ID or ErrSeatNotFound.
func (r *SeatRepo) FindSeat(ctx context.Context, id string) (model.Seat, error) {
	const q = `SELECT id, event_id, seat_number, price_cents, status, created_at, updated_at
	           FROM seats WHERE id = ?`
	var s model.Seat
	var status string
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.SeatNumber, &s.PriceCents, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Seat{}, ErrSeatNotFound
	}
	if err != nil {
		return model.Seat{}, err
	}
	s.Status = model.SeatStatus(status)
	return s, nil
}

// UpdateSeatStatus overwrites the status of a seat.  The reservation
// engine only calls it while holding the seat's lock.
func (r *SeatRepo) UpdateSeatStatus(ctx context.Context, id string, status model.SeatStatus) error {
	const q = `UPDATE seats SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, string(status), id)
	return err
}

// CompareAndSetSeatStatus moves a seat from one status to another only
// if it is currently in the expected status.  It reports whether the
// row was changed.
func (r *SeatRepo) CompareAndSetSeatStatus(ctx context.Context, id string, from, to model.SeatStatus) (bool, error) {
	const q = `UPDATE seats SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountSeatsByStatus counts the seats of an event in the given status.
func (r *SeatRepo) CountSeatsByStatus(ctx context.Context, eventID string, status model.SeatStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE event_id = ? AND status = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, eventID, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
