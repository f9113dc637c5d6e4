package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// QueueEntryRepo persists waiting-line records for contended seats.
// Positions are assigned by the caller from the lock store counter; the
// table only records them.
type QueueEntryRepo struct {
	db *sql.DB
}

// NewQueueEntryRepo returns a QueueEntryRepo bound to db.
func NewQueueEntryRepo(db *sql.DB) *QueueEntryRepo { return &QueueEntryRepo{db: db} }

// CreateQueueEntry inserts a WAITING entry for the user at the given
// position and returns the stored row.
func (r *QueueEntryRepo) CreateQueueEntry(ctx context.Context, userID, seatID string, position int64) (model.QueueEntry, error) {
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO queue_entries (id, user_id, seat_id, position, status) VALUES (?, ?, ?, ?, ?)`,
		id, userID, seatID, position, string(model.QueueWaiting),
	); err != nil {
		return model.QueueEntry{}, err
	}
	return r.FindQueueEntry(ctx, id)
}

// FindQueueEntry returns the entry or ErrQueueEntryNotFound.
func (r *QueueEntryRepo) FindQueueEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	var e model.QueueEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, seat_id, position, status, created_at, updated_at
         FROM queue_entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.UserID, &e.SeatID, &e.Position, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueEntry{}, ErrQueueEntryNotFound
	}
	if err != nil {
		return model.QueueEntry{}, err
	}
	return e, nil
}

// UpdateQueueEntryStatus moves an entry to status.  Writing the same
// status twice is not an error.
func (r *QueueEntryRepo) UpdateQueueEntryStatus(ctx context.Context, id string, status model.QueueStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queue_entries SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 when the row exists but nothing changed, so
		// only a missing row is an error.
		if _, err := r.FindQueueEntry(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
