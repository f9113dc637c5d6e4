package model

import "time"

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	QueueWaiting    QueueStatus = "WAITING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueFailed     QueueStatus = "FAILED"
)

// QueueEntry is a user's place in line for a contended seat.  Position
// is 1-based and comes from an atomic per-seat counter in the lock
// store, so positions are never reused even when entries are deleted.
type QueueEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	SeatID    string      `json:"seatId"`
	Position  int64       `json:"position"`
	Status    QueueStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
