package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

var entryColumns = []string{"id", "user_id", "seat_id", "position", "status", "created_at", "updated_at"}

func TestCreateQueueEntry(t *testing.T) {
	ctx := context.Background()
	l, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO queue_entries (id, user_id, seat_id, position, status) VALUES (?, ?, ?, ?, ?)`)).
		WithArgs(sqlmock.AnyArg(), "alice", "s1", int64(4), "WAITING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM queue_entries WHERE id = ?`)).
		WillReturnRows(sqlmock.NewRows(entryColumns).AddRow("e1", "alice", "s1", 4, "WAITING", now, now))

	e, err := l.CreateQueueEntry(ctx, "alice", "s1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.Position)
	assert.Equal(t, model.QueueWaiting, e.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueueEntryStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	update := regexp.QuoteMeta(`UPDATE queue_entries SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ?`)

	t.Run("updated", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectExec(update).WithArgs("PROCESSING", "e1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, l.UpdateQueueEntryStatus(ctx, "e1", model.QueueProcessing))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged row", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectExec(update).WithArgs("FAILED", "e1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM queue_entries WHERE id = ?`)).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(entryColumns).AddRow("e1", "alice", "s1", 1, "FAILED", now, now))
		require.NoError(t, l.UpdateQueueEntryStatus(ctx, "e1", model.QueueFailed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectExec(update).WithArgs("FAILED", "ghost").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM queue_entries WHERE id = ?`)).WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(entryColumns))
		err := l.UpdateQueueEntryStatus(ctx, "ghost", model.QueueFailed)
		assert.ErrorIs(t, err, ErrQueueEntryNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
