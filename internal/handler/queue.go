package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// Queuer is the part of the queue manager the queue endpoints use.
type Queuer interface {
	Enqueue(ctx context.Context, userID, seatID string) (model.QueueEntry, error)
	Position(ctx context.Context, entryID string) (model.QueueEntry, error)
	QueueSize(ctx context.Context, seatID string) (int64, error)
}

// QueueHandler lets users wait in line for a seat.
type QueueHandler struct {
	Queue Queuer
}

func NewQueueHandler(q Queuer) *QueueHandler {
	if q == nil {
		panic("nil queue passed to NewQueueHandler")
	}
	return &QueueHandler{Queue: q}
}

// Enqueue handles POST /v1/seats/:id/queue and answers 202: the seat is
// taken out of the pool now and the hold is created by a later promotion.
func (h *QueueHandler) Enqueue(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	seatID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	entry, err := h.Queue.Enqueue(c.Request().Context(), userID, seatID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, entry)
}

// Size handles GET /v1/seats/:id/queue/size.
func (h *QueueHandler) Size(c echo.Context) error {
	seatID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	n, err := h.Queue.QueueSize(c.Request().Context(), seatID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seatId": seatID, "size": n})
}

// Position handles GET /v1/queue/:id.  Entries are only visible to the
// user who created them.
func (h *QueueHandler) Position(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	entryID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid queue entry id"})
	}
	entry, err := h.Queue.Position(c.Request().Context(), entryID)
	if err != nil {
		return writeError(c, err)
	}
	if entry.UserID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "queue entry not found"})
	}
	return c.JSON(http.StatusOK, entry)
}
