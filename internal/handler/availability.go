package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Counter reports how many seats of an event are AVAILABLE.
type Counter interface {
	Count(ctx context.Context, eventID string) (int, error)
}

// Availability handles the public GET /v1/events/:id/availability.
func Availability(counter Counter) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID, ok := requireParam(c, "id")
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
		}
		n, err := counter.Count(c.Request().Context(), eventID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"eventId": eventID, "availableCount": n})
	}
}
