package handler // handler defines the HTTP handlers of the ticketing API

import (
	"errors"   // errors.Is matches the service taxonomy
	"log"      // log records unexpected failures
	"net/http" // HTTP status codes

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticket-booking/internal/middleware"
	"github.com/iliyamo/concert-ticket-booking/internal/service"
)

var errUnauthenticated = errors.New("unauthorized")

// getUserID returns the authenticated user's id set by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return "", errUnauthenticated
	}
	return id, nil
}

// statusFor maps engine errors to HTTP status codes.  Anything not in the
// taxonomy is a server error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrContended),
		errors.Is(err, service.ErrSeatUnavailable),
		errors.Is(err, service.ErrExpiredHold):
		return http.StatusConflict
	case errors.Is(err, service.ErrSeatNotFound),
		errors.Is(err, service.ErrHoldNotFound),
		errors.Is(err, service.ErrQueueEntryNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": "..."}.  Server errors are logged
// and their details withheld from the client.
func writeError(c echo.Context, err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(code, echo.Map{"error": "internal error"})
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}

// requireParam returns the named path parameter; false when it is empty.
func requireParam(c echo.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		return "", false
	}
	return v, true
}
