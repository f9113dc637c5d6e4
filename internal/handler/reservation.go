package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/service"
)

// Reserver is the part of the reservation engine the cart endpoints use.
type Reserver interface {
	TryReserve(ctx context.Context, userID, seatID string) (model.Hold, error)
	Release(ctx context.Context, userID, holdID string) error
	Cart(ctx context.Context, userID string) (service.CartView, error)
}

// ReservationHandler serves direct reservations and the cart.  All
// methods assume JWTAuth has run.
type ReservationHandler struct {
	Res Reserver
}

// NewReservationHandler panics on a nil engine, like every constructor in
// this package.
func NewReservationHandler(res Reserver) *ReservationHandler {
	if res == nil {
		panic("nil reserver passed to NewReservationHandler")
	}
	return &ReservationHandler{Res: res}
}

type holdResponse struct {
	CartItemID    string    `json:"cartItemId"`
	SeatID        string    `json:"seatId"`
	ReservedUntil time.Time `json:"reservedUntil"`
}

// Reserve handles POST /v1/seats/:id/reserve.  It returns 201 with the
// hold, or 409 when the seat is busy or no longer available.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	seatID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	hold, err := h.Res.TryReserve(c.Request().Context(), userID, seatID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, holdResponse{
		CartItemID:    hold.ID,
		SeatID:        hold.SeatID,
		ReservedUntil: hold.ReservedUntil,
	})
}

// GetCart handles GET /v1/cart.
func (h *ReservationHandler) GetCart(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	view, err := h.Res.Cart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ReleaseItem handles DELETE /v1/cart/items/:id.  Releasing a hold that
// belongs to someone else reports 404.
func (h *ReservationHandler) ReleaseItem(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid cart item id"})
	}
	if err := h.Res.Release(c.Request().Context(), userID, holdID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
