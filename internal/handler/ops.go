package handler

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

// SeatCreator adds seats to the ledger.
type SeatCreator interface {
	Create(ctx context.Context, s *model.Seat) error
}

// Sweeper runs one pass of the expiry sweep.
type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// AvailabilityNotifier is told when an event's seat counts change.
type AvailabilityNotifier interface {
	Changed(ctx context.Context, eventID string)
}

// OpsHandler serves back-office endpoints: loading an event's seats and
// forcing an expiry sweep.  Routes require the OPS role.
type OpsHandler struct {
	Seats   SeatCreator
	Sweep   Sweeper
	Changed AvailabilityNotifier
}

func NewOpsHandler(seats SeatCreator, sweep Sweeper, changed AvailabilityNotifier) *OpsHandler {
	if seats == nil || sweep == nil || changed == nil {
		panic("nil dependency passed to NewOpsHandler")
	}
	return &OpsHandler{Seats: seats, Sweep: sweep, Changed: changed}
}

type seatInput struct {
	ID         string `json:"id"`
	SeatNumber string `json:"seat_number"`
	PriceCents uint32 `json:"price_cents"`
}

// CreateSeats handles POST /v1/ops/events/:id/seats.  The body is
// {"seats": [{"seat_number": "A-1", "price_cents": 5000}, ...]}; ids are
// generated when omitted.  Seats are created AVAILABLE.  The response
// lists the created ids; seats inserted before a failure stay in place.
func (h *OpsHandler) CreateSeats(c echo.Context) error {
	eventID, ok := requireParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		Seats []seatInput `json:"seats"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}
	seen := make(map[string]struct{}, len(body.Seats))
	for _, in := range body.Seats {
		num := strings.TrimSpace(in.SeatNumber)
		if num == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_number is required"})
		}
		if _, dup := seen[num]; dup {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "duplicate seat_number " + num})
		}
		seen[num] = struct{}{}
	}

	ctx := c.Request().Context()
	created := make([]string, 0, len(body.Seats))
	defer func() {
		if len(created) > 0 {
			h.Changed.Changed(ctx, eventID)
		}
	}()
	for _, in := range body.Seats {
		s := model.Seat{
			ID:         in.ID,
			EventID:    eventID,
			SeatNumber: strings.TrimSpace(in.SeatNumber),
			PriceCents: in.PriceCents,
			Status:     model.SeatAvailable,
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if err := h.Seats.Create(ctx, &s); err != nil {
			log.Printf("http: create seat %s/%s: %v", eventID, s.SeatNumber, err)
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat " + s.SeatNumber + " could not be created", "created": created})
		}
		created = append(created, s.ID)
	}
	return c.JSON(http.StatusCreated, echo.Map{"eventId": eventID, "created": created})
}

// RunSweep handles POST /v1/ops/sweep and reports how many expired holds
// were released.
func (h *OpsHandler) RunSweep(c echo.Context) error {
	n, err := h.Sweep.RunOnce(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}
