package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/config"
	"github.com/iliyamo/concert-ticket-booking/internal/handler"
	"github.com/iliyamo/concert-ticket-booking/internal/middleware"
	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/service"
)

const secret = "router-secret"

type stubEngine struct{}

func (stubEngine) TryReserve(_ context.Context, userID, seatID string) (model.Hold, error) {
	return model.Hold{ID: "item-1", UserID: userID, SeatID: seatID}, nil
}
func (stubEngine) Release(context.Context, string, string) error { return nil }
func (stubEngine) Cart(context.Context, string) (service.CartView, error) {
	return service.CartView{Items: []service.CartItem{}}, nil
}
func (stubEngine) Enqueue(_ context.Context, userID, seatID string) (model.QueueEntry, error) {
	return model.QueueEntry{ID: "entry-1", UserID: userID, SeatID: seatID, Position: 1}, nil
}
func (stubEngine) Position(context.Context, string) (model.QueueEntry, error) {
	return model.QueueEntry{}, service.ErrQueueEntryNotFound
}
func (stubEngine) QueueSize(context.Context, string) (int64, error) { return 0, nil }
func (stubEngine) CreateOrderFromCart(context.Context, string) (model.Order, error) {
	return model.Order{}, service.ErrEmptyCart
}
func (stubEngine) ListOrders(context.Context, string) ([]model.Order, error) { return nil, nil }
func (stubEngine) GetOrder(context.Context, string, string) (model.Order, error) {
	return model.Order{}, service.ErrOrderNotFound
}
func (stubEngine) Count(context.Context, string) (int, error) { return 7, nil }
func (stubEngine) Create(context.Context, *model.Seat) error  { return nil }
func (stubEngine) RunOnce(context.Context) (int, error)       { return 0, nil }
func (stubEngine) Changed(context.Context, string)            {}

func newServer() *echo.Echo {
	var eng stubEngine
	h := Handlers{
		Reservation:  handler.NewReservationHandler(eng),
		Queue:        handler.NewQueueHandler(eng),
		Orders:       handler.NewOrderHandler(eng),
		Ops:          handler.NewOpsHandler(eng, eng, eng),
		Availability: eng,
		Ready:        map[string]handler.Pinger{},
	}
	e := echo.New()
	RegisterRoutes(e, h)
	RegisterCustomer(e, h, secret, config.RateLimitConfig{}, nil)
	RegisterOps(e, h, secret)
	return e
}

func token(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "role": role}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestRoutes(t *testing.T) {
	e := newServer()
	customer := token(t, middleware.RoleCustomer)
	ops := token(t, middleware.RoleOps)

	cases := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/v1/events/e1/availability", "", http.StatusOK},

		{http.MethodPost, "/v1/seats/s1/reserve", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/seats/s1/reserve", customer, http.StatusCreated},
		{http.MethodPost, "/v1/seats/s1/reserve", ops, http.StatusForbidden},
		{http.MethodPost, "/v1/seats/s1/queue", customer, http.StatusAccepted},
		{http.MethodGet, "/v1/seats/s1/queue/size", customer, http.StatusOK},
		{http.MethodGet, "/v1/queue/entry-1", customer, http.StatusNotFound},
		{http.MethodGet, "/v1/cart", customer, http.StatusOK},
		{http.MethodDelete, "/v1/cart/items/item-1", customer, http.StatusNoContent},
		{http.MethodPost, "/v1/orders", customer, http.StatusBadRequest},
		{http.MethodGet, "/v1/orders", customer, http.StatusOK},
		{http.MethodGet, "/v1/orders/o1", customer, http.StatusNotFound},

		{http.MethodPost, "/v1/ops/sweep", customer, http.StatusForbidden},
		{http.MethodPost, "/v1/ops/sweep", ops, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}
