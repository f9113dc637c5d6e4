package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/service"
)

type stubReserver struct {
	hold     model.Hold
	err      error
	released []string
	cart     service.CartView
}

func (s *stubReserver) TryReserve(_ context.Context, userID, seatID string) (model.Hold, error) {
	if s.err != nil {
		return model.Hold{}, s.err
	}
	h := s.hold
	h.UserID, h.SeatID = userID, seatID
	return h, nil
}

func (s *stubReserver) Release(_ context.Context, userID, holdID string) error {
	if s.err != nil {
		return s.err
	}
	s.released = append(s.released, userID+"/"+holdID)
	return nil
}

func (s *stubReserver) Cart(context.Context, string) (service.CartView, error) { return s.cart, s.err }

// call runs h with the path params set and, when user is not empty, an
// authenticated user in the context.
func call(t *testing.T, h echo.HandlerFunc, method, body, user string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if user != "" {
		c.Set("user_id", user)
	}
	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReserve(t *testing.T) {
	until := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	res := &stubReserver{hold: model.Hold{ID: "item-1", ReservedUntil: until}}
	h := NewReservationHandler(res)

	rec := call(t, h.Reserve, http.MethodPost, "", "alice", "id", "s1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "item-1", body["cartItemId"])
	assert.Equal(t, "s1", body["seatId"])
	assert.Equal(t, "2025-06-01T12:15:00Z", body["reservedUntil"])

	rec = call(t, h.Reserve, http.MethodPost, "", "", "id", "s1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReserveErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrContended, http.StatusConflict},
		{service.ErrSeatUnavailable, http.StatusConflict},
		{service.ErrSeatNotFound, http.StatusNotFound},
		{errors.New("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := NewReservationHandler(&stubReserver{err: tc.err})
			rec := call(t, h.Reserve, http.MethodPost, "", "alice", "id", "s1")
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusInternalServerError {
				assert.Equal(t, "internal error", decode(t, rec)["error"])
			}
		})
	}
}

func TestReleaseItem(t *testing.T) {
	res := &stubReserver{}
	h := NewReservationHandler(res)
	rec := call(t, h.ReleaseItem, http.MethodDelete, "", "alice", "id", "item-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"alice/item-1"}, res.released)

	res.err = service.ErrHoldNotFound
	rec = call(t, h.ReleaseItem, http.MethodDelete, "", "alice", "id", "item-9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCart(t *testing.T) {
	res := &stubReserver{cart: service.CartView{
		CartID:     "cart-1",
		Items:      []service.CartItem{{CartItemID: "item-1", SeatID: "s1", PriceCents: 5000, TimeLeftSeconds: 600}},
		TotalCents: 5000,
	}}
	rec := call(t, NewReservationHandler(res).GetCart, http.MethodGet, "", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "cart-1", body["cartId"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(600), items[0].(map[string]interface{})["timeLeftSeconds"])
}

type stubQueue struct {
	entry model.QueueEntry
	size  int64
	err   error
}

func (s *stubQueue) Enqueue(_ context.Context, userID, seatID string) (model.QueueEntry, error) {
	e := s.entry
	e.UserID, e.SeatID = userID, seatID
	return e, s.err
}
func (s *stubQueue) Position(context.Context, string) (model.QueueEntry, error) { return s.entry, s.err }
func (s *stubQueue) QueueSize(context.Context, string) (int64, error)          { return s.size, s.err }

func TestQueueEndpoints(t *testing.T) {
	q := &stubQueue{entry: model.QueueEntry{ID: "entry-1", UserID: "alice", Position: 3, Status: model.QueueWaiting}, size: 3}
	h := NewQueueHandler(q)

	rec := call(t, h.Enqueue, http.MethodPost, "", "alice", "id", "s1")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["position"])

	rec = call(t, h.Size, http.MethodGet, "", "alice", "id", "s1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["size"])

	rec = call(t, h.Position, http.MethodGet, "", "alice", "id", "entry-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WAITING", decode(t, rec)["status"])

	rec = call(t, h.Position, http.MethodGet, "", "bob", "id", "entry-1")
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users' entries are hidden")
}

type stubOrders struct {
	order model.Order
	err   error
}

func (s *stubOrders) CreateOrderFromCart(context.Context, string) (model.Order, error) {
	return s.order, s.err
}
func (s *stubOrders) ListOrders(context.Context, string) ([]model.Order, error) {
	return []model.Order{s.order}, s.err
}
func (s *stubOrders) GetOrder(context.Context, string, string) (model.Order, error) {
	return s.order, s.err
}

func TestOrderEndpoints(t *testing.T) {
	o := &stubOrders{order: model.Order{ID: "order-1", UserID: "alice", Status: model.OrderPending, TotalAmountCents: 9000}}
	h := NewOrderHandler(o)

	rec := call(t, h.Create, http.MethodPost, "", "alice")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "order-1", decode(t, rec)["id"])

	rec = call(t, h.List, http.MethodGet, "", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["orders"], 1)

	o.err = service.ErrEmptyCart
	rec = call(t, h.Create, http.MethodPost, "", "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	o.err = service.ErrExpiredHold
	rec = call(t, h.Create, http.MethodPost, "", "alice")
	assert.Equal(t, http.StatusConflict, rec.Code)

	o.err = service.ErrOrderNotFound
	rec = call(t, h.Get, http.MethodGet, "", "alice", "id", "order-9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type counterFunc func(ctx context.Context, eventID string) (int, error)

func (f counterFunc) Count(ctx context.Context, eventID string) (int, error) { return f(ctx, eventID) }

func TestAvailability(t *testing.T) {
	h := Availability(counterFunc(func(_ context.Context, eventID string) (int, error) {
		assert.Equal(t, "e1", eventID)
		return 42, nil
	}))
	rec := call(t, h, http.MethodGet, "", "", "id", "e1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), decode(t, rec)["availableCount"])
}

func TestReady(t *testing.T) {
	ok := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	rec := call(t, Ready(map[string]Pinger{"mysql": ok, "redis": ok}), http.MethodGet, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Ready(map[string]Pinger{"mysql": ok, "redis": down}), http.MethodGet, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["failed"], "redis")
}
