package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/jobs"
	"github.com/iliyamo/concert-ticket-booking/internal/lockstore"
	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
	"github.com/iliyamo/concert-ticket-booking/internal/repository"
)

// fakeLedger is an in-memory Ledger.  CreateOrderFromHolds applies the
// same guards as the MySQL transaction.
type fakeLedger struct {
	mu      sync.Mutex
	seq     int
	seats   map[string]model.Seat
	carts   map[string]model.Cart // by user id
	holds   map[string]model.Hold
	entries map[string]model.QueueEntry
	orders  []model.Order

	createHoldErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		seats:   make(map[string]model.Seat),
		carts:   make(map[string]model.Cart),
		holds:   make(map[string]model.Hold),
		entries: make(map[string]model.QueueEntry),
	}
}

func (f *fakeLedger) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeLedger) addSeat(id, eventID string, price uint32, status model.SeatStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[id] = model.Seat{ID: id, EventID: eventID, SeatNumber: "N-" + id, PriceCents: price, Status: status}
}

func (f *fakeLedger) status(id string) model.SeatStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[id].Status
}

func (f *fakeLedger) holdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.holds)
}

func (f *fakeLedger) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeLedger) entry(id string) model.QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id]
}

func (f *fakeLedger) FindSeat(_ context.Context, id string) (model.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.seats[id]
	if !ok {
		return model.Seat{}, repository.ErrSeatNotFound
	}
	return s, nil
}

func (f *fakeLedger) UpdateSeatStatus(_ context.Context, id string, status model.SeatStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.seats[id]
	if !ok {
		return repository.ErrSeatNotFound
	}
	s.Status = status
	f.seats[id] = s
	return nil
}

func (f *fakeLedger) CompareAndSetSeatStatus(_ context.Context, id string, from, to model.SeatStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.seats[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	f.seats[id] = s
	return true, nil
}

func (f *fakeLedger) CountSeatsByStatus(_ context.Context, eventID string, status model.SeatStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.seats {
		if s.EventID == eventID && s.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) GetOrCreateCart(_ context.Context, userID string) (model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[userID]; ok {
		return c, nil
	}
	c := model.Cart{ID: f.nextID("cart"), UserID: userID}
	f.carts[userID] = c
	return c, nil
}

func (f *fakeLedger) FindCartByUser(_ context.Context, userID string) (model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return model.Cart{}, repository.ErrCartNotFound
	}
	return c, nil
}

func (f *fakeLedger) userOfCart(cartID string) string {
	for _, c := range f.carts {
		if c.ID == cartID {
			return c.UserID
		}
	}
	return ""
}

func (f *fakeLedger) CreateHold(_ context.Context, cartID, seatID string, until time.Time) (model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createHoldErr != nil {
		return model.Hold{}, f.createHoldErr
	}
	for _, h := range f.holds {
		if h.SeatID == seatID {
			return model.Hold{}, errors.New("duplicate entry for cart_items.seat_id")
		}
	}
	h := model.Hold{ID: f.nextID("hold"), CartID: cartID, UserID: f.userOfCart(cartID), SeatID: seatID, ReservedUntil: until}
	f.holds[h.ID] = h
	return h, nil
}

func (f *fakeLedger) FindHold(_ context.Context, id string) (model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok {
		return model.Hold{}, repository.ErrHoldNotFound
	}
	return h, nil
}

func (f *fakeLedger) ListHoldsByCart(_ context.Context, cartID string) ([]model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Hold{}
	for _, h := range f.holds {
		if h.CartID == cartID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) FindHoldsExpiredBefore(_ context.Context, t time.Time) ([]model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Hold{}
	for _, h := range f.holds {
		if h.ReservedUntil.Before(t) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) DeleteHold(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.holds[id]
	delete(f.holds, id)
	return ok, nil
}

func (f *fakeLedger) CreateQueueEntry(_ context.Context, userID, seatID string, position int64) (model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := model.QueueEntry{ID: f.nextID("entry"), UserID: userID, SeatID: seatID, Position: position, Status: model.QueueWaiting}
	f.entries[e.ID] = e
	return e, nil
}

func (f *fakeLedger) FindQueueEntry(_ context.Context, id string) (model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return model.QueueEntry{}, repository.ErrQueueEntryNotFound
	}
	return e, nil
}

func (f *fakeLedger) UpdateQueueEntryStatus(_ context.Context, id string, status model.QueueStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return repository.ErrQueueEntryNotFound
	}
	e.Status = status
	f.entries[id] = e
	return nil
}

func (f *fakeLedger) CreateOrderFromHolds(_ context.Context, userID string, holds []model.Hold) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range holds {
		if _, ok := f.holds[h.ID]; !ok {
			return model.Order{}, repository.ErrConflict
		}
		if f.seats[h.SeatID].Status != model.SeatReserved {
			return model.Order{}, repository.ErrConflict
		}
	}
	o := model.Order{ID: f.nextID("order"), UserID: userID, Status: model.OrderPending}
	for _, h := range holds {
		s := f.seats[h.SeatID]
		s.Status = model.SeatSold
		f.seats[h.SeatID] = s
		delete(f.holds, h.ID)
		o.TotalAmountCents += s.PriceCents
		o.Items = append(o.Items, model.OrderItem{ID: f.nextID("item"), OrderID: o.ID, SeatID: s.ID, PriceCents: s.PriceCents})
	}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeLedger) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Order{}
	for i := len(f.orders) - 1; i >= 0; i-- {
		if f.orders[i].UserID == userID {
			out = append(out, f.orders[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) FindOrderForUser(_ context.Context, userID, orderID string) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == orderID && o.UserID == userID {
			return o, nil
		}
	}
	return model.Order{}, repository.ErrOrderNotFound
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Emit(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	ledger *fakeLedger
	mr     *miniredis.Miniredis
	store  *lockstore.RedisStore
	sink   *recordingSink
	clock  *fakeClock
	runner *jobs.LocalRunner
	res    *ReservationManager
	queue  *QueueManager
	cfg    Config
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QueueDelayUnit = time.Millisecond
	cfg.QueueBackoff = jobs.Backoff{Initial: time.Millisecond, Factor: 2, Max: 10 * time.Millisecond}
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &harness{
		ledger: newFakeLedger(),
		mr:     mr,
		store:  lockstore.NewRedisStore(rdb),
		sink:   &recordingSink{},
		clock:  &fakeClock{t: t0},
		runner: jobs.NewLocalRunner(),
		cfg:    cfg,
	}
	t.Cleanup(h.runner.Stop)

	h.res = NewReservationManager(h.ledger, h.store, h.sink, nil, cfg)
	h.res.SetClock(h.clock.Now)
	h.queue = NewQueueManager(h.res, h.runner)
	return h
}

// holdLock takes a seat's lock with a foreign token, as a crashed or
// slow worker would.
func (h *harness) holdLock(t *testing.T, seatID string, ttl time.Duration) {
	t.Helper()
	ok, err := h.store.TrySetLock(context.Background(), lockKey(seatID), "someone-else", ttl)
	require.NoError(t, err)
	require.True(t, ok)
}
