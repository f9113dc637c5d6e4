// Package service implements the reservation engine: direct seat holds,
// the waiting queue for contended seats, the expiry sweep and checkout.
// Every change to a seat's status happens while the seat's lock is held
// in the shared lock store, so several server instances can run against
// the same ledger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/concert-ticket-booking/internal/lockstore"
	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
	"github.com/iliyamo/concert-ticket-booking/internal/repository"
)

// ReservationManager turns seat requests into holds, releases them and
// converts them into sales.
type ReservationManager struct {
	ledger Ledger
	store  lockstore.Store
	sink   notify.Sink
	avail  *Availability
	cfg    Config
	now    func() time.Time
}

// NewReservationManager wires the manager.  A nil sink discards events.
func NewReservationManager(ledger Ledger, store lockstore.Store, sink notify.Sink, avail *Availability, cfg Config) *ReservationManager {
	if sink == nil {
		sink = notify.Discard{}
	}
	cfg = cfg.withDefaults()
	if avail == nil {
		avail = NewAvailability(ledger, store, sink, min(cfg.AvailabilityTTL, cfg.SweepInterval))
	}
	return &ReservationManager{
		ledger: ledger,
		store:  store,
		sink:   sink,
		avail:  avail,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock replaces the time source.  Tests use it to step past
// deadlines.
func (m *ReservationManager) SetClock(now func() time.Time) { m.now = now }

// Availability returns the shared availability counter.
func (m *ReservationManager) Availability() *Availability { return m.avail }

// seatLock is a held per-seat lock.
type seatLock struct {
	key     string
	token   string
	expires time.Time // when the store drops the key on its own
}

// acquire makes a single attempt to take the seat's lock.  It never
// waits: a taken lock is reported as ErrContended.
func (m *ReservationManager) acquire(ctx context.Context, seatID string) (seatLock, error) {
	l := seatLock{key: lockKey(seatID), token: lockstore.NewToken(), expires: time.Now().Add(m.cfg.LockTTL)}
	ok, err := m.store.TrySetLock(ctx, l.key, l.token, m.cfg.LockTTL)
	if err != nil {
		return seatLock{}, fmt.Errorf("acquire seat lock: %w", err)
	}
	if !ok {
		lockContentionTotal.Inc()
		return seatLock{}, ErrContended
	}
	return l, nil
}

// within bounds ctx so that a call made under l gives up while at
// least half of the lock's TTL is left for compensation writes.
func (m *ReservationManager) within(ctx context.Context, l seatLock) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, l.expires.Add(-m.cfg.LockTTL/2))
}

// unlock releases l.  A failed release is only logged: the TTL removes
// the key eventually.
func (m *ReservationManager) unlock(ctx context.Context, l seatLock) {
	if err := m.store.ReleaseLock(context.WithoutCancel(ctx), l.key, l.token); err != nil {
		log.Printf("reservation: release %s: %v", l.key, err)
	}
}

// setStatus moves a seat to a new status after checking the transition.
func (m *ReservationManager) setStatus(ctx context.Context, seat model.Seat, to model.SeatStatus) error {
	if !ValidTransition(seat.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, seat.Status, to)
	}
	return m.ledger.UpdateSeatStatus(ctx, seat.ID, to)
}

// revertStatus is the compensation for a failed critical section.
func (m *ReservationManager) revertStatus(ctx context.Context, seatID string, from, to model.SeatStatus) {
	if _, err := m.ledger.CompareAndSetSeatStatus(context.WithoutCancel(ctx), seatID, from, to); err != nil {
		log.Printf("reservation: revert seat %s %s -> %s: %v", seatID, from, to, err)
	}
}

// TryReserve places a hold on the seat for the user.  It fails with
// ErrContended when another request holds the seat's lock and with
// ErrSeatUnavailable unless the seat is AVAILABLE or IN_QUEUE.
func (m *ReservationManager) TryReserve(ctx context.Context, userID, seatID string) (hold model.Hold, err error) {
	ctx, span := startSpan(ctx, "reservation.TryReserve",
		attribute.String("user.id", userID), attribute.String("seat.id", seatID))
	defer func() { finish(span, "try_reserve", err) }()

	cart, err := m.ledger.GetOrCreateCart(ctx, userID)
	if err != nil {
		return model.Hold{}, fmt.Errorf("load cart: %w", err)
	}

	l, err := m.acquire(ctx, seatID)
	if err != nil {
		return model.Hold{}, err
	}
	hold, seat, err := m.reserveLocked(ctx, cart, seatID, model.SeatAvailable, model.SeatInQueue)
	m.unlock(ctx, l)
	if err != nil {
		return model.Hold{}, err
	}

	m.avail.Changed(ctx, seat.EventID)
	return hold, nil
}

// reserveLocked is the critical section shared by TryReserve and queue
// promotion.  The caller holds the seat's lock.  The seat must be in one
// of the allowed statuses.  Every write is undone if a later one fails.
func (m *ReservationManager) reserveLocked(ctx context.Context, cart model.Cart, seatID string, allowed ...model.SeatStatus) (model.Hold, model.Seat, error) {
	seat, err := m.ledger.FindSeat(ctx, seatID)
	if err != nil {
		return model.Hold{}, model.Seat{}, err
	}
	if !statusIn(seat.Status, allowed) {
		return model.Hold{}, seat, ErrSeatUnavailable
	}
	if err := m.setStatus(ctx, seat, model.SeatReserved); err != nil {
		return model.Hold{}, seat, fmt.Errorf("mark seat reserved: %w", err)
	}

	until := m.now().UTC().Add(m.cfg.ReservationDuration)
	hold, err := m.ledger.CreateHold(ctx, cart.ID, seat.ID, until)
	if err != nil {
		m.revertStatus(ctx, seat.ID, model.SeatReserved, seat.Status)
		return model.Hold{}, seat, fmt.Errorf("create hold: %w", err)
	}
	if hold.UserID == "" {
		hold.UserID = cart.UserID
	}
	if err := m.writeMirror(ctx, hold); err != nil {
		if _, derr := m.ledger.DeleteHold(context.WithoutCancel(ctx), hold.ID); derr != nil {
			log.Printf("reservation: undo hold %s: %v", hold.ID, derr)
		}
		m.revertStatus(ctx, seat.ID, model.SeatReserved, seat.Status)
		return model.Hold{}, seat, err
	}

	m.sink.Emit(ctx, notify.Event{
		Type:   notify.ReservationUpdate,
		UserID: hold.UserID,
		At:     m.now(),
		Payload: map[string]interface{}{
			"seatId":          seat.ID,
			"cartItemId":      hold.ID,
			"status":          model.SeatReserved,
			"reservedUntil":   hold.ReservedUntil,
			"timeLeftSeconds": recordFor(hold).TimeLeft(m.now()),
		},
	})
	return hold, seat, nil
}

// Release gives a held seat back to the pool.  Releasing a hold that is
// already gone, or that belongs to another user's cart, reports
// ErrHoldNotFound.
func (m *ReservationManager) Release(ctx context.Context, userID, holdID string) (err error) {
	ctx, span := startSpan(ctx, "reservation.Release",
		attribute.String("user.id", userID), attribute.String("hold.id", holdID))
	defer func() { finish(span, "release", err) }()

	hold, err := m.ownedHold(ctx, userID, holdID)
	if err != nil {
		return err
	}

	l, err := m.acquire(ctx, hold.SeatID)
	if err != nil {
		return err
	}
	seat, released, err := m.releaseLocked(ctx, hold)
	m.unlock(ctx, l)
	if err != nil {
		return err
	}
	if !released {
		return ErrHoldNotFound
	}

	m.sink.Emit(ctx, notify.Event{
		Type:   notify.ReservationUpdate,
		UserID: hold.UserID,
		At:     m.now(),
		Payload: map[string]interface{}{
			"seatId":     hold.SeatID,
			"cartItemId": hold.ID,
			"status":     model.SeatAvailable,
		},
	})
	m.avail.Changed(ctx, seat.EventID)
	return nil
}

// ownedHold loads a hold and checks it sits in the user's cart.
func (m *ReservationManager) ownedHold(ctx context.Context, userID, holdID string) (model.Hold, error) {
	cart, err := m.ledger.FindCartByUser(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return model.Hold{}, ErrHoldNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	hold, err := m.ledger.FindHold(ctx, holdID)
	if err != nil {
		return model.Hold{}, err
	}
	if hold.CartID != cart.ID {
		return model.Hold{}, ErrHoldNotFound
	}
	return hold, nil
}

// releaseLocked deletes a hold and returns its seat to AVAILABLE.  The
// caller holds the seat's lock.  It reports false when the hold was
// already gone, which is not an error.
func (m *ReservationManager) releaseLocked(ctx context.Context, hold model.Hold) (model.Seat, bool, error) {
	if _, err := m.ledger.FindHold(ctx, hold.ID); errors.Is(err, ErrHoldNotFound) {
		return model.Seat{}, false, nil
	} else if err != nil {
		return model.Seat{}, false, err
	}

	seat, err := m.ledger.FindSeat(ctx, hold.SeatID)
	if err != nil {
		return model.Seat{}, false, err
	}
	statusChanged := false
	if seat.Status == model.SeatReserved {
		if err := m.setStatus(ctx, seat, model.SeatAvailable); err != nil {
			return seat, false, fmt.Errorf("mark seat available: %w", err)
		}
		statusChanged = true
	} else {
		log.Printf("reservation: BUG hold %s references seat %s in status %s", hold.ID, seat.ID, seat.Status)
	}

	deleted, err := m.ledger.DeleteHold(ctx, hold.ID)
	if err != nil {
		if statusChanged {
			m.revertStatus(ctx, seat.ID, model.SeatAvailable, model.SeatReserved)
		}
		return seat, false, fmt.Errorf("delete hold: %w", err)
	}
	m.deleteMirror(ctx, hold.SeatID)
	return seat, deleted, nil
}

// ConfirmSale converts the user's holds into one order.  Either every
// hold becomes an order line and its seat SOLD, or nothing changes:
// a single expired hold fails the batch with ErrExpiredHold.
func (m *ReservationManager) ConfirmSale(ctx context.Context, userID string, holdIDs []string) (order model.Order, err error) {
	ctx, span := startSpan(ctx, "reservation.ConfirmSale",
		attribute.String("user.id", userID), attribute.Int("holds", len(holdIDs)))
	defer func() { finish(span, "confirm_sale", err) }()

	if len(holdIDs) == 0 {
		return model.Order{}, ErrEmptyCart
	}

	holds := make([]model.Hold, 0, len(holdIDs))
	seen := make(map[string]bool, len(holdIDs))
	for _, id := range holdIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		h, err := m.ownedHold(ctx, userID, id)
		if err != nil {
			return model.Order{}, err
		}
		holds = append(holds, h)
	}
	if err := m.checkNotExpired(holds); err != nil {
		return model.Order{}, err
	}

	// Lock in seat order so two overlapping checkouts fail fast in the
	// same place.
	sort.Slice(holds, func(i, j int) bool { return holds[i].SeatID < holds[j].SeatID })
	locks := make([]seatLock, 0, len(holds))
	defer func() {
		for _, l := range locks {
			m.unlock(ctx, l)
		}
	}()
	for _, h := range holds {
		l, err := m.acquire(ctx, h.SeatID)
		if err != nil {
			return model.Order{}, err
		}
		locks = append(locks, l)
	}

	// Re-read under the locks: the sweeper or a release may have won.
	events := make(map[string]bool)
	for i, h := range holds {
		current, err := m.ledger.FindHold(ctx, h.ID)
		if err != nil {
			return model.Order{}, err
		}
		holds[i] = current
		seat, err := m.ledger.FindSeat(ctx, h.SeatID)
		if err != nil {
			return model.Order{}, err
		}
		if seat.Status != model.SeatReserved {
			return model.Order{}, ErrSeatUnavailable
		}
		events[seat.EventID] = true
	}
	if err := m.checkNotExpired(holds); err != nil {
		return model.Order{}, err
	}

	order, err = m.ledger.CreateOrderFromHolds(ctx, userID, holds)
	if errors.Is(err, repository.ErrConflict) {
		return model.Order{}, fmt.Errorf("%w: %v", ErrSeatUnavailable, err)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}

	for _, h := range holds {
		m.deleteMirror(ctx, h.SeatID)
		m.sink.Emit(ctx, notify.Event{
			Type:   notify.ReservationUpdate,
			UserID: userID,
			At:     m.now(),
			Payload: map[string]interface{}{
				"seatId":     h.SeatID,
				"cartItemId": h.ID,
				"status":     model.SeatSold,
				"orderId":    order.ID,
			},
		})
	}
	for eventID := range events {
		m.avail.Changed(ctx, eventID)
	}
	return order, nil
}

func (m *ReservationManager) checkNotExpired(holds []model.Hold) error {
	now := m.now()
	for _, h := range holds {
		if h.Expired(now) {
			return fmt.Errorf("%w: cart item %s", ErrExpiredHold, h.ID)
		}
	}
	return nil
}

// SweepExpired releases every hold whose deadline has passed and returns
// how many it released.  A hold that cannot be released on this pass is
// logged and left for the next one.
func (m *ReservationManager) SweepExpired(ctx context.Context) (count int, err error) {
	ctx, span := startSpan(ctx, "reservation.SweepExpired")
	defer func() {
		span.SetAttributes(attribute.Int("released", count))
		finish(span, "sweep", err)
	}()

	now := m.now()
	holds, err := m.ledger.FindHoldsExpiredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find expired holds: %w", err)
	}
	for _, h := range holds {
		if ctx.Err() != nil {
			break
		}
		released, err := m.expireOne(ctx, h, now)
		if err != nil {
			sweepFailuresTotal.Inc()
			log.Printf("sweeper: hold %s seat %s: %v", h.ID, h.SeatID, err)
			continue
		}
		if released {
			count++
		}
	}
	sweptHoldsTotal.Add(float64(count))
	return count, nil
}

func (m *ReservationManager) expireOne(ctx context.Context, h model.Hold, now time.Time) (bool, error) {
	l, err := m.acquire(ctx, h.SeatID)
	if err != nil {
		return false, err
	}
	defer m.unlock(ctx, l)

	current, err := m.ledger.FindHold(ctx, h.ID)
	if errors.Is(err, ErrHoldNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !current.Expired(now) {
		return false, nil
	}

	seat, released, err := m.releaseLocked(ctx, current)
	if err != nil || !released {
		return false, err
	}
	m.sink.Emit(ctx, notify.Event{
		Type:   notify.ReservationExpired,
		UserID: current.UserID,
		At:     now,
		Payload: map[string]interface{}{
			"seatId":     current.SeatID,
			"cartItemId": current.ID,
		},
	})
	m.avail.Changed(ctx, seat.EventID)
	return true, nil
}

func recordFor(h model.Hold) model.ReservationRecord {
	return model.ReservationRecord{CartItemID: h.ID, UserID: h.UserID, ReservedUntil: h.ReservedUntil.UTC()}
}

// writeMirror stores the hold's reservation record with a TTL matching
// the time left on the hold.
func (m *ReservationManager) writeMirror(ctx context.Context, h model.Hold) error {
	body, err := json.Marshal(recordFor(h))
	if err != nil {
		return err
	}
	ttl := h.ReservedUntil.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	if err := m.store.Set(ctx, reservationKey(h.SeatID), string(body), ttl); err != nil {
		return fmt.Errorf("write reservation mirror: %w", err)
	}
	return nil
}

func (m *ReservationManager) deleteMirror(ctx context.Context, seatID string) {
	if err := m.store.Delete(context.WithoutCancel(ctx), reservationKey(seatID)); err != nil {
		log.Printf("reservation: delete mirror for seat %s: %v", seatID, err)
	}
}

// mirror returns the reservation record for a hold.  When the stored
// mirror is missing or disagrees with the hold, the hold wins and the
// mirror is rewritten.
func (m *ReservationManager) mirror(ctx context.Context, h model.Hold) model.ReservationRecord {
	want := recordFor(h)
	if h.Expired(m.now()) {
		return want
	}
	raw, found, err := m.store.Get(ctx, reservationKey(h.SeatID))
	if err != nil {
		log.Printf("reservation: read mirror for seat %s: %v", h.SeatID, err)
		return want
	}
	if found {
		var got model.ReservationRecord
		if err := json.Unmarshal([]byte(raw), &got); err == nil &&
			got.CartItemID == want.CartItemID &&
			got.UserID == want.UserID &&
			got.ReservedUntil.Equal(want.ReservedUntil) {
			return got
		}
	}

	inconsistentTotal.Inc()
	log.Printf("reservation: BUG %v: seat=%s hold=%s found=%t; rewriting mirror", ErrInconsistentState, h.SeatID, h.ID, found)
	if err := m.writeMirror(ctx, h); err != nil {
		log.Printf("reservation: heal mirror for seat %s: %v", h.SeatID, err)
	}
	return want
}

func statusIn(s model.SeatStatus, set []model.SeatStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
