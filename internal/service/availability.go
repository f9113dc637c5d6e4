package service

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/concert-ticket-booking/internal/lockstore"
	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
)

// Availability serves per-event counts of AVAILABLE seats from the lock
// store, recomputing them from the ledger on a miss.  Counts cached by
// other processes may be stale by up to the cache TTL, which the
// manager caps at the sweep interval.
type Availability struct {
	seats SeatLedger
	store lockstore.Store
	sink  notify.Sink
	ttl   time.Duration

	group  singleflight.Group
	events sync.Map // event id -> *eventGen
}

// eventGen counts invalidations of one event's cached count.  A recount
// that started before an invalidation must not be cached.
type eventGen struct {
	mu  sync.Mutex
	gen uint64
}

// NewAvailability returns an Availability caching counts for ttl.
func NewAvailability(seats SeatLedger, store lockstore.Store, sink notify.Sink, ttl time.Duration) *Availability {
	if ttl <= 0 {
		ttl = DefaultConfig().AvailabilityTTL
	}
	return &Availability{seats: seats, store: store, sink: sink, ttl: ttl}
}

func (a *Availability) eventGen(eventID string) *eventGen {
	v, _ := a.events.LoadOrStore(eventID, &eventGen{})
	return v.(*eventGen)
}

// Count returns the number of AVAILABLE seats for the event.
func (a *Availability) Count(ctx context.Context, eventID string) (int, error) {
	key := availabilityKey(eventID)
	if v, found, err := a.store.Get(ctx, key); err != nil {
		log.Printf("availability: cache get %s: %v", key, err)
	} else if found {
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	}

	// The flight is shared, so one caller's cancellation must not fail
	// the others.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := a.group.Do(eventID, func() (interface{}, error) {
		g := a.eventGen(eventID)
		g.mu.Lock()
		started := g.gen
		g.mu.Unlock()

		n, err := a.seats.CountSeatsByStatus(fctx, eventID, model.SeatAvailable)
		if err != nil {
			return 0, err
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.gen == started {
			if err := a.store.Set(fctx, key, strconv.Itoa(n), a.ttl); err != nil {
				log.Printf("availability: cache set %s: %v", key, err)
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Changed drops the cached count for the event and broadcasts a count
// read after the change.  Calls for one event are serialised so
// broadcasts go out in commit order.  Errors are logged; callers have
// already committed the change.
func (a *Availability) Changed(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	g := a.eventGen(eventID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gen++
	a.group.Forget(eventID)
	if err := a.store.Delete(ctx, availabilityKey(eventID)); err != nil {
		log.Printf("availability: invalidate %s: %v", eventID, err)
	}
	n, err := a.seats.CountSeatsByStatus(ctx, eventID, model.SeatAvailable)
	if err != nil {
		log.Printf("availability: recount %s: %v", eventID, err)
		return
	}
	a.sink.Emit(ctx, notify.Event{
		Type:    notify.TicketAvailability,
		Payload: map[string]interface{}{"eventId": eventID, "availableCount": n},
	})
}
