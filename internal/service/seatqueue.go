package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/concert-ticket-booking/internal/jobs"
	"github.com/iliyamo/concert-ticket-booking/internal/model"
	"github.com/iliyamo/concert-ticket-booking/internal/notify"
)

// PromoteTask is the job type that turns a queue entry into a hold.
const PromoteTask = "seat.promote"

// ReturnSeatTask puts a seat whose promotion gave up back in the pool
// once its lock is free.
const ReturnSeatTask = "seat.return"

// PromotePayload identifies the entry a promotion task works on.
type PromotePayload struct {
	QueueEntryID string `json:"queueEntryId"`
	UserID       string `json:"userId"`
	SeatID       string `json:"seatId"`
}

// QueueManager puts users in line for a seat and promotes them through
// the job runner.  Promotion is delayed in proportion to the position,
// which approximates first come, first served without a scheduler of
// its own.
type QueueManager struct {
	res    *ReservationManager
	runner jobs.Runner
}

// NewQueueManager registers the promotion handler on runner.
func NewQueueManager(res *ReservationManager, runner jobs.Runner) *QueueManager {
	q := &QueueManager{res: res, runner: runner}
	runner.Handle(PromoteTask, q.handlePromote, q.onExhausted)
	runner.Handle(ReturnSeatTask, q.handleReturnSeat, q.onReturnExhausted)
	return q
}

// Enqueue takes an AVAILABLE seat out of the pool for the user and
// schedules a promotion attempt.
func (q *QueueManager) Enqueue(ctx context.Context, userID, seatID string) (entry model.QueueEntry, err error) {
	ctx, span := startSpan(ctx, "seatqueue.Enqueue",
		attribute.String("user.id", userID), attribute.String("seat.id", seatID))
	defer func() { finish(span, "enqueue", err) }()

	m := q.res
	l, err := m.acquire(ctx, seatID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	entry, seat, err := q.enqueueLocked(ctx, l, userID, seatID)
	m.unlock(ctx, l)
	if err != nil {
		return model.QueueEntry{}, err
	}

	q.emit(ctx, entry, nil)
	m.avail.Changed(ctx, seat.EventID)
	return entry, nil
}

func (q *QueueManager) enqueueLocked(ctx context.Context, l seatLock, userID, seatID string) (model.QueueEntry, model.Seat, error) {
	m := q.res
	seat, err := m.ledger.FindSeat(ctx, seatID)
	if err != nil {
		return model.QueueEntry{}, model.Seat{}, err
	}
	if seat.Status != model.SeatAvailable {
		return model.QueueEntry{}, seat, ErrSeatUnavailable
	}
	if err := m.setStatus(ctx, seat, model.SeatInQueue); err != nil {
		return model.QueueEntry{}, seat, fmt.Errorf("mark seat in queue: %w", err)
	}

	undo := func() { m.revertStatus(ctx, seat.ID, model.SeatInQueue, model.SeatAvailable) }

	pos, err := m.store.Increment(ctx, queueCounterKey(seat.ID))
	if err != nil {
		undo()
		return model.QueueEntry{}, seat, fmt.Errorf("next queue position: %w", err)
	}
	entry, err := m.ledger.CreateQueueEntry(ctx, userID, seat.ID, pos)
	if err != nil {
		undo()
		return model.QueueEntry{}, seat, fmt.Errorf("create queue entry: %w", err)
	}

	// The broker may be slow or down; give up before the lock lapses.
	sctx, cancel := m.within(ctx, l)
	defer cancel()
	_, err = q.runner.Schedule(sctx, PromoteTask, PromotePayload{
		QueueEntryID: entry.ID,
		UserID:       userID,
		SeatID:       seat.ID,
	}, jobs.ScheduleOptions{
		Delay:       time.Duration(pos) * m.cfg.QueueDelayUnit,
		MaxAttempts: m.cfg.QueueMaxAttempts,
		Backoff:     m.cfg.QueueBackoff,
	})
	if err != nil {
		if uerr := m.ledger.UpdateQueueEntryStatus(context.WithoutCancel(ctx), entry.ID, model.QueueFailed); uerr != nil {
			log.Printf("seatqueue: mark entry %s failed: %v", entry.ID, uerr)
		}
		undo()
		return model.QueueEntry{}, seat, fmt.Errorf("schedule promotion: %w", err)
	}
	return entry, seat, nil
}

// Promote runs one promotion attempt for a queue entry.  Lock
// contention is returned as is so the runner retries it; every other
// failure is permanent.  The seat goes back to AVAILABLE whenever the
// attempt fails after taking the lock.
func (q *QueueManager) Promote(ctx context.Context, entryID, userID, seatID string) (err error) {
	ctx, span := startSpan(ctx, "seatqueue.Promote",
		attribute.String("queue_entry.id", entryID), attribute.String("seat.id", seatID))
	defer func() { finish(span, "promote", err) }()

	m := q.res
	entry, err := m.ledger.FindQueueEntry(ctx, entryID)
	if err != nil {
		return jobs.Permanent(err)
	}
	if entry.SeatID != seatID || entry.UserID != userID {
		return jobs.Permanent(fmt.Errorf("%w: payload does not match entry", ErrQueueEntryNotFound))
	}
	if entry.Status == model.QueueCompleted {
		// duplicate delivery
		return nil
	}
	q.setEntryStatus(ctx, &entry, model.QueueProcessing, nil)

	l, err := m.acquire(ctx, seatID)
	if err != nil {
		// contention is retried by the runner
		q.setEntryStatus(ctx, &entry, model.QueueFailed, err)
		return err
	}
	hold, seat, err := q.promoteLocked(ctx, entry, userID)
	m.unlock(ctx, l)
	if err != nil {
		q.setEntryStatus(ctx, &entry, model.QueueFailed, err)
		if seat.EventID != "" {
			m.avail.Changed(ctx, seat.EventID)
		}
		return jobs.Permanent(err)
	}

	entry.Status = model.QueueCompleted
	if uerr := m.ledger.UpdateQueueEntryStatus(ctx, entry.ID, model.QueueCompleted); uerr != nil {
		log.Printf("seatqueue: mark entry %s completed: %v", entry.ID, uerr)
	}
	q.emit(ctx, entry, map[string]interface{}{"cartItemId": hold.ID, "reservedUntil": hold.ReservedUntil})
	m.avail.Changed(ctx, seat.EventID)
	return nil
}

// promoteLocked checks the seat is still waiting for this entry and
// reserves it.  The caller holds the seat's lock.  On failure after the
// check the seat is returned to AVAILABLE; the returned seat is zero
// when the seat was not touched.
func (q *QueueManager) promoteLocked(ctx context.Context, entry model.QueueEntry, userID string) (model.Hold, model.Seat, error) {
	m := q.res
	seat, err := m.ledger.FindSeat(ctx, entry.SeatID)
	if err != nil {
		return model.Hold{}, model.Seat{}, err
	}
	if seat.Status != model.SeatInQueue {
		// Reserved directly, or an earlier delivery already promoted.
		return model.Hold{}, model.Seat{}, fmt.Errorf("%w: seat is %s", ErrSeatUnavailable, seat.Status)
	}
	owns, err := q.ownsSeat(ctx, entry)
	if err != nil {
		return model.Hold{}, model.Seat{}, err
	}
	if !owns {
		return model.Hold{}, model.Seat{}, fmt.Errorf("%w: seat is queued for a later entry", ErrSeatUnavailable)
	}

	cart, err := m.ledger.GetOrCreateCart(ctx, userID)
	if err == nil {
		var hold model.Hold
		hold, seat, err = m.reserveLocked(ctx, cart, entry.SeatID, model.SeatInQueue)
		if err == nil {
			return hold, seat, nil
		}
	}
	m.revertStatus(ctx, entry.SeatID, model.SeatInQueue, model.SeatAvailable)
	return model.Hold{}, seat, err
}

// ownsSeat reports whether entry is the most recent one for its seat.
// Enqueue only succeeds on an AVAILABLE seat, so an IN_QUEUE seat
// belongs to whichever entry took the latest position.
func (q *QueueManager) ownsSeat(ctx context.Context, entry model.QueueEntry) (bool, error) {
	latest, err := q.QueueSize(ctx, entry.SeatID)
	if err != nil {
		return false, err
	}
	return latest == entry.Position, nil
}

func (q *QueueManager) handlePromote(ctx context.Context, t jobs.Task) error {
	var p PromotePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return jobs.Permanent(fmt.Errorf("decode promote payload: %w", err))
	}
	return q.Promote(ctx, p.QueueEntryID, p.UserID, p.SeatID)
}

// onExhausted runs when a promotion will not be retried.  It makes sure
// the seat does not stay IN_QUEUE with nobody behind it.  When the seat
// lock is busy the return is retried as a ReturnSeatTask.
func (q *QueueManager) onExhausted(ctx context.Context, t jobs.Task, cause error) {
	var p PromotePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		log.Printf("seatqueue: exhausted task %s has bad payload: %v", t.ID, err)
		return
	}
	m := q.res

	entry, err := m.ledger.FindQueueEntry(ctx, p.QueueEntryID)
	if err != nil {
		log.Printf("seatqueue: exhausted entry %s: %v", p.QueueEntryID, err)
		return
	}
	if entry.Status != model.QueueFailed {
		q.setEntryStatus(ctx, &entry, model.QueueFailed, cause)
	}

	err = q.returnSeat(ctx, entry, cause)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrContended) {
		log.Printf("seatqueue: return seat %s to pool: %v", p.SeatID, err)
		return
	}
	// Whoever holds the lock is done within its TTL.
	_, err = q.runner.Schedule(context.WithoutCancel(ctx), ReturnSeatTask, p, jobs.ScheduleOptions{
		Delay:       m.cfg.LockTTL,
		MaxAttempts: m.cfg.QueueMaxAttempts,
		Backoff:     m.cfg.QueueBackoff,
	})
	if err != nil {
		log.Printf("seatqueue: schedule return of seat %s: %v", p.SeatID, err)
	}
}

// returnSeat moves the seat IN_QUEUE -> AVAILABLE under its lock, if the
// seat is still waiting for entry.  ErrContended means the lock is busy.
func (q *QueueManager) returnSeat(ctx context.Context, entry model.QueueEntry, cause error) error {
	m := q.res
	l, err := m.acquire(ctx, entry.SeatID)
	if err != nil {
		return err
	}
	changed, err := q.returnSeatLocked(ctx, entry)
	m.unlock(ctx, l)
	if err != nil {
		return err
	}
	if changed {
		log.Printf("seatqueue: seat %s returned to pool after entry %s failed: %v", entry.SeatID, entry.ID, cause)
		if seat, err := m.ledger.FindSeat(ctx, entry.SeatID); err == nil {
			m.avail.Changed(ctx, seat.EventID)
		}
	}
	return nil
}

func (q *QueueManager) returnSeatLocked(ctx context.Context, entry model.QueueEntry) (bool, error) {
	owns, err := q.ownsSeat(ctx, entry)
	if err != nil || !owns {
		return false, err
	}
	return q.res.ledger.CompareAndSetSeatStatus(ctx, entry.SeatID, model.SeatInQueue, model.SeatAvailable)
}

func (q *QueueManager) handleReturnSeat(ctx context.Context, t jobs.Task) error {
	var p PromotePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return jobs.Permanent(fmt.Errorf("decode return payload: %w", err))
	}
	entry, err := q.res.ledger.FindQueueEntry(ctx, p.QueueEntryID)
	if err != nil {
		return jobs.Permanent(err)
	}
	return q.returnSeat(ctx, entry, ErrContended)
}

func (q *QueueManager) onReturnExhausted(_ context.Context, t jobs.Task, cause error) {
	log.Printf("seatqueue: BUG seat left IN_QUEUE, return task %s gave up: %v payload=%s", t.ID, cause, t.Payload)
}

// Position returns the queue entry, whose Position field is the user's
// place in line.
func (q *QueueManager) Position(ctx context.Context, entryID string) (model.QueueEntry, error) {
	return q.res.ledger.FindQueueEntry(ctx, entryID)
}

// QueueSize returns how many positions have ever been handed out for the
// seat.  A seat nobody queued for has size zero.
func (q *QueueManager) QueueSize(ctx context.Context, seatID string) (int64, error) {
	v, found, err := q.res.store.Get(ctx, queueCounterKey(seatID))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("queue counter for seat %s: %w", seatID, err)
	}
	return n, nil
}

func (q *QueueManager) setEntryStatus(ctx context.Context, entry *model.QueueEntry, status model.QueueStatus, cause error) {
	if err := q.res.ledger.UpdateQueueEntryStatus(context.WithoutCancel(ctx), entry.ID, status); err != nil {
		log.Printf("seatqueue: mark entry %s %s: %v", entry.ID, status, err)
	}
	entry.Status = status
	var extra map[string]interface{}
	if cause != nil {
		extra = map[string]interface{}{"error": cause.Error()}
	}
	q.emit(ctx, *entry, extra)
}

func (q *QueueManager) emit(ctx context.Context, entry model.QueueEntry, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"queueEntryId": entry.ID,
		"seatId":       entry.SeatID,
		"position":     entry.Position,
		"status":       entry.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	q.res.sink.Emit(ctx, notify.Event{Type: notify.QueueUpdate, UserID: entry.UserID, At: q.res.now(), Payload: payload})
}
