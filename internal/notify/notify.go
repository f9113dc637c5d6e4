// Package notify delivers best-effort state-change events to interested
// clients.  Emit never blocks the caller on delivery and never returns an
// error; failures are logged.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// EventType names a state-change event.
type EventType string

const (
	ReservationUpdate  EventType = "reservation_update"
	ReservationExpired EventType = "reservation_expired"
	QueueUpdate        EventType = "queue_update"
	TicketAvailability EventType = "ticket_availability"
	OrderStatus        EventType = "order_status"
)

// Event is one notification.  An empty UserID broadcasts to everyone.
type Event struct {
	Type    EventType
	UserID  string
	Payload any
	At      time.Time
}

// Broadcast reports whether the event targets every client.
func (e Event) Broadcast() bool { return e.UserID == "" }

// Sink is the fire-and-forget notification contract.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes events to the standard logger.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, ev Event) {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Printf("notify: marshal %s: %v", ev.Type, err)
		return
	}
	target := ev.UserID
	if ev.Broadcast() {
		target = "*"
	}
	log.Printf("notify: %s user=%s payload=%s", ev.Type, target, body)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
