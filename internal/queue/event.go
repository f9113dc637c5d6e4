// Package queue holds the RabbitMQ plumbing shared by the notification
// sink, the durable job runner and the event audit log: connection
// handling, publishing, the reconnecting consume loop and the wire
// envelope for state-change events.
package queue

import (
	"encoding/json"
	"time"
)

// Exchange and queue names.
const (
	EventsExchange = "ticketing.events" // fanout; every state-change event
	EventLogQueue  = "ticketing.events.log"
)

// EventEnvelope is the JSON body published for every state-change event.
// An empty UserID means the event is a broadcast.
type EventEnvelope struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}
