package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventLog appends every state-change event to <Dir>/events.log in a
// single-line, human-friendly format.
type EventLog struct {
	Dir string

	mu sync.Mutex
}

// Append formats one envelope body and writes it to the log file.
func (l *EventLog) Append(body []byte) error {
	var ev EventEnvelope
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	dir := l.Dir
	if dir == "" {
		dir = "logs"
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	user := ev.UserID
	if user == "" {
		user = "*"
	}
	payload := string(ev.Payload)
	if payload == "" {
		payload = "{}"
	}
	line := fmt.Sprintf("[%s] %s | user=%s | payload=%s\n",
		ev.EmittedAt.UTC().Format(time.RFC3339), ev.Type, user, payload)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// StartEventLogConsumer binds a durable queue to the events exchange and
// appends each event to the log until ctx is cancelled.
func StartEventLogConsumer(ctx context.Context, url string, l *EventLog) error {
	return Consume(ctx, ConsumerConfig{
		Name:  "event-log-consumer",
		URL:   url,
		Queue: EventLogQueue,
		Setup: func(ch *amqp.Channel) error {
			if err := DeclareEventsExchange(ch); err != nil {
				return err
			}
			if _, err := ch.QueueDeclare(EventLogQueue, true, false, false, false, nil); err != nil {
				return err
			}
			return ch.QueueBind(EventLogQueue, "", EventsExchange, false, nil)
		},
		Handle: func(_ context.Context, d amqp.Delivery) error {
			return l.Append(d.Body)
		},
	})
}
