package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/concert-ticket-booking/internal/queue"
)

// publisher is the part of queue.Publisher the sink needs.
type publisher interface {
	Do(ctx context.Context, fn func(ch *amqp.Channel) error) error
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// AMQPSink publishes events to the fanout exchange from a background
// goroutine.  Emit only enqueues; when the buffer is full the event is
// dropped and logged so a slow broker never stalls a reservation.
type AMQPSink struct {
	pub publisher
	ch  chan queue.EventEnvelope

	declared bool // only touched by the Run goroutine
}

// NewAMQPSink returns a sink with a buffer of size events.  Call Run to
// start delivery.
func NewAMQPSink(pub *queue.Publisher, size int) *AMQPSink {
	return newAMQPSink(pub, size)
}

func newAMQPSink(pub publisher, size int) *AMQPSink {
	if size <= 0 {
		size = 1024
	}
	return &AMQPSink{pub: pub, ch: make(chan queue.EventEnvelope, size)}
}

func (s *AMQPSink) Emit(_ context.Context, ev Event) {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Printf("notify: marshal %s: %v", ev.Type, err)
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	env := queue.EventEnvelope{Type: string(ev.Type), UserID: ev.UserID, Payload: body, EmittedAt: at.UTC()}
	select {
	case s.ch <- env:
	default:
		log.Printf("notify: buffer full, dropping %s for user=%s", ev.Type, ev.UserID)
	}
}

// Run publishes buffered events until ctx is cancelled.
func (s *AMQPSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-s.ch:
			s.publish(ctx, env)
		}
	}
}

func (s *AMQPSink) publish(ctx context.Context, env queue.EventEnvelope) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !s.declared {
		if err := s.pub.Do(pctx, queue.DeclareEventsExchange); err != nil {
			log.Printf("notify: declare exchange: %v", err)
			return
		}
		s.declared = true
	}
	body, err := json.Marshal(env)
	if err != nil {
		log.Printf("notify: marshal envelope: %v", err)
		return
	}
	if err := s.pub.Publish(pctx, queue.EventsExchange, env.Type, amqp.Publishing{
		ContentType: "application/json",
		Type:        env.Type,
		Timestamp:   env.EmittedAt,
		Body:        body,
	}); err != nil {
		log.Printf("notify: publish %s: %v", env.Type, err)
	}
}
