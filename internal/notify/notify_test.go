package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/queue"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, LogSink{}, Discard{}, b}.Emit(context.Background(), Event{Type: QueueUpdate, UserID: "u1", Payload: map[string]int{"position": 2}})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.False(t, a.events[0].Broadcast())
	assert.True(t, Event{Type: TicketAvailability}.Broadcast())
}

type fakePublisher struct {
	mu         sync.Mutex
	declareErr error
	declares   int
	published  []amqp.Publishing
	keys       []string
	sent       chan struct{}
}

func (f *fakePublisher) Do(context.Context, func(ch *amqp.Channel) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declares++
	return f.declareErr
}

func (f *fakePublisher) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.keys = append(f.keys, exchange+"/"+key)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return nil
}

func TestAMQPSinkPublishesEnvelope(t *testing.T) {
	fp := &fakePublisher{sent: make(chan struct{}, 1)}
	s := newAMQPSink(fp, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Emit(ctx, Event{Type: ReservationExpired, UserID: "u1", Payload: map[string]string{"seatId": "s1"}, At: at})

	select {
	case <-fp.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("event never published")
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.Len(t, fp.published, 1)
	assert.Equal(t, queue.EventsExchange+"/reservation_expired", fp.keys[0])

	var env queue.EventEnvelope
	require.NoError(t, json.Unmarshal(fp.published[0].Body, &env))
	assert.Equal(t, "u1", env.UserID)
	assert.JSONEq(t, `{"seatId":"s1"}`, string(env.Payload))
	assert.True(t, env.EmittedAt.Equal(at))
}

func TestAMQPSinkDropsWhenFull(t *testing.T) {
	fp := &fakePublisher{sent: make(chan struct{}, 8)}
	s := newAMQPSink(fp, 1)

	// Nothing is draining the buffer, so the second emit must not block.
	done := make(chan struct{})
	go func() {
		s.Emit(context.Background(), Event{Type: QueueUpdate, UserID: "u1"})
		s.Emit(context.Background(), Event{Type: QueueUpdate, UserID: "u2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	assert.Len(t, s.ch, 1)
}

func TestAMQPSinkRetriesDeclare(t *testing.T) {
	fp := &fakePublisher{declareErr: errors.New("down"), sent: make(chan struct{}, 1)}
	s := newAMQPSink(fp, 4)

	s.publish(context.Background(), queue.EventEnvelope{Type: "queue_update"})
	assert.Empty(t, fp.published)

	fp.declareErr = nil
	s.publish(context.Background(), queue.EventEnvelope{Type: "queue_update"})
	assert.Len(t, fp.published, 1)
	assert.Equal(t, 2, fp.declares)
}
