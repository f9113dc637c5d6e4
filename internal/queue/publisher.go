package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DialTimeout bounds connecting to the broker when the caller's context
// has no earlier deadline.
const DialTimeout = 30 * time.Second

// Publisher keeps one connection and channel open to the broker and
// redials lazily after the connection drops.  It is safe for concurrent
// use; publishes are serialised on the single channel.  Waiting for the
// channel and dialing both give up when the caller's context ends.
type Publisher struct {
	url string

	sem  chan struct{} // holds one token while the channel is in use
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for url.  No connection is made until
// the first call.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, sem: make(chan struct{}, 1)}
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() { <-p.sem }

// dialTimeout is what is left of ctx's deadline, capped at DialTimeout.
func dialTimeout(ctx context.Context) time.Duration {
	d := DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	return d
}

// channel returns an open channel, dialing if needed.  The caller holds
// the publisher's lock.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	timeout := dialTimeout(ctx)
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Do runs fn with the publisher's channel, typically to declare
// topology.  A failing fn drops the channel so the next call redials.
func (p *Publisher) Do(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	if err := fn(ch); err != nil {
		p.closeLocked()
		return err
	}
	return nil
}

// Publish sends msg to exchange with routing key.  Messages are marked
// persistent unless the caller set a delivery mode.
func (p *Publisher) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return p.Do(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
			log.Printf("rabbitmq: publish %s/%s failed: %v", exchange, key, err)
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	})
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// DeclareEventsExchange declares the durable fanout exchange that
// carries state-change events.
func DeclareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(EventsExchange, "fanout", true, false, false, false, nil)
}
