package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one delivery.  Returning nil acks the message;
// an error rejects it without requeue to avoid tight redelivery loops.
type HandlerFunc func(ctx context.Context, d amqp.Delivery) error

// ConsumerConfig describes one consumer.  Setup declares the topology the
// consumer needs and runs on every (re)connect.
type ConsumerConfig struct {
	Name     string // log prefix
	URL      string
	Queue    string
	Prefetch int
	Setup    func(ch *amqp.Channel) error
	Handle   HandlerFunc
}

// Consume connects to the broker and processes deliveries until ctx is
// cancelled.  Connection failures are retried with a doubling backoff
// capped at 30s; a broken consume loop reconnects after a short pause.
func Consume(ctx context.Context, cfg ConsumerConfig) error {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Printf("%s: failed to dial broker: %v; retrying in %s", cfg.Name, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, cfg)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("%s: consume loop ended: %v; reconnecting", cfg.Name, err)
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		log.Printf("%s: set QoS failed: %v", cfg.Name, err)
	}
	if cfg.Setup != nil {
		if err := cfg.Setup(ch); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := cfg.Handle(ctx, d); err != nil {
				log.Printf("%s: handle message failed: %v", cfg.Name, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
