package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/concert-ticket-booking/internal/queue"
)

// delayQueueExpiry is how long an unused delay queue survives after its
// last message has been dead-lettered.
const delayQueueExpiry = time.Minute

// AMQPRunner is the durable runner.  Tasks due now go straight to the
// work queue.  Delayed tasks are parked in a per-delay queue whose
// message TTL dead-letters them into the work queue when due.  One
// queue per distinct delay keeps a long delay from blocking shorter
// ones behind it.
type AMQPRunner struct {
	registry

	pub       *queue.Publisher
	url       string
	workQueue string
}

// NewAMQPRunner returns a runner publishing through pub and consuming
// from <prefix>.work.
func NewAMQPRunner(pub *queue.Publisher, url, prefix string) *AMQPRunner {
	if prefix == "" {
		prefix = "jobs"
	}
	return &AMQPRunner{pub: pub, url: url, workQueue: prefix + ".work"}
}

// WorkQueue returns the name of the queue tasks are consumed from.
func (r *AMQPRunner) WorkQueue() string { return r.workQueue }

// DelayQueue returns the name of the parking queue for delay d.
func (r *AMQPRunner) DelayQueue(d time.Duration) string {
	return fmt.Sprintf("%s.delay.%d", r.workQueue, d.Milliseconds())
}

// delayQueueArgs dead-letters expired messages into the work queue
// through the default exchange.
func (r *AMQPRunner) delayQueueArgs(d time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             d.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": r.workQueue,
		"x-expires":                 (d + delayQueueExpiry).Milliseconds(),
	}
}

// Schedule publishes the first attempt of a task.
func (r *AMQPRunner) Schedule(ctx context.Context, taskType string, payload any, opts ScheduleOptions) (string, error) {
	t, err := newTask(uuid.NewString(), taskType, payload, opts)
	if err != nil {
		return "", err
	}
	if err := r.publish(ctx, t, opts.Delay); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (r *AMQPRunner) publish(ctx context.Context, t Task, delay time.Duration) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("jobs: marshal task: %w", err)
	}
	target := r.workQueue
	if delay > 0 {
		target = r.DelayQueue(delay)
	}
	err = r.pub.Do(ctx, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(r.workQueue, true, false, false, false, nil); err != nil {
			return err
		}
		if delay > 0 {
			if _, err := ch.QueueDeclare(target, true, false, false, false, r.delayQueueArgs(delay)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobs: declare %s: %w", target, err)
	}
	return r.pub.Publish(ctx, "", target, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   t.ID,
		Type:        t.Type,
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

// Start consumes the work queue until ctx is cancelled.
func (r *AMQPRunner) Start(ctx context.Context) error {
	return queue.Consume(ctx, queue.ConsumerConfig{
		Name:     "jobs",
		URL:      r.url,
		Queue:    r.workQueue,
		Prefetch: 10,
		Setup: func(ch *amqp.Channel) error {
			_, err := ch.QueueDeclare(r.workQueue, true, false, false, false, nil)
			return err
		},
		Handle: func(ctx context.Context, d amqp.Delivery) error {
			return r.deliver(ctx, d.Body)
		},
	})
}

// deliver runs one attempt.  Retries are republished to a delay queue
// and the current delivery is acked.
func (r *AMQPRunner) deliver(ctx context.Context, body []byte) error {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}
	out, err := r.run(ctx, t)
	if out != outcomeRetry {
		return nil
	}
	delay := t.Backoff.Delay(t.Attempt)
	t.Attempt++
	if perr := r.publish(ctx, t, delay); perr != nil {
		log.Printf("jobs: %s %s reschedule failed: %v", t.Type, t.ID, perr)
		r.exhaust(ctx, t, err)
	}
	return nil
}
