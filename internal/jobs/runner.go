// Package jobs is a delayed, retryable task runner.  Tasks are delivered
// at least once; a handler that fails is retried with exponential
// backoff until it succeeds, returns a Permanent error or runs out of
// attempts, after which the task type's exhaustion handler runs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Task is one execution of a scheduled job.  Attempt is 1-based.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     Backoff         `json:"backoff"`
}

// Handler executes a task.  Returning an error schedules a retry unless
// the error is Permanent or the task is on its last attempt.
type Handler func(ctx context.Context, t Task) error

// ExhaustedHandler runs once when a task will not be retried again.
// err is the last handler error.
type ExhaustedHandler func(ctx context.Context, t Task, err error)

// Backoff describes the delay between attempts: Initial * Factor^(n-1)
// for the n-th retry, capped at Max when Max is non-zero.
type Backoff struct {
	Initial time.Duration `json:"initial"`
	Factor  float64       `json:"factor"`
	Max     time.Duration `json:"max"`
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	f := b.Factor
	if f < 1 {
		f = 2
	}
	d := time.Duration(float64(b.Initial) * math.Pow(f, float64(attempt-1)))
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// ScheduleOptions control a single Schedule call.
type ScheduleOptions struct {
	Delay       time.Duration
	MaxAttempts int
	Backoff     Backoff
}

// Runner schedules tasks and dispatches them to registered handlers.
type Runner interface {
	Schedule(ctx context.Context, taskType string, payload any, opts ScheduleOptions) (string, error)
	Handle(taskType string, h Handler, onExhausted ExhaustedHandler)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ErrNoHandler is returned when a task type has no registered handler.
var ErrNoHandler = errors.New("jobs: no handler registered")

type registration struct {
	handle    Handler
	exhausted ExhaustedHandler
}

// registry is the handler table shared by both runners.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

func (r *registry) Handle(taskType string, h Handler, onExhausted ExhaustedHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]registration)
	}
	r.handlers[taskType] = registration{handle: h, exhausted: onExhausted}
}

// outcome is the result of one attempt.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeExhausted
)

// run executes one attempt and decides what happens next.  The
// exhaustion handler is invoked here so both runners share the policy.
func (r *registry) run(ctx context.Context, t Task) (outcome, error) {
	r.mu.RLock()
	reg, ok := r.handlers[t.Type]
	r.mu.RUnlock()
	if !ok {
		log.Printf("jobs: %s %s: %v", t.Type, t.ID, ErrNoHandler)
		return outcomeExhausted, ErrNoHandler
	}

	err := safeCall(ctx, reg.handle, t)
	if err == nil {
		return outcomeDone, nil
	}
	if !IsPermanent(err) && t.Attempt < t.MaxAttempts {
		log.Printf("jobs: %s %s attempt %d/%d failed: %v", t.Type, t.ID, t.Attempt, t.MaxAttempts, err)
		return outcomeRetry, err
	}
	log.Printf("jobs: %s %s gave up after attempt %d: %v", t.Type, t.ID, t.Attempt, err)
	if reg.exhausted != nil {
		reg.exhausted(ctx, t, err)
	}
	return outcomeExhausted, err
}

// exhaust runs the exhaustion handler for a task that could not be
// rescheduled.
func (r *registry) exhaust(ctx context.Context, t Task, err error) {
	r.mu.RLock()
	reg, ok := r.handlers[t.Type]
	r.mu.RUnlock()
	if ok && reg.exhausted != nil {
		reg.exhausted(ctx, t, err)
	}
}

func safeCall(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jobs: handler panic: %v", rec)
		}
	}()
	return h(ctx, t)
}

func newTask(id, taskType string, payload any, opts ScheduleOptions) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("jobs: marshal payload: %w", err)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return Task{
		ID:          id,
		Type:        taskType,
		Payload:     raw,
		Attempt:     1,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
	}, nil
}
