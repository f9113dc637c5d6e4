package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalRunner runs tasks in-process on timers.  Scheduled work does not
// survive a restart, so it is used in tests and when no broker is
// configured.
type LocalRunner struct {
	registry

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewLocalRunner returns a runner whose handlers receive a context that
// is cancelled by Stop.
func NewLocalRunner() *LocalRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalRunner{ctx: ctx, cancel: cancel, timers: make(map[string]*time.Timer)}
}

// Schedule arms a timer for the first attempt.
func (r *LocalRunner) Schedule(_ context.Context, taskType string, payload any, opts ScheduleOptions) (string, error) {
	t, err := newTask(uuid.NewString(), taskType, payload, opts)
	if err != nil {
		return "", err
	}
	r.arm(t, opts.Delay)
	return t.ID, nil
}

func (r *LocalRunner) arm(t Task, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	r.timers[t.ID] = time.AfterFunc(delay, func() {
		defer r.wg.Done()
		r.mu.Lock()
		delete(r.timers, t.ID)
		r.mu.Unlock()
		r.execute(t)
	})
}

func (r *LocalRunner) execute(t Task) {
	if r.ctx.Err() != nil {
		return
	}
	out, _ := r.run(r.ctx, t)
	if out == outcomeRetry {
		delay := t.Backoff.Delay(t.Attempt)
		t.Attempt++
		r.arm(t, delay)
	}
}

// Pending returns the number of armed timers.
func (r *LocalRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels armed timers and waits for running handlers to return.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	r.cancel()
	for id, tm := range r.timers {
		if tm.Stop() {
			r.wg.Done()
		}
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
