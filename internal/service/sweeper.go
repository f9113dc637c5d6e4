package service

import (
	"context"
	"log"
	"time"
)

// Sweeper releases expired holds on a fixed interval.
type Sweeper struct {
	res      *ReservationManager
	interval time.Duration
}

// NewSweeper returns a sweeper ticking every interval; zero uses the
// manager's configured interval.
func NewSweeper(res *ReservationManager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = res.cfg.SweepInterval
	}
	return &Sweeper{res: res, interval: interval}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.res.SweepExpired(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("sweeper: released %d expired holds", n)
	}
	return n, nil
}

// Start sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("sweeper: %v", err)
			}
		}
	}
}
