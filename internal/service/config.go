package service

import (
	"time"

	"github.com/iliyamo/concert-ticket-booking/internal/jobs"
)

// Config holds the engine's timing knobs.
type Config struct {
	ReservationDuration time.Duration // how long a hold lasts
	LockTTL             time.Duration // safety net for a crashed critical section
	SweepInterval       time.Duration
	QueueDelayUnit      time.Duration // promotion delay per queue position
	QueueMaxAttempts    int
	QueueBackoff        jobs.Backoff
	AvailabilityTTL     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReservationDuration: 15 * time.Minute,
		LockTTL:             10 * time.Second,
		SweepInterval:       60 * time.Second,
		QueueDelayUnit:      time.Second,
		QueueMaxAttempts:    3,
		QueueBackoff:        jobs.Backoff{Initial: time.Second, Factor: 2, Max: 30 * time.Second},
		AvailabilityTTL:     5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReservationDuration <= 0 {
		c.ReservationDuration = d.ReservationDuration
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.QueueDelayUnit <= 0 {
		c.QueueDelayUnit = d.QueueDelayUnit
	}
	if c.QueueMaxAttempts <= 0 {
		c.QueueMaxAttempts = d.QueueMaxAttempts
	}
	if c.QueueBackoff.Initial <= 0 {
		c.QueueBackoff = d.QueueBackoff
	}
	if c.AvailabilityTTL <= 0 {
		c.AvailabilityTTL = d.AvailabilityTTL
	}
	return c
}
