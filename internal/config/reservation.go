package config

import "time"

// ReservationConfig holds the engine timings.
type ReservationConfig struct {
	ReservationDuration time.Duration
	LockTTL             time.Duration
	SweepInterval       time.Duration
	QueueDelayUnit      time.Duration
	QueueMaxAttempts    int
	QueueBackoffInitial time.Duration
	QueueBackoffMax     time.Duration
	AvailabilityTTL     time.Duration
}

// LoadReservationConfig reads the engine timings.  Unset or malformed
// values fall back to the defaults below.
func LoadReservationConfig() ReservationConfig {
	cfg := ReservationConfig{
		ReservationDuration: envDur("RESERVATION_DURATION", 15*time.Minute),
		LockTTL:             envDur("LOCK_TTL", 10*time.Second),
		SweepInterval:       envDur("SWEEP_INTERVAL", 60*time.Second),
		QueueDelayUnit:      envDur("QUEUE_DELAY_UNIT", time.Second),
		QueueMaxAttempts:    envInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueBackoffInitial: envDur("QUEUE_BACKOFF_INITIAL", time.Second),
		QueueBackoffMax:     envDur("QUEUE_BACKOFF_MAX", 30*time.Second),
		AvailabilityTTL:     envDur("AVAILABILITY_CACHE_TTL", 5*time.Minute),
	}
	if cfg.QueueMaxAttempts < 1 {
		cfg.QueueMaxAttempts = 1
	}
	return cfg
}

// BrokerConfig points the job runner and notification fan-out at
// RabbitMQ.  An empty URL keeps everything in process.
type BrokerConfig struct {
	URL         string
	QueuePrefix string
	NotifyBuf   int
}

// LoadBrokerConfig takes the broker address from RABBITMQ_URL, then
// AMQP_URL.
func LoadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		URL:         envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		QueuePrefix: envStr("JOBS_QUEUE_PREFIX", "tickets.jobs"),
		NotifyBuf:   envInt("NOTIFY_BUFFER", 256),
	}
}
