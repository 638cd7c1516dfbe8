package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kilianp07/irrigo/core/model"
	corestore "github.com/kilianp07/irrigo/core/store"
	"github.com/kilianp07/irrigo/infra/logger"
)

// BreakerConfig tunes the circuit breaker placed in front of each backend.
type BreakerConfig struct {
	Enabled             bool `json:"enabled"`
	ConsecutiveFailures int  `json:"consecutive_failures"`
	OpenSeconds         int  `json:"open_seconds"`
	IntervalSeconds     int  `json:"interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *BreakerConfig) SetDefaults() {
	if c.ConsecutiveFailures <= 0 {
		c.ConsecutiveFailures = 3
	}
	if c.OpenSeconds <= 0 {
		c.OpenSeconds = 300
	}
	if c.IntervalSeconds < 0 {
		c.IntervalSeconds = 0
	}
}

// Breaker short-circuits writes to a backend that keeps failing.
type Breaker struct {
	next corestore.ReadingStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next in a circuit breaker named after the backend.
func NewBreaker(name string, next corestore.ReadingStore, cfg BreakerConfig, log logger.Logger) *Breaker {
	cfg.SetDefaults()
	fails := uint32(cfg.ConsecutiveFailures)
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     name,
			Interval: time.Duration(cfg.IntervalSeconds) * time.Second,
			Timeout:  time.Duration(cfg.OpenSeconds) * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnf("storage backend %s breaker %s -> %s", name, from, to)
			},
		}),
	}
}

// Save forwards to the wrapped backend unless the breaker is open.
func (b *Breaker) Save(ctx context.Context, r model.Reading) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Save(ctx, r)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%s: %w", b.cb.Name(), err)
	}
	return err
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Close closes the wrapped backend.
func (b *Breaker) Close() error { return closeStore(b.next) }
