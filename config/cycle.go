package config

import (
	"fmt"

	"github.com/kilianp07/irrigo/core/cycle"
)

// CycleConfig tunes poll cycles.
type CycleConfig struct {
	// Concurrency bounds the stations of one tenant polled at once.
	Concurrency           int `json:"concurrency"`
	PersistTimeoutSeconds int `json:"persist_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *CycleConfig) SetDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = cycle.DefaultConcurrency
	}
	if c.PersistTimeoutSeconds == 0 {
		c.PersistTimeoutSeconds = 10
	}
}

// Validate checks value ranges.
func (c CycleConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("cycle.concurrency must be at least 1")
	}
	if c.PersistTimeoutSeconds < 1 {
		return fmt.Errorf("cycle.persist_timeout_seconds must be positive")
	}
	return nil
}
