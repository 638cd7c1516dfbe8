package scheduler

import (
	"fmt"
	"time"
	_ "time/tzdata" // time zones for minimal container images
)

// Defaults for Config.
const (
	DefaultIntervalMinutes = 60
	DefaultTimezone        = "America/Sao_Paulo"
)

// Config defines when poll cycles run.
type Config struct {
	IntervalMinutes int    `json:"interval_minutes"`
	Timezone        string `json:"timezone"`
	RunOnStart      bool   `json:"run_on_start"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalMinutes == 0 {
		c.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
}

// Validate checks the interval and time zone.
func (c Config) Validate() error {
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

// Interval returns the configured interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
