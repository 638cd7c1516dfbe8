package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/irrigo/core/logger"
)

// CycleFunc runs one poll cycle for the tick at.
type CycleFunc func(ctx context.Context, at time.Time)

// Trigger fires cycles on interval boundaries counted from local midnight.
type Trigger struct {
	Interval   time.Duration
	Location   *time.Location
	RunOnStart bool

	log logger.Logger
	now func() time.Time
}

// New creates a Trigger from cfg.
func New(cfg Config, log logger.Logger) (*Trigger, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errors.New("scheduler: nil logger")
	}
	loc, _ := time.LoadLocation(cfg.Timezone)
	return &Trigger{Interval: cfg.Interval(), Location: loc, RunOnStart: cfg.RunOnStart, log: log, now: time.Now}, nil
}

// Next returns the first boundary strictly after t. Boundaries are elapsed
// time since local midnight, so on a DST transition day an interval that
// does not divide an hour lands off the usual wall-clock labels.
// America/Sao_Paulo has observed no DST since 2019.
func (tr *Trigger) Next(t time.Time) time.Time {
	loc := tr.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	n := local.Sub(midnight)/tr.Interval + 1
	return midnight.Add(n * tr.Interval)
}

// Run invokes fn on every boundary until ctx is done. fn runs on the
// calling goroutine, so cycles are serial; boundaries missed while fn was
// running are skipped.
func (tr *Trigger) Run(ctx context.Context, fn CycleFunc) error {
	if tr.Interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	if tr.RunOnStart {
		fn(ctx, tr.now())
	}
	for {
		now := tr.now()
		next := tr.Next(now)
		tr.log.Infof("next cycle at %s", next.Format(time.RFC3339))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		fn(ctx, next)
		if missed := tr.now().Sub(next) / tr.Interval; missed > 0 {
			tr.log.Warnf("cycle for %s overran, skipping %d ticks", next.Format(time.RFC3339), missed)
		}
	}
}
