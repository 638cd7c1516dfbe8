package cycle

import (
	"sync"
	"time"

	"github.com/kilianp07/irrigo/core/model"
)

// StationResult is what happened to one station during a cycle.
type StationResult struct {
	TenantID  string
	StationID string
	// Skipped is set when the station failed validation and was never polled.
	Skipped     bool
	Outcome     model.Outcome
	Decision    model.Decision
	Dispatched  bool
	DispatchErr error
	Persisted   bool
	PersistErr  error
	// Err is the validation or transport error, if any.
	Err error
}

// Report summarises a cycle.
type Report struct {
	At       time.Time
	Started  time.Time
	Duration time.Duration
	Tenants  int
	Results  []StationResult
}

// Result returns the result for a station.
func (r Report) Result(tenantID, stationID string) (StationResult, bool) {
	for _, res := range r.Results {
		if res.TenantID == tenantID && res.StationID == stationID {
			return res, true
		}
	}
	return StationResult{}, false
}

// SkippedCount returns the number of stations skipped by validation.
func (r Report) SkippedCount() int {
	return r.count(func(s StationResult) bool { return s.Skipped })
}

// DispatchedCount returns the number of commands published successfully.
func (r Report) DispatchedCount() int {
	return r.count(func(s StationResult) bool { return s.Dispatched })
}

// PersistedCount returns the number of readings saved.
func (r Report) PersistedCount() int {
	return r.count(func(s StationResult) bool { return s.Persisted })
}

// OutcomeCount returns the number of sessions that ended with kind.
func (r Report) OutcomeCount(kind model.OutcomeKind) int {
	return r.count(func(s StationResult) bool { return !s.Skipped && s.Outcome.Kind == kind })
}

func (r Report) count(match func(StationResult) bool) int {
	n := 0
	for _, s := range r.Results {
		if match(s) {
			n++
		}
	}
	return n
}

// collector gathers station results from concurrent workers.
type collector struct {
	mu  sync.Mutex
	res []StationResult
}

func (c *collector) add(r StationResult) {
	c.mu.Lock()
	c.res = append(c.res, r)
	c.mu.Unlock()
}

func (c *collector) results() []StationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StationResult(nil), c.res...)
}
