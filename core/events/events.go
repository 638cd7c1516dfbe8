package events

import (
	"time"

	"github.com/kilianp07/irrigo/core/model"
)

// Event is implemented by every event published on the bus.
type Event interface {
	EventName() string
}

// SessionEvent is published when an acquisition session resolves.
type SessionEvent struct {
	TenantID  string
	StationID string
	Outcome   model.OutcomeKind
	Readings  int
	Duration  time.Duration
	Err       error
}

func (SessionEvent) EventName() string { return "session" }

// CommandEvent is published for every irrigation command attempt.
type CommandEvent struct {
	TenantID  string
	StationID string
	Amount    float64
	Err       error
}

func (CommandEvent) EventName() string { return "command" }

// PersistEvent is published for every reading write attempt.
type PersistEvent struct {
	TenantID  string
	StationID string
	Err       error
}

func (PersistEvent) EventName() string { return "persist" }

// Skip reasons.
const (
	SkipNoCredentials = "no_credentials"
	SkipInvalid       = "invalid_station"
)

// SkipEvent is published when a tenant or station is not polled.
// StationID is empty when a whole tenant is skipped.
type SkipEvent struct {
	TenantID  string
	StationID string
	Reason    string
}

func (SkipEvent) EventName() string { return "skip" }

// CycleEvent summarises a finished poll cycle.
type CycleEvent struct {
	Started  time.Time
	Duration time.Duration
	Tenants  int
	Stations int
	Skipped  int
}

func (CycleEvent) EventName() string { return "cycle" }
