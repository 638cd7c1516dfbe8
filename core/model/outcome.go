package model

import (
	"fmt"
	"time"
)

// OutcomeKind tags how an acquisition session ended.
type OutcomeKind int

const (
	// OutcomeComplete means every kind arrived before the deadline.
	OutcomeComplete OutcomeKind = iota
	// OutcomePartial means the deadline fired with some readings.
	OutcomePartial
	// OutcomeTimedOut means the deadline fired with no readings.
	OutcomeTimedOut
	// OutcomeTransportError means the session failed at the transport level.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeComplete:
		return "complete"
	case OutcomePartial:
		return "partial"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the terminal result of one acquisition session.
type Outcome struct {
	Kind     OutcomeKind
	Snapshot SensorSnapshot
	Err      error
	Duration time.Duration
}

// Completed builds a Complete outcome.
func Completed(s SensorSnapshot) Outcome {
	return Outcome{Kind: OutcomeComplete, Snapshot: s}
}

// Expired builds the outcome for a fired deadline: Partial when s holds at
// least one value, TimedOut otherwise.
func Expired(s SensorSnapshot) Outcome {
	if s.Empty() {
		return Outcome{Kind: OutcomeTimedOut}
	}
	return Outcome{Kind: OutcomePartial, Snapshot: s}
}

// TransportFailure builds a TransportError outcome. Readings gathered before
// the failure are discarded.
func TransportFailure(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Err: err}
}

// Decision is the irrigation verdict for one snapshot.
type Decision struct {
	Amount    float64
	Triggered bool
}

// NoAction is the decision that leaves a station alone.
var NoAction = Decision{}
