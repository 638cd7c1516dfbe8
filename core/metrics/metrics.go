package metrics

import "github.com/kilianp07/irrigo/core/events"

// Sink records poll cycle events for observability purposes.
type Sink interface {
	RecordSession(ev events.SessionEvent) error
	RecordCommand(ev events.CommandEvent) error
	RecordPersist(ev events.PersistEvent) error
	RecordSkip(ev events.SkipEvent) error
	RecordCycle(ev events.CycleEvent) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSession(events.SessionEvent) error { return nil }
func (NopSink) RecordCommand(events.CommandEvent) error { return nil }
func (NopSink) RecordPersist(events.PersistEvent) error { return nil }
func (NopSink) RecordSkip(events.SkipEvent) error       { return nil }
func (NopSink) RecordCycle(events.CycleEvent) error     { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Record forwards ev to every sink and returns the first error encountered.
func (m *MultiSink) Record(ev events.Event) error {
	var first error
	for _, s := range m.Sinks {
		if err := Record(s, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) RecordSession(ev events.SessionEvent) error { return m.Record(ev) }
func (m *MultiSink) RecordCommand(ev events.CommandEvent) error { return m.Record(ev) }
func (m *MultiSink) RecordPersist(ev events.PersistEvent) error { return m.Record(ev) }
func (m *MultiSink) RecordSkip(ev events.SkipEvent) error       { return m.Record(ev) }
func (m *MultiSink) RecordCycle(ev events.CycleEvent) error     { return m.Record(ev) }

// Record dispatches ev to the matching method of s. Unknown events are ignored.
func Record(s Sink, ev events.Event) error {
	switch e := ev.(type) {
	case events.SessionEvent:
		return s.RecordSession(e)
	case events.CommandEvent:
		return s.RecordCommand(e)
	case events.PersistEvent:
		return s.RecordPersist(e)
	case events.SkipEvent:
		return s.RecordSkip(e)
	case events.CycleEvent:
		return s.RecordCycle(e)
	}
	return nil
}
