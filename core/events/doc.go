// Package events defines the poll cycle events emitted on the event bus.
//
// Available event types:
//   - SessionEvent: an acquisition session resolved
//   - CommandEvent: an irrigation command was published or failed
//   - PersistEvent: a reading was written or the write failed
//   - SkipEvent: a tenant or station was skipped before any connection
//   - CycleEvent: a poll cycle finished
package events
