// Package scheduler triggers poll cycles on a fixed interval aligned to the
// wall clock of a configured time zone. Cycles never overlap: a tick that
// arrives while a cycle is still running is skipped.
package scheduler
