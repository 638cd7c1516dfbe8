package acquisition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kilianp07/irrigo/core/model"
)

// Accumulator collects readings for one session. It is owned by a single
// goroutine and does no locking.
type Accumulator struct {
	snap model.SensorSnapshot
}

// Record parses raw and stores it under kind, replacing any earlier value.
// On a parse failure the accumulator is left untouched and an error wrapping
// model.ErrInvalidReading is returned.
func (a *Accumulator) Record(kind model.MeasurementKind, raw string) error {
	v, err := ParseReading(raw)
	if err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %s", model.ErrInvalidReading, kind)
	}
	a.snap = a.snap.With(kind, v)
	return nil
}

// Complete reports whether every measurement kind has been recorded.
func (a *Accumulator) Complete() bool { return a.snap.Complete() }

// Snapshot returns a copy of the current state.
func (a *Accumulator) Snapshot() model.SensorSnapshot { return a.snap }

// ParseReading parses a decimal ASCII payload. NaN and infinities are rejected.
func ParseReading(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidReading, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", model.ErrInvalidReading, raw)
	}
	return v, nil
}
