package model

import "fmt"

// MeasurementKind enumerates the readings a station reports.
type MeasurementKind int

const (
	SoilMoisture MeasurementKind = iota
	AirHumidity
	Temperature

	numKinds
)

// Kinds returns every measurement kind in declaration order.
func Kinds() []MeasurementKind {
	return []MeasurementKind{SoilMoisture, AirHumidity, Temperature}
}

func (k MeasurementKind) String() string {
	switch k {
	case SoilMoisture:
		return "soil_moisture"
	case AirHumidity:
		return "air_humidity"
	case Temperature:
		return "temperature"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k MeasurementKind) Valid() bool { return k >= 0 && k < numKinds }

type slot struct {
	value float64
	set   bool
}

// SensorSnapshot holds at most one value per measurement kind. It is a value
// type: copies never share state, so a snapshot handed out by a session
// cannot be changed by it afterwards.
type SensorSnapshot struct {
	slots [numKinds]slot
}

// With returns a copy of s with kind set to v. Unknown kinds are ignored.
func (s SensorSnapshot) With(kind MeasurementKind, v float64) SensorSnapshot {
	if kind.Valid() {
		s.slots[kind] = slot{value: v, set: true}
	}
	return s
}

// Get returns the value recorded for kind.
func (s SensorSnapshot) Get(kind MeasurementKind) (float64, bool) {
	if !kind.Valid() {
		return 0, false
	}
	sl := s.slots[kind]
	return sl.value, sl.set
}

// Ptr returns the value for kind as a pointer, nil when absent.
func (s SensorSnapshot) Ptr(kind MeasurementKind) *float64 {
	v, ok := s.Get(kind)
	if !ok {
		return nil
	}
	return &v
}

// Len returns the number of kinds with a value.
func (s SensorSnapshot) Len() int {
	n := 0
	for _, sl := range s.slots {
		if sl.set {
			n++
		}
	}
	return n
}

// Complete reports whether every kind has a value.
func (s SensorSnapshot) Complete() bool { return s.Len() == int(numKinds) }

// Empty reports whether no kind has a value.
func (s SensorSnapshot) Empty() bool { return s.Len() == 0 }

// Fields returns the present values keyed by kind name, for logging.
func (s SensorSnapshot) Fields() map[string]any {
	out := make(map[string]any, numKinds)
	for _, k := range Kinds() {
		if v, ok := s.Get(k); ok {
			out[k.String()] = v
		}
	}
	return out
}
