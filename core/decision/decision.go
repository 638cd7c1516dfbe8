// Package decision holds the irrigation policy.
//
// Decide is the only place that turns readings into an irrigation amount.
// Commands are sent best-effort: when one is lost the station stays dry,
// the next cycle reads the same low moisture and decides again, so the
// system converges without retries.
package decision

import "github.com/kilianp07/irrigo/core/model"

// Decide returns the irrigation decision for snapshot under station's policy.
// Without a soil moisture reading no irrigation is triggered. The threshold
// is inclusive.
func Decide(snapshot model.SensorSnapshot, station model.StationConfig) model.Decision {
	soil, ok := snapshot.Get(model.SoilMoisture)
	if !ok {
		return model.NoAction
	}
	if soil <= station.Threshold && station.Dose > 0 {
		return model.Decision{Amount: station.Dose, Triggered: true}
	}
	return model.NoAction
}
