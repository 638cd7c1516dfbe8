package decision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/irrigo/core/model"
)

func snap(soil float64) model.SensorSnapshot {
	return model.SensorSnapshot{}.
		With(model.SoilMoisture, soil).
		With(model.AirHumidity, 60).
		With(model.Temperature, 22)
}

func TestDecide(t *testing.T) {
	station := model.StationConfig{ID: "s1", Threshold: 30, Dose: 5}
	cases := []struct {
		name     string
		snapshot model.SensorSnapshot
		station  model.StationConfig
		want     model.Decision
	}{
		{"dry soil", snap(25), station, model.Decision{Amount: 5, Triggered: true}},
		{"wet soil", snap(45), station, model.NoAction},
		{"threshold is inclusive", snap(30), station, model.Decision{Amount: 5, Triggered: true}},
		{"just above threshold", snap(math.Nextafter(30, 31)), station, model.NoAction},
		{"no soil reading", model.SensorSnapshot{}.With(model.Temperature, 22), station, model.NoAction},
		{"empty snapshot", model.SensorSnapshot{}, station, model.NoAction},
		{"zero dose", snap(0), model.StationConfig{Threshold: 30, Dose: 0}, model.NoAction},
		{"negative dose", snap(0), model.StationConfig{Threshold: 30, Dose: -1}, model.NoAction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Decide(c.snapshot, c.station))
		})
	}
}
