package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/irrigo/core/model"
	"github.com/kilianp07/irrigo/infra/logger"
)

func TestSampleWithinRange(t *testing.T) {
	s := New(Config{}, logger.NopLogger{})
	for i := 0; i < 200; i++ {
		snap := s.Sample()
		assert.True(t, snap.Complete())
		soil, _ := snap.Get(model.SoilMoisture)
		air, _ := snap.Get(model.AirHumidity)
		assert.GreaterOrEqual(t, soil, 0.0)
		assert.LessOrEqual(t, soil, 100.0)
		assert.GreaterOrEqual(t, air, 0.0)
		assert.LessOrEqual(t, air, 100.0)
	}
}

func TestSampleDropsEverythingAtFullDropRate(t *testing.T) {
	s := New(Config{DropRate: 1}, logger.NopLogger{})
	assert.True(t, s.Sample().Empty())
}

func TestIrrigateRaisesSoilMoisture(t *testing.T) {
	s := New(Config{SoilMoisture: SensorProfile{Mean: 20}, IrrigationGain: 3}, logger.NopLogger{})
	s.Irrigate(5)

	soil, ok := s.Sample().Get(model.SoilMoisture)
	assert.True(t, ok)
	assert.Equal(t, 35.0, soil)
	assert.Equal(t, []float64{5}, s.Commands())
}

func TestDryingLowersSoilMoisture(t *testing.T) {
	s := New(Config{SoilMoisture: SensorProfile{Mean: 10}, DryingPerRead: 6}, logger.NopLogger{})
	first, _ := s.Sample().Get(model.SoilMoisture)
	second, _ := s.Sample().Get(model.SoilMoisture)
	third, _ := s.Sample().Get(model.SoilMoisture)
	assert.Equal(t, []float64{10, 4, 0}, []float64{first, second, third})
}

func TestConfigValidate(t *testing.T) {
	c := Config{DropRate: 2}
	c.SetDefaults()
	assert.Error(t, c.Validate())
	c.DropRate = 0.5
	assert.NoError(t, c.Validate())
}
