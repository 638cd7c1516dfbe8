package simulator

import (
	"fmt"
	"time"

	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
)

// SensorProfile describes the distribution of one sensor's readings.
type SensorProfile struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// Config holds parameters for the station simulator.
type Config struct {
	Broker   string          `json:"broker"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	ClientID string          `json:"client_id"`
	Topics   coremqtt.Topics `json:"topics"`

	SoilMoisture SensorProfile `json:"soil_moisture"`
	AirHumidity  SensorProfile `json:"air_humidity"`
	Temperature  SensorProfile `json:"temperature"`

	// ReplyDelayMillis delays the readings sent for a read request.
	ReplyDelayMillis int `json:"reply_delay_ms"`
	// DropRate is the probability that a single reading is not sent.
	DropRate float64 `json:"drop_rate"`
	// IrrigationGain is the soil moisture gained per irrigated millimetre.
	IrrigationGain float64 `json:"irrigation_gain"`
	// DryingPerRead is the soil moisture lost between two read requests.
	DryingPerRead float64 `json:"drying_per_read"`
}

// SetDefaults applies values resembling a field station in the afternoon.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "irrigo-sim"
	}
	c.Topics.SetDefaults()
	if c.SoilMoisture == (SensorProfile{}) {
		c.SoilMoisture = SensorProfile{Mean: 35, StdDev: 3}
	}
	if c.AirHumidity == (SensorProfile{}) {
		c.AirHumidity = SensorProfile{Mean: 60, StdDev: 5}
	}
	if c.Temperature == (SensorProfile{}) {
		c.Temperature = SensorProfile{Mean: 24, StdDev: 1.5}
	}
	if c.IrrigationGain == 0 {
		c.IrrigationGain = 2
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop_rate must be within [0,1]")
	}
	if c.ReplyDelayMillis < 0 {
		return fmt.Errorf("reply_delay_ms must not be negative")
	}
	for name, p := range map[string]SensorProfile{"soil_moisture": c.SoilMoisture, "air_humidity": c.AirHumidity, "temperature": c.Temperature} {
		if p.StdDev < 0 {
			return fmt.Errorf("%s.stddev must not be negative", name)
		}
	}
	return nil
}

func (c Config) replyDelay() time.Duration {
	return time.Duration(c.ReplyDelayMillis) * time.Millisecond
}
