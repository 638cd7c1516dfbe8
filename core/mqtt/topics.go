package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilianp07/irrigo/core/model"
)

// Payloads understood by the station firmware.
const (
	ReadRequestPayload = "Ler sensor"
	irrigatePrefix     = "Irrigar:"
)

// Topics maps the station protocol onto MQTT topics.
type Topics struct {
	Request      string `json:"request"`
	SoilMoisture string `json:"soil_moisture"`
	AirHumidity  string `json:"air_humidity"`
	Temperature  string `json:"temperature"`
}

// DefaultTopics returns the topics used by the stock ESP32 firmware.
func DefaultTopics() Topics {
	return Topics{
		Request:      "esp32/",
		SoilMoisture: "esp32/umidade-solo",
		AirHumidity:  "esp32/umidade",
		Temperature:  "esp32/temperatura",
	}
}

// SetDefaults fills empty topics with DefaultTopics.
func (t *Topics) SetDefaults() {
	d := DefaultTopics()
	if t.Request == "" {
		t.Request = d.Request
	}
	if t.SoilMoisture == "" {
		t.SoilMoisture = d.SoilMoisture
	}
	if t.AirHumidity == "" {
		t.AirHumidity = d.AirHumidity
	}
	if t.Temperature == "" {
		t.Temperature = d.Temperature
	}
}

// Topic returns the data topic carrying kind.
func (t Topics) Topic(kind model.MeasurementKind) string {
	switch kind {
	case model.SoilMoisture:
		return t.SoilMoisture
	case model.AirHumidity:
		return t.AirHumidity
	case model.Temperature:
		return t.Temperature
	}
	return ""
}

// Data returns the data topics in measurement kind order.
func (t Topics) Data() []string {
	out := make([]string, 0, 3)
	for _, k := range model.Kinds() {
		out = append(out, t.Topic(k))
	}
	return out
}

// Kind returns the measurement kind carried by topic.
func (t Topics) Kind(topic string) (model.MeasurementKind, bool) {
	for _, k := range model.Kinds() {
		if t.Topic(k) == topic {
			return k, true
		}
	}
	return 0, false
}

// IrrigationCommand renders the command payload for amount millimetres.
func IrrigationCommand(amount float64) string {
	return irrigatePrefix + strconv.FormatFloat(amount, 'f', -1, 64)
}

// ParseIrrigationCommand extracts the amount from an irrigation command.
func ParseIrrigationCommand(payload string) (float64, error) {
	if !strings.HasPrefix(payload, irrigatePrefix) {
		return 0, fmt.Errorf("not an irrigation command: %q", payload)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(payload, irrigatePrefix)), 64)
	if err != nil {
		return 0, fmt.Errorf("irrigation amount: %w", err)
	}
	return v, nil
}
