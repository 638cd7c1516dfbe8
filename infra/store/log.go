package store

import (
	"context"
	"time"

	"github.com/kilianp07/irrigo/core/model"
	"github.com/kilianp07/irrigo/infra/logger"
)

// LogStore writes readings to the log. It is the default backend when no
// database is configured.
type LogStore struct {
	log logger.Logger
}

// NewLogStore creates a LogStore.
func NewLogStore(log logger.Logger) *LogStore {
	return &LogStore{log: log}
}

// Save logs r as structured fields.
func (s *LogStore) Save(_ context.Context, r model.Reading) error {
	fields := map[string]any{
		"uid":                  r.ID,
		"path":                 r.Path(),
		"irrigatedMillimeters": r.IrrigatedAmount,
		"date":                 r.Timestamp.Format(time.RFC3339),
	}
	if r.SoilMoisture != nil {
		fields["soilHumidity"] = *r.SoilMoisture
	}
	if r.AirHumidity != nil {
		fields["airHumidity"] = *r.AirHumidity
	}
	if r.Temperature != nil {
		fields["temperature"] = *r.Temperature
	}
	s.log.With(fields).Infof("reading saved")
	return nil
}
