package model

import (
	"fmt"
	"time"
)

// Reading is the record handed to the persistence collaborator.
// Absent measurements are nil.
type Reading struct {
	ID              string    `json:"uid"`
	TenantID        string    `json:"tenant_id"`
	StationID       string    `json:"station_id"`
	SoilMoisture    *float64  `json:"soilHumidity,omitempty"`
	AirHumidity     *float64  `json:"airHumidity,omitempty"`
	Temperature     *float64  `json:"temperature,omitempty"`
	IrrigatedAmount float64   `json:"irrigatedMillimeters"`
	Timestamp       time.Time `json:"date"`
}

// NewReading builds a Reading from a snapshot.
func NewReading(id, tenantID, stationID string, s SensorSnapshot, irrigated float64, ts time.Time) Reading {
	return Reading{
		ID:              id,
		TenantID:        tenantID,
		StationID:       stationID,
		SoilMoisture:    s.Ptr(SoilMoisture),
		AirHumidity:     s.Ptr(AirHumidity),
		Temperature:     s.Ptr(Temperature),
		IrrigatedAmount: irrigated,
		Timestamp:       ts,
	}
}

// Path returns the per-station collection the reading belongs to.
func (r Reading) Path() string {
	return StationDataPath(r.TenantID, r.StationID)
}

// StationDataPath returns the collection path for a station's readings.
func StationDataPath(tenantID, stationID string) string {
	return fmt.Sprintf("users/%s/irrigation_stations/%s/data", tenantID, stationID)
}
