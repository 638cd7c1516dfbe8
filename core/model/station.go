package model

import (
	"fmt"
	"strings"
)

// StationConfig describes one irrigation station as stored by the
// configuration collaborator. It is read-only for the duration of a cycle.
type StationConfig struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Broker    string  `json:"broker"`    // broker locator, e.g. "xyz.s1.eu.hivemq.cloud"
	Threshold float64 `json:"threshold"` // soil moisture percentage at or below which to irrigate
	Dose      float64 `json:"dose"`      // millimetres of water per irrigation
}

// Validate reports a ValidationError when the station cannot be polled.
func (s StationConfig) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: station id is empty", ErrValidation)
	}
	if strings.TrimSpace(s.Broker) == "" {
		return fmt.Errorf("%w: station %s has no broker", ErrValidation, s.ID)
	}
	return nil
}

// Credentials are the per-tenant messaging credentials.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Valid reports whether both username and password are set.
func (c *Credentials) Valid() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// Tenant groups the stations owned by one account.
type Tenant struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Credentials *Credentials    `json:"credentials"`
	Stations    []StationConfig `json:"stations"`
}
