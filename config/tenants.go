package config

import (
	"fmt"

	"github.com/kilianp07/irrigo/core/model"
)

// Tenant sources.
const (
	TenantSourceFile     = "file"
	TenantSourcePostgres = "postgres"
)

// TenantsConfig selects where tenants and their stations come from.
type TenantsConfig struct {
	// Source is "file" (List below) or "postgres".
	Source      string         `json:"source"`
	PostgresURL string         `json:"postgres_url"`
	List        []model.Tenant `json:"list"`
}

// SetDefaults applies sane defaults.
func (c *TenantsConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = TenantSourceFile
	}
}

// Validate checks the source. Individual stations are validated per cycle
// so one bad entry never prevents the service from starting.
func (c TenantsConfig) Validate() error {
	switch c.Source {
	case TenantSourceFile:
		seen := map[string]bool{}
		for _, t := range c.List {
			if t.ID == "" {
				return fmt.Errorf("tenants.list: tenant without id")
			}
			if seen[t.ID] {
				return fmt.Errorf("tenants.list: duplicate tenant %s", t.ID)
			}
			seen[t.ID] = true
		}
	case TenantSourcePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("tenants.postgres_url is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown tenants.source %s", c.Source)
	}
	return nil
}
