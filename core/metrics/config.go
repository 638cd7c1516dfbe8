package metrics

import "github.com/kilianp07/irrigo/core/factory"

// Config defines settings for metrics sinks and the Prometheus endpoint.
type Config struct {
	Sinks             []factory.ModuleConfig `json:"sinks"`
	PrometheusEnabled bool                   `json:"prometheus_enabled"`
	PrometheusPort    string                 `json:"prometheus_port"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = ":9090"
	}
}
