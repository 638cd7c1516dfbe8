package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/irrigo/core/metrics"
	"github.com/kilianp07/irrigo/core/scheduler"
	"github.com/kilianp07/irrigo/infra/monitoring"
	"github.com/kilianp07/irrigo/infra/store"
	"github.com/kilianp07/irrigo/simulator"
)

type Config struct {
	MQTT       MQTTConfig        `json:"mqtt"`
	Cycle      CycleConfig       `json:"cycle"`
	Schedule   scheduler.Config  `json:"schedule"`
	Metrics    metrics.Config    `json:"metrics"`
	Logging    LoggingConfig     `json:"logging"`
	Storage    store.Config      `json:"storage"`
	Tenants    TenantsConfig     `json:"tenants"`
	Monitoring monitoring.Config `json:"monitoring"`
	Simulator  simulator.Config  `json:"simulator"`
}

// Load reads a YAML or JSON file, applies K_ prefixed environment overrides
// (K_MQTT__READ_WINDOW_SECONDS=20 sets mqtt.read_window_seconds), then
// fills defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Cycle.SetDefaults()
	c.Schedule.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
	c.Storage.SetDefaults()
	c.Tenants.SetDefaults()
	c.Simulator.SetDefaults()
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	return errors.Join(
		c.MQTT.Validate(),
		c.Cycle.Validate(),
		c.Schedule.Validate(),
		c.Logging.Validate(),
		c.Storage.Validate(),
		c.Tenants.Validate(),
	)
}
