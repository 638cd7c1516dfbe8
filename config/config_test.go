package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/irrigo/core/scheduler"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  read_window_seconds: 20
  secure_domains: ["hivemq.cloud", "emqxsl.com"]
  topics:
    request: "farm/"
cycle:
  concurrency: 8
schedule:
  interval_minutes: 30
  run_on_start: true
metrics:
  sinks:
    - type: "nop"
storage:
  backends:
    - type: "memory"
tenants:
  list:
    - id: "t1"
      email: "farmer@example.com"
      credentials:
        username: "u"
        password: "p"
      stations:
        - id: "s1"
          name: "Horta"
          broker: "abc.s1.eu.hivemq.cloud"
          threshold: 30
          dose: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MQTT.ReadWindowSeconds)
	assert.Equal(t, 30, cfg.MQTT.ConnectTimeoutSeconds)
	assert.Equal(t, []string{"hivemq.cloud", "emqxsl.com"}, cfg.MQTT.SecureDomains)
	assert.Equal(t, "farm/", cfg.MQTT.Topics.Request)
	assert.Equal(t, "esp32/umidade-solo", cfg.MQTT.Topics.SoilMoisture)
	assert.Equal(t, 8, cfg.Cycle.Concurrency)
	assert.Equal(t, 30, cfg.Schedule.IntervalMinutes)
	assert.True(t, cfg.Schedule.RunOnStart)
	assert.Equal(t, scheduler.DefaultTimezone, cfg.Schedule.Timezone)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "nop", cfg.Metrics.Sinks[0].Type)
	require.Len(t, cfg.Storage.Backends, 1)
	assert.Equal(t, "memory", cfg.Storage.Backends[0].Type)

	require.Len(t, cfg.Tenants.List, 1)
	tenant := cfg.Tenants.List[0]
	assert.Equal(t, "t1", tenant.ID)
	require.NotNil(t, tenant.Credentials)
	assert.True(t, tenant.Credentials.Valid())
	require.Len(t, tenant.Stations, 1)
	assert.Equal(t, "abc.s1.eu.hivemq.cloud", tenant.Stations[0].Broker)
	assert.Equal(t, 30.0, tenant.Stations[0].Threshold)
	assert.Equal(t, 5.0, tenant.Stations[0].Dose)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{}`))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.MQTT.ConnectTimeoutSeconds)
	assert.Equal(t, 15, cfg.MQTT.ReadWindowSeconds)
	assert.Equal(t, 60, cfg.MQTT.KeepAliveSeconds)
	assert.Equal(t, []string{"hivemq.cloud"}, cfg.MQTT.SecureDomains)
	assert.Equal(t, "esp32/", cfg.MQTT.Topics.Request)
	assert.Equal(t, 4, cfg.Cycle.Concurrency)
	assert.Equal(t, 10, cfg.Cycle.PersistTimeoutSeconds)
	assert.Equal(t, 60, cfg.Schedule.IntervalMinutes)
	assert.Equal(t, "America/Sao_Paulo", cfg.Schedule.Timezone)
	assert.Equal(t, ":9090", cfg.Metrics.PrometheusPort)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, TenantSourceFile, cfg.Tenants.Source)
	require.Len(t, cfg.Storage.Backends, 1)
	assert.Equal(t, "log", cfg.Storage.Backends[0].Type)
	assert.Equal(t, "tcp://localhost:1883", cfg.Simulator.Broker)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_MQTT__READ_WINDOW_SECONDS", "45")
	t.Setenv("K_LOGGING__LEVEL", "debug")
	cfg, err := Load(writeConfig(t, "config.yaml", "mqtt:\n  read_window_seconds: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.MQTT.ReadWindowSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "bad.yaml", "mqtt:\n  qos: 3\nschedule:\n  timezone: Mars/Olympus\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "mqtt.qos")
	assert.ErrorContains(t, err, "schedule.timezone")
}

func TestTenantsValidate(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"missing id", "tenants:\n  list:\n    - email: a@b.c\n", "tenant without id"},
		{"duplicate", "tenants:\n  list:\n    - id: t1\n    - id: t1\n", "duplicate tenant t1"},
		{"postgres url", "tenants:\n  source: postgres\n", "postgres_url is required"},
		{"unknown source", "tenants:\n  source: ldap\n", "unknown tenants.source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tc.data))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoggingValidate(t *testing.T) {
	c := LoggingConfig{Level: "verbose", Format: "json"}
	assert.Error(t, c.Validate())
	c = LoggingConfig{Level: "warn", Format: "xml"}
	assert.Error(t, c.Validate())
	c = LoggingConfig{Level: "WARN", Format: "console"}
	assert.NoError(t, c.Validate())
}
