package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/irrigo/config"
	"github.com/kilianp07/irrigo/core/factory"
	coremetrics "github.com/kilianp07/irrigo/core/metrics"
	"github.com/kilianp07/irrigo/core/model"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
)

// stationConn answers read requests with fixed readings.
type stationConn struct {
	mu      sync.Mutex
	handler coremqtt.MessageHandler
	dialer  *stationDialer
}

func (c *stationConn) Subscribe(_ context.Context, _ []string, h coremqtt.MessageHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return nil
}

func (c *stationConn) Publish(_ context.Context, _ string, payload []byte) error {
	c.dialer.record(string(payload))
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if string(payload) == coremqtt.ReadRequestPayload {
		go func() {
			for topic, v := range c.dialer.readings {
				h(topic, []byte(v))
			}
		}()
	}
	return nil
}

func (c *stationConn) Close() {}

type stationDialer struct {
	mu        sync.Mutex
	readings  map[string]string
	published []string
}

func (d *stationDialer) Dial(context.Context, coremqtt.DialOptions) (coremqtt.Conn, error) {
	return &stationConn{dialer: d}, nil
}

func (d *stationDialer) record(payload string) {
	d.mu.Lock()
	d.published = append(d.published, payload)
	d.mu.Unlock()
}

func (d *stationDialer) payloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.published...)
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Tenants: config.TenantsConfig{List: []model.Tenant{{
			ID:          "tenant-1",
			Credentials: &model.Credentials{Username: "u", Password: "p"},
			Stations:    []model.StationConfig{{ID: "st-1", Broker: "broker.local", Threshold: 30, Dose: 5}},
		}}},
	}
	cfg.Storage.Backends = []factory.ModuleConfig{{Type: "memory"}}
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	cfg.SetDefaults()
	return cfg
}

func TestRunOnceIrrigatesDryStation(t *testing.T) {
	d := &stationDialer{readings: map[string]string{
		"esp32/umidade-solo": "22.5",
		"esp32/umidade":      "61",
		"esp32/temperatura":  "27.1",
	}}
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	svc, err := New(context.Background(), cfg, WithDialer(d))
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	rep := svc.RunOnce(context.Background())

	res, ok := rep.Result("tenant-1", "st-1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeComplete, res.Outcome.Kind)
	assert.True(t, res.Dispatched)
	assert.True(t, res.Persisted)
	assert.Contains(t, d.payloads(), "Irrigar:5")
}

func TestSinkConfigsAddsPrometheus(t *testing.T) {
	got := sinkConfigs(coremetrics.Config{PrometheusEnabled: true, Sinks: []factory.ModuleConfig{{Type: "nop"}}})
	assert.Equal(t, []factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}}, got)

	got = sinkConfigs(coremetrics.Config{PrometheusEnabled: true, Sinks: []factory.ModuleConfig{{Type: "prometheus"}}})
	assert.Len(t, got, 1)

	assert.Empty(t, sinkConfigs(coremetrics.Config{}))
}

func TestNewRejectsUnknownStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backends = []factory.ModuleConfig{{Type: "cassandra"}}
	_, err := New(context.Background(), cfg, WithDialer(&stationDialer{}))
	assert.Error(t, err)
}
