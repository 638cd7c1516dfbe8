package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/irrigo/core/factory"
	"github.com/kilianp07/irrigo/core/model"
	corestore "github.com/kilianp07/irrigo/core/store"
)

// DefaultMeasurement is the InfluxDB measurement readings are written to.
const DefaultMeasurement = "station_reading"

// InfluxConfig configures the InfluxDB backend.
type InfluxConfig struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
	// SkipHealthCheck disables the startup ping.
	SkipHealthCheck bool `json:"skip_health_check"`
}

// InfluxStore writes readings as points using the official client.
type InfluxStore struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

// NewInfluxStore creates a store for the given InfluxDB endpoint.
func NewInfluxStore(cfg InfluxConfig) *InfluxStore {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	m := cfg.Measurement
	if m == "" {
		m = DefaultMeasurement
	}
	return &InfluxStore{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket), measurement: m}
}

func newInfluxFromConf(conf map[string]any) (corestore.ReadingStore, error) {
	var c InfluxConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" || c.Bucket == "" {
		return nil, fmt.Errorf("influx: url and bucket are required")
	}
	s := NewInfluxStore(c)
	if !c.SkipHealthCheck {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			s.client.Close()
			return nil, err
		}
	}
	return s, nil
}

// Ping checks the health endpoint.
func (s *InfluxStore) Ping(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health check: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influx health status: %s", health.Status)
	}
	return nil
}

// ReadingPoint converts r to a point. Absent measurements are omitted.
func ReadingPoint(measurement string, r model.Reading) *write.Point {
	p := write.NewPointWithMeasurement(measurement).
		AddTag("tenant_id", r.TenantID).
		AddTag("station_id", r.StationID).
		AddField("uid", r.ID)
	if r.SoilMoisture != nil {
		p.AddField("soil_moisture", *r.SoilMoisture)
	}
	if r.AirHumidity != nil {
		p.AddField("air_humidity", *r.AirHumidity)
	}
	if r.Temperature != nil {
		p.AddField("temperature", *r.Temperature)
	}
	return p.AddField("irrigated_mm", r.IrrigatedAmount).SetTime(r.Timestamp)
}

// Save writes r.
func (s *InfluxStore) Save(ctx context.Context, r model.Reading) error {
	return s.writeAPI.WritePoint(ctx, ReadingPoint(s.measurement, r))
}

// Close releases the client.
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}
