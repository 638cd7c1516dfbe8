package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/irrigo/core/events"
	coremetrics "github.com/kilianp07/irrigo/core/metrics"
	"github.com/kilianp07/irrigo/infra/logger"
)

// InfluxSink writes poll cycle events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	now      func() time.Time
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
		now:      time.Now,
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSession writes one acquisition session.
func (s *InfluxSink) RecordSession(ev events.SessionEvent) error {
	p := write.NewPointWithMeasurement("acquisition_session").
		AddTag("tenant_id", ev.TenantID).
		AddTag("station_id", ev.StationID).
		AddTag("outcome", ev.Outcome.String()).
		AddField("readings", ev.Readings).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(s.now())
	return s.write(p)
}

// RecordCommand writes an irrigation command attempt.
func (s *InfluxSink) RecordCommand(ev events.CommandEvent) error {
	p := write.NewPointWithMeasurement("irrigation_command").
		AddTag("tenant_id", ev.TenantID).
		AddTag("station_id", ev.StationID).
		AddTag("result", result(ev.Err)).
		AddField("amount_mm", round3(ev.Amount)).
		SetTime(s.now())
	return s.write(p)
}

// RecordPersist is a no-op: readings already land in InfluxDB through the store.
func (s *InfluxSink) RecordPersist(events.PersistEvent) error { return nil }

// RecordSkip writes a skipped tenant or station.
func (s *InfluxSink) RecordSkip(ev events.SkipEvent) error {
	p := write.NewPointWithMeasurement("station_skipped").
		AddTag("tenant_id", ev.TenantID).
		AddTag("reason", ev.Reason).
		AddField("station_id", ev.StationID).
		SetTime(s.now())
	return s.write(p)
}

// RecordCycle writes the cycle summary.
func (s *InfluxSink) RecordCycle(ev events.CycleEvent) error {
	p := write.NewPointWithMeasurement("poll_cycle").
		AddField("tenants", ev.Tenants).
		AddField("stations", ev.Stations).
		AddField("skipped", ev.Skipped).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Started)
	return s.write(p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
