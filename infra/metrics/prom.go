package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/irrigo/core/events"
	coremetrics "github.com/kilianp07/irrigo/core/metrics"
)

// PromSink records poll cycle events in Prometheus metrics.
type PromSink struct {
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	persisted       *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	lastCycle       prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_sessions_total",
			Help: "Acquisition sessions by outcome",
		}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "irrigation_session_duration_seconds",
			Help:    "Time from connect to session resolution",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 20, 30, 45},
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_commands_total",
			Help: "Irrigation commands by result",
		}, []string{"result"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_readings_persisted_total",
			Help: "Reading writes by result",
		}, []string{"result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_stations_skipped_total",
			Help: "Tenants or stations not polled, by reason",
		}, []string{"reason"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrigation_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_last_cycle_timestamp_seconds",
			Help: "Start time of the last finished poll cycle",
		}),
	}
	var err error
	if s.sessions, err = register(reg, s.sessions); err != nil {
		return nil, err
	}
	if s.sessionDuration, err = register(reg, s.sessionDuration); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.persisted, err = register(reg, s.persisted); err != nil {
		return nil, err
	}
	if s.skipped, err = register(reg, s.skipped); err != nil {
		return nil, err
	}
	if s.cycleDuration, err = register(reg, s.cycleDuration); err != nil {
		return nil, err
	}
	if s.lastCycle, err = register(reg, s.lastCycle); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSession counts the session outcome and observes its duration.
func (s *PromSink) RecordSession(ev events.SessionEvent) error {
	outcome := ev.Outcome.String()
	s.sessions.WithLabelValues(outcome).Inc()
	s.sessionDuration.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
	return nil
}

// RecordCommand counts an irrigation command attempt.
func (s *PromSink) RecordCommand(ev events.CommandEvent) error {
	s.commands.WithLabelValues(result(ev.Err)).Inc()
	return nil
}

// RecordPersist counts a reading write attempt.
func (s *PromSink) RecordPersist(ev events.PersistEvent) error {
	s.persisted.WithLabelValues(result(ev.Err)).Inc()
	return nil
}

// RecordSkip counts a skipped tenant or station.
func (s *PromSink) RecordSkip(ev events.SkipEvent) error {
	s.skipped.WithLabelValues(ev.Reason).Inc()
	return nil
}

// RecordCycle observes the cycle duration.
func (s *PromSink) RecordCycle(ev events.CycleEvent) error {
	s.cycleDuration.Observe(ev.Duration.Seconds())
	s.lastCycle.Set(float64(ev.Started.Unix()))
	return nil
}

var _ coremetrics.Sink = (*PromSink)(nil)
