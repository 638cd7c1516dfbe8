// Package app wires configuration, transport, storage and metrics into a
// running irrigation polling service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/irrigo/config"
	"github.com/kilianp07/irrigo/core/acquisition"
	"github.com/kilianp07/irrigo/core/actuation"
	"github.com/kilianp07/irrigo/core/cycle"
	"github.com/kilianp07/irrigo/core/events"
	"github.com/kilianp07/irrigo/core/factory"
	coremetrics "github.com/kilianp07/irrigo/core/metrics"
	coremon "github.com/kilianp07/irrigo/core/monitoring"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
	"github.com/kilianp07/irrigo/core/scheduler"
	corestore "github.com/kilianp07/irrigo/core/store"
	"github.com/kilianp07/irrigo/infra/logger"
	"github.com/kilianp07/irrigo/infra/metrics"
	"github.com/kilianp07/irrigo/infra/monitoring"
	"github.com/kilianp07/irrigo/infra/mqtt"
	"github.com/kilianp07/irrigo/infra/store"
	"github.com/kilianp07/irrigo/internal/eventbus"
)

// Option customises New.
type Option func(*options)

type options struct {
	dialer coremqtt.Dialer
}

// WithDialer replaces the paho dialer.
func WithDialer(d coremqtt.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// Service runs poll cycles on schedule.
type Service struct {
	Coordinator *cycle.Coordinator
	Trigger     *scheduler.Trigger

	bus       *eventbus.Bus[events.Event]
	sink      coremetrics.Sink
	readings  *store.Multi
	closers   []io.Closer
	log       logger.Logger
	promOn    bool
	promAddr  string
	collector <-chan struct{}
	cancel    context.CancelFunc
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	if err := logger.SetFormat(cfg.Logging.Format); err != nil {
		return nil, err
	}
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}
	coremon.Init(mon)

	dialer := o.dialer
	if dialer == nil {
		dialer = mqtt.NewPahoDialer(cfg.MQTT.Transport(), logger.New("mqtt_client"))
	}
	resolver := cfg.MQTT.Resolver()
	acq, err := acquisition.NewAcquirer(dialer, resolver, cfg.MQTT.Acquisition(), logger.New("acquisition"))
	if err != nil {
		return nil, fmt.Errorf("acquirer: %w", err)
	}
	disp, err := actuation.NewDispatcher(dialer, resolver, cfg.MQTT.Topics.Request, cfg.MQTT.PublishTimeout(), logger.New("actuation"))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	svc := &Service{log: logg, promOn: cfg.Metrics.PrometheusEnabled, promAddr: cfg.Metrics.PrometheusPort}
	svc.readings, err = store.New(cfg.Storage, logger.New("store"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	svc.closers = append(svc.closers, svc.readings)

	tenants, err := svc.tenantSource(ctx, cfg.Tenants)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	svc.sink, err = coremetrics.NewSink(sinkConfigs(cfg.Metrics))
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	svc.bus = eventbus.New[events.Event]()
	svc.Coordinator, err = cycle.NewCoordinator(tenants, acq, disp, svc.readings, svc.bus, logger.New("cycle"), cycle.Options{
		Concurrency:    cfg.Cycle.Concurrency,
		PersistTimeout: time.Duration(cfg.Cycle.PersistTimeoutSeconds) * time.Second,
	})
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	svc.Trigger, err = scheduler.New(cfg.Schedule, logger.New("scheduler"))
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel
	svc.collector = metrics.StartEventCollector(cctx, svc.bus, svc.sink, logger.New("metrics"))
	return svc, nil
}

func (s *Service) tenantSource(ctx context.Context, cfg config.TenantsConfig) (corestore.TenantSource, error) {
	switch cfg.Source {
	case config.TenantSourcePostgres:
		pg, err := store.NewPostgresStore(ctx, store.PostgresConfig{URL: cfg.PostgresURL})
		if err != nil {
			return nil, fmt.Errorf("tenant source: %w", err)
		}
		s.closers = append(s.closers, pg)
		return pg, nil
	default:
		s.log.Infof("loaded %d tenants from configuration", len(cfg.List))
		return corestore.StaticTenants(cfg.List), nil
	}
}

// sinkConfigs adds the prometheus sink when the endpoint is enabled but no
// sink of that type is configured.
func sinkConfigs(cfg coremetrics.Config) []factory.ModuleConfig {
	out := append([]factory.ModuleConfig(nil), cfg.Sinks...)
	if !cfg.PrometheusEnabled {
		return out
	}
	for _, c := range out {
		if c.Type == "prometheus" {
			return out
		}
	}
	return append(out, factory.ModuleConfig{Type: "prometheus"})
}

// Run serves the metrics endpoint when enabled and runs cycles on schedule
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promOn {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	err := s.Trigger.Run(ctx, func(ctx context.Context, at time.Time) {
		s.Coordinator.RunCycle(ctx, at)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// RunOnce runs a single cycle now.
func (s *Service) RunOnce(ctx context.Context) cycle.Report {
	return s.Coordinator.RunCycle(ctx, time.Now())
}

// Close flushes pending events and releases resources held by the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
		if d := s.bus.Dropped(); d > 0 {
			s.log.Warnf("%d metrics events dropped", d)
		}
	}
	if s.collector != nil {
		<-s.collector
		s.cancel()
	}
	closeSink(s.sink)
	coremon.Flush(2 * time.Second)
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeSink(sink coremetrics.Sink) {
	switch sk := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range sk.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		sk.Close()
	}
}
