// Package cycle runs poll cycles: for every tenant and station it acquires
// readings, decides on irrigation, sends the command and persists the
// readings. Failures stay contained to the station that produced them.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/irrigo/core/decision"
	"github.com/kilianp07/irrigo/core/events"
	"github.com/kilianp07/irrigo/core/logger"
	"github.com/kilianp07/irrigo/core/model"
	"github.com/kilianp07/irrigo/core/monitoring"
	"github.com/kilianp07/irrigo/core/store"
)

// Acquirer runs one acquisition session for a station.
type Acquirer interface {
	Acquire(ctx context.Context, tenantID string, station model.StationConfig, creds *model.Credentials) model.Outcome
}

// Actuator sends an irrigation command to a station.
type Actuator interface {
	Dispatch(ctx context.Context, station model.StationConfig, creds *model.Credentials, amount float64) error
}

// Publisher receives cycle events. *eventbus.Bus[events.Event] implements it.
type Publisher interface {
	Publish(events.Event)
}

// Defaults for Options.
const (
	DefaultConcurrency    = 4
	DefaultPersistTimeout = 10 * time.Second
)

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	// Concurrency bounds the stations of one tenant polled at the same time.
	Concurrency    int
	PersistTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

func (o *Options) setDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = DefaultPersistTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Coordinator runs poll cycles.
type Coordinator struct {
	source   store.TenantSource
	acquirer Acquirer
	actuator Actuator
	store    store.ReadingStore
	bus      Publisher
	log      logger.Logger
	opts     Options
}

// NewCoordinator creates a Coordinator. bus may be nil.
func NewCoordinator(src store.TenantSource, acq Acquirer, act Actuator, st store.ReadingStore, bus Publisher, log logger.Logger, opts Options) (*Coordinator, error) {
	if src == nil || acq == nil || act == nil || st == nil || log == nil {
		return nil, errors.New("cycle: nil parameter provided to NewCoordinator")
	}
	opts.setDefaults()
	return &Coordinator{source: src, acquirer: acq, actuator: act, store: st, bus: bus, log: log, opts: opts}, nil
}

// RunCycle polls every station of every tenant once. It never fails: errors
// are logged, published as events and reported per station in the Report.
func (c *Coordinator) RunCycle(ctx context.Context, at time.Time) Report {
	start := c.opts.Now()
	col := &collector{}

	tenants, err := c.source.Tenants(ctx)
	if err != nil {
		c.log.Errorf("load tenants: %v", err)
	}
	c.log.Infof("cycle %s started with %d tenants", at.Format(time.RFC3339), len(tenants))

	for _, t := range tenants {
		if ctx.Err() != nil {
			c.log.Warnf("cycle interrupted: %v", ctx.Err())
			break
		}
		c.runTenant(ctx, t, col)
	}

	rep := Report{
		At:       at,
		Started:  start,
		Duration: c.opts.Now().Sub(start),
		Tenants:  len(tenants),
		Results:  col.results(),
	}
	c.publish(events.CycleEvent{
		Started:  start,
		Duration: rep.Duration,
		Tenants:  rep.Tenants,
		Stations: len(rep.Results),
		Skipped:  rep.SkippedCount(),
	})
	c.log.Infof("cycle finished in %s: %d stations, %d skipped, %d commands, %d readings saved",
		rep.Duration, len(rep.Results), rep.SkippedCount(), rep.DispatchedCount(), rep.PersistedCount())
	return rep
}

func (c *Coordinator) runTenant(ctx context.Context, t model.Tenant, col *collector) {
	log := c.log.With(map[string]any{"tenant_id": t.ID})
	if !t.Credentials.Valid() {
		log.Warnf("tenant has no valid messaging credentials, skipping %d stations", len(t.Stations))
		c.publish(events.SkipEvent{TenantID: t.ID, Reason: events.SkipNoCredentials})
		return
	}
	log.Infof("polling %d stations", len(t.Stations))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, st := range t.Stations {
		if err := st.Validate(); err != nil {
			log.Warnf("skipping station: %v", err)
			c.publish(events.SkipEvent{TenantID: t.ID, StationID: st.ID, Reason: events.SkipInvalid})
			col.add(StationResult{TenantID: t.ID, StationID: st.ID, Skipped: true, Err: err})
			continue
		}
		g.Go(func() error {
			col.add(c.runStationSafe(ctx, t, st))
			return nil
		})
	}
	_ = g.Wait()
}

// runStationSafe converts a panic in one station into a failed result so
// that sibling stations keep running.
func (c *Coordinator) runStationSafe(ctx context.Context, t model.Tenant, st model.StationConfig) (res StationResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("station %s/%s panicked: %v", t.ID, st.ID, r)
			res = StationResult{TenantID: t.ID, StationID: st.ID, Err: fmt.Errorf("panic: %v", r)}
			monitoring.CaptureException(res.Err, stationTags(t, st))
		}
	}()
	return c.runStation(ctx, t, st)
}

func (c *Coordinator) runStation(ctx context.Context, t model.Tenant, st model.StationConfig) StationResult {
	log := c.log.With(map[string]any{"tenant_id": t.ID, "station_id": st.ID})

	out := c.acquirer.Acquire(ctx, t.ID, st, t.Credentials)
	c.publish(events.SessionEvent{
		TenantID:  t.ID,
		StationID: st.ID,
		Outcome:   out.Kind,
		Readings:  out.Snapshot.Len(),
		Duration:  out.Duration,
		Err:       out.Err,
	})
	res := StationResult{TenantID: t.ID, StationID: st.ID, Outcome: out, Err: out.Err}
	if out.Kind == model.OutcomeTransportError {
		log.Errorf("acquisition failed: %v", out.Err)
	} else {
		log.Debugw("acquisition "+out.Kind.String(), out.Snapshot.Fields())
	}

	dec := decision.Decide(out.Snapshot, st)
	res.Decision = dec

	// Dispatch and persistence are independent side effects.
	var (
		wg          sync.WaitGroup
		dispatchErr error
	)
	if dec.Triggered {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("soil moisture at or below %.1f%%, irrigating %v mm", st.Threshold, dec.Amount)
			dispatchErr = c.dispatch(ctx, t, st, dec.Amount)
			if dispatchErr != nil {
				if !errors.Is(dispatchErr, model.ErrDispatch) {
					dispatchErr = fmt.Errorf("%w: %w", model.ErrDispatch, dispatchErr)
				}
				log.Errorf("irrigation command failed: %v", dispatchErr)
			}
			c.publish(events.CommandEvent{TenantID: t.ID, StationID: st.ID, Amount: dec.Amount, Err: dispatchErr})
		}()
	}

	if out.Snapshot.Empty() {
		log.Warnf("no valid readings to save")
	} else {
		res.PersistErr = c.persist(ctx, t, st, out.Snapshot, dec.Amount)
		res.Persisted = res.PersistErr == nil
		if res.PersistErr != nil {
			log.Errorf("save readings: %v", res.PersistErr)
			monitoring.CaptureException(res.PersistErr, stationTags(t, st))
		}
		c.publish(events.PersistEvent{TenantID: t.ID, StationID: st.ID, Err: res.PersistErr})
	}

	wg.Wait()
	res.DispatchErr = dispatchErr
	res.Dispatched = dec.Triggered && dispatchErr == nil
	return res
}

func (c *Coordinator) persist(ctx context.Context, t model.Tenant, st model.StationConfig, snap model.SensorSnapshot, irrigated float64) error {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistTimeout)
	defer cancel()
	r := model.NewReading(c.opts.NewID(), t.ID, st.ID, snap, irrigated, c.opts.Now())
	if err := c.save(pctx, r); err != nil {
		if errors.Is(err, model.ErrPersistence) {
			return fmt.Errorf("%s: %w", r.Path(), err)
		}
		return fmt.Errorf("%w: %s: %w", model.ErrPersistence, r.Path(), err)
	}
	return nil
}

// dispatch runs on its own goroutine, out of reach of runStationSafe, so a
// panicking Actuator is turned into a dispatch error here.
func (c *Coordinator) dispatch(ctx context.Context, t model.Tenant, st model.StationConfig, amount float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", model.ErrDispatch, r)
			monitoring.CaptureException(err, stationTags(t, st))
		}
	}()
	return c.actuator.Dispatch(ctx, st, t.Credentials, amount)
}

// save keeps a panicking store from abandoning an in-flight dispatch.
func (c *Coordinator) save(ctx context.Context, r model.Reading) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", model.ErrPersistence, p)
		}
	}()
	return c.store.Save(ctx, r)
}

func stationTags(t model.Tenant, st model.StationConfig) map[string]string {
	return map[string]string{"tenant_id": t.ID, "station_id": st.ID, "broker": st.Broker}
}

func (c *Coordinator) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}
