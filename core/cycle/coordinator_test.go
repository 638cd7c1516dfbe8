package cycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/irrigo/core/events"
	"github.com/kilianp07/irrigo/core/model"
	"github.com/kilianp07/irrigo/core/monitoring"
	"github.com/kilianp07/irrigo/core/store"
	"github.com/kilianp07/irrigo/infra/logger"
)

type acquireFunc func(tenantID string, st model.StationConfig) model.Outcome

type stubAcquirer struct {
	fn      acquireFunc
	mu      sync.Mutex
	calls   []string
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (a *stubAcquirer) Acquire(_ context.Context, tenantID string, st model.StationConfig, _ *model.Credentials) model.Outcome {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		m := a.maxSeen.Load()
		if n <= m || a.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	a.mu.Lock()
	a.calls = append(a.calls, tenantID+"/"+st.ID)
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.fn(tenantID, st)
}

func (a *stubAcquirer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type command struct {
	station string
	amount  float64
}

type stubActuator struct {
	mu       sync.Mutex
	commands []command
	err      error
}

func (a *stubActuator) Dispatch(_ context.Context, st model.StationConfig, _ *model.Credentials, amount float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, command{st.ID, amount})
	return a.err
}

type panickingActuator struct{}

func (panickingActuator) Dispatch(context.Context, model.StationConfig, *model.Credentials, float64) error {
	panic("dispatcher blew up")
}

type panickingStore struct{}

func (panickingStore) Save(context.Context, model.Reading) error { panic("store blew up") }

type failingStore struct{ err error }

func (s failingStore) Save(context.Context, model.Reading) error { return s.err }

type captured struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (c *captured) CaptureException(_ error, tags map[string]string) {
	c.mu.Lock()
	c.tags = append(c.tags, tags)
	c.mu.Unlock()
}

func (c *captured) Flush(time.Duration) {}

type failingSource struct{}

func (failingSource) Tenants(context.Context) ([]model.Tenant, error) {
	return nil, errors.New("config unavailable")
}

type recordingBus struct {
	mu  sync.Mutex
	evs []events.Event
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	b.evs = append(b.evs, ev)
	b.mu.Unlock()
}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.evs {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

var (
	creds    = &model.Credentials{Username: "u", Password: "p"}
	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func snapshot(soil, air, temp float64) model.SensorSnapshot {
	return model.SensorSnapshot{}.
		With(model.SoilMoisture, soil).
		With(model.AirHumidity, air).
		With(model.Temperature, temp)
}

func newTestCoordinator(t *testing.T, src store.TenantSource, acq Acquirer, act Actuator, st store.ReadingStore, bus Publisher, opts Options) *Coordinator {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "reading-1" }
	}
	c, err := NewCoordinator(src, acq, act, st, bus, logger.NopLogger{}, opts)
	require.NoError(t, err)
	return c
}

func TestRunCycleScenarios(t *testing.T) {
	station := model.StationConfig{ID: "s1", Broker: "broker.local", Threshold: 30, Dose: 5}
	tests := []struct {
		name        string
		outcome     model.Outcome
		wantCommand bool
		wantSaved   bool
		wantSoil    *float64
	}{
		{
			name:        "dry soil irrigates and saves",
			outcome:     model.Completed(snapshot(25, 60, 22)),
			wantCommand: true,
			wantSaved:   true,
		},
		{
			name:      "wet soil saves without command",
			outcome:   model.Completed(snapshot(45, 60, 22)),
			wantSaved: true,
		},
		{
			name:      "partial without soil saves remaining kinds",
			outcome:   model.Expired(model.SensorSnapshot{}.With(model.AirHumidity, 50)),
			wantSaved: true,
		},
		{
			name:    "timed out does nothing",
			outcome: model.Expired(model.SensorSnapshot{}),
		},
		{
			name:    "transport error does nothing",
			outcome: model.TransportFailure(errors.New("refused")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return tt.outcome }}
			act := &stubActuator{}
			mem := store.NewMemoryStore()
			bus := &recordingBus{}
			src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: []model.StationConfig{station}}}
			c := newTestCoordinator(t, src, acq, act, mem, bus, Options{})

			rep := c.RunCycle(context.Background(), fixedNow)

			require.Len(t, rep.Results, 1)
			if tt.wantCommand {
				assert.Equal(t, []command{{"s1", 5}}, act.commands)
				assert.Equal(t, 1, rep.DispatchedCount())
			} else {
				assert.Empty(t, act.commands)
			}
			readings := mem.List("t1", "s1")
			if tt.wantSaved {
				require.Len(t, readings, 1)
				r := readings[0]
				assert.Equal(t, "reading-1", r.ID)
				assert.Equal(t, fixedNow, r.Timestamp)
				if tt.wantCommand {
					assert.Equal(t, 5.0, r.IrrigatedAmount)
				} else {
					assert.Zero(t, r.IrrigatedAmount)
				}
			} else {
				assert.Empty(t, readings)
			}
			assert.Equal(t, 1, bus.count("session"))
			assert.Equal(t, 1, bus.count("cycle"))
		})
	}
}

func TestRunCycleSkipsTenantWithoutCredentials(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return model.Completed(snapshot(10, 10, 10)) }}
	bus := &recordingBus{}
	src := store.StaticTenants{
		{ID: "none", Stations: []model.StationConfig{{ID: "a", Broker: "b"}}},
		{ID: "half", Credentials: &model.Credentials{Username: "u"}, Stations: []model.StationConfig{{ID: "a", Broker: "b"}}},
		{ID: "ok", Credentials: creds, Stations: []model.StationConfig{{ID: "a", Broker: "b", Threshold: 30, Dose: 2}}},
	}
	c := newTestCoordinator(t, src, acq, &stubActuator{}, store.NewMemoryStore(), bus, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	assert.Equal(t, []string{"ok/a"}, acq.calls)
	assert.Equal(t, 3, rep.Tenants)
	assert.Equal(t, 2, bus.count("skip"))
}

func TestRunCycleSkipsInvalidStations(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return model.Expired(model.SensorSnapshot{}) }}
	src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: []model.StationConfig{
		{ID: "  ", Broker: "b"},
		{ID: "no-broker"},
		{ID: "good", Broker: "b"},
	}}}
	c := newTestCoordinator(t, src, acq, &stubActuator{}, store.NewMemoryStore(), nil, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	assert.Equal(t, []string{"t1/good"}, acq.calls)
	assert.Equal(t, 2, rep.SkippedCount())
	res, ok := rep.Result("t1", "no-broker")
	require.True(t, ok)
	assert.ErrorIs(t, res.Err, model.ErrValidation)
}

func TestRunCycleTenantSourceFailure(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return model.Expired(model.SensorSnapshot{}) }}
	bus := &recordingBus{}
	c := newTestCoordinator(t, failingSource{}, acq, &stubActuator{}, store.NewMemoryStore(), bus, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	assert.Empty(t, rep.Results)
	assert.Zero(t, acq.callCount())
	assert.Equal(t, 1, bus.count("cycle"))
}

func TestPersistenceFailureDoesNotBlockDispatch(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return model.Completed(snapshot(10, 60, 20)) }}
	act := &stubActuator{}
	src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: []model.StationConfig{{ID: "s1", Broker: "b", Threshold: 30, Dose: 4}}}}
	c := newTestCoordinator(t, src, acq, act, failingStore{err: errors.New("disk full")}, nil, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	res, ok := rep.Result("t1", "s1")
	require.True(t, ok)
	assert.True(t, res.Dispatched)
	assert.False(t, res.Persisted)
	assert.ErrorIs(t, res.PersistErr, model.ErrPersistence)
	assert.Len(t, act.commands, 1)
}

func TestDispatchFailureDoesNotBlockPersistence(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome { return model.Completed(snapshot(10, 60, 20)) }}
	act := &stubActuator{err: errors.New("publish refused")}
	mem := store.NewMemoryStore()
	src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: []model.StationConfig{{ID: "s1", Broker: "b", Threshold: 30, Dose: 4}}}}
	c := newTestCoordinator(t, src, acq, act, mem, nil, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	res, _ := rep.Result("t1", "s1")
	assert.False(t, res.Dispatched)
	assert.ErrorIs(t, res.DispatchErr, model.ErrDispatch)
	assert.True(t, res.Persisted)
	assert.Equal(t, 1, mem.Len())
}

func TestFailingStationDoesNotAffectSiblings(t *testing.T) {
	acq := &stubAcquirer{fn: func(_ string, st model.StationConfig) model.Outcome {
		switch st.ID {
		case "down":
			return model.TransportFailure(errors.New("unreachable"))
		case "boom":
			panic("unexpected")
		}
		return model.Completed(snapshot(50, 50, 20))
	}}
	mem := store.NewMemoryStore()
	src := store.StaticTenants{
		{ID: "t1", Credentials: creds, Stations: []model.StationConfig{
			{ID: "down", Broker: "b"}, {ID: "boom", Broker: "b"}, {ID: "up", Broker: "b"},
		}},
		{ID: "t2", Credentials: creds, Stations: []model.StationConfig{{ID: "up", Broker: "b"}}},
	}
	c := newTestCoordinator(t, src, acq, &stubActuator{}, mem, nil, Options{})
	mon := &captured{}
	monitoring.Init(mon)
	defer monitoring.Init(nil)

	rep := c.RunCycle(context.Background(), fixedNow)

	assert.Len(t, rep.Results, 4)
	require.Len(t, mon.tags, 1)
	assert.Equal(t, "boom", mon.tags[0]["station_id"])
	assert.Len(t, mem.List("t1", "up"), 1)
	assert.Len(t, mem.List("t2", "up"), 1)
	assert.Equal(t, 1, rep.OutcomeCount(model.OutcomeTransportError))
	res, _ := rep.Result("t1", "boom")
	assert.Error(t, res.Err)
}

func TestPanickingActuatorIsContained(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome {
		return model.Completed(snapshot(10, 50, 20))
	}}
	mem := store.NewMemoryStore()
	src := store.StaticTenants{
		{ID: "t1", Credentials: creds, Stations: []model.StationConfig{
			{ID: "dry", Broker: "b", Threshold: 30, Dose: 5},
			{ID: "sibling", Broker: "b", Threshold: 30, Dose: 5},
		}},
	}
	c := newTestCoordinator(t, src, acq, panickingActuator{}, mem, nil, Options{})
	mon := &captured{}
	monitoring.Init(mon)
	defer monitoring.Init(nil)

	var rep Report
	require.NotPanics(t, func() { rep = c.RunCycle(context.Background(), fixedNow) })

	require.Len(t, rep.Results, 2)
	for _, id := range []string{"dry", "sibling"} {
		res, ok := rep.Result("t1", id)
		require.True(t, ok)
		assert.ErrorIs(t, res.DispatchErr, model.ErrDispatch)
		assert.Contains(t, res.DispatchErr.Error(), "dispatcher blew up")
		assert.False(t, res.Dispatched)
		assert.True(t, res.Persisted, "readings are saved although the command panicked")
	}
	assert.Len(t, mon.tags, 2)
}

func TestPanickingStoreDoesNotAbandonDispatch(t *testing.T) {
	acq := &stubAcquirer{fn: func(string, model.StationConfig) model.Outcome {
		return model.Completed(snapshot(10, 50, 20))
	}}
	act := &stubActuator{}
	src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: []model.StationConfig{
		{ID: "s1", Broker: "b", Threshold: 30, Dose: 5},
	}}}
	c := newTestCoordinator(t, src, acq, act, panickingStore{}, nil, Options{})

	rep := c.RunCycle(context.Background(), fixedNow)

	res, ok := rep.Result("t1", "s1")
	require.True(t, ok)
	assert.ErrorIs(t, res.PersistErr, model.ErrPersistence)
	assert.False(t, res.Persisted)
	assert.True(t, res.Dispatched)
	assert.Equal(t, []command{{"s1", 5}}, act.commands)
}

func TestConcurrencyIsBounded(t *testing.T) {
	acq := &stubAcquirer{
		fn:    func(string, model.StationConfig) model.Outcome { return model.Expired(model.SensorSnapshot{}) },
		delay: 20 * time.Millisecond,
	}
	var stations []model.StationConfig
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		stations = append(stations, model.StationConfig{ID: id, Broker: "b"})
	}
	src := store.StaticTenants{{ID: "t1", Credentials: creds, Stations: stations}}
	c := newTestCoordinator(t, src, acq, &stubActuator{}, store.NewMemoryStore(), nil, Options{Concurrency: 2})

	rep := c.RunCycle(context.Background(), fixedNow)

	assert.Len(t, rep.Results, 6)
	assert.LessOrEqual(t, acq.maxSeen.Load(), int32(2))
	assert.Equal(t, 6, rep.OutcomeCount(model.OutcomeTimedOut))
}

func TestNewCoordinatorRejectsNil(t *testing.T) {
	_, err := NewCoordinator(nil, nil, nil, nil, nil, logger.NopLogger{}, Options{})
	assert.Error(t, err)
}
