package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/irrigo/core/logger"
	"github.com/kilianp07/irrigo/core/model"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
)

// Defaults applied when Config leaves a bound unset.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadWindow     = 15 * time.Second
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingData
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingData:
		return "awaiting_data"
	case StateResolved:
		return "resolved"
	}
	return "unknown"
}

// Config bounds every session started by an Acquirer.
type Config struct {
	// ConnectTimeout bounds connection establishment. Publish and subscribe
	// acknowledgments wait at most the smaller of ConnectTimeout and
	// ReadWindow.
	ConnectTimeout time.Duration
	// ReadWindow is the deadline for all readings to arrive once the
	// request has been sent.
	ReadWindow time.Duration
	Topics     coremqtt.Topics
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadWindow <= 0 {
		c.ReadWindow = DefaultReadWindow
	}
	c.Topics.SetDefaults()
}

func (c Config) ackTimeout() time.Duration {
	return min(c.ConnectTimeout, c.ReadWindow)
}

// Acquirer starts acquisition sessions. It holds no per-station state and
// can run sessions for many stations concurrently.
type Acquirer struct {
	dialer   coremqtt.Dialer
	resolver coremqtt.Resolver
	cfg      Config
	log      logger.Logger
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(d coremqtt.Dialer, r coremqtt.Resolver, cfg Config, log logger.Logger) (*Acquirer, error) {
	if d == nil {
		return nil, errors.New("acquisition: nil dialer")
	}
	if log == nil {
		return nil, errors.New("acquisition: nil logger")
	}
	cfg.setDefaults()
	return &Acquirer{dialer: d, resolver: r, cfg: cfg, log: log}, nil
}

// Acquire runs one read cycle against station and returns its outcome.
// Connecting is bounded by ConnectTimeout, subscribing and requesting by
// the smaller of ConnectTimeout and ReadWindow, and the readings by
// ReadWindow. The connection is closed before Acquire
// returns.
func (a *Acquirer) Acquire(ctx context.Context, tenantID string, station model.StationConfig, creds *model.Credentials) model.Outcome {
	s := &session{
		acq:     a,
		station: station,
		creds:   creds,
		events:  make(chan event, 32),
		done:    make(chan struct{}),
		log: a.log.With(map[string]any{
			"tenant_id":  tenantID,
			"station_id": station.ID,
		}),
	}
	start := time.Now()
	out := s.run(ctx)
	out.Duration = time.Since(start)
	return out
}

// event is either an inbound message or a transport failure.
type event struct {
	topic   string
	payload []byte
	err     error
}

type session struct {
	acq     *Acquirer
	station model.StationConfig
	creds   *model.Credentials
	log     logger.Logger

	state State
	acc   Accumulator
	conn  coremqtt.Conn

	events chan event
	done   chan struct{}

	once    sync.Once
	outcome model.Outcome
}

// deliver hands an event to the event loop. Events arriving after the
// session resolved are dropped.
func (s *session) deliver(ev event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *session) onMessage(topic string, payload []byte) {
	s.deliver(event{topic: topic, payload: payload})
}

func (s *session) onConnectionLost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	s.deliver(event{err: err})
}

// resolve seals the session with o. Only the first call has an effect: it
// records the outcome, stops event delivery and closes the connection.
// Every later call is a no-op returning the first outcome.
func (s *session) resolve(o model.Outcome) model.Outcome {
	s.once.Do(func() {
		s.outcome = o
		s.state = StateResolved
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return s.outcome
}

func (s *session) fail(err error) model.Outcome {
	s.log.Errorf("acquisition failed in state %s: %v", s.state, err)
	return s.resolve(model.TransportFailure(err))
}

func (s *session) run(ctx context.Context) model.Outcome {
	cfg := s.acq.cfg
	s.state = StateConnecting
	ep := s.acq.resolver.Resolve(s.station.Broker)
	s.log.Infof("connecting to %s", ep)

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.ConnectTimeout)
	conn, err := s.acq.dialer.Dial(dialCtx, coremqtt.DialOptions{
		Endpoint:         ep,
		Credentials:      s.creds,
		ClientID:         "irrigo-" + uuid.NewString(),
		ConnectTimeout:   cfg.ConnectTimeout,
		OnConnectionLost: s.onConnectionLost,
	})
	cancelDial()
	if err != nil {
		return s.fail(fmt.Errorf("%w: connect %s: %w", model.ErrTransport, ep, err))
	}
	s.conn = conn

	// Subscribe before requesting so a fast station cannot answer into the void.
	subCtx, cancelSub := context.WithTimeout(ctx, cfg.ackTimeout())
	err = conn.Subscribe(subCtx, cfg.Topics.Data(), s.onMessage)
	cancelSub()
	if err != nil {
		return s.fail(fmt.Errorf("%w: subscribe: %w", model.ErrTransport, err))
	}

	pubCtx, cancelPub := context.WithTimeout(ctx, cfg.ackTimeout())
	err = conn.Publish(pubCtx, cfg.Topics.Request, []byte(coremqtt.ReadRequestPayload))
	cancelPub()
	if err != nil {
		return s.fail(fmt.Errorf("%w: publish read request: %w", model.ErrTransport, err))
	}
	s.log.Infof("read request sent on %s", cfg.Topics.Request)

	s.state = StateAwaitingData
	deadline := time.NewTimer(cfg.ReadWindow)
	defer deadline.Stop()
	for {
		select {
		case ev := <-s.events:
			if ev.err != nil {
				return s.fail(fmt.Errorf("%w: %w", model.ErrTransport, ev.err))
			}
			if s.handle(ev) {
				snap := s.acc.Snapshot()
				s.log.Debugw("all readings received", snap.Fields())
				return s.resolve(model.Completed(snap))
			}
		case <-deadline.C:
			snap := s.acc.Snapshot()
			s.log.Infof("read window elapsed with %d/%d readings", snap.Len(), len(model.Kinds()))
			return s.resolve(model.Expired(snap))
		case <-ctx.Done():
			return s.fail(fmt.Errorf("%w: %w", model.ErrTransport, ctx.Err()))
		}
	}
}

// handle records a message and reports whether acquisition is complete.
func (s *session) handle(ev event) bool {
	kind, ok := s.acq.cfg.Topics.Kind(ev.topic)
	if !ok {
		s.log.Debugf("ignoring message on %s", ev.topic)
		return false
	}
	if err := s.acc.Record(kind, string(ev.payload)); err != nil {
		s.log.Warnf("invalid value on %s: %v", ev.topic, err)
		return false
	}
	s.log.Debugw("reading received", map[string]any{"topic": ev.topic, "kind": kind.String()})
	return s.acc.Complete()
}
