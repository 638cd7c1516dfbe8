// Package actuation publishes irrigation commands to stations.
package actuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/irrigo/core/logger"
	"github.com/kilianp07/irrigo/core/model"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
)

// DefaultTimeout bounds the connection and the publish acknowledgment.
const DefaultTimeout = 30 * time.Second

// Dispatcher sends irrigation commands over short-lived connections. It does
// not wait for the station to confirm the irrigation.
type Dispatcher struct {
	dialer   coremqtt.Dialer
	resolver coremqtt.Resolver
	topic    string
	timeout  time.Duration
	log      logger.Logger
}

// NewDispatcher creates a Dispatcher publishing on topic.
func NewDispatcher(d coremqtt.Dialer, r coremqtt.Resolver, topic string, timeout time.Duration, log logger.Logger) (*Dispatcher, error) {
	if d == nil || log == nil {
		return nil, errors.New("actuation: nil parameter provided to NewDispatcher")
	}
	if topic == "" {
		topic = coremqtt.DefaultTopics().Request
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{dialer: d, resolver: r, topic: topic, timeout: timeout, log: log}, nil
}

// Dispatch publishes "Irrigar:<amount>" to the station's broker. The error
// wraps model.ErrDispatch and is meant to be logged, not retried: the next
// cycle decides again.
func (d *Dispatcher) Dispatch(ctx context.Context, station model.StationConfig, creds *model.Credentials, amount float64) error {
	ep := d.resolver.Resolve(station.Broker)
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := d.dialer.Dial(dialCtx, coremqtt.DialOptions{
		Endpoint:       ep,
		Credentials:    creds,
		ClientID:       "irrigo-cmd-" + uuid.NewString(),
		ConnectTimeout: d.timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: station %s: connect %s: %w", model.ErrDispatch, station.ID, ep, err)
	}
	defer conn.Close()

	payload := coremqtt.IrrigationCommand(amount)
	if err := conn.Publish(dialCtx, d.topic, []byte(payload)); err != nil {
		return fmt.Errorf("%w: station %s: publish: %w", model.ErrDispatch, station.ID, err)
	}
	d.log.Infof("irrigation command %q published for station %s", payload, station.ID)
	return nil
}
