package acquisition

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/irrigo/core/model"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
)

type published struct {
	topic   string
	payload string
}

// fakeConn implements coremqtt.Conn for tests.
type fakeConn struct {
	mu         sync.Mutex
	handler    coremqtt.MessageHandler
	subscribed []string
	published  []published
	closes     int

	subscribeErr error
	publishErr   error
	// subscribeHangs makes Subscribe wait for its context, like a broker
	// that never sends the SUBACK.
	subscribeHangs bool
	// onPublish runs in its own goroutine after a successful publish.
	onPublish func(c *fakeConn)
}

func (c *fakeConn) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	c.published = append(c.published, published{topic, string(payload)})
	err := c.publishErr
	hook := c.onPublish
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		go hook(c)
	}
	return nil
}

func (c *fakeConn) Subscribe(ctx context.Context, topics []string, h coremqtt.MessageHandler) error {
	if c.subscribeHangs {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", coremqtt.ErrAckTimeout, ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, topics...)
	c.handler = h
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

func (c *fakeConn) send(topic, payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(topic, []byte(payload))
	}
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// fakeDialer hands out a prepared connection.
type fakeDialer struct {
	mu   sync.Mutex
	conn *fakeConn
	err  error
	opts []coremqtt.DialOptions
}

func (d *fakeDialer) Dial(_ context.Context, opts coremqtt.DialOptions) (coremqtt.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) lastOptions() coremqtt.DialOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts[len(d.opts)-1]
}

func sendAll(values map[string]string) func(c *fakeConn) {
	return func(c *fakeConn) {
		for topic, v := range values {
			c.send(topic, v)
		}
	}
}

var testStation = model.StationConfig{ID: "st-1", Broker: "broker.local", Threshold: 30, Dose: 5}
