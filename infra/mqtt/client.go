// Package mqtt implements the broker connection contracts of core/mqtt on
// top of Eclipse Paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
	"github.com/kilianp07/irrigo/infra/logger"
)

// DefaultKeepAlive is the keepalive interval sent to the broker.
const DefaultKeepAlive = 60 * time.Second

// Config defines the transport parameters shared by every connection.
type Config struct {
	QoS                byte        `json:"qos"`
	KeepAliveSeconds   int         `json:"keepalive_seconds"`
	ClientCert         string      `json:"client_cert"`
	ClientKey          string      `json:"client_key"`
	CABundle           string      `json:"ca_bundle"`
	InsecureSkipVerify bool        `json:"insecure_skip_verify"`
	TLSConfig          *tls.Config `json:"-"`
}

func (c Config) keepAlive() time.Duration {
	if c.KeepAliveSeconds <= 0 {
		return DefaultKeepAlive
	}
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// pahoClient is the subset of paho.Client used by the dialer.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoDialer opens one paho client per Dial call.
type PahoDialer struct {
	cfg    Config
	logger logger.Logger
}

// NewPahoDialer creates a dialer. A nil logger selects the default one.
func NewPahoDialer(cfg Config, log logger.Logger) *PahoDialer {
	if log == nil {
		log = logger.New("mqtt_client")
	}
	return &PahoDialer{cfg: cfg, logger: log}
}

// Dial connects to the endpoint in opts and waits for the CONNACK, bounded by
// opts.ConnectTimeout and ctx.
func (d *PahoDialer) Dial(ctx context.Context, opts coremqtt.DialOptions) (coremqtt.Conn, error) {
	po, err := NewClientOptions(d.cfg, opts)
	if err != nil {
		return nil, err
	}
	log := d.logger.With(map[string]any{"broker": opts.Endpoint.String(), "client_id": opts.ClientID})
	po.OnConnect = func(paho.Client) {
		log.Debugf("MQTT connected")
	}
	po.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warnf("connection lost: %v", err)
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(err)
		}
	}

	c := newMQTTClient(po)
	if err := waitToken(ctx, c.Connect(), opts.ConnectTimeout, coremqtt.ErrConnectTimeout); err != nil {
		c.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", opts.Endpoint, err)
	}
	return &pahoConn{cli: c, qos: d.cfg.QoS, ackTimeout: opts.ConnectTimeout, logger: log}, nil
}

// NewClientOptions builds paho client options for one connection.
func NewClientOptions(cfg Config, opts coremqtt.DialOptions) (*paho.ClientOptions, error) {
	po := paho.NewClientOptions().
		AddBroker(opts.Endpoint.URL()).
		SetClientID(opts.ClientID).
		SetKeepAlive(cfg.keepAlive()).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOrderMatters(false)
	if opts.ConnectTimeout > 0 {
		po.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.Credentials != nil {
		if opts.Credentials.Username != "" {
			po.SetUsername(opts.Credentials.Username)
		}
		if opts.Credentials.Password != "" {
			po.SetPassword(opts.Credentials.Password)
		}
	}
	if opts.Endpoint.Secure() {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		po.SetTLSConfig(tlsCfg)
	}
	return po, nil
}

// LoadTLSConfig builds the TLS configuration for secure endpoints. Without a
// CA bundle the system roots are used; a client certificate is optional.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.InsecureSkipVerify} //nolint:gosec // opt-in for test brokers
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return nil, fmt.Errorf("tls config requires both client_cert and client_key")
	}
	if c.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("ca bundle %s holds no certificates", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// pahoConn implements coremqtt.Conn.
type pahoConn struct {
	cli        pahoClient
	qos        byte
	ackTimeout time.Duration
	logger     logger.Logger
	closeOnce  sync.Once
}

func (p *pahoConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := waitToken(ctx, p.cli.Publish(topic, p.qos, false, payload), p.ackTimeout, coremqtt.ErrAckTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debugf("published %q to %s", payload, topic)
	return nil
}

func (p *pahoConn) Subscribe(ctx context.Context, topics []string, handler coremqtt.MessageHandler) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = p.qos
	}
	cb := func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	if err := waitToken(ctx, p.cli.SubscribeMultiple(filters, cb), p.ackTimeout, coremqtt.ErrAckTimeout); err != nil {
		return fmt.Errorf("subscribe %v: %w", topics, err)
	}
	return nil
}

func (p *pahoConn) Close() {
	p.closeOnce.Do(func() {
		if p.cli.IsConnected() {
			p.cli.Disconnect(250)
		}
	})
}

// waitToken waits for tok to complete, for timeout to elapse or for ctx to
// be done, whichever happens first.
func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration, timeoutErr error) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-expired:
		return timeoutErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
