package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/irrigo/core/acquisition"
	"github.com/kilianp07/irrigo/core/actuation"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
	"github.com/kilianp07/irrigo/infra/mqtt"
)

// MQTTConfig holds the broker settings shared by every station.
type MQTTConfig struct {
	ConnectTimeoutSeconds int             `json:"connect_timeout_seconds"`
	ReadWindowSeconds     int             `json:"read_window_seconds"`
	PublishTimeoutSeconds int             `json:"publish_timeout_seconds"`
	KeepAliveSeconds      int             `json:"keepalive_seconds"`
	QoS                   int             `json:"qos"`
	SecureDomains         []string        `json:"secure_domains"`
	Topics                coremqtt.Topics `json:"topics"`
	ClientCert            string          `json:"client_cert"`
	ClientKey             string          `json:"client_key"`
	CABundle              string          `json:"ca_bundle"`
	InsecureSkipVerify    bool            `json:"insecure_skip_verify"`
}

// SetDefaults applies sane defaults.
func (c *MQTTConfig) SetDefaults() {
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = int(acquisition.DefaultConnectTimeout / time.Second)
	}
	if c.ReadWindowSeconds == 0 {
		c.ReadWindowSeconds = int(acquisition.DefaultReadWindow / time.Second)
	}
	if c.PublishTimeoutSeconds == 0 {
		c.PublishTimeoutSeconds = int(actuation.DefaultTimeout / time.Second)
	}
	if c.KeepAliveSeconds == 0 {
		c.KeepAliveSeconds = int(mqtt.DefaultKeepAlive / time.Second)
	}
	if len(c.SecureDomains) == 0 {
		c.SecureDomains = append([]string(nil), coremqtt.DefaultSecureDomains...)
	}
	c.Topics.SetDefaults()
}

// Validate checks value ranges.
func (c MQTTConfig) Validate() error {
	if c.ConnectTimeoutSeconds <= 0 || c.ReadWindowSeconds <= 0 || c.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("mqtt timeouts must be positive")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

// Transport returns the paho transport settings.
func (c MQTTConfig) Transport() mqtt.Config {
	return mqtt.Config{
		QoS:                byte(c.QoS),
		KeepAliveSeconds:   c.KeepAliveSeconds,
		ClientCert:         c.ClientCert,
		ClientKey:          c.ClientKey,
		CABundle:           c.CABundle,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// Acquisition returns the session settings.
func (c MQTTConfig) Acquisition() acquisition.Config {
	return acquisition.Config{
		ConnectTimeout: time.Duration(c.ConnectTimeoutSeconds) * time.Second,
		ReadWindow:     time.Duration(c.ReadWindowSeconds) * time.Second,
		Topics:         c.Topics,
	}
}

// PublishTimeout bounds a whole irrigation command dispatch.
func (c MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

// Resolver returns the broker endpoint resolver.
func (c MQTTConfig) Resolver() coremqtt.Resolver {
	return coremqtt.NewResolver(c.SecureDomains)
}
