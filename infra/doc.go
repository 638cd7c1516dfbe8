// Package infra contains technical adapters: the paho MQTT dialer, reading
// stores, metrics sinks and error reporting. These packages should depend
// only on the interfaces defined in the core packages.
package infra
