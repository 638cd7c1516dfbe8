package mqtt

import "errors"

// ErrAckTimeout is returned when the broker does not acknowledge a publish or
// subscribe before the deadline.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrConnectTimeout is returned when the connection is not established in time.
var ErrConnectTimeout = errors.New("timeout connecting to broker")
