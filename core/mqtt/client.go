package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/irrigo/core/model"
)

// MessageHandler receives a message delivered on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Conn is a single broker connection owned by one caller. Close must be
// safe to call more than once.
type Conn interface {
	// Publish sends payload and waits for the transport acknowledgment, if any.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers handler for all topics and waits for the SUBACK.
	Subscribe(ctx context.Context, topics []string, handler MessageHandler) error
	Close()
}

// DialOptions carries everything needed to open a Conn.
type DialOptions struct {
	Endpoint    Endpoint
	Credentials *model.Credentials
	ClientID    string
	// ConnectTimeout bounds connection establishment. It must be positive.
	ConnectTimeout time.Duration
	// OnConnectionLost is invoked when an established connection drops.
	OnConnectionLost func(error)
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Conn, error)
}
