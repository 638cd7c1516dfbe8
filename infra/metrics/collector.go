package metrics

import (
	"context"

	"github.com/kilianp07/irrigo/core/events"
	coremetrics "github.com/kilianp07/irrigo/core/metrics"
	"github.com/kilianp07/irrigo/infra/logger"
	"github.com/kilianp07/irrigo/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := coremetrics.Record(sink, ev); err != nil {
					log.Warnf("record %s event: %v", ev.EventName(), err)
				}
			}
		}
	}()
	return done
}
