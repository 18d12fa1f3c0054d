package workers

import (
	"context"
	"log/slog"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/event"
)

// Compile-time check that the worker satisfies the supervisor's contract.
var _ contract.Worker = (*Dispatcher)(nil)

// Dispatcher pumps events emitted after persistence to the live sessions
// registered on each event's conversation key. It only pushes; every
// durable write already happened in the request that emitted the event.
//
// Delivery is best effort with no retries; disconnected or slow sessions
// catch up from stored history instead.
type Dispatcher struct {
	log             *slog.Logger
	registry        contract.IRegistry
	events          chan event.DomainEvent
	deliveryTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry,
	events chan event.DomainEvent, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:             log,
		registry:        registry,
		events:          events,
		deliveryTimeout: deliveryTimeout,
	}
}

func (w *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping dispatcher")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Dispatch(ctx, evt)
		}
	}
}

// Dispatch delivers a single event to its room under a per-event timeout,
// so one slow sink cannot stall the whole pipeline. Exported for direct
// use in tests and in synchronous paths that bypass the worker loop.
func (w *Dispatcher) Dispatch(ctx context.Context, evt event.DomainEvent) {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
	defer cancel()
	w.registry.Broadcast(deliveryCtx, evt)
}
