package gateway

import (
	"context"

	"campus-chat/contract"
	"campus-chat/domain/event"
)

// SessionSink bridges the registry's broadcast path to one websocket
// session. Broadcast goroutines hand events off here; the session's
// write pump drains the channel.
type SessionSink struct {
	events chan event.DomainEvent
}

var _ contract.EventSink = (*SessionSink)(nil)

func NewSessionSink(bufferSize int) *SessionSink {
	return &SessionSink{events: make(chan event.DomainEvent, bufferSize)}
}

// Consume never blocks the broadcaster. A session that cannot keep up
// loses events rather than stalling every other room member.
func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *SessionSink) Events() <-chan event.DomainEvent {
	return s.events
}
