package contract

import (
	"context"
	"reflect"

	"campus-chat/domain"
	"campus-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging during supervision without forcing a naming method on
// every worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives broadcast events for one connected session.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the in-memory room registry: conversation key to the set
// of currently connected session sinks. Rebuilt empty at process start.
type IRegistry interface {
	Join(sessionID string, key domain.ConversationKey, sink EventSink)
	Leave(sessionID string, key domain.ConversationKey)
	LeaveAll(sessionID string)
	Broadcast(ctx context.Context, e event.DomainEvent)
}
