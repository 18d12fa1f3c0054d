// Package runtime holds the process-local live-delivery state: which
// connected sessions currently listen on which conversation key. Nothing
// here is persisted; the registry starts empty and is repopulated by
// joins after every restart.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"campus-chat/contract"
	"campus-chat/domain"
	"campus-chat/domain/event"
)

// room is one registry entry. Its mutex serializes join, leave and
// broadcast on a single conversation key so that a broadcast sees a
// stable membership snapshot, without unrelated rooms blocking each
// other on a global lock.
type room struct {
	mu    sync.Mutex
	sinks map[string]contract.EventSink // session id -> sink
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.ConversationKey]*room
	// joined tracks which keys each session entered, so a disconnect can
	// leave every room without the caller enumerating them.
	joined map[string]map[domain.ConversationKey]struct{}
	log    *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[domain.ConversationKey]*room),
		joined: make(map[string]map[domain.ConversationKey]struct{}),
		log:    log,
	}
}

// Join registers a session's sink under a conversation key, creating the
// room entry on the fly.
func (r *Registry) Join(sessionID string, key domain.ConversationKey, sink contract.EventSink) {
	r.mu.Lock()
	entry, ok := r.rooms[key]
	if !ok {
		entry = &room{sinks: make(map[string]contract.EventSink)}
		r.rooms[key] = entry
	}
	keys, ok := r.joined[sessionID]
	if !ok {
		keys = make(map[domain.ConversationKey]struct{})
		r.joined[sessionID] = keys
	}
	keys[key] = struct{}{}

	// The sink insert happens under the map lock. Releasing it first would
	// let a concurrent leave of the last member delete the entry from
	// r.rooms in between, leaving this session registered in an orphaned
	// room that no broadcast can reach.
	entry.mu.Lock()
	entry.sinks[sessionID] = sink
	entry.mu.Unlock()
	r.mu.Unlock()
}

// Leave removes the session from one room. Empty rooms are dropped so the
// map does not grow with dead conversation keys.
func (r *Registry) Leave(sessionID string, key domain.ConversationKey) {
	r.mu.Lock()
	entry, ok := r.rooms[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	if keys, ok := r.joined[sessionID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.joined, sessionID)
		}
	}
	r.mu.Unlock()

	entry.mu.Lock()
	delete(entry.sinks, sessionID)
	empty := len(entry.sinks) == 0
	entry.mu.Unlock()

	if empty {
		r.mu.Lock()
		// Re-check under the map lock; a concurrent join may have landed.
		entry.mu.Lock()
		if len(entry.sinks) == 0 {
			delete(r.rooms, key)
		}
		entry.mu.Unlock()
		r.mu.Unlock()
	}
}

// LeaveAll implicitly leaves every room the session had joined. Called on
// disconnect.
func (r *Registry) LeaveAll(sessionID string) {
	r.mu.RLock()
	keys := make([]domain.ConversationKey, 0, len(r.joined[sessionID]))
	for key := range r.joined[sessionID] {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		r.Leave(sessionID, key)
	}
}

// SessionCount reports how many sessions currently listen on at least
// one key. Used by the health monitor.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.joined)
}

// Broadcast delivers the event to every sink registered for its key at
// the moment of the call. The room lock is held across the delivery loop,
// so a session mid-removal is either fully in (receives) or fully out
// (does not). Sessions joining during the broadcast rely on history
// instead.
func (r *Registry) Broadcast(ctx context.Context, e event.DomainEvent) {
	r.mu.RLock()
	entry, ok := r.rooms[e.Key()]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for sessionID, sink := range entry.sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Debug("Dropping undeliverable event",
				"session_id", sessionID, "key", e.Key(), "error", err)
		}
	}
}
