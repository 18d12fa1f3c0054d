package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"campus-chat/contract"
	"campus-chat/domain"
	"campus-chat/domain/event"
)

// recordingRegistry captures every broadcast in order.
type recordingRegistry struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recordingRegistry) Join(string, domain.ConversationKey, contract.EventSink) {}
func (r *recordingRegistry) Leave(string, domain.ConversationKey)                    {}
func (r *recordingRegistry) LeaveAll(string)                                         {}

func (r *recordingRegistry) Broadcast(_ context.Context, e event.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRegistry) broadcasts() []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DomainEvent(nil), r.events...)
}

func Test_Dispatch_Broadcasts_To_The_Event_Key(t *testing.T) {
	req := require.New(t)
	registry := &recordingRegistry{}
	dispatcher := NewDispatcher(testLogger(), registry, nil, time.Second)

	groupID := uuid.New()
	posted := event.GroupMessagePosted{
		Message:   domain.GroupMessage{ID: uuid.New(), GroupID: groupID, Sender: "bob", Content: "hi"},
		GroupName: "Lab",
		Members:   []string{"alice", "bob"},
	}
	dispatcher.Dispatch(context.Background(), posted)

	broadcasts := registry.broadcasts()
	req.Len(broadcasts, 1)
	req.Equal(domain.GroupKey(groupID), broadcasts[0].Key())
}

func Test_Dispatch_Routes_Notifications_To_Private_Streams(t *testing.T) {
	req := require.New(t)
	registry := &recordingRegistry{}
	dispatcher := NewDispatcher(testLogger(), registry, nil, time.Second)

	created := event.NotificationCreated{Notification: domain.Notification{
		ID: uuid.New(), Recipient: "alice", Sender: "bob",
	}}
	dispatcher.Dispatch(context.Background(), created)

	broadcasts := registry.broadcasts()
	req.Len(broadcasts, 1)
	req.Equal(event.UserKey("alice"), broadcasts[0].Key())
}

func Test_Run_Drains_The_Channel_Until_Cancelled(t *testing.T) {
	req := require.New(t)
	registry := &recordingRegistry{}
	events := make(chan event.DomainEvent, 4)
	dispatcher := NewDispatcher(testLogger(), registry, events, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatcher.Run(ctx)
	}()

	events <- event.DirectMessagePosted{Message: domain.DirectMessage{
		ID: uuid.New(), Sender: "alice", Receiver: "bob", Content: "hi",
	}}
	events <- event.MemberJoined{GroupID: uuid.New(), Username: "carol", At: time.Now().UTC()}

	req.Eventually(func() bool {
		return len(registry.broadcasts()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}
