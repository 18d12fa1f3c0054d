// Package event defines the domain events flowing from the persistence
// path to the fan-out worker and the live-delivery registry.
package event

import (
	"time"

	"github.com/google/uuid"

	"campus-chat/domain"
)

// DomainEvent is anything that can be broadcast to a room.
type DomainEvent interface {
	Key() domain.ConversationKey
}

// GroupMessagePosted is emitted after a group message is durably stored.
// It carries the membership snapshot taken inside the append's critical
// section so that mention fan-out validates against the members as of
// the send, not some later state.
type GroupMessagePosted struct {
	Message   domain.GroupMessage
	GroupName string
	Members   []string
}

func (e GroupMessagePosted) Key() domain.ConversationKey {
	return domain.GroupKey(e.Message.GroupID)
}

// DirectMessagePosted is emitted after a direct message is durably stored.
type DirectMessagePosted struct {
	Message domain.DirectMessage
}

func (e DirectMessagePosted) Key() domain.ConversationKey {
	return e.Message.Key()
}

// NotificationCreated is pushed to the recipient's sessions, if any are
// connected, right after the notification record is written.
type NotificationCreated struct {
	Notification domain.Notification
}

// Key routes the event to the recipient's private stream. A session joins
// this key implicitly on connect.
func (e NotificationCreated) Key() domain.ConversationKey {
	return UserKey(e.Notification.Recipient)
}

// UserKey is the per-user stream used for notification delivery.
func UserKey(username string) domain.ConversationKey {
	return domain.ConversationKey("user:" + username)
}

// MemberLeft is broadcast to a group room when someone leaves or is
// removed, so open clients can refresh the member list.
type MemberLeft struct {
	GroupID  uuid.UUID `json:"group_id"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

func (e MemberLeft) Key() domain.ConversationKey {
	return domain.GroupKey(e.GroupID)
}

// MemberJoined mirrors MemberLeft for additions.
type MemberJoined struct {
	GroupID  uuid.UUID `json:"group_id"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

func (e MemberJoined) Key() domain.ConversationKey {
	return domain.GroupKey(e.GroupID)
}
