// Package domain contains the core concepts of the messaging engine.
// This file defines message entities and conversation keys.
// Messages are immutable once created, except for ReadBy accretion.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationKey identifies one room: a group or a canonical direct pair.
type ConversationKey string

const (
	groupKeyPrefix  = "group:"
	directKeyPrefix = "dm:"
)

// GroupKey builds the conversation key for a group.
func GroupKey(groupID uuid.UUID) ConversationKey {
	return ConversationKey(groupKeyPrefix + groupID.String())
}

// DirectKey builds the canonical key for a direct pair. The two usernames
// are sorted so both directions map to the same room.
func DirectKey(a, b string) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey(directKeyPrefix + a + "|" + b)
}

// PairID returns the sorted-pair part of a direct key, used in storage keys.
func (k ConversationKey) PairID() string {
	return strings.TrimPrefix(string(k), directKeyPrefix)
}

// IsDirect reports whether the key addresses a direct pair.
func (k ConversationKey) IsDirect() bool {
	return strings.HasPrefix(string(k), directKeyPrefix)
}

// GroupMessage is an immutable message inside a group. The sender was a
// member at the instant of creation; a later removal does not erase it.
type GroupMessage struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReadBy    []string  `json:"read_by,omitempty"`
}

// DirectMessage is an immutable message between two users.
type DirectMessage struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReadBy    []string  `json:"read_by,omitempty"`
}

// Key returns the conversation key of the message's room.
func (m GroupMessage) Key() ConversationKey { return GroupKey(m.GroupID) }

// Key returns the canonical pair key regardless of direction.
func (m DirectMessage) Key() ConversationKey { return DirectKey(m.Sender, m.Receiver) }
