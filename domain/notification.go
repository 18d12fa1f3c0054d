package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates the events that can reach a recipient.
// Only the mention path is produced by this engine; the others are
// created by collaborators through the same store.
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
	NotificationPost    NotificationType = "post"
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
)

// Notification is created exactly once per (triggering event, recipient)
// pair. Only the Read flag mutates afterwards.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Type      NotificationType `json:"type"`
	Sender    string           `json:"sender"`
	Recipient string           `json:"recipient"`
	GroupID   *uuid.UUID       `json:"group_id,omitempty"`
	GroupName string           `json:"group_name,omitempty"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}
