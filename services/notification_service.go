package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"campus-chat/domain"
	"campus-chat/repositories"
)

type INotificationService interface {
	FanOutMentions(msg domain.GroupMessage, groupName string, members []string) ([]domain.Notification, error)
	Notify(kind domain.NotificationType, sender, recipient, message string) (domain.Notification, error)
	List(recipient string) ([]domain.Notification, error)
	MarkRead(recipient string, id uuid.UUID) error
	MarkAllRead(recipient string) error
	Delete(recipient string, id uuid.UUID) error
	ClearAll(recipient string) error
}

type NotificationService struct {
	notifications repositories.INotificationRepository
	log           *slog.Logger
}

func NewNotificationService(notifications repositories.INotificationRepository, log *slog.Logger) *NotificationService {
	return &NotificationService{notifications: notifications, log: log}
}

// FanOutMentions stores one mention notification per mentioned member of
// the group, excluding the sender. The member list is the snapshot taken
// when the message was appended; mentions of non-members and of the sender
// are dropped. Each recipient gets at most one notification no matter how
// often the message repeats the mention.
func (s *NotificationService) FanOutMentions(msg domain.GroupMessage, groupName string, members []string) ([]domain.Notification, error) {
	mentions := domain.ExtractMentions(msg.Content)
	recipients := lo.Filter(mentions, func(username string, _ int) bool {
		return username != msg.Sender && lo.Contains(members, username)
	})
	if len(recipients) == 0 {
		return nil, nil
	}

	var stored []domain.Notification
	for _, recipient := range recipients {
		n := domain.Notification{
			ID:        uuid.New(),
			Type:      domain.NotificationMention,
			Sender:    msg.Sender,
			Recipient: recipient,
			GroupID:   lo.ToPtr(msg.GroupID),
			GroupName: groupName,
			Message:   msg.Content,
			Timestamp: time.Now().UTC(),
		}
		if err := s.notifications.Store(n); err != nil {
			// One recipient failing must not starve the others.
			s.log.Error("Could not store mention notification",
				"recipient", recipient, "message_id", msg.ID, "error", err)
			continue
		}
		stored = append(stored, n)
	}
	return stored, nil
}

// Notify stores a single notification of any non-mention kind, for
// follows, likes, comments and new posts.
func (s *NotificationService) Notify(kind domain.NotificationType, sender, recipient, message string) (domain.Notification, error) {
	n := domain.Notification{
		ID:        uuid.New(),
		Type:      kind,
		Sender:    sender,
		Recipient: recipient,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.notifications.Store(n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (s *NotificationService) List(recipient string) ([]domain.Notification, error) {
	return s.notifications.List(recipient)
}

func (s *NotificationService) MarkRead(recipient string, id uuid.UUID) error {
	return s.notifications.MarkRead(recipient, id)
}

func (s *NotificationService) MarkAllRead(recipient string) error {
	return s.notifications.MarkAllRead(recipient)
}

func (s *NotificationService) Delete(recipient string, id uuid.UUID) error {
	return s.notifications.Delete(recipient, id)
}

func (s *NotificationService) ClearAll(recipient string) error {
	return s.notifications.ClearAll(recipient)
}
