package services

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-chat/domain"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/moderation"
	"campus-chat/repositories"
)

type IChatService interface {
	SendGroupMessage(groupID uuid.UUID, sender, content string) (domain.GroupMessage, error)
	SendDirectMessage(sender, receiver, content string) (domain.DirectMessage, error)
	ListGroupMessages(groupID uuid.UUID, requester string) ([]domain.GroupMessage, error)
	ListDirectMessages(userA, userB string) ([]domain.DirectMessage, error)
	MarkRead(messageID uuid.UUID, reader string) error
	ChatHistory(username string) ([]ChatSummary, error)
}

// ChatService is the persistence path of the engine: moderate, check
// membership, append, store mention notifications, then hand the events
// to the dispatcher for live delivery. Durable writes all happen in the
// request; only the live push rides the channel best effort.
type ChatService struct {
	groups    repositories.IGroupRepository
	messages  repositories.IMessageRepository
	users     repositories.IUserDirectory
	notifier  INotificationService
	moderator *moderation.Moderator
	locks     *KeyedMutex
	events    chan event.DomainEvent
	log       *slog.Logger
}

func NewChatService(groups repositories.IGroupRepository,
	messages repositories.IMessageRepository, users repositories.IUserDirectory,
	notifier INotificationService, moderator *moderation.Moderator,
	locks *KeyedMutex, events chan event.DomainEvent, log *slog.Logger) *ChatService {
	return &ChatService{
		groups:    groups,
		messages:  messages,
		users:     users,
		notifier:  notifier,
		moderator: moderator,
		locks:     locks,
		events:    events,
		log:       log,
	}
}

// SendGroupMessage appends one message to a group. The membership check
// and the append share the group's critical section: a send racing a
// removal either lands before it or fails, never "check passed, member
// removed, message appended anyway".
func (s *ChatService) SendGroupMessage(groupID uuid.UUID, sender, content string) (domain.GroupMessage, error) {
	if strings.TrimSpace(content) == "" {
		return domain.GroupMessage{}, errors.Validation("message content is required")
	}
	content = s.moderator.Censor(content)

	s.locks.Lock(lockKey(groupID))
	defer s.locks.Unlock(lockKey(groupID))

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.GroupMessage{}, err
	}
	if !group.HasMember(sender) {
		return domain.GroupMessage{}, errors.Unauthorized("%s is not a member of the group", sender)
	}

	now := time.Now().UTC()
	msg := domain.GroupMessage{
		ID:        uuid.New(),
		GroupID:   groupID,
		Sender:    sender,
		Content:   content,
		Timestamp: now,
	}
	if err := s.messages.AppendGroup(msg); err != nil {
		return domain.GroupMessage{}, err
	}

	// Bump group activity so listings order by last message. Best effort:
	// the message itself is already durable.
	group.Touch(now)
	if err := s.groups.Update(group); err != nil {
		s.log.Warn("Could not bump group activity", "group_id", groupID, "error", err)
	}

	// Mention notifications are stored here, in the same request that
	// persisted the message: a full event channel can cost a live push
	// but never a notification record. The member snapshot is the one
	// the membership check ran against, not some later state.
	notifications, err := s.notifier.FanOutMentions(msg, group.Name, group.Members)
	if err != nil {
		s.log.Error("Mention fan-out failed", "message_id", msg.ID, "error", err)
	}

	s.emit(event.GroupMessagePosted{
		Message:   msg,
		GroupName: group.Name,
		Members:   append([]string(nil), group.Members...),
	})
	for _, n := range notifications {
		s.emit(event.NotificationCreated{Notification: n})
	}
	return msg, nil
}

func (s *ChatService) SendDirectMessage(sender, receiver, content string) (domain.DirectMessage, error) {
	if strings.TrimSpace(content) == "" {
		return domain.DirectMessage{}, errors.Validation("message content is required")
	}
	exists, err := s.users.Exists(receiver)
	if err != nil {
		return domain.DirectMessage{}, err
	}
	if !exists {
		return domain.DirectMessage{}, errors.NotFound("user %s", receiver)
	}
	content = s.moderator.Censor(content)

	key := domain.DirectKey(sender, receiver)
	s.locks.Lock(string(key))
	defer s.locks.Unlock(string(key))

	msg := domain.DirectMessage{
		ID:        uuid.New(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if err := s.messages.AppendDirect(msg); err != nil {
		return domain.DirectMessage{}, err
	}
	s.emit(event.DirectMessagePosted{Message: msg})
	return msg, nil
}

// ListGroupMessages returns the full ordered history; only members may
// read it.
func (s *ChatService) ListGroupMessages(groupID uuid.UUID, requester string) ([]domain.GroupMessage, error) {
	group, err := s.groups.Get(groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(requester) {
		return nil, errors.Unauthorized("%s is not a member of the group", requester)
	}
	return s.messages.ListGroup(groupID)
}

func (s *ChatService) ListDirectMessages(userA, userB string) ([]domain.DirectMessage, error) {
	return s.messages.ListDirect(domain.DirectKey(userA, userB))
}

// MarkRead is idempotent: marking an already-read message again no-ops.
func (s *ChatService) MarkRead(messageID uuid.UUID, reader string) error {
	return s.messages.MarkRead(messageID, reader)
}

// ChatSummary is one row of a user's conversation overview: the latest
// message of each direct pair and each group the user belongs to.
type ChatSummary struct {
	Type         string     `json:"type"`
	Participants []string   `json:"participants,omitempty"`
	GroupID      *uuid.UUID `json:"group_id,omitempty"`
	GroupName    string     `json:"group_name,omitempty"`
	LastMessage  string     `json:"last_message,omitempty"`
	Sender       string     `json:"sender,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ChatHistory builds the overview, newest activity first. Groups without
// messages still appear, carrying their creation time.
func (s *ChatService) ChatHistory(username string) ([]ChatSummary, error) {
	var summaries []ChatSummary

	pairs, err := s.messages.DirectPairs(username)
	if err != nil {
		return nil, err
	}
	for _, key := range pairs {
		last, err := s.messages.LatestDirect(key)
		if err != nil {
			return nil, err
		}
		if last == nil {
			continue
		}
		summaries = append(summaries, ChatSummary{
			Type:         "direct",
			Participants: []string{last.Sender, last.Receiver},
			LastMessage:  last.Content,
			Sender:       last.Sender,
			Timestamp:    last.Timestamp,
		})
	}

	groups, err := s.groups.ListFor(username)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		summary := ChatSummary{
			Type:      "group",
			GroupID:   &group.ID,
			GroupName: group.Name,
			Timestamp: group.CreatedAt,
		}
		last, err := s.messages.LatestGroup(group.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			summary.LastMessage = last.Content
			summary.Sender = last.Sender
			summary.Timestamp = last.Timestamp
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries, nil
}

func (s *ChatService) emit(e event.DomainEvent) {
	select {
	case s.events <- e:
	default:
		s.log.Warn(fmt.Sprintf("Event channel full, dropping %T for %s", e, e.Key()))
	}
}
