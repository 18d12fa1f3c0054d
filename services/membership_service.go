package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-chat/domain"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/repositories"
)

type IMembershipService interface {
	CreateGroup(creator, name, description string) (domain.Group, error)
	GetGroup(id uuid.UUID) (domain.Group, error)
	UpdateGroup(id uuid.UUID, actor, name, description, avatar string) (domain.Group, error)
	AddMember(groupID uuid.UUID, actor, target string) (domain.Group, error)
	RemoveMember(groupID uuid.UUID, actor, target string) (domain.Group, error)
	LeaveGroup(groupID uuid.UUID, actor string) error
	DeleteGroup(groupID uuid.UUID, actor string) error
	ListGroupsFor(member string) ([]domain.Group, error)
	ListAllGroups() ([]domain.Group, error)
}

// MembershipService owns the group lifecycle and its invariants: the
// admin is always a member, members hold no duplicates, and deleting a
// group takes its messages with it atomically.
type MembershipService struct {
	groups repositories.IGroupRepository
	users  repositories.IUserDirectory
	locks  *KeyedMutex
	events chan event.DomainEvent
	log    *slog.Logger
}

func NewMembershipService(groups repositories.IGroupRepository,
	users repositories.IUserDirectory, locks *KeyedMutex,
	events chan event.DomainEvent, log *slog.Logger) *MembershipService {
	return &MembershipService{
		groups: groups,
		users:  users,
		locks:  locks,
		events: events,
		log:    log,
	}
}

func (s *MembershipService) CreateGroup(creator, name, description string) (domain.Group, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Group{}, errors.Validation("group name is required")
	}
	group := domain.NewGroup(strings.TrimSpace(name), description, creator, time.Now().UTC())
	if err := s.groups.Create(group); err != nil {
		return domain.Group{}, err
	}
	s.log.Info("Group created", "group_id", group.ID, "admin", creator)
	return group, nil
}

func (s *MembershipService) GetGroup(id uuid.UUID) (domain.Group, error) {
	return s.groups.Get(id)
}

// UpdateGroup changes name, description or avatar. Empty fields keep
// their current value; only the admin may update.
func (s *MembershipService) UpdateGroup(id uuid.UUID, actor, name, description, avatar string) (domain.Group, error) {
	s.locks.Lock(lockKey(id))
	defer s.locks.Unlock(lockKey(id))

	group, err := s.groups.Get(id)
	if err != nil {
		return domain.Group{}, err
	}
	if group.Admin != actor {
		return domain.Group{}, errors.Unauthorized("only the group admin can update the group")
	}
	if strings.TrimSpace(name) != "" {
		group.Name = strings.TrimSpace(name)
	}
	if description != "" {
		group.Description = description
	}
	if avatar != "" {
		group.Avatar = avatar
	}
	group.Touch(time.Now().UTC())
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

// AddMember is a single check-then-add critical section per group, so two
// concurrent adds of the same user cannot both pass the duplicate check.
func (s *MembershipService) AddMember(groupID uuid.UUID, actor, target string) (domain.Group, error) {
	s.locks.Lock(lockKey(groupID))
	defer s.locks.Unlock(lockKey(groupID))

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if group.Admin != actor {
		return domain.Group{}, errors.Unauthorized("only the group admin can add members")
	}
	exists, err := s.users.Exists(target)
	if err != nil {
		return domain.Group{}, err
	}
	if !exists {
		return domain.Group{}, errors.NotFound("user %s", target)
	}
	if group.HasMember(target) {
		return domain.Group{}, errors.Conflict("%s is already a member", target)
	}

	now := time.Now().UTC()
	group.AddMember(target, now)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, err
	}
	s.emit(event.MemberJoined{GroupID: groupID, Username: target, At: now})
	return group, nil
}

// RemoveMember is the admin removing someone else; self-removal goes
// through LeaveGroup. The admin can never be removed.
func (s *MembershipService) RemoveMember(groupID uuid.UUID, actor, target string) (domain.Group, error) {
	s.locks.Lock(lockKey(groupID))
	defer s.locks.Unlock(lockKey(groupID))

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if group.Admin != actor {
		return domain.Group{}, errors.Unauthorized("only the group admin can remove members")
	}
	if target == group.Admin {
		return domain.Group{}, errors.Validation("the admin cannot be removed from the group")
	}
	if !group.HasMember(target) {
		return domain.Group{}, errors.Conflict("%s is not a member", target)
	}

	now := time.Now().UTC()
	group.RemoveMember(target, now)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, err
	}
	s.emit(event.MemberLeft{GroupID: groupID, Username: target, At: now})
	return group, nil
}

// LeaveGroup removes the actor. The admin cannot leave: with no ownership
// transfer, the only exit for an admin is deleting the group.
func (s *MembershipService) LeaveGroup(groupID uuid.UUID, actor string) error {
	s.locks.Lock(lockKey(groupID))
	defer s.locks.Unlock(lockKey(groupID))

	group, err := s.groups.Get(groupID)
	if err != nil {
		return err
	}
	if actor == group.Admin {
		return errors.Validation("the admin cannot leave the group; delete it instead")
	}
	if !group.HasMember(actor) {
		return errors.Conflict("%s is not a member", actor)
	}

	now := time.Now().UTC()
	group.RemoveMember(actor, now)
	if err := s.groups.Update(group); err != nil {
		return err
	}
	s.emit(event.MemberLeft{GroupID: groupID, Username: actor, At: now})
	return nil
}

// DeleteGroup cascades: all group messages disappear with the group, in
// one transaction, then nothing of the conversation remains.
func (s *MembershipService) DeleteGroup(groupID uuid.UUID, actor string) error {
	s.locks.Lock(lockKey(groupID))
	defer s.locks.Unlock(lockKey(groupID))

	group, err := s.groups.Get(groupID)
	if err != nil {
		return err
	}
	if group.Admin != actor {
		return errors.Unauthorized("only the group admin can delete the group")
	}
	if err := s.groups.DeleteWithMessages(groupID); err != nil {
		return err
	}
	s.log.Info("Group deleted", "group_id", groupID, "admin", actor)
	return nil
}

func (s *MembershipService) ListGroupsFor(member string) ([]domain.Group, error) {
	return s.groups.ListFor(member)
}

func (s *MembershipService) ListAllGroups() ([]domain.Group, error) {
	return s.groups.ListAll()
}

// emit pushes a membership event for live delivery. A full channel drops
// the event: rooms refresh from the store, live updates are best effort.
func (s *MembershipService) emit(e event.DomainEvent) {
	select {
	case s.events <- e:
	default:
		s.log.Warn(fmt.Sprintf("Event channel full, dropping %T for %s", e, e.Key()))
	}
}

// lockKey shares the conversation-key namespace so message appends and
// membership mutations on one group contend on the same mutex.
func lockKey(groupID uuid.UUID) string {
	return string(domain.GroupKey(groupID))
}
