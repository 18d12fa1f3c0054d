package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"campus-chat/domain"
	"campus-chat/errors"
)

func Test_Fan_Out_Mentions_Members_Only_Excluding_Sender(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "alice", "bob", "carol")

	msg := domain.GroupMessage{
		ID:      uuid.New(),
		GroupID: uuid.New(),
		Sender:  "bob",
		Content: "@alice @dave see this, also @bob himself",
	}
	stored, err := env.notifications.FanOutMentions(msg, "Lab", []string{"alice", "bob", "carol"})
	req.NoError(err)

	// dave is not a member and bob is the sender; only alice qualifies.
	req.Len(stored, 1)
	req.Equal("alice", stored[0].Recipient)
	req.Equal(domain.NotificationMention, stored[0].Type)
	req.Equal("Lab", stored[0].GroupName)

	listed, err := env.notifications.List("alice")
	req.NoError(err)
	req.Len(listed, 1)
	req.False(listed[0].Read)
}

func Test_Fan_Out_Repeated_Mention_Stores_Once(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "alice", "bob")

	msg := domain.GroupMessage{
		ID:      uuid.New(),
		GroupID: uuid.New(),
		Sender:  "bob",
		Content: "@alice @alice @alice",
	}
	stored, err := env.notifications.FanOutMentions(msg, "Lab", []string{"alice", "bob"})
	req.NoError(err)
	req.Len(stored, 1)

	listed, err := env.notifications.List("alice")
	req.NoError(err)
	req.Len(listed, 1)
}

func Test_Fan_Out_No_Mentions_Stores_Nothing(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "alice", "bob")

	msg := domain.GroupMessage{
		ID:      uuid.New(),
		GroupID: uuid.New(),
		Sender:  "bob",
		Content: "nothing to see here",
	}
	stored, err := env.notifications.FanOutMentions(msg, "Lab", []string{"alice", "bob"})
	req.NoError(err)
	req.Empty(stored)
}

func Test_Notify_And_Lifecycle(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "alice", "bob")

	first, err := env.notifications.Notify(domain.NotificationFollow, "bob", "alice", "bob started following you")
	req.NoError(err)
	second, err := env.notifications.Notify(domain.NotificationLike, "bob", "alice", "bob liked your post")
	req.NoError(err)

	listed, err := env.notifications.List("alice")
	req.NoError(err)
	req.Len(listed, 2)
	// Newest first.
	req.Equal(second.ID, listed[0].ID)
	req.Equal(first.ID, listed[1].ID)

	req.NoError(env.notifications.MarkRead("alice", first.ID))
	listed, err = env.notifications.List("alice")
	req.NoError(err)
	req.True(listed[1].Read)
	req.False(listed[0].Read)

	req.NoError(env.notifications.MarkAllRead("alice"))
	listed, err = env.notifications.List("alice")
	req.NoError(err)
	req.True(listed[0].Read)

	err = env.notifications.MarkRead("alice", uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)

	req.NoError(env.notifications.Delete("alice", first.ID))
	listed, err = env.notifications.List("alice")
	req.NoError(err)
	req.Len(listed, 1)

	req.NoError(env.notifications.ClearAll("alice"))
	listed, err = env.notifications.List("alice")
	req.NoError(err)
	req.Empty(listed)
}
