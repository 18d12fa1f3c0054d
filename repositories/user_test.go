package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campus-chat/errors"
)

func Test_Directory_Put_Get_Exists(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(newTestDB(t))

	alice := DirectoryUser{
		Username: "alice",
		Email:    "alice@campus.edu",
		FullName: "Alice Liddell",
		SyncedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	req.NoError(directory.Put(alice))

	fetched, err := directory.Get("alice")
	req.NoError(err)
	req.Equal(alice, fetched)

	exists, err := directory.Exists("alice")
	req.NoError(err)
	req.True(exists)
	exists, err = directory.Exists("ghost")
	req.NoError(err)
	req.False(exists)

	_, err = directory.Get("ghost")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Directory_Email_Index(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(newTestDB(t))

	req.NoError(directory.Put(DirectoryUser{Username: "alice", Email: "alice@campus.edu"}))

	fetched, err := directory.GetByEmail("alice@campus.edu")
	req.NoError(err)
	req.Equal("alice", fetched.Username)

	_, err = directory.GetByEmail("unknown@campus.edu")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Directory_List_All_Sorted(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(newTestDB(t))

	for _, username := range []string{"carol", "alice", "bob"} {
		req.NoError(directory.Put(DirectoryUser{Username: username}))
	}
	users, err := directory.ListAll()
	req.NoError(err)
	req.Len(users, 3)
	req.Equal("alice", users[0].Username)
	req.Equal("bob", users[1].Username)
	req.Equal("carol", users[2].Username)
}

func Test_Directory_Upsert_Overwrites(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(newTestDB(t))

	req.NoError(directory.Put(DirectoryUser{Username: "alice", FullName: "Alice"}))
	req.NoError(directory.Put(DirectoryUser{Username: "alice", FullName: "Alice Liddell"}))

	fetched, err := directory.Get("alice")
	req.NoError(err)
	req.Equal("Alice Liddell", fetched.FullName)

	users, err := directory.ListAll()
	req.NoError(err)
	req.Len(users, 1)
}
