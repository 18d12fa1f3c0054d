package repositories

import (
	"encoding/json"
	goerrors "errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"campus-chat/errors"
)

// IUserDirectory is the engine's view of the campus user directory. The
// identity provider owns credentials; this store only resolves usernames
// and emails for membership checks and member display.
type IUserDirectory interface {
	Put(user DirectoryUser) error
	Get(username string) (DirectoryUser, error)
	GetByEmail(email string) (DirectoryUser, error)
	Exists(username string) (bool, error)
	ListAll() ([]DirectoryUser, error)
}

type UserDirectory struct {
	db *badger.DB
}

func NewUserDirectory(db *badger.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// DirectoryUser mirrors what collaborators sync into the directory.
type DirectoryUser struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Avatar   string    `json:"avatar,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}

// idx:email is a secondary index, email -> username.
func emailIndexKey(email string) []byte {
	return []byte("idx:email:" + email)
}

// Put upserts a directory entry and its email index in one transaction.
func (u *UserDirectory) Put(user DirectoryUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(userKey(user.Username), data); err != nil {
			return err
		}
		if user.Email == "" {
			return nil
		}
		return txn.Set(emailIndexKey(user.Email), []byte(user.Username))
	})
	return errors.Storage(err)
}

func (u *UserDirectory) Get(username string) (DirectoryUser, error) {
	var user DirectoryUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return DirectoryUser{}, errors.NotFound("user %s", username)
	}
	if err != nil {
		return DirectoryUser{}, errors.Storage(err)
	}
	return user, nil
}

func (u *UserDirectory) GetByEmail(email string) (DirectoryUser, error) {
	var username string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailIndexKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			username = string(val)
			return nil
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return DirectoryUser{}, errors.NotFound("user with email %s", email)
	}
	if err != nil {
		return DirectoryUser{}, errors.Storage(err)
	}
	return u.Get(username)
}

func (u *UserDirectory) Exists(username string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(username))
		return err
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Storage(err)
	}
	return true, nil
}

func (u *UserDirectory) ListAll() ([]DirectoryUser, error) {
	var users []DirectoryUser
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var user DirectoryUser
				if err := json.Unmarshal(val, &user); err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage(err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
