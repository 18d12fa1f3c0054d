package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"campus-chat/domain"
	"campus-chat/errors"
)

type INotificationRepository interface {
	Store(n domain.Notification) error
	List(recipient string) ([]domain.Notification, error)
	MarkRead(recipient string, id uuid.UUID) error
	MarkAllRead(recipient string) error
	Delete(recipient string, id uuid.UUID) error
	ClearAll(recipient string) error
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq atomic.Uint64
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log}
}

type diskNotification struct {
	ID        uuid.UUID               `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Sender    string                  `json:"sender"`
	Recipient string                  `json:"recipient"`
	GroupID   *uuid.UUID              `json:"group_id,omitempty"`
	GroupName string                  `json:"group_name,omitempty"`
	Message   string                  `json:"message"`
	At        time.Time               `json:"at"`
	Read      bool                    `json:"read"`
}

// Keys are "notif:{recipient}:{nano:019d}:{seq:012d}:{uuid}", so one
// reverse prefix scan lists a recipient's notifications newest first. The
// process-local sequence keeps arrival order for identical timestamps.
func (n *NotificationRepository) notificationKey(recipient string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%012d:%s", recipient, at.UnixNano(), n.seq.Add(1), id))
}

func notificationPrefix(recipient string) []byte {
	return []byte("notif:" + recipient + ":")
}

// Store writes one notification record in a single transaction. Fan-out
// calls Store once per recipient; each write is atomic on its own, so a
// crash mid-fan-out leaves complete records only.
func (n *NotificationRepository) Store(notification domain.Notification) error {
	data, err := json.Marshal(fromNotification(notification))
	if err != nil {
		return err
	}
	key := n.notificationKey(notification.Recipient, notification.Timestamp, notification.ID)
	err = n.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	return errors.Storage(err)
}

// List returns the recipient's notifications, newest first.
func (n *NotificationRepository) List(recipient string) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := n.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(recipient)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record diskNotification
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				notifications = append(notifications, toNotification(record))
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
	return notifications, nil
}

// MarkRead flips the Read flag of one notification. Unknown IDs surface
// as ErrNotFound; flipping an already-read notification is a no-op.
func (n *NotificationRepository) MarkRead(recipient string, id uuid.UUID) error {
	return n.mutate(recipient, func(txn *badger.Txn, key []byte, record diskNotification) (bool, error) {
		if record.ID != id {
			return false, nil
		}
		if !record.Read {
			record.Read = true
			if err := writeNotification(txn, key, record); err != nil {
				return false, err
			}
		}
		return true, nil
	}, true)
}

func (n *NotificationRepository) MarkAllRead(recipient string) error {
	return n.mutate(recipient, func(txn *badger.Txn, key []byte, record diskNotification) (bool, error) {
		if record.Read {
			return false, nil
		}
		record.Read = true
		return false, writeNotification(txn, key, record)
	}, false)
}

func (n *NotificationRepository) Delete(recipient string, id uuid.UUID) error {
	return n.mutate(recipient, func(txn *badger.Txn, key []byte, record diskNotification) (bool, error) {
		if record.ID != id {
			return false, nil
		}
		return true, txn.Delete(key)
	}, true)
}

func (n *NotificationRepository) ClearAll(recipient string) error {
	return n.mutate(recipient, func(txn *badger.Txn, key []byte, record diskNotification) (bool, error) {
		return false, txn.Delete(key)
	}, false)
}

// mutate walks one recipient's prefix inside a single update transaction
// and applies fn to each record. When mustMatch is set, visiting the whole
// prefix without fn reporting a match is an ErrNotFound.
func (n *NotificationRepository) mutate(recipient string,
	fn func(txn *badger.Txn, key []byte, record diskNotification) (bool, error),
	mustMatch bool) error {

	type pending struct {
		key    []byte
		record diskNotification
	}

	matched := false
	err := n.db.Update(func(txn *badger.Txn) error {
		// Collect first, mutate after: the iterator must be closed before
		// the transaction writes back to the keys it visited.
		var records []pending
		err := func() error {
			prefix := notificationPrefix(recipient)
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := item.KeyCopy(nil)
				err := item.Value(func(val []byte) error {
					var record diskNotification
					if err := json.Unmarshal(val, &record); err != nil {
						return err
					}
					records = append(records, pending{key: key, record: record})
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}

		for _, p := range records {
			done, err := fn(txn, p.key, p.record)
			if err != nil {
				return err
			}
			if done {
				matched = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return errors.Storage(err)
	}
	if mustMatch && !matched {
		return errors.NotFound("notification for %s", recipient)
	}
	return nil
}

func writeNotification(txn *badger.Txn, key []byte, record diskNotification) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func fromNotification(n domain.Notification) diskNotification {
	return diskNotification{
		ID:        n.ID,
		Type:      n.Type,
		Sender:    n.Sender,
		Recipient: n.Recipient,
		GroupID:   n.GroupID,
		GroupName: n.GroupName,
		Message:   n.Message,
		At:        n.Timestamp,
		Read:      n.Read,
	}
}

func toNotification(record diskNotification) domain.Notification {
	return domain.Notification{
		ID:        record.ID,
		Type:      record.Type,
		Sender:    record.Sender,
		Recipient: record.Recipient,
		GroupID:   record.GroupID,
		GroupName: record.GroupName,
		Message:   record.Message,
		Timestamp: record.At,
		Read:      record.Read,
	}
}
