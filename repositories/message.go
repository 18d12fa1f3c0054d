package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"campus-chat/domain"
	"campus-chat/errors"
)

type IMessageRepository interface {
	AppendGroup(msg domain.GroupMessage) error
	AppendDirect(msg domain.DirectMessage) error
	ListGroup(groupID uuid.UUID) ([]domain.GroupMessage, error)
	ListDirect(key domain.ConversationKey) ([]domain.DirectMessage, error)
	LatestGroup(groupID uuid.UUID) (*domain.GroupMessage, error)
	LatestDirect(key domain.ConversationKey) (*domain.DirectMessage, error)
	MarkRead(messageID uuid.UUID, reader string) error
	DirectPairs(username string) ([]domain.ConversationKey, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq atomic.Uint64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape shared by group and direct messages.
// Exactly one of GroupID / Receiver is meaningful depending on the kind.
type diskMessage struct {
	ID       uuid.UUID  `json:"id"`
	GroupID  *uuid.UUID `json:"group_id,omitempty"`
	Sender   string     `json:"sender"`
	Receiver string     `json:"receiver,omitempty"`
	Content  string     `json:"content"`
	At       time.Time  `json:"at"`
	ReadBy   []string   `json:"read_by,omitempty"`
}

// Message keys are "gmsg:{group}:{nano:019d}:{seq:012d}:{uuid}" (direct
// messages use "dmsg:{pair}:" instead), so a lexicographic prefix scan
// yields chronological order. The zero-padded UnixNano sorts by time; the
// process-local sequence keeps insertion order for identical timestamps;
// the UUID disambiguates across processes.
func (m *MessageRepository) groupMessageKey(msg domain.GroupMessage) []byte {
	return []byte(fmt.Sprintf("gmsg:%s:%019d:%012d:%s",
		msg.GroupID, msg.Timestamp.UnixNano(), m.seq.Add(1), msg.ID))
}

func (m *MessageRepository) directMessageKey(msg domain.DirectMessage) []byte {
	return []byte(fmt.Sprintf("dmsg:%s:%019d:%012d:%s",
		msg.Key().PairID(), msg.Timestamp.UnixNano(), m.seq.Add(1), msg.ID))
}

// messageRefKey maps a message ID to its primary key, for MarkRead lookups.
func messageRefKey(id uuid.UUID) []byte {
	return []byte("msgref:" + id.String())
}

func (m *MessageRepository) AppendGroup(msg domain.GroupMessage) error {
	return m.append(m.groupMessageKey(msg), diskMessage{
		ID:      msg.ID,
		GroupID: lo.ToPtr(msg.GroupID),
		Sender:  msg.Sender,
		Content: msg.Content,
		At:      msg.Timestamp,
		ReadBy:  msg.ReadBy,
	})
}

func (m *MessageRepository) AppendDirect(msg domain.DirectMessage) error {
	return m.append(m.directMessageKey(msg), diskMessage{
		ID:       msg.ID,
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Content:  msg.Content,
		At:       msg.Timestamp,
		ReadBy:   msg.ReadBy,
	})
}

func (m *MessageRepository) append(key []byte, record diskMessage) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageRefKey(record.ID), key)
	})
	return errors.Storage(err)
}

func (m *MessageRepository) ListGroup(groupID uuid.UUID) ([]domain.GroupMessage, error) {
	records, err := m.scan(fmt.Sprintf("gmsg:%s:", groupID), false, 0)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r diskMessage, _ int) domain.GroupMessage {
		return toGroupMessage(r)
	}), nil
}

func (m *MessageRepository) ListDirect(key domain.ConversationKey) ([]domain.DirectMessage, error) {
	records, err := m.scan(fmt.Sprintf("dmsg:%s:", key.PairID()), false, 0)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r diskMessage, _ int) domain.DirectMessage {
		return toDirectMessage(r)
	}), nil
}

// LatestGroup returns the most recent message of a group, or nil when the
// group has no messages yet. Used by the chat-history summary.
func (m *MessageRepository) LatestGroup(groupID uuid.UUID) (*domain.GroupMessage, error) {
	records, err := m.scan(fmt.Sprintf("gmsg:%s:", groupID), true, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return lo.ToPtr(toGroupMessage(records[0])), nil
}

func (m *MessageRepository) LatestDirect(key domain.ConversationKey) (*domain.DirectMessage, error) {
	records, err := m.scan(fmt.Sprintf("dmsg:%s:", key.PairID()), true, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return lo.ToPtr(toDirectMessage(records[0])), nil
}

// scan iterates one conversation prefix. Thanks to the padded timestamp in
// the key, forward iteration is oldest-first; reverse starts at the newest.
func (m *MessageRepository) scan(prefixStr string, reverse bool, limit int) ([]diskMessage, error) {
	var records []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := prefix
		if reverse {
			// Seek past the newest possible key, then walk backwards.
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var record diskMessage
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
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
	return records, nil
}

// MarkRead adds the reader to the message's ReadBy set. Adding an already
// present reader is a no-op, not an error. The read-modify-write happens
// inside a single transaction so a record is never half-written.
func (m *MessageRepository) MarkRead(messageID uuid.UUID, reader string) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		refItem, err := txn.Get(messageRefKey(messageID))
		if err != nil {
			return err
		}
		var primaryKey []byte
		if err := refItem.Value(func(val []byte) error {
			primaryKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(primaryKey)
		if err != nil {
			return err
		}
		var record diskMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		if lo.Contains(record.ReadBy, reader) {
			return nil
		}
		record.ReadBy = append(record.ReadBy, reader)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(primaryKey, data)
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return errors.NotFound("message %s", messageID)
	}
	return errors.Storage(err)
}

// DirectPairs lists the direct conversations a user participates in. The
// pair is part of the key, so this is a keys-only scan; values are never
// fetched.
func (m *MessageRepository) DirectPairs(username string) ([]domain.ConversationKey, error) {
	seen := make(map[string]struct{})
	var keys []domain.ConversationKey
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte("dmsg:")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()), ":", 3)
			if len(parts) < 3 {
				continue
			}
			pair := parts[1]
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}
			users := strings.SplitN(pair, "|", 2)
			if len(users) == 2 && (users[0] == username || users[1] == username) {
				keys = append(keys, domain.DirectKey(users[0], users[1]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage(err)
	}
	return keys, nil
}

func toGroupMessage(r diskMessage) domain.GroupMessage {
	msg := domain.GroupMessage{
		ID:        r.ID,
		Sender:    r.Sender,
		Content:   r.Content,
		Timestamp: r.At,
		ReadBy:    r.ReadBy,
	}
	if r.GroupID != nil {
		msg.GroupID = *r.GroupID
	}
	return msg
}

func toDirectMessage(r diskMessage) domain.DirectMessage {
	return domain.DirectMessage{
		ID:        r.ID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Content:   r.Content,
		Timestamp: r.At,
		ReadBy:    r.ReadBy,
	}
}
