package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"campus-chat/domain"
	"campus-chat/errors"
)

type IGroupRepository interface {
	Create(group domain.Group) error
	Get(id uuid.UUID) (domain.Group, error)
	Update(group domain.Group) error
	ListFor(member string) ([]domain.Group, error)
	ListAll() ([]domain.Group, error)
	DeleteWithMessages(id uuid.UUID) error
}

type GroupRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) *GroupRepository {
	return &GroupRepository{db: db, log: log}
}

// diskGroup is the stored shape of a group. Members keep insertion order
// so the admin stays first and listings are deterministic.
type diskGroup struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar,omitempty"`
	Admin       string    `json:"admin"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func groupKey(id uuid.UUID) []byte {
	return []byte("group:" + id.String())
}

func (r *GroupRepository) Create(group domain.Group) error {
	data, err := json.Marshal(fromGroup(group))
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(group.ID), data)
	})
	return errors.Storage(err)
}

func (r *GroupRepository) Get(id uuid.UUID) (domain.Group, error) {
	var record diskGroup
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Group{}, errors.NotFound("group %s", id)
	}
	if err != nil {
		return domain.Group{}, errors.Storage(err)
	}
	return toGroup(record), nil
}

// Update overwrites the stored record. Callers serialize check-then-write
// sequences per group; the repository itself does not merge concurrent edits.
func (r *GroupRepository) Update(group domain.Group) error {
	data, err := json.Marshal(fromGroup(group))
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(group.ID)); err != nil {
			return err
		}
		return txn.Set(groupKey(group.ID), data)
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return errors.NotFound("group %s", group.ID)
	}
	return errors.Storage(err)
}

// ListFor returns every group the member belongs to, most recently
// active first.
func (r *GroupRepository) ListFor(member string) ([]domain.Group, error) {
	groups, err := r.scan(func(g diskGroup) bool {
		return lo.Contains(g.Members, member)
	})
	if err != nil {
		return nil, err
	}
	sortByActivity(groups)
	return groups, nil
}

func (r *GroupRepository) ListAll() ([]domain.Group, error) {
	groups, err := r.scan(func(diskGroup) bool { return true })
	if err != nil {
		return nil, err
	}
	sortByActivity(groups)
	return groups, nil
}

func (r *GroupRepository) scan(keep func(diskGroup) bool) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("group:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record diskGroup
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if keep(record) {
					groups = append(groups, toGroup(record))
				}
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
	return groups, nil
}

// DeleteWithMessages removes the group record, every message stored under
// its prefix and the per-message reference entries, all in one transaction.
// Either the whole cascade lands or none of it is visible.
func (r *GroupRepository) DeleteWithMessages(id uuid.UUID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(id)); err != nil {
			return err
		}

		// Collect first, delete after: the iterator must be closed before
		// the transaction mutates the keys it visited.
		var doomed [][]byte
		err := func() error {
			prefix := []byte(fmt.Sprintf("gmsg:%s:", id))
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				doomed = append(doomed, item.KeyCopy(nil))
				err := item.Value(func(val []byte) error {
					var record diskMessage
					if err := json.Unmarshal(val, &record); err != nil {
						return err
					}
					doomed = append(doomed, messageRefKey(record.ID))
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

		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(groupKey(id))
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return errors.NotFound("group %s", id)
	}
	if err != nil {
		return errors.Storage(err)
	}
	r.log.Debug("Group deleted with its messages", "group_id", id)
	return nil
}

// Most recently active first, the order group listings are displayed in.
func sortByActivity(groups []domain.Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].UpdatedAt.After(groups[j].UpdatedAt)
	})
}

func fromGroup(g domain.Group) diskGroup {
	return diskGroup{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Avatar:      g.Avatar,
		Admin:       g.Admin,
		Members:     g.Members,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toGroup(record diskGroup) domain.Group {
	return domain.Group{
		ID:          record.ID,
		Name:        record.Name,
		Description: record.Description,
		Avatar:      record.Avatar,
		Admin:       record.Admin,
		Members:     record.Members,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
