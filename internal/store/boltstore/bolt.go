// Package boltstore implements the store interfaces on top of a bbolt
// key/value file. Items are JSON records keyed by big-endian sequence IDs.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yiblet/clipkeep/internal/store"
	"go.etcd.io/bbolt"
)

var (
	itemsBucket  = []byte("items")
	configBucket = []byte("config")
)

// BoltStore is a bbolt-backed implementation of store.Store.
type BoltStore struct {
	db      *bbolt.DB
	history *boltHistoryStore
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", store.ErrStorage, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(itemsBucket); err != nil {
			return err
		}
		cfg, err := tx.CreateBucketIfNotExists(configBucket)
		if err != nil {
			return err
		}
		return cfg.Put([]byte(store.KeySchemaVersion), []byte(store.SchemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create buckets: %w", store.ErrStorage, err)
	}

	s := &BoltStore{db: db}
	s.history = &boltHistoryStore{db: db}
	s.history.notifier = store.NewNotifier(s.history.QueryAll)
	return s, nil
}

// History returns the history store.
func (s *BoltStore) History() store.HistoryStore {
	return s.history
}

// Config returns the config store.
func (s *BoltStore) Config() store.ConfigStore {
	return &boltConfigStore{db: s.db}
}

// Close ends subscriptions and closes the database file.
func (s *BoltStore) Close() error {
	s.history.notifier.Close()
	return s.db.Close()
}

type boltHistoryStore struct {
	db       *bbolt.DB
	notifier *store.Notifier
}

func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeItem(v []byte) (store.Item, error) {
	var r store.Record
	if err := json.Unmarshal(v, &r); err != nil {
		return store.Item{}, err
	}
	return r.Item()
}

func encodeItem(it store.Item) ([]byte, error) {
	return json.Marshal(it.Record())
}

func (s *boltHistoryStore) Insert(ctx context.Context, item store.Item) (store.Item, error) {
	var saved store.Item
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		saved = item.WithID(uint(seq))
		data, err := encodeItem(saved)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	if err != nil {
		return store.Item{}, fmt.Errorf("%w: failed to insert item: %w", store.ErrStorage, err)
	}

	s.notifier.Notify(ctx)
	return saved, nil
}

func (s *boltHistoryStore) Update(ctx context.Context, item store.Item) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		key := itob(uint64(item.ID()))
		if b.Get(key) == nil {
			return fmt.Errorf("%w: item %d", store.ErrNotFound, item.ID())
		}
		data, err := encodeItem(item)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: failed to update item: %w", store.ErrStorage, err)
	}

	s.notifier.Notify(ctx)
	return nil
}

func (s *boltHistoryStore) Delete(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		for _, id := range ids {
			key := itob(uint64(id))
			if b.Get(key) == nil {
				continue
			}
			if err := b.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete items: %w", store.ErrStorage, err)
	}
	if removed > 0 {
		s.notifier.Notify(ctx)
	}
	return nil
}

func (s *boltHistoryStore) DeleteAllUnpinned(ctx context.Context) ([]store.Item, error) {
	var removed []store.Item
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			it, err := decodeItem(v)
			if err != nil {
				return err
			}
			if !it.IsPinned() {
				removed = append(removed, it)
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to delete unpinned items: %w", store.ErrStorage, err)
	}

	store.SortNewestFirst(removed)
	if len(removed) > 0 {
		s.notifier.Notify(ctx)
	}
	return removed, nil
}

func (s *boltHistoryStore) DeleteAll(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		seq := b.Sequence()
		if err := tx.DeleteBucket(itemsBucket); err != nil {
			return err
		}
		nb, err := tx.CreateBucket(itemsBucket)
		if err != nil {
			return err
		}
		// Keep IDs monotonic across a clear.
		return nb.SetSequence(seq)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to clear history: %w", store.ErrStorage, err)
	}
	s.notifier.Notify(ctx)
	return nil
}

func (s *boltHistoryStore) Get(_ context.Context, id uint) (store.Item, error) {
	var it store.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(itemsBucket).Get(itob(uint64(id)))
		if v == nil {
			return fmt.Errorf("%w: item %d", store.ErrNotFound, id)
		}
		var err error
		it, err = decodeItem(v)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Item{}, err
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("%w: failed to get item: %w", store.ErrStorage, err)
	}
	return it, nil
}

func (s *boltHistoryStore) QueryAll(_ context.Context) ([]store.Item, error) {
	var items []store.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(_, v []byte) error {
			it, err := decodeItem(v)
			if err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list items: %w", store.ErrStorage, err)
	}
	store.SortNewestFirst(items)
	return items, nil
}

func (s *boltHistoryStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(itemsBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count items: %w", store.ErrStorage, err)
	}
	return n, nil
}

func (s *boltHistoryStore) Subscribe() (<-chan []store.Item, func()) {
	return s.notifier.Subscribe()
}

func (s *boltHistoryStore) Close() error {
	return nil
}

type boltConfigStore struct {
	db *bbolt.DB
}

func (s *boltConfigStore) Get(key string) (string, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(configBucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (s *boltConfigStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(configBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: failed to set config: %w", store.ErrStorage, err)
	}
	return nil
}

func (s *boltConfigStore) List() (map[string]string, error) {
	result := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(configBucket).ForEach(func(k, v []byte) error {
			result[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list config: %w", store.ErrStorage, err)
	}
	return result, nil
}

func (s *boltConfigStore) Delete(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(configBucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
		}
		return b.Delete([]byte(key))
	})
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: failed to delete config: %w", store.ErrStorage, err)
	}
	return nil
}

func (s *boltConfigStore) Close() error {
	return nil
}
