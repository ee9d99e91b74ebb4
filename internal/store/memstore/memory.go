// Package memstore provides an in-memory implementation of the store interfaces.
// This implementation is designed for fast unit testing and does not persist data.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/yiblet/clipkeep/internal/store"
)

// MemoryStore is an in-memory implementation of store.Store.
// It uses maps for storage and is thread-safe via mutexes.
// Data is not persisted and exists only for the lifetime of the process.
type MemoryStore struct {
	history *memoryHistoryStore
	config  *memoryConfigStore
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: newMemoryHistoryStore(),
		config:  newMemoryConfigStore(),
	}
}

// History returns the history store.
func (m *MemoryStore) History() store.HistoryStore {
	return m.history
}

// Config returns the config store.
func (m *MemoryStore) Config() store.ConfigStore {
	return m.config
}

// Close releases resources and ends all history subscriptions.
func (m *MemoryStore) Close() error {
	m.history.notifier.Close()
	return nil
}

// memoryHistoryStore implements store.HistoryStore using an in-memory map.
type memoryHistoryStore struct {
	mu       sync.RWMutex
	items    map[uint]store.Item
	nextID   uint
	notifier *store.Notifier

	// failWith, when set, makes every call return it wrapped in store.ErrStorage.
	failWith error
}

// newMemoryHistoryStore creates a new in-memory history store.
func newMemoryHistoryStore() *memoryHistoryStore {
	m := &memoryHistoryStore{
		items:  make(map[uint]store.Item),
		nextID: 1,
	}
	m.notifier = store.NewNotifier(m.QueryAll)
	return m
}

// SetFailure makes subsequent history calls fail with err (nil restores
// normal operation). It simulates an unreachable backend in tests.
func (m *MemoryStore) SetFailure(err error) {
	m.history.mu.Lock()
	m.history.failWith = err
	m.history.mu.Unlock()
}

func (m *memoryHistoryStore) failure() error {
	if m.failWith != nil {
		return fmt.Errorf("%w: %w", store.ErrStorage, m.failWith)
	}
	return nil
}

// Insert stores a copy of the item under a freshly assigned ID.
func (m *memoryHistoryStore) Insert(ctx context.Context, item store.Item) (store.Item, error) {
	m.mu.Lock()
	if err := m.failure(); err != nil {
		m.mu.Unlock()
		return store.Item{}, err
	}
	id := m.nextID
	m.nextID++
	saved := item.WithID(id)
	m.items[id] = saved
	m.mu.Unlock()

	m.notifier.Notify(ctx)
	return saved, nil
}

// Update replaces an existing item.
func (m *memoryHistoryStore) Update(ctx context.Context, item store.Item) error {
	m.mu.Lock()
	if err := m.failure(); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.items[item.ID()]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: item %d", store.ErrNotFound, item.ID())
	}
	m.items[item.ID()] = item
	m.mu.Unlock()

	m.notifier.Notify(ctx)
	return nil
}

// Delete removes the given IDs, ignoring ones that are absent.
func (m *memoryHistoryStore) Delete(ctx context.Context, ids ...uint) error {
	m.mu.Lock()
	if err := m.failure(); err != nil {
		m.mu.Unlock()
		return err
	}
	removed := 0
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.notifier.Notify(ctx)
	}
	return nil
}

// DeleteAllUnpinned removes unpinned items and returns them.
func (m *memoryHistoryStore) DeleteAllUnpinned(ctx context.Context) ([]store.Item, error) {
	m.mu.Lock()
	if err := m.failure(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var removed []store.Item
	for id, it := range m.items {
		if !it.IsPinned() {
			removed = append(removed, it)
			delete(m.items, id)
		}
	}
	m.mu.Unlock()

	store.SortNewestFirst(removed)
	if len(removed) > 0 {
		m.notifier.Notify(ctx)
	}
	return removed, nil
}

// DeleteAll removes every item.
func (m *memoryHistoryStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	if err := m.failure(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.items = make(map[uint]store.Item)
	m.mu.Unlock()

	m.notifier.Notify(ctx)
	return nil
}

// Get retrieves a single item by ID.
func (m *memoryHistoryStore) Get(_ context.Context, id uint) (store.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(); err != nil {
		return store.Item{}, err
	}
	it, ok := m.items[id]
	if !ok {
		return store.Item{}, fmt.Errorf("%w: item %d", store.ErrNotFound, id)
	}
	return it, nil
}

// QueryAll returns all items, newest first.
func (m *memoryHistoryStore) QueryAll(_ context.Context) ([]store.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(); err != nil {
		return nil, err
	}
	items := make([]store.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	store.SortNewestFirst(items)
	return items, nil
}

// Count returns the number of items.
func (m *memoryHistoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(); err != nil {
		return 0, err
	}
	return len(m.items), nil
}

// Subscribe registers a live listener for the item set.
func (m *memoryHistoryStore) Subscribe() (<-chan []store.Item, func()) {
	return m.notifier.Subscribe()
}

// Close is a no-op; the parent store ends subscriptions.
func (m *memoryHistoryStore) Close() error {
	return nil
}

// memoryConfigStore implements store.ConfigStore using an in-memory map.
type memoryConfigStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func newMemoryConfigStore() *memoryConfigStore {
	return &memoryConfigStore{
		values: map[string]string{store.KeySchemaVersion: store.SchemaVersion},
	}
}

// Get retrieves a configuration value by key.
func (m *memoryConfigStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
	}
	return value, nil
}

// Set stores a configuration value.
func (m *memoryConfigStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// List returns a copy of all configuration values.
func (m *memoryConfigStore) List() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result, nil
}

// Delete removes a configuration key.
func (m *memoryConfigStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; !ok {
		return fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
	}
	delete(m.values, key)
	return nil
}

// Close is a no-op for the memory config store.
func (m *memoryConfigStore) Close() error {
	return nil
}
