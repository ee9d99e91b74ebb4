package dbstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yiblet/clipkeep/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// itemColumns lists every column an Update rewrites.
var itemColumns = []string{
	"kind", "text", "media_ref", "created_at_ms", "is_pinned",
	"mime_types", "is_sensitive", "is_remote_device",
}

// SQLiteStore is a SQLite-backed implementation of store.Store
type SQLiteStore struct {
	db      *gorm.DB
	history *sqliteHistoryStore
}

// NewSQLiteStore creates a new SQLite-backed store at the specified path.
// It migrates the schema additively and records the schema version.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", store.ErrStorage, err)
	}

	// SQLite allows a single writer; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get database handle: %w", store.ErrStorage, err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Run auto-migration for all models. New columns carry defaults so
	// rows written by older schema versions stay readable.
	if err := db.AutoMigrate(&ClipboardItemModel{}, &ConfigItemModel{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: failed to migrate schema: %w", store.ErrStorage, err)
	}

	s := &SQLiteStore{db: db}
	s.history = newSQLiteHistoryStore(db)

	if err := s.recordSchemaVersion(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}

	return s, nil
}

// History returns the history store
func (s *SQLiteStore) History() store.HistoryStore {
	return s.history
}

// Config returns the config store
func (s *SQLiteStore) Config() store.ConfigStore {
	return &sqliteConfigStore{db: s.db}
}

// Close ends subscriptions and closes the database connection
func (s *SQLiteStore) Close() error {
	s.history.notifier.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// recordSchemaVersion stamps the current schema version after migration.
func (s *SQLiteStore) recordSchemaVersion() error {
	configStore := s.Config()
	current, err := configStore.Get(store.KeySchemaVersion)
	if err == nil && current == store.SchemaVersion {
		return nil
	}
	return configStore.Set(store.KeySchemaVersion, store.SchemaVersion)
}

// sqliteHistoryStore implements store.HistoryStore using SQLite
type sqliteHistoryStore struct {
	db       *gorm.DB
	mu       sync.Mutex // serialises writers
	notifier *store.Notifier
}

func newSQLiteHistoryStore(db *gorm.DB) *sqliteHistoryStore {
	s := &sqliteHistoryStore{db: db}
	s.notifier = store.NewNotifier(s.QueryAll)
	return s
}

// Insert stores a new row and returns the item with its assigned ID
func (s *sqliteHistoryStore) Insert(ctx context.Context, item store.Item) (store.Item, error) {
	model := fromItem(item)
	model.ID = 0

	s.mu.Lock()
	err := s.db.WithContext(ctx).Create(model).Error
	s.mu.Unlock()
	if err != nil {
		return store.Item{}, fmt.Errorf("%w: failed to insert item: %w", store.ErrStorage, err)
	}

	s.notifier.Notify(ctx)
	return item.WithID(model.ID), nil
}

// Update rewrites every column of the row matching item.ID()
func (s *sqliteHistoryStore) Update(ctx context.Context, item store.Item) error {
	model := fromItem(item)

	s.mu.Lock()
	result := s.db.WithContext(ctx).
		Model(&ClipboardItemModel{ID: item.ID()}).
		Select(itemColumns).
		Updates(model)
	s.mu.Unlock()

	if result.Error != nil {
		return fmt.Errorf("%w: failed to update item: %w", store.ErrStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: item %d", store.ErrNotFound, item.ID())
	}

	s.notifier.Notify(ctx)
	return nil
}

// Delete removes rows by ID; absent rows are ignored
func (s *sqliteHistoryStore) Delete(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	result := s.db.WithContext(ctx).Delete(&ClipboardItemModel{}, ids)
	s.mu.Unlock()

	if result.Error != nil {
		return fmt.Errorf("%w: failed to delete items: %w", store.ErrStorage, result.Error)
	}
	if result.RowsAffected > 0 {
		s.notifier.Notify(ctx)
	}
	return nil
}

// DeleteAllUnpinned removes every unpinned row and returns what was removed
func (s *sqliteHistoryStore) DeleteAllUnpinned(ctx context.Context) ([]store.Item, error) {
	var models []*ClipboardItemModel

	s.mu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_pinned = ?", false).
			Order("created_at_ms DESC").Order("id DESC").
			Find(&models).Error; err != nil {
			return err
		}
		return tx.Where("is_pinned = ?", false).Delete(&ClipboardItemModel{}).Error
	})
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: failed to delete unpinned items: %w", store.ErrStorage, err)
	}

	items, err := toItems(models)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.notifier.Notify(ctx)
	}
	return items, nil
}

// DeleteAll removes all rows
func (s *sqliteHistoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ClipboardItemModel{}).Error
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: failed to clear history: %w", store.ErrStorage, err)
	}
	s.notifier.Notify(ctx)
	return nil
}

// Get retrieves a single item by ID
func (s *sqliteHistoryStore) Get(ctx context.Context, id uint) (store.Item, error) {
	var model ClipboardItemModel
	if err := s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Item{}, fmt.Errorf("%w: item %d", store.ErrNotFound, id)
		}
		return store.Item{}, fmt.Errorf("%w: failed to get item: %w", store.ErrStorage, err)
	}

	it, err := model.ToItem()
	if err != nil {
		return store.Item{}, fmt.Errorf("%w: corrupt row %d: %w", store.ErrStorage, id, err)
	}
	return it, nil
}

// QueryAll returns all items ordered newest first
func (s *sqliteHistoryStore) QueryAll(ctx context.Context) ([]store.Item, error) {
	var models []*ClipboardItemModel
	if err := s.db.WithContext(ctx).
		Order("created_at_ms DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list items: %w", store.ErrStorage, err)
	}
	return toItems(models)
}

// Count returns the total number of items
func (s *sqliteHistoryStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ClipboardItemModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: failed to count items: %w", store.ErrStorage, err)
	}
	return int(count), nil
}

// Subscribe registers a live listener for the item set
func (s *sqliteHistoryStore) Subscribe() (<-chan []store.Item, func()) {
	return s.notifier.Subscribe()
}

// Close releases any resources
func (s *sqliteHistoryStore) Close() error {
	return nil // No-op, parent store handles DB closing
}

func toItems(models []*ClipboardItemModel) ([]store.Item, error) {
	items := make([]store.Item, 0, len(models))
	for _, model := range models {
		it, err := model.ToItem()
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt row %d: %w", store.ErrStorage, model.ID, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// sqliteConfigStore implements store.ConfigStore using SQLite
type sqliteConfigStore struct {
	db *gorm.DB
}

// Get retrieves a configuration value by key
func (s *sqliteConfigStore) Get(key string) (string, error) {
	var model ConfigItemModel
	if err := s.db.First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
		}
		return "", fmt.Errorf("%w: failed to get config: %w", store.ErrStorage, err)
	}
	return model.Value, nil
}

// Set stores a configuration value (upsert)
func (s *sqliteConfigStore) Set(key, value string) error {
	model := &ConfigItemModel{
		Key:   key,
		Value: value,
	}

	// Upsert: update if exists, insert if not
	result := s.db.Where("key = ?", key).
		Assign(map[string]interface{}{"value": value, "updated_at": s.db.NowFunc()}).
		FirstOrCreate(model)

	if result.Error != nil {
		return fmt.Errorf("%w: failed to set config: %w", store.ErrStorage, result.Error)
	}

	return nil
}

// List returns all configuration key-value pairs
func (s *sqliteConfigStore) List() (map[string]string, error) {
	var models []ConfigItemModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list config: %w", store.ErrStorage, err)
	}

	result := make(map[string]string, len(models))
	for _, model := range models {
		result[model.Key] = model.Value
	}

	return result, nil
}

// Delete removes a configuration key
func (s *sqliteConfigStore) Delete(key string) error {
	result := s.db.Delete(&ConfigItemModel{}, "key = ?", key)
	if result.Error != nil {
		return fmt.Errorf("%w: failed to delete config: %w", store.ErrStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: config key %s", store.ErrNotFound, key)
	}
	return nil
}

// Close releases any resources
func (s *sqliteConfigStore) Close() error {
	return nil // No-op, parent store handles DB closing
}
