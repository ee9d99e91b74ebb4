// Package store defines the storage interfaces for clipkeep's persistence
// layer. It provides abstractions for both clipboard history and the
// key/value preferences table.
package store

import (
	"context"
	"errors"
)

var (
	// ErrStorage wraps every failure of the backing store (unreachable,
	// corrupt, or rejected write).
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned when an item or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidItem is returned when an item violates the data model.
	ErrInvalidItem = errors.New("invalid clipboard item")
)

// HistoryStore manages clipboard item persistence.
// Every mutation notifies subscribers with the full current item set.
type HistoryStore interface {
	// Insert persists a new item and returns it with its assigned ID.
	// Any ID already carried by item is ignored.
	Insert(ctx context.Context, item Item) (Item, error)

	// Update replaces the row matching item.ID().
	// Returns ErrNotFound if the row does not exist.
	Update(ctx context.Context, item Item) error

	// Delete removes the rows with the given IDs.
	// Missing rows are ignored.
	Delete(ctx context.Context, ids ...uint) error

	// DeleteAllUnpinned removes every unpinned row and returns the removed items.
	DeleteAllUnpinned(ctx context.Context) ([]Item, error)

	// DeleteAll removes every row.
	DeleteAll(ctx context.Context) error

	// Get retrieves a single item by ID.
	Get(ctx context.Context, id uint) (Item, error)

	// QueryAll returns every item, newest first.
	QueryAll(ctx context.Context) ([]Item, error)

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// Subscribe returns a channel that receives the full item set now and
	// after every subsequent mutation. Only the latest set is kept for slow
	// readers. The returned function cancels the subscription.
	Subscribe() (<-chan []Item, func())

	// Close releases any resources (DB connections, file handles, etc.).
	Close() error
}

// ConfigStore manages key/value preference persistence.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) (string, error)

	// Set stores a configuration value.
	// If the key already exists, its value is updated.
	Set(key, value string) error

	// List returns all configuration key-value pairs.
	List() (map[string]string, error)

	// Delete removes a configuration key.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// Close releases any resources.
	Close() error
}

// Store combines both history and config stores.
// Implementations provide access to both stores and manage
// their lifecycle as a single unit.
type Store interface {
	// History returns the history store.
	History() HistoryStore

	// Config returns the config store.
	Config() ConfigStore

	// Close releases all resources for both stores.
	Close() error
}

// SchemaVersion is the version recorded under the db_version config key.
// Version 2 added the is_sensitive and is_remote_device columns.
const SchemaVersion = "2"

// KeySchemaVersion is the config key holding the schema version.
const KeySchemaVersion = "db_version"
