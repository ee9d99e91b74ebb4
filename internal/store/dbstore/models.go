package dbstore

import (
	"time"

	"github.com/yiblet/clipkeep/internal/store"
)

// ClipboardItemModel represents a clipboard history row in the database.
// Media payloads live in the media store; only their handle is kept here.
type ClipboardItemModel struct {
	ID          uint     `gorm:"primaryKey;autoIncrement"`
	Kind        string   `gorm:"size:16;not null;index"`
	Text        string   `gorm:"type:text"`
	MediaRef    string   `gorm:"size:255"`
	CreatedAtMs int64    `gorm:"not null;index"`                 // capture time, unix milliseconds
	IsPinned    bool     `gorm:"not null;default:false;index"`
	MimeTypes   []string `gorm:"type:text;serializer:json"`

	// Added in schema version 2. Defaults keep version 1 rows valid.
	IsSensitive    bool `gorm:"not null;default:false"`
	IsRemoteDevice bool `gorm:"not null;default:false"`
}

// TableName returns the table name for ClipboardItemModel
func (ClipboardItemModel) TableName() string {
	return "clipboard_items"
}

// ToItem converts the GORM model to a store.Item
func (m *ClipboardItemModel) ToItem() (store.Item, error) {
	return store.Record{
		ID:          m.ID,
		Kind:        m.Kind,
		Text:        m.Text,
		MediaRef:    m.MediaRef,
		CreatedAtMs: m.CreatedAtMs,
		IsPinned:    m.IsPinned,
		MimeTypes:   m.MimeTypes,
		IsSensitive: m.IsSensitive,
		IsRemote:    m.IsRemoteDevice,
	}.Item()
}

// fromItem builds a model from a store.Item, keeping its ID.
func fromItem(it store.Item) *ClipboardItemModel {
	r := it.Record()
	return &ClipboardItemModel{
		ID:             r.ID,
		Kind:           r.Kind,
		Text:           r.Text,
		MediaRef:       r.MediaRef,
		CreatedAtMs:    r.CreatedAtMs,
		IsPinned:       r.IsPinned,
		MimeTypes:      r.MimeTypes,
		IsSensitive:    r.IsSensitive,
		IsRemoteDevice: r.IsRemote,
	}
}

// ConfigItemModel represents a configuration key-value pair
type ConfigItemModel struct {
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for ConfigItemModel
func (ConfigItemModel) TableName() string {
	return "config"
}
