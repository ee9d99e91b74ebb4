package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind identifies the payload type of a clipboard item.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindVideo
)

// String returns the lowercase name used in storage and exports.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a stored kind name back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "text":
		return KindText, nil
	case "image":
		return KindImage, nil
	case "video":
		return KindVideo, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, s)
	}
}

// IsMedia reports whether items of this kind are backed by a media file.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVideo
}

// MIMETextPlain is the MIME type attached to every text item.
const MIMETextPlain = "text/plain"

// Item is a single clipboard history entry.
//
// Items are immutable values. Pin state is the only attribute that changes
// over an item's lifetime, and it is changed by building a new value with
// WithPinned and handing it to HistoryStore.Update.
type Item struct {
	id        uint
	kind      Kind
	text      string
	mediaRef  string
	createdAt time.Time
	pinned    bool
	sensitive bool
	remote    bool
	mimeTypes []string
}

// ItemOption customises an item at construction time.
type ItemOption func(*Item)

// Sensitive flags the item as containing sensitive data.
func Sensitive() ItemOption {
	return func(it *Item) { it.sensitive = true }
}

// RemoteDevice flags the item as captured from another device.
func RemoteDevice() ItemOption {
	return func(it *Item) { it.remote = true }
}

// Pinned creates the item already pinned.
func Pinned() ItemOption {
	return func(it *Item) { it.pinned = true }
}

// NewTextItem creates a text item. The text must be non-empty.
func NewTextItem(text string, createdAt time.Time, opts ...ItemOption) (Item, error) {
	if text == "" {
		return Item{}, fmt.Errorf("%w: text item requires text", ErrInvalidItem)
	}
	it := Item{
		kind:      KindText,
		text:      text,
		createdAt: createdAt.Truncate(time.Millisecond),
		mimeTypes: []string{MIMETextPlain},
	}
	for _, opt := range opts {
		opt(&it)
	}
	return it, nil
}

// NewMediaItem creates an image or video item referencing a media handle.
func NewMediaItem(kind Kind, ref string, mimeTypes []string, createdAt time.Time, opts ...ItemOption) (Item, error) {
	if !kind.IsMedia() {
		return Item{}, fmt.Errorf("%w: %s is not a media kind", ErrInvalidItem, kind)
	}
	if ref == "" {
		return Item{}, fmt.Errorf("%w: %s item requires a media reference", ErrInvalidItem, kind)
	}
	it := Item{
		kind:      kind,
		mediaRef:  ref,
		createdAt: createdAt.Truncate(time.Millisecond),
		mimeTypes: normalizeMIMETypes(mimeTypes),
	}
	for _, opt := range opts {
		opt(&it)
	}
	return it, nil
}

func (i Item) ID() uint             { return i.id }
func (i Item) Kind() Kind           { return i.kind }
func (i Item) Text() string         { return i.text }
func (i Item) MediaRef() string     { return i.mediaRef }
func (i Item) CreatedAt() time.Time { return i.createdAt }
func (i Item) IsPinned() bool       { return i.pinned }
func (i Item) IsSensitive() bool    { return i.sensitive }
func (i Item) IsRemoteDevice() bool { return i.remote }

// MimeTypes returns a copy of the item's MIME types in their original order.
func (i Item) MimeTypes() []string {
	return slices.Clone(i.mimeTypes)
}

// WithPinned returns a copy of the item with the pin flag set to pinned.
func (i Item) WithPinned(pinned bool) Item {
	i.mimeTypes = slices.Clone(i.mimeTypes)
	i.pinned = pinned
	return i
}

// WithID returns a copy of the item carrying id. Store backends use it to
// stamp the identity they assigned; id 0 marks an unsaved item.
func (i Item) WithID(id uint) Item {
	i.mimeTypes = slices.Clone(i.mimeTypes)
	i.id = id
	return i
}

// Equal reports whether two items hold the same content. Identity and
// timestamps are ignored: text items compare by text, media items by
// reference.
func (i Item) Equal(other Item) bool {
	if i.kind != other.kind {
		return false
	}
	if i.kind == KindText {
		return i.text == other.text
	}
	return i.mediaRef == other.mediaRef
}

// Age returns how long ago the item was captured relative to now.
func (i Item) Age(now time.Time) time.Duration {
	return now.Sub(i.createdAt)
}

// Record is the flat, serialisable form of an Item.
type Record struct {
	ID          uint     `json:"id"`
	Kind        string   `json:"kind"`
	Text        string   `json:"text,omitempty"`
	MediaRef    string   `json:"media_ref,omitempty"`
	CreatedAtMs int64    `json:"created_at_ms"`
	IsPinned    bool     `json:"is_pinned"`
	MimeTypes   []string `json:"mime_types,omitempty"`
	IsSensitive bool     `json:"is_sensitive,omitempty"`
	IsRemote    bool     `json:"is_remote_device,omitempty"`
}

// Record converts the item into its serialisable form.
func (i Item) Record() Record {
	return Record{
		ID:          i.id,
		Kind:        i.kind.String(),
		Text:        i.text,
		MediaRef:    i.mediaRef,
		CreatedAtMs: i.createdAt.UnixMilli(),
		IsPinned:    i.pinned,
		MimeTypes:   slices.Clone(i.mimeTypes),
		IsSensitive: i.sensitive,
		IsRemote:    i.remote,
	}
}

// Item validates the record and converts it into an Item.
func (r Record) Item() (Item, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Item{}, err
	}

	var opts []ItemOption
	if r.IsPinned {
		opts = append(opts, Pinned())
	}
	if r.IsSensitive {
		opts = append(opts, Sensitive())
	}
	if r.IsRemote {
		opts = append(opts, RemoteDevice())
	}

	createdAt := time.UnixMilli(r.CreatedAtMs)

	var it Item
	if kind == KindText {
		if r.MediaRef != "" {
			return Item{}, fmt.Errorf("%w: text item %d carries a media reference", ErrInvalidItem, r.ID)
		}
		it, err = NewTextItem(r.Text, createdAt, opts...)
		if err == nil && len(r.MimeTypes) > 0 {
			it.mimeTypes = normalizeMIMETypes(r.MimeTypes)
		}
	} else {
		it, err = NewMediaItem(kind, r.MediaRef, r.MimeTypes, createdAt, opts...)
	}
	if err != nil {
		return Item{}, err
	}
	it.id = r.ID
	return it, nil
}

// normalizeMIMETypes lowercases and de-duplicates MIME types, keeping order.
func normalizeMIMETypes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SortNewestFirst orders items by creation time descending, breaking ties by
// id descending so insertion order decides between same-millisecond items.
func SortNewestFirst(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		switch {
		case a.id > b.id:
			return -1
		case a.id < b.id:
			return 1
		}
		return 0
	})
}
