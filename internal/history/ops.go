package history

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/store"
)

// InsertOrMoveToFront records item in the history. A text item whose text is
// already stored replaces the old row, inheriting its pin flag. Nothing is
// recorded while history is disabled. The write runs in the background.
func (m *Manager) InsertOrMoveToFront(item store.Item) {
	m.queue.submit(func(ctx context.Context) {
		if err := m.insertOrMoveToFront(ctx, item); err != nil {
			m.logger.Warn("failed to record clip", "err", err)
		}
	})
}

func (m *Manager) insertOrMoveToFront(ctx context.Context, item store.Item) error {
	if !m.policy().HistoryEnabled {
		return nil
	}
	item = item.WithID(0)

	if item.Kind() == store.KindText {
		existing, err := m.store.QueryAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to look up duplicates: %w", err)
		}
		var dupes []uint
		for _, old := range existing {
			if old.Equal(item) {
				dupes = append(dupes, old.ID())
				if old.IsPinned() {
					item = item.WithPinned(true)
				}
			}
		}
		if len(dupes) > 0 {
			if err := m.store.Delete(ctx, dupes...); err != nil {
				return fmt.Errorf("failed to remove duplicate: %w", err)
			}
		}
	}

	saved, err := m.store.Insert(ctx, item)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	m.logger.Debug("recorded clip", "id", saved.ID(), "pinned", saved.IsPinned())

	if err := m.sweep(ctx); err != nil {
		m.logger.Warn("eviction after insert abandoned", "err", err)
	}
	return nil
}

// Copy records an application-originated clip: it is added to the history
// and becomes the primary clip.
func (m *Manager) Copy(item store.Item) {
	m.InsertOrMoveToFront(item)
	m.UpdatePrimaryClip(&item)
}

// Pin marks the item with id as pinned.
func (m *Manager) Pin(ctx context.Context, id uint) error {
	return m.queue.do(ctx, func(ctx context.Context) error {
		return m.setPinned(ctx, id, true)
	})
}

// Unpin clears the pin flag of the item with id.
func (m *Manager) Unpin(ctx context.Context, id uint) error {
	return m.queue.do(ctx, func(ctx context.Context) error {
		return m.setPinned(ctx, id, false)
	})
}

func (m *Manager) setPinned(ctx context.Context, id uint, pinned bool) error {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get item %d: %w", id, err)
	}
	if item.IsPinned() == pinned {
		return nil
	}
	if err := m.store.Update(ctx, item.WithPinned(pinned)); err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	return nil
}

// Delete removes the item with id and its media file. A media file that
// cannot be removed is left for the next sweep.
func (m *Manager) Delete(ctx context.Context, id uint) error {
	return m.queue.do(ctx, func(ctx context.Context) error {
		item, err := m.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get item %d: %w", id, err)
		}
		if err := m.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete item %d: %w", id, err)
		}
		m.deleteMedia(item)
		return nil
	})
}

// ClearUnpinned removes every unpinned item.
func (m *Manager) ClearUnpinned(ctx context.Context) error {
	return m.queue.do(ctx, func(ctx context.Context) error {
		removed, err := m.store.DeleteAllUnpinned(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		for _, it := range removed {
			m.deleteMedia(it)
		}
		m.logger.Info("cleared unpinned history", "removed", len(removed))
		return nil
	})
}

// ClearAll removes every item, pinned or not, and all media files.
func (m *Manager) ClearAll(ctx context.Context) error {
	return m.queue.do(ctx, func(ctx context.Context) error {
		if err := m.store.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		if err := m.media.Reset(); err != nil {
			m.logger.Warn("failed to reset media storage", "err", err)
		}
		m.logger.Info("cleared all history")
		return nil
	})
}

func (m *Manager) deleteMedia(item store.Item) {
	if !item.Kind().IsMedia() {
		return
	}
	if err := m.media.Delete(item.MediaRef()); err != nil {
		m.logger.Warn("failed to delete media file", "ref", item.MediaRef(), "err", err)
	}
}

// RestoreHistory inserts the items not already present in the history and
// returns how many were added. Ids are reassigned by the store.
func (m *Manager) RestoreHistory(ctx context.Context, items []store.Item) (int, error) {
	return doValue(ctx, m.queue, func(ctx context.Context) (int, error) {
		existing, err := m.store.QueryAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read history: %w", err)
		}

		// Oldest first, so ids ascend with capture time.
		pending := slices.Clone(items)
		store.SortNewestFirst(pending)
		slices.Reverse(pending)

		added := 0
		for _, it := range pending {
			if slices.ContainsFunc(existing, it.Equal) {
				continue
			}
			saved, err := m.store.Insert(ctx, it.WithID(0))
			if err != nil {
				return added, fmt.Errorf("failed to restore item: %w", err)
			}
			existing = append(existing, saved)
			added++
		}
		return added, nil
	})
}

// Search returns the items matching query, newest first. Text items match
// on a case-insensitive substring, media items on a MIME type pattern such
// as "image/*". A query wrapped in slashes is a regular expression.
func (m *Manager) Search(ctx context.Context, query string) ([]store.Item, error) {
	match, err := matcher(query)
	if err != nil {
		return nil, err
	}

	return doValue(ctx, m.queue, func(ctx context.Context) ([]store.Item, error) {
		items, err := m.store.QueryAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}

		var found []store.Item
		for _, it := range items {
			if match(it) {
				found = append(found, it)
			}
		}
		return found, nil
	})
}

func matcher(query string) (func(store.Item) bool, error) {
	if len(query) > 2 && strings.HasPrefix(query, "/") && strings.HasSuffix(query, "/") {
		re, err := regexp.Compile(query[1 : len(query)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern: %w", err)
		}
		return func(it store.Item) bool {
			return it.Kind() == store.KindText && re.MatchString(it.Text())
		}, nil
	}

	needle := strings.ToLower(query)
	return func(it store.Item) bool {
		if it.Kind().IsMedia() {
			return strings.Contains(query, "/") && clipboard.AcceptsAny(it.MimeTypes(), []string{query})
		}
		return strings.Contains(strings.ToLower(it.Text()), needle)
	}, nil
}
