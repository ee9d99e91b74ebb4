package history

import (
	"context"
	"fmt"
	"time"

	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
)

// orphanGrace protects freshly written media that has not yet been
// recorded in the store, by this process or another one.
const orphanGrace = time.Minute

// Sweep runs one eviction pass and waits for it to finish.
func (m *Manager) Sweep(ctx context.Context) error {
	return m.queue.do(ctx, m.sweep)
}

// sweep deletes the items selected by SelectEvictions as one batch, then
// their media files, then any media file no item refers to.
func (m *Manager) sweep(ctx context.Context) error {
	items, err := m.store.QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	now := m.now()
	victims := SelectEvictions(items, m.policy(), now)
	evicted := make(map[uint]bool, len(victims))
	if len(victims) > 0 {
		ids := make([]uint, len(victims))
		for i, it := range victims {
			ids[i] = it.ID()
			evicted[it.ID()] = true
		}
		if err := m.store.Delete(ctx, ids...); err != nil {
			return fmt.Errorf("failed to evict items: %w", err)
		}
		for _, it := range victims {
			m.deleteMedia(it)
		}
		m.logger.Info("evicted items", "count", len(victims))
	}

	refs := make(map[string]bool)
	for _, it := range items {
		if it.Kind().IsMedia() && !evicted[it.ID()] {
			refs[it.MediaRef()] = true
		}
	}
	if primary := m.PrimaryClip(); primary != nil && primary.Kind().IsMedia() {
		refs[primary.MediaRef()] = true
	}
	pruned, err := m.media.Prune(func(h string, written time.Time) bool {
		return refs[h] || now.Sub(written) < orphanGrace
	})
	if err != nil {
		return fmt.Errorf("failed to prune media: %w", err)
	}
	if pruned > 0 {
		m.logger.Debug("pruned orphaned media", "count", pruned)
	}
	return nil
}

// SelectEvictions returns the items policy p removes at now, newest first.
// The size and age limits only consider unpinned items; the sensitive limit
// applies regardless of pin state.
func SelectEvictions(items []store.Item, p prefs.Policy, now time.Time) []store.Item {
	selected := make(map[uint]bool)

	unpinned := make([]store.Item, 0, len(items))
	for _, it := range items {
		if !it.IsPinned() {
			unpinned = append(unpinned, it)
		}
	}
	store.SortNewestFirst(unpinned)

	if p.LimitHistorySize {
		if overflow := len(unpinned) - max(p.MaxHistorySize, 0); overflow > 0 {
			for _, it := range unpinned[len(unpinned)-overflow:] {
				selected[it.ID()] = true
			}
		}
	}

	if p.CleanUpOld {
		cutoff := now.Add(-p.CleanUpAfter)
		for _, it := range unpinned {
			if it.CreatedAt().Before(cutoff) {
				selected[it.ID()] = true
			}
		}
	}

	if p.AutoCleanSensitive {
		cutoff := now.Add(-p.AutoCleanSensitiveAfter)
		for _, it := range items {
			if it.IsSensitive() && it.CreatedAt().Before(cutoff) {
				selected[it.ID()] = true
			}
		}
	}

	var victims []store.Item
	for _, it := range items {
		if selected[it.ID()] {
			victims = append(victims, it)
		}
	}
	store.SortNewestFirst(victims)
	return victims
}
