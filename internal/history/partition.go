package history

import (
	"time"

	"github.com/yiblet/clipkeep/internal/store"
)

// RecentWindow is how long an unpinned item counts as recent.
const RecentWindow = 5 * time.Minute

// History is a point-in-time partition of the stored items. Each section is
// ordered newest first and together they hold every item exactly once.
type History struct {
	Pinned []store.Item
	Recent []store.Item
	Other  []store.Item
	At     time.Time
}

// Partition splits items into pinned, recent and other as of now.
func Partition(items []store.Item, now time.Time) History {
	h := History{At: now}
	for _, it := range items {
		switch {
		case it.IsPinned():
			h.Pinned = append(h.Pinned, it)
		case it.Age(now) < RecentWindow:
			h.Recent = append(h.Recent, it)
		default:
			h.Other = append(h.Other, it)
		}
	}
	return h
}

// All returns every item: pinned first, then recent, then other.
func (h History) All() []store.Item {
	out := make([]store.Item, 0, h.Len())
	out = append(out, h.Pinned...)
	out = append(out, h.Recent...)
	return append(out, h.Other...)
}

// Len returns the total number of items.
func (h History) Len() int {
	return len(h.Pinned) + len(h.Recent) + len(h.Other)
}
