package history

import (
	"bytes"
	"context"
	"slices"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/store"
)

// PrimaryClip returns the current primary clip, or nil when it is empty.
func (m *Manager) PrimaryClip() *store.Item {
	m.primaryMu.Lock()
	defer m.primaryMu.Unlock()
	if m.primary == nil {
		return nil
	}
	it := *m.primary
	return &it
}

func (m *Manager) setPrimary(item *store.Item) {
	m.primaryMu.Lock()
	defer m.primaryMu.Unlock()
	if item == nil {
		m.primary = nil
		return
	}
	it := *item
	m.primary = &it
}

// UpdatePrimaryClip sets the primary clip. Unless the internal clipboard is
// authoritative and not synced, the clip is also published to the host; a
// nil item clears the host clipboard. The update is ordered with host
// changes on the worker queue, so a capture queued earlier cannot overwrite
// it.
func (m *Manager) UpdatePrimaryClip(item *store.Item) {
	var next *store.Item
	if item != nil {
		it := *item
		next = &it
	}
	m.queue.submit(func(context.Context) { m.updatePrimary(next) })
}

func (m *Manager) updatePrimary(item *store.Item) {
	m.setPrimary(item)
	if m.bridge == nil || !m.policy().PushesToHost() {
		return
	}
	m.pushToHost(item)
}

// pushToHost writes item to the host clipboard. The value is recorded as
// last seen first, so the change event it causes is not ingested again.
func (m *Manager) pushToHost(item *store.Item) {
	var clip *clipboard.Clip
	if item != nil {
		var err error
		clip, err = m.toClip(*item)
		if err != nil {
			m.logger.Warn("failed to prepare host clip", "item", item.ID(), "err", err)
			return
		}
	}

	m.recordSeen(clip)
	if err := m.bridge.Set(clip); err != nil {
		m.logger.Warn("failed to publish to host clipboard", "err", err)
		return
	}
	if clip.IsEmpty() {
		m.logger.Debug("cleared host clipboard")
	} else {
		m.logger.Debug("published to host clipboard", "preview", Preview(*item, 40))
	}
}

// HandleHostChange reacts to a change of the host clipboard. The work is
// handed to the worker queue; the call never blocks on I/O.
func (m *Manager) HandleHostChange() {
	m.queue.submit(m.syncFromHost)
}

func (m *Manager) syncFromHost(ctx context.Context) {
	if m.bridge == nil || !m.policy().PullsFromHost() {
		return
	}

	clip, err := m.bridge.Current()
	if err != nil {
		m.logger.Warn("failed to read host clipboard", "err", err)
		return
	}
	if !m.swapSeen(clip) {
		return
	}

	if clip.IsEmpty() {
		m.setPrimary(nil)
		return
	}

	if primary := m.PrimaryClip(); primary != nil {
		if current, err := m.toClip(*primary); err == nil && current.SameContent(clip) {
			return
		}
	}

	item, err := m.fromClip(clip)
	if err != nil {
		m.logger.Warn("failed to capture host clip", "err", err)
		return
	}
	m.setPrimary(&item)
	m.logger.Info("captured clip", "kind", item.Kind(), "preview", Preview(item, 40))

	if err := m.insertOrMoveToFront(ctx, item); err != nil {
		m.logger.Warn("failed to record captured clip", "err", err)
	}
}

// swapSeen records clip as the last value seen on the host and reports
// whether it differs from the previous one. The compare and the record
// happen under one lock.
func (m *Manager) swapSeen(clip *clipboard.Clip) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if m.lastSeen.SameContent(clip) {
		return false
	}
	m.lastSeen = cloneClip(clip)
	return true
}

func (m *Manager) recordSeen(clip *clipboard.Clip) {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	m.lastSeen = cloneClip(clip)
}

// toClip converts an item to its host representation, loading media
// payloads from storage.
func (m *Manager) toClip(item store.Item) (*clipboard.Clip, error) {
	clip := &clipboard.Clip{
		MimeTypes: item.MimeTypes(),
		Sensitive: item.IsSensitive(),
		Remote:    item.IsRemoteDevice(),
	}
	if !item.Kind().IsMedia() {
		clip.Text = item.Text()
		return clip, nil
	}

	data, err := m.media.ReadAll(item.MediaRef())
	if err != nil {
		return nil, err
	}
	clip.Ref = item.MediaRef()
	clip.Data = data
	return clip, nil
}

// fromClip materialises a new item from a host clip. Media payloads that
// are not already in storage are cloned into it.
func (m *Manager) fromClip(clip *clipboard.Clip) (store.Item, error) {
	var opts []store.ItemOption
	if clip.Sensitive {
		opts = append(opts, store.Sensitive())
	}
	if clip.Remote {
		opts = append(opts, store.RemoteDevice())
	}

	if !clip.IsMedia() {
		return store.NewTextItem(clip.Text, m.now(), opts...)
	}

	ref := clip.Ref
	if ref == "" || !m.media.Has(ref) {
		var err error
		ref, err = m.media.Clone(bytes.NewReader(clip.Data))
		if err != nil {
			return store.Item{}, err
		}
	}
	return store.NewMediaItem(mediaKind(clip.MimeTypes), ref, clip.MimeTypes, m.now(), opts...)
}

func mediaKind(mimeTypes []string) store.Kind {
	if clipboard.AcceptsAny(mimeTypes, []string{"video/*"}) {
		return store.KindVideo
	}
	return store.KindImage
}

func cloneClip(c *clipboard.Clip) *clipboard.Clip {
	if c == nil {
		return nil
	}
	out := *c
	out.MimeTypes = slices.Clone(c.MimeTypes)
	out.Data = slices.Clone(c.Data)
	return &out
}
