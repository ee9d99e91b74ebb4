package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/store"
)

// ErrPasteRejected is returned when the editor declines pasted content.
var ErrPasteRejected = errors.New("paste rejected")

// Editor is the paste target. Commit receives the item and a reader over
// its payload and reports whether the content was accepted.
type Editor interface {
	Commit(ctx context.Context, item store.Item, content io.Reader) (bool, error)
}

// EditorFunc adapts a function to the Editor interface.
type EditorFunc func(ctx context.Context, item store.Item, content io.Reader) (bool, error)

// Commit implements Editor.
func (f EditorFunc) Commit(ctx context.Context, item store.Item, content io.Reader) (bool, error) {
	return f(ctx, item, content)
}

// Paste hands the item with id to the editor. It does not change history.
func (m *Manager) Paste(ctx context.Context, id uint) error {
	if m.editor == nil {
		return fmt.Errorf("%w: no editor attached", ErrPasteRejected)
	}

	return m.queue.do(ctx, func(ctx context.Context) error {
		item, err := m.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get item %d: %w", id, err)
		}

		var content io.Reader
		if item.Kind().IsMedia() {
			rc, err := m.media.Resolve(item.MediaRef())
			if err != nil {
				return fmt.Errorf("failed to open media for item %d: %w", id, err)
			}
			defer rc.Close()
			content = rc
		} else {
			content = strings.NewReader(item.Text())
		}

		ok, err := m.editor.Commit(ctx, item, content)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPasteRejected, err)
		}
		if !ok {
			return fmt.Errorf("%w: item %d", ErrPasteRejected, id)
		}
		m.logger.Debug("pasted item", "id", id, "preview", Preview(item, 40))
		return nil
	})
}

// CanBePasted reports whether a target accepting the given MIME types can
// take item. Text items always fit a target that accepts text/plain.
func CanBePasted(item store.Item, accepted []string) bool {
	if clipboard.AcceptsAny(item.MimeTypes(), accepted) {
		return true
	}
	return item.Kind() == store.KindText && clipboard.AcceptsAny([]string{store.MIMETextPlain}, accepted)
}
