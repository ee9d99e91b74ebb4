// Package mockboard provides an in-memory clipboard bridge for testing.
package mockboard

import (
	"slices"
	"sync"

	"github.com/yiblet/clipkeep/internal/clipboard"
)

// MockClipboard implements clipboard.Bridge in memory
type MockClipboard struct {
	mu      sync.Mutex
	current *clipboard.Clip
	writes  int
	failErr error
	watchCh chan struct{}
	closed  bool
}

// New creates a new MockClipboard instance
func New() *MockClipboard {
	return &MockClipboard{watchCh: make(chan struct{}, 1)}
}

// Current implements clipboard.Bridge
func (m *MockClipboard) Current() (*clipboard.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	return copyClip(m.current), nil
}

// Set implements clipboard.Bridge and counts the write
func (m *MockClipboard) Set(clip *clipboard.Clip) error {
	m.mu.Lock()
	if m.failErr != nil {
		m.mu.Unlock()
		return m.failErr
	}
	m.writes++
	if clip.IsEmpty() {
		m.current = nil
	} else {
		m.current = copyClip(clip)
	}
	m.mu.Unlock()

	m.signal()
	return nil
}

// SetExternal replaces the clipboard as another application would. It does
// not count as a write.
func (m *MockClipboard) SetExternal(clip *clipboard.Clip) {
	m.mu.Lock()
	if clip.IsEmpty() {
		m.current = nil
	} else {
		m.current = copyClip(clip)
	}
	m.mu.Unlock()

	m.signal()
}

// SetFailure makes Current and Set fail with err until cleared with nil
func (m *MockClipboard) SetFailure(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Writes returns how many times Set was called successfully
func (m *MockClipboard) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Watch implements clipboard.Bridge
func (m *MockClipboard) Watch() <-chan struct{} {
	return m.watchCh
}

// Close implements clipboard.Bridge
func (m *MockClipboard) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.watchCh)
	}
	return nil
}

func (m *MockClipboard) signal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
}

func copyClip(c *clipboard.Clip) *clipboard.Clip {
	if c == nil {
		return nil
	}
	out := *c
	out.MimeTypes = slices.Clone(c.MimeTypes)
	out.Data = slices.Clone(c.Data)
	return &out
}
