// Package sysboard implements the host clipboard bridge.
// It uses golang.design/x/clipboard (text and PNG images) and falls back to
// github.com/atotto/clipboard (text only) when the native backend cannot
// initialise, e.g. without cgo or a display.
package sysboard

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard"
)

// DefaultPollInterval is how often the host clipboard is checked for changes.
const DefaultPollInterval = 250 * time.Millisecond

const mimePNG = "image/png"

// backend is the raw host clipboard access used by SystemClipboard.
type backend interface {
	name() string
	readText() ([]byte, error)
	readImage() ([]byte, error)
	writeText(data []byte) error
	writeImage(data []byte) error
}

// SystemClipboard implements clipboard.Bridge on the host clipboard
type SystemClipboard struct {
	b        backend
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastText []byte
	lastImg  []byte
	// The handle of the last image written through Set, keyed by payload
	// hash, so reading it back reports the same reference.
	writtenSum [sha256.Size]byte
	writtenRef string

	watchCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// New opens the host clipboard and starts watching it for changes.
func New(interval time.Duration, logger *slog.Logger) (*SystemClipboard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b, err := newNativeBackend()
	if err != nil {
		logger.Warn("native clipboard unavailable, falling back to text-only", "err", err)
		b, err = newTextBackend()
		if err != nil {
			return nil, err
		}
	}
	return newWithBackend(b, interval, logger), nil
}

func newWithBackend(b backend, interval time.Duration, logger *slog.Logger) *SystemClipboard {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &SystemClipboard{
		b:        b,
		interval: interval,
		logger:   logger,
		watchCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	// Seed the snapshot so content present at startup is not reported as a change.
	s.lastText, _ = b.readText()
	s.lastImg, _ = b.readImage()

	s.wg.Add(1)
	go s.poll()
	return s
}

// Name describes the active backend.
func (s *SystemClipboard) Name() string {
	return s.b.name()
}

func (s *SystemClipboard) poll() {
	defer s.wg.Done()

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			s.check()
		}
	}
}

func (s *SystemClipboard) check() {
	text, err := s.b.readText()
	if err != nil {
		s.logger.Debug("clipboard poll failed", "backend", s.b.name(), "err", err)
		return
	}
	img, _ := s.b.readImage()

	s.mu.Lock()
	changed := !bytes.Equal(text, s.lastText) || !bytes.Equal(img, s.lastImg)
	if changed {
		s.lastText = text
		s.lastImg = img
	}
	s.mu.Unlock()

	if changed {
		select {
		case s.watchCh <- struct{}{}:
		default:
		}
	}
}

// Current implements clipboard.Bridge. Text takes precedence when the host
// offers both text and an image.
func (s *SystemClipboard) Current() (*clipboard.Clip, error) {
	text, err := s.b.readText()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", clipboard.ErrUnavailable, err)
	}
	if len(text) > 0 {
		return &clipboard.Clip{Text: string(text), MimeTypes: []string{"text/plain"}}, nil
	}

	img, err := s.b.readImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", clipboard.ErrUnavailable, err)
	}
	if len(img) == 0 {
		return nil, nil
	}

	clip := &clipboard.Clip{Data: img, MimeTypes: []string{mimePNG}}
	s.mu.Lock()
	if s.writtenRef != "" && sha256.Sum256(img) == s.writtenSum {
		clip.Ref = s.writtenRef
	}
	s.mu.Unlock()
	return clip, nil
}

// Set implements clipboard.Bridge. Media clips must carry their payload in
// Data; only PNG images can be published.
func (s *SystemClipboard) Set(clip *clipboard.Clip) error {
	var err error
	switch {
	case clip.IsEmpty():
		err = s.b.writeText(nil)
	case !clip.IsMedia():
		err = s.b.writeText([]byte(clip.Text))
	default:
		if !clipboard.AcceptsAny(clip.MimeTypes, []string{mimePNG}) {
			return fmt.Errorf("%w: cannot publish %v", clipboard.ErrUnavailable, clip.MimeTypes)
		}
		err = s.b.writeImage(clip.Data)
		if err == nil {
			s.mu.Lock()
			s.writtenSum = sha256.Sum256(clip.Data)
			s.writtenRef = clip.Ref
			s.mu.Unlock()
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", clipboard.ErrUnavailable, err)
	}
	return nil
}

// Watch implements clipboard.Bridge
func (s *SystemClipboard) Watch() <-chan struct{} {
	return s.watchCh
}

// Close stops polling and closes the watch channel
func (s *SystemClipboard) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		close(s.watchCh)
	})
	return nil
}
