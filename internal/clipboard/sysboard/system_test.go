package sysboard

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard"
)

type fakeBackend struct {
	mu      sync.Mutex
	text    []byte
	img     []byte
	readErr error
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) readText() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.readErr
}

func (f *fakeBackend) readImage() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.img, nil
}

func (f *fakeBackend) writeText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.img = data, nil
	return nil
}

func (f *fakeBackend) writeImage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.img = nil, data
	return nil
}

func newTestClipboard(t *testing.T, b *fakeBackend) *SystemClipboard {
	t.Helper()
	s := newWithBackend(b, 5*time.Millisecond, slog.Default())
	t.Cleanup(func() { s.Close() })
	return s
}

func waitForChange(t *testing.T, s *SystemClipboard) {
	t.Helper()
	select {
	case <-s.Watch():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for clipboard change")
	}
}

func TestSystemClipboard_TextRoundTrip(t *testing.T) {
	b := &fakeBackend{}
	s := newTestClipboard(t, b)

	if clip, err := s.Current(); err != nil || clip != nil {
		t.Fatalf("Current() on empty board = %+v, %v", clip, err)
	}

	if err := s.Set(&clipboard.Clip{Text: "hello"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitForChange(t, s)

	clip, err := s.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if clip.Text != "hello" || len(clip.MimeTypes) != 1 || clip.MimeTypes[0] != "text/plain" {
		t.Errorf("Current() = %+v, want text/plain hello", clip)
	}
}

func TestSystemClipboard_ExternalChangeFiresWatch(t *testing.T) {
	b := &fakeBackend{text: []byte("at startup")}
	s := newTestClipboard(t, b)

	select {
	case <-s.Watch():
		t.Fatal("content present at startup reported as a change")
	case <-time.After(30 * time.Millisecond):
	}

	b.writeText([]byte("typed elsewhere"))
	waitForChange(t, s)
}

func TestSystemClipboard_ImageKeepsRef(t *testing.T) {
	b := &fakeBackend{}
	s := newTestClipboard(t, b)
	png := []byte{0x89, 'P', 'N', 'G'}

	if err := s.Set(&clipboard.Clip{Ref: "clip-7", Data: png, MimeTypes: []string{"image/png"}}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clip, err := s.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if clip.Ref != "clip-7" {
		t.Errorf("Current().Ref = %q, want clip-7", clip.Ref)
	}

	// A different image placed by another application has no ref.
	b.writeImage([]byte{1, 2, 3})
	clip, _ = s.Current()
	if clip.Ref != "" || len(clip.Data) != 3 {
		t.Errorf("external image = %+v, want data without ref", clip)
	}
}

func TestSystemClipboard_RejectsUnsupportedMedia(t *testing.T) {
	s := newTestClipboard(t, &fakeBackend{})

	err := s.Set(&clipboard.Clip{Ref: "clip-1", Data: []byte{0}, MimeTypes: []string{"video/mp4"}})
	if !errors.Is(err, clipboard.ErrUnavailable) {
		t.Errorf("Set(video) error = %v, want ErrUnavailable", err)
	}
}

func TestSystemClipboard_ReadFailure(t *testing.T) {
	b := &fakeBackend{}
	s := newTestClipboard(t, b)

	b.mu.Lock()
	b.readErr = errors.New("display lost")
	b.mu.Unlock()

	if _, err := s.Current(); !errors.Is(err, clipboard.ErrUnavailable) {
		t.Errorf("Current() error = %v, want ErrUnavailable", err)
	}
}

func TestSystemClipboard_Clear(t *testing.T) {
	b := &fakeBackend{text: []byte("something")}
	s := newTestClipboard(t, b)

	if err := s.Set(nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if clip, _ := s.Current(); clip != nil {
		t.Errorf("expected empty board, got %+v", clip)
	}
}
