package mockboard

import (
	"errors"
	"testing"

	"github.com/yiblet/clipkeep/internal/clipboard"
)

func TestMockClipboard_SetAndWatch(t *testing.T) {
	m := New()
	defer m.Close()

	if clip, err := m.Current(); err != nil || clip != nil {
		t.Fatalf("Current() on new board = %v, %v, want nil, nil", clip, err)
	}

	if err := m.Set(&clipboard.Clip{Text: "hello", MimeTypes: []string{"text/plain"}}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	select {
	case <-m.Watch():
	default:
		t.Fatal("expected Set to fire Watch")
	}

	clip, _ := m.Current()
	if clip == nil || clip.Text != "hello" {
		t.Fatalf("Current() = %+v, want hello", clip)
	}
	clip.Text = "mutated"
	if again, _ := m.Current(); again.Text != "hello" {
		t.Error("Current() returned shared state")
	}

	m.SetExternal(&clipboard.Clip{Text: "from elsewhere"})
	if m.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", m.Writes())
	}

	if err := m.Set(nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if clip, _ := m.Current(); clip != nil {
		t.Errorf("expected cleared clipboard, got %+v", clip)
	}
}

func TestMockClipboard_Failure(t *testing.T) {
	m := New()
	defer m.Close()

	m.SetFailure(clipboard.ErrUnavailable)
	if _, err := m.Current(); !errors.Is(err, clipboard.ErrUnavailable) {
		t.Errorf("Current() error = %v, want ErrUnavailable", err)
	}
	if err := m.Set(&clipboard.Clip{Text: "x"}); !errors.Is(err, clipboard.ErrUnavailable) {
		t.Errorf("Set() error = %v, want ErrUnavailable", err)
	}
	if m.Writes() != 0 {
		t.Errorf("Writes() = %d after failed Set, want 0", m.Writes())
	}
}

func TestMockClipboard_CloseIsIdempotent(t *testing.T) {
	m := New()
	m.Close()
	m.Close()
	m.SetExternal(&clipboard.Clip{Text: "late"})

	if _, ok := <-m.Watch(); ok {
		t.Error("expected watch channel to be closed")
	}
}
