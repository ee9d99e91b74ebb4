package history

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/clipboard/mockboard"
	"github.com/yiblet/clipkeep/internal/media"
	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
	"github.com/yiblet/clipkeep/internal/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// policyBox is a preference source tests can change on the fly.
type policyBox struct {
	mu sync.Mutex
	p  prefs.Policy
}

func (b *policyBox) Policy() prefs.Policy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p
}

func (b *policyBox) Update(fn func(p *prefs.Policy)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.p)
}

type testEditor struct {
	mu       sync.Mutex
	accept   bool
	received []string
}

func (e *testEditor) Commit(_ context.Context, _ store.Item, content io.Reader) (bool, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.received = append(e.received, string(data))
	return e.accept, nil
}

type harness struct {
	m      *Manager
	st     *memstore.MemoryStore
	board  *mockboard.MockClipboard
	media  *media.Store
	clock  *fakeClock
	policy *policyBox
	editor *testEditor
}

func newHarness(t *testing.T, configure func(p *prefs.Policy)) *harness {
	t.Helper()

	p := prefs.Defaults()
	// Size eviction is exercised explicitly by the tests that need it.
	p.LimitHistorySize = false
	if configure != nil {
		configure(&p)
	}

	ms, err := media.New(filepath.Join(t.TempDir(), "media"))
	if err != nil {
		t.Fatalf("media.New() error = %v", err)
	}

	h := &harness{
		st:     memstore.NewMemoryStore(),
		board:  mockboard.New(),
		media:  ms,
		clock:  &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		policy: &policyBox{p: p},
		editor: &testEditor{accept: true},
	}

	h.m, err = New(Config{
		Store:         h.st.History(),
		Media:         h.media,
		Bridge:        h.board,
		Prefs:         h.policy,
		Editor:        h.editor,
		Clock:         h.clock.Now,
		SweepInterval: -1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	t.Cleanup(func() {
		h.m.Close()
		h.board.Close()
		h.st.Close()
	})
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

func (h *harness) text(t *testing.T, s string, opts ...store.ItemOption) store.Item {
	t.Helper()
	it, err := store.NewTextItem(s, h.clock.Now(), opts...)
	if err != nil {
		t.Fatalf("NewTextItem(%q) error = %v", s, err)
	}
	return it
}

func (h *harness) items(t *testing.T) []store.Item {
	t.Helper()
	items, err := h.st.History().QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	return items
}

func (h *harness) external(t *testing.T, clip *clipboard.Clip) {
	t.Helper()
	h.board.SetExternal(clip)
	h.m.HandleHostChange()
	h.drain(t)
}

func texts(items []store.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text()
	}
	return out
}

func TestInsertOrMoveToFront_Dedup(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 3; i++ {
		h.m.InsertOrMoveToFront(h.text(t, "repeat"))
		h.clock.Advance(time.Second)
	}
	h.m.InsertOrMoveToFront(h.text(t, "other"))
	h.drain(t)

	items := h.items(t)
	count := 0
	for _, it := range items {
		if it.Text() == "repeat" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one \"repeat\" row, got %d in %v", count, texts(items))
	}
	if len(items) != 2 {
		t.Errorf("expected 2 rows, got %v", texts(items))
	}
}

func TestInsertOrMoveToFront_RefreshesRecency(t *testing.T) {
	h := newHarness(t, nil)

	h.m.InsertOrMoveToFront(h.text(t, "a"))
	h.clock.Advance(time.Second)
	h.m.InsertOrMoveToFront(h.text(t, "b"))
	h.clock.Advance(time.Second)
	h.m.InsertOrMoveToFront(h.text(t, "a"))
	h.drain(t)

	got := texts(h.items(t))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("history = %v, want [a b]", got)
	}
}

func TestInsertOrMoveToFront_PinSurvivesPromotion(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "keep me"))
	h.drain(t)
	first := h.items(t)[0]
	if err := h.m.Pin(ctx, first.ID()); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}

	h.clock.Advance(time.Minute)
	h.m.InsertOrMoveToFront(h.text(t, "keep me"))
	h.drain(t)

	items := h.items(t)
	if len(items) != 1 {
		t.Fatalf("expected 1 row, got %v", texts(items))
	}
	if !items[0].IsPinned() {
		t.Error("expected promoted item to stay pinned")
	}
	if items[0].ID() == first.ID() {
		t.Error("expected promotion to replace the row")
	}
	if !items[0].CreatedAt().Equal(h.clock.Now()) {
		t.Errorf("CreatedAt() = %v, want refreshed %v", items[0].CreatedAt(), h.clock.Now())
	}
}

func TestInsertOrMoveToFront_HistoryDisabled(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) { p.HistoryEnabled = false })

	h.m.InsertOrMoveToFront(h.text(t, "ignored"))
	h.drain(t)

	if items := h.items(t); len(items) != 0 {
		t.Errorf("expected no rows with history disabled, got %v", texts(items))
	}
}

func TestInsertOrMoveToFront_MediaNotDeduplicated(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 2; i++ {
		ref, err := h.media.CloneBytes([]byte("same image"))
		if err != nil {
			t.Fatalf("CloneBytes() error = %v", err)
		}
		it, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now())
		h.m.InsertOrMoveToFront(it)
	}
	h.drain(t)

	if n := len(h.items(t)); n != 2 {
		t.Errorf("expected 2 media rows, got %d", n)
	}
}

func TestHistory_ScenarioRecentToOther(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) { p.CleanUpOld = true })
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "hello"))
	h.drain(t)

	hist := h.m.History()
	if len(hist.Recent) != 1 || len(hist.Other) != 0 || len(hist.Pinned) != 0 {
		t.Fatalf("at t=0 got pinned=%d recent=%d other=%d, want 0/1/0", len(hist.Pinned), len(hist.Recent), len(hist.Other))
	}

	h.clock.Advance(301 * time.Second)
	h.drain(t)
	hist = h.m.History()
	if len(hist.Recent) != 0 || len(hist.Other) != 1 {
		t.Fatalf("at t=301s got recent=%d other=%d, want 0/1", len(hist.Recent), len(hist.Other))
	}

	if err := h.m.Pin(ctx, hist.Other[0].ID()); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	h.clock.Advance(24 * time.Hour)
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	h.drain(t)

	hist = h.m.History()
	if len(hist.Pinned) != 1 || len(hist.Recent) != 0 || len(hist.Other) != 0 {
		t.Errorf("after pin got pinned=%d recent=%d other=%d, want 1/0/0", len(hist.Pinned), len(hist.Recent), len(hist.Other))
	}
}

func TestSweep_SizeLimitEvictsOldest(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, s := range []string{"A", "B", "C"} {
		h.m.InsertOrMoveToFront(h.text(t, s))
		h.clock.Advance(time.Second)
	}
	h.drain(t)

	h.policy.Update(func(p *prefs.Policy) {
		p.LimitHistorySize = true
		p.MaxHistorySize = 2
	})
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	got := texts(h.items(t))
	if len(got) != 2 || got[0] != "C" || got[1] != "B" {
		t.Errorf("history = %v, want [C B]", got)
	}
}

func TestSweep_SizeLimitOnInsert(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.LimitHistorySize = true
		p.MaxHistorySize = 2
	})

	for _, s := range []string{"A", "B", "C", "D"} {
		h.m.InsertOrMoveToFront(h.text(t, s))
		h.clock.Advance(time.Second)
	}
	h.drain(t)

	if got := texts(h.items(t)); len(got) != 2 || got[0] != "D" || got[1] != "C" {
		t.Errorf("history = %v, want [D C]", got)
	}
}

func TestSweep_RespectsPins(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.LimitHistorySize = true
		p.MaxHistorySize = 1
		p.CleanUpOld = true
		p.CleanUpAfter = 10 * time.Minute
	})
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "pinned old", store.Pinned()))
	h.clock.Advance(time.Second)
	h.m.InsertOrMoveToFront(h.text(t, "loose old"))
	h.drain(t)

	h.clock.Advance(time.Hour)
	h.m.InsertOrMoveToFront(h.text(t, "fresh"))
	h.drain(t)
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	got := h.items(t)
	if len(got) != 2 {
		t.Fatalf("history = %v, want [fresh, pinned old]", texts(got))
	}
	for _, it := range got {
		if it.Text() == "loose old" {
			t.Error("expected old unpinned item to be evicted")
		}
	}
	hist := h.m.History()
	if len(hist.Pinned) != 1 || hist.Pinned[0].Text() != "pinned old" {
		t.Errorf("pinned = %v, want [pinned old]", texts(hist.Pinned))
	}
}

func TestSweep_SensitiveIgnoresPin(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.AutoCleanSensitive = true
		p.AutoCleanSensitiveAfter = 20 * time.Second
	})
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "hunter2", store.Sensitive(), store.Pinned()))
	h.m.InsertOrMoveToFront(h.text(t, "public"))
	h.drain(t)

	h.clock.Advance(10 * time.Second)
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n := len(h.items(t)); n != 2 {
		t.Fatalf("expected nothing evicted before the deadline, got %d rows", n)
	}

	h.clock.Advance(11 * time.Second)
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if got := texts(h.items(t)); len(got) != 1 || got[0] != "public" {
		t.Errorf("history = %v, want [public]", got)
	}
}

func TestSweep_DeletesMediaAndOrphans(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.CleanUpOld = true
		p.CleanUpAfter = 10 * time.Minute
	})
	ctx := context.Background()

	ref, _ := h.media.CloneBytes([]byte("png"))
	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now())
	h.m.InsertOrMoveToFront(img)
	orphan, _ := h.media.Adopt("clip-1000", strings.NewReader("stale"))
	h.drain(t)
	written := h.clock.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(h.media.Root(), orphan), written, written); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	h.clock.Advance(time.Hour)
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if n := len(h.items(t)); n != 0 {
		t.Errorf("expected image row evicted, %d rows remain", n)
	}
	if h.media.Has(ref) {
		t.Error("expected evicted item's media file deleted")
	}
	if h.media.Has(orphan) {
		t.Error("expected orphaned media file pruned")
	}
}

func TestSweep_KeepsAdoptedMediaUntilRestored(t *testing.T) {
	h := newHarness(t, nil)
	h.clock.Set(time.Now())
	ctx := context.Background()

	// The handle encodes a capture time far older than the grace period.
	ref, err := h.media.Adopt("clip-1714467600000000000", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if !h.media.Has(ref) {
		t.Fatal("expected freshly adopted media to survive a sweep")
	}

	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, time.Unix(1714467600, 0))
	added, err := h.m.RestoreHistory(ctx, []store.Item{img})
	if err != nil {
		t.Fatalf("RestoreHistory() error = %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if !h.media.Has(ref) {
		t.Error("expected restored item's media to be kept")
	}
}

func TestSweep_StorageFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)

	h.st.SetFailure(errors.New("disk gone"))
	defer h.st.SetFailure(nil)

	if err := h.m.Sweep(context.Background()); !errors.Is(err, store.ErrStorage) {
		t.Errorf("Sweep() error = %v, want ErrStorage", err)
	}
}

func TestHostChange_CapturesExternalText(t *testing.T) {
	h := newHarness(t, nil)

	h.external(t, &clipboard.Clip{Text: "foo", MimeTypes: []string{"text/plain"}})

	primary := h.m.PrimaryClip()
	if primary == nil || primary.Text() != "foo" {
		t.Fatalf("PrimaryClip() = %v, want foo", primary)
	}
	if got := texts(h.items(t)); len(got) != 1 || got[0] != "foo" {
		t.Errorf("history = %v, want [foo]", got)
	}
	if h.board.Writes() != 0 {
		t.Errorf("expected no writes back to the host, got %d", h.board.Writes())
	}
}

func TestHostChange_RepeatedNotificationIsIgnored(t *testing.T) {
	h := newHarness(t, nil)

	h.external(t, &clipboard.Clip{Text: "foo"})
	first := h.items(t)[0]

	h.m.HandleHostChange()
	h.m.HandleHostChange()
	h.drain(t)

	items := h.items(t)
	if len(items) != 1 || items[0].ID() != first.ID() {
		t.Errorf("expected the original row %d untouched, got %v", first.ID(), texts(items))
	}
}

func TestHostChange_SyncFromSystemDisabled(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.UseInternalClipboard = true
		p.SyncFromSystem = false
	})

	h.external(t, &clipboard.Clip{Text: "foo"})

	if items := h.items(t); len(items) != 0 {
		t.Errorf("expected history unchanged, got %v", texts(items))
	}
	if h.m.PrimaryClip() != nil {
		t.Errorf("expected primary clip untouched, got %v", h.m.PrimaryClip())
	}
}

func TestHostChange_InternalWithSyncFrom(t *testing.T) {
	h := newHarness(t, func(p *prefs.Policy) {
		p.UseInternalClipboard = true
		p.SyncFromSystem = true
	})

	h.external(t, &clipboard.Clip{Text: "pulled"})

	if got := texts(h.items(t)); len(got) != 1 || got[0] != "pulled" {
		t.Errorf("history = %v, want [pulled]", got)
	}
}

func TestHostChange_EmptyClearsPrimary(t *testing.T) {
	h := newHarness(t, nil)

	h.external(t, &clipboard.Clip{Text: "something"})
	h.external(t, nil)

	if h.m.PrimaryClip() != nil {
		t.Errorf("expected empty primary clip, got %v", h.m.PrimaryClip())
	}
	if n := len(h.items(t)); n != 1 {
		t.Errorf("expected history kept, got %d rows", n)
	}
}

func TestHostChange_CapturesImage(t *testing.T) {
	h := newHarness(t, nil)

	h.external(t, &clipboard.Clip{Data: []byte("png bytes"), MimeTypes: []string{"image/png"}, Sensitive: true})

	items := h.items(t)
	if len(items) != 1 {
		t.Fatalf("expected 1 row, got %d", len(items))
	}
	it := items[0]
	if it.Kind() != store.KindImage || !it.IsSensitive() {
		t.Errorf("captured kind=%s sensitive=%v, want image/true", it.Kind(), it.IsSensitive())
	}
	data, err := h.media.ReadAll(it.MediaRef())
	if err != nil || string(data) != "png bytes" {
		t.Errorf("media payload = %q, %v", data, err)
	}

	// The same payload seen again is not captured twice.
	h.m.HandleHostChange()
	h.drain(t)
	if n := len(h.items(t)); n != 1 {
		t.Errorf("expected no duplicate capture, got %d rows", n)
	}
}

func TestHostChange_CapturesVideoKind(t *testing.T) {
	h := newHarness(t, nil)

	h.external(t, &clipboard.Clip{Data: []byte("mp4"), MimeTypes: []string{"video/mp4"}})

	if items := h.items(t); len(items) != 1 || items[0].Kind() != store.KindVideo {
		t.Errorf("expected one video item, got %v", items)
	}
}

func TestUpdatePrimaryClip_Push(t *testing.T) {
	tests := []struct {
		name       string
		internal   bool
		toSystem   bool
		wantWrites int
	}{
		{"mirror mode always pushes", false, false, 1},
		{"mirror mode ignores sync_to_system", false, true, 1},
		{"internal without sync keeps to itself", true, false, 0},
		{"internal with sync pushes", true, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(p *prefs.Policy) {
				p.UseInternalClipboard = tt.internal
				p.SyncToSystem = tt.toSystem
			})

			it := h.text(t, "pushed")
			h.m.UpdatePrimaryClip(&it)
			h.drain(t)

			if got := h.m.PrimaryClip(); got == nil || got.Text() != "pushed" {
				t.Errorf("PrimaryClip() = %v, want pushed", got)
			}
			if h.board.Writes() != tt.wantWrites {
				t.Errorf("Writes() = %d, want %d", h.board.Writes(), tt.wantWrites)
			}
		})
	}
}

func TestUpdatePrimaryClip_OrderedWithHostChange(t *testing.T) {
	h := newHarness(t, nil)

	gate := make(chan struct{})
	h.m.queue.submit(func(context.Context) { <-gate })

	h.board.SetExternal(&clipboard.Clip{Text: "X"})
	h.m.HandleHostChange()
	h.m.Copy(h.text(t, "B"))
	close(gate)
	h.drain(t)
	h.drain(t)

	if clip, _ := h.board.Current(); clip == nil || clip.Text != "B" {
		t.Errorf("host clipboard = %+v, want B", clip)
	}
	if got := h.m.PrimaryClip(); got == nil || got.Text() != "B" {
		t.Errorf("PrimaryClip() = %v, want B", got)
	}
	got := texts(h.items(t))
	if len(got) != 2 || !slices.Contains(got, "B") || !slices.Contains(got, "X") {
		t.Errorf("history = %v, want B and X", got)
	}
}

func TestUpdatePrimaryClip_NilClearsHost(t *testing.T) {
	h := newHarness(t, nil)
	h.board.SetExternal(&clipboard.Clip{Text: "old"})

	h.m.UpdatePrimaryClip(nil)
	h.drain(t)

	if clip, _ := h.board.Current(); clip != nil {
		t.Errorf("expected host clipboard cleared, got %+v", clip)
	}
	if h.m.PrimaryClip() != nil {
		t.Error("expected empty primary clip")
	}
}

func TestLoopPrevention(t *testing.T) {
	h := newHarness(t, nil)

	it := h.text(t, "from the app")
	h.m.UpdatePrimaryClip(&it)
	h.drain(t)

	// The bridge reports our own write as a change.
	h.m.HandleHostChange()
	h.drain(t)

	if items := h.items(t); len(items) != 0 {
		t.Errorf("own write was ingested: %v", texts(items))
	}
}

func TestLoopPrevention_Copy(t *testing.T) {
	h := newHarness(t, nil)

	h.m.Copy(h.text(t, "copied"))
	h.drain(t)
	before := h.items(t)
	if len(before) != 1 {
		t.Fatalf("expected Copy to record one row, got %v", texts(before))
	}

	h.clock.Advance(time.Second)
	h.m.HandleHostChange()
	h.drain(t)

	after := h.items(t)
	if len(after) != 1 || after[0].ID() != before[0].ID() {
		t.Errorf("expected row %d untouched after echo, got %v", before[0].ID(), after)
	}
	if clip, _ := h.board.Current(); clip == nil || clip.Text != "copied" {
		t.Errorf("host clipboard = %+v, want copied", clip)
	}
}

func TestLoopPrevention_MediaPush(t *testing.T) {
	h := newHarness(t, nil)

	ref, _ := h.media.CloneBytes([]byte("image"))
	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now())
	h.m.Copy(img)
	h.drain(t)

	h.m.HandleHostChange()
	h.drain(t)

	items := h.items(t)
	if len(items) != 1 || items[0].MediaRef() != ref {
		t.Errorf("expected single row with ref %s, got %v", ref, items)
	}
}

func TestPinUnpin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "x"))
	h.drain(t)
	id := h.items(t)[0].ID()

	if err := h.m.Pin(ctx, id); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	h.drain(t)
	if hist := h.m.History(); len(hist.Pinned) != 1 {
		t.Errorf("expected 1 pinned item, got %d", len(hist.Pinned))
	}

	if err := h.m.Unpin(ctx, id); err != nil {
		t.Fatalf("Unpin() error = %v", err)
	}
	h.drain(t)
	if hist := h.m.History(); len(hist.Pinned) != 0 || len(hist.Recent) != 1 {
		t.Errorf("after unpin got pinned=%d recent=%d", len(hist.Pinned), len(hist.Recent))
	}

	if err := h.m.Pin(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Pin(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDelete_RemovesMedia(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	ref, _ := h.media.CloneBytes([]byte("img"))
	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now())
	h.m.InsertOrMoveToFront(img)
	h.drain(t)
	id := h.items(t)[0].ID()

	if err := h.m.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(h.items(t)) != 0 {
		t.Error("expected row removed")
	}
	if h.media.Has(ref) {
		t.Error("expected media file removed")
	}
	if err := h.m.Delete(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDelete_StorageFailureLeavesState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "survivor"))
	h.drain(t)
	id := h.items(t)[0].ID()

	h.st.SetFailure(errors.New("locked"))
	err := h.m.Delete(ctx, id)
	h.st.SetFailure(nil)

	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("Delete() error = %v, want ErrStorage", err)
	}
	h.drain(t)
	if hist := h.m.History(); hist.Len() != 1 {
		t.Errorf("expected published history to still hold the item, got %d", hist.Len())
	}
}

func TestClearUnpinnedAndAll(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	ref, _ := h.media.CloneBytes([]byte("img"))
	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now(), store.Pinned())
	h.m.InsertOrMoveToFront(img)
	h.m.InsertOrMoveToFront(h.text(t, "loose"))
	h.drain(t)

	if err := h.m.ClearUnpinned(ctx); err != nil {
		t.Fatalf("ClearUnpinned() error = %v", err)
	}
	items := h.items(t)
	if len(items) != 1 || !items[0].IsPinned() {
		t.Fatalf("expected only the pinned image, got %v", items)
	}
	if !h.media.Has(ref) {
		t.Error("pinned item's media removed by ClearUnpinned")
	}

	if err := h.m.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if n := len(h.items(t)); n != 0 {
		t.Errorf("expected empty history, got %d", n)
	}
	if handles, _ := h.media.Handles(); len(handles) != 0 {
		t.Errorf("expected media reset, got %v", handles)
	}
}

func TestPaste(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "paste me"))
	h.drain(t)
	id := h.items(t)[0].ID()

	if err := h.m.Paste(ctx, id); err != nil {
		t.Fatalf("Paste() error = %v", err)
	}
	if len(h.editor.received) != 1 || h.editor.received[0] != "paste me" {
		t.Errorf("editor received %v", h.editor.received)
	}

	h.editor.accept = false
	if err := h.m.Paste(ctx, id); !errors.Is(err, ErrPasteRejected) {
		t.Errorf("Paste() error = %v, want ErrPasteRejected", err)
	}
	if n := len(h.items(t)); n != 1 {
		t.Errorf("Paste changed history: %d rows", n)
	}
}

func TestPaste_MissingMediaIsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	img, _ := store.NewMediaItem(store.KindImage, "clip-42", []string{"image/png"}, h.clock.Now())
	saved, err := h.st.History().Insert(ctx, img)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := h.m.Paste(ctx, saved.ID()); err != nil {
		t.Fatalf("Paste() of dangling row error = %v", err)
	}
	if len(h.editor.received) != 1 || h.editor.received[0] != "" {
		t.Errorf("expected empty payload, got %q", h.editor.received)
	}
}

func TestPaste_NoEditor(t *testing.T) {
	ms, _ := media.New(t.TempDir())
	st := memstore.NewMemoryStore()
	defer st.Close()

	m, err := New(Config{Store: st.History(), Media: ms, SweepInterval: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	if err := m.Paste(context.Background(), 1); !errors.Is(err, ErrPasteRejected) {
		t.Errorf("Paste() error = %v, want ErrPasteRejected", err)
	}
}

func TestCanBePasted(t *testing.T) {
	now := time.Now()
	txt, _ := store.NewTextItem("hi", now)
	png, _ := store.NewMediaItem(store.KindImage, "clip-1", []string{"image/png"}, now)

	tests := []struct {
		name     string
		item     store.Item
		accepted []string
		want     bool
	}{
		{"text into text field", txt, []string{"text/plain"}, true},
		{"text into any", txt, []string{"*/*"}, true},
		{"text into image-only", txt, []string{"image/*"}, false},
		{"png into image wildcard", png, []string{"image/*"}, true},
		{"png into text field", png, []string{"text/plain"}, false},
		{"png into gif only", png, []string{"image/gif"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanBePasted(tt.item, tt.accepted); got != tt.want {
				t.Errorf("CanBePasted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRestoreHistory_RoundTrip(t *testing.T) {
	src := newHarness(t, nil)
	for _, s := range []string{"one", "two", "three"} {
		src.m.InsertOrMoveToFront(src.text(t, s))
		src.clock.Advance(time.Second)
	}
	src.m.InsertOrMoveToFront(src.text(t, "pinned", store.Pinned()))
	src.drain(t)
	exported := src.items(t)

	dst := newHarness(t, nil)
	ctx := context.Background()

	added, err := dst.m.RestoreHistory(ctx, exported)
	if err != nil {
		t.Fatalf("RestoreHistory() error = %v", err)
	}
	if added != len(exported) {
		t.Errorf("added = %d, want %d", added, len(exported))
	}

	restored := dst.items(t)
	if len(restored) != len(exported) {
		t.Fatalf("restored %d items, want %d", len(restored), len(exported))
	}
	for i := range exported {
		if !restored[i].Equal(exported[i]) || restored[i].IsPinned() != exported[i].IsPinned() {
			t.Errorf("restored[%d] = %q pinned=%v, want %q pinned=%v",
				i, restored[i].Text(), restored[i].IsPinned(), exported[i].Text(), exported[i].IsPinned())
		}
	}

	again, err := dst.m.RestoreHistory(ctx, exported)
	if err != nil {
		t.Fatalf("second RestoreHistory() error = %v", err)
	}
	if again != 0 || len(dst.items(t)) != len(exported) {
		t.Errorf("second restore added %d, total %d; want 0 and %d", again, len(dst.items(t)), len(exported))
	}
}

func TestSearch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.m.InsertOrMoveToFront(h.text(t, "Meeting at 10"))
	h.m.InsertOrMoveToFront(h.text(t, "grocery list"))
	ref, _ := h.media.CloneBytes([]byte("img"))
	img, _ := store.NewMediaItem(store.KindImage, ref, []string{"image/png"}, h.clock.Now())
	h.m.InsertOrMoveToFront(img)
	h.drain(t)

	tests := []struct {
		query string
		want  int
	}{
		{"meeting", 1},
		{"LIST", 1},
		{"image/*", 1},
		{`/\d+/`, 1},
		{"nothing", 0},
	}
	for _, tt := range tests {
		found, err := h.m.Search(ctx, tt.query)
		if err != nil {
			t.Fatalf("Search(%q) error = %v", tt.query, err)
		}
		if len(found) != tt.want {
			t.Errorf("Search(%q) = %d items, want %d", tt.query, len(found), tt.want)
		}
	}

	if _, err := h.m.Search(ctx, "/[/"); err == nil {
		t.Error("expected invalid regexp to fail")
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, nil)

	ch, cancel := h.m.Subscribe()
	defer cancel()
	<-ch

	h.m.InsertOrMoveToFront(h.text(t, "published"))
	h.drain(t)

	select {
	case hist := <-ch:
		if hist.Len() != 1 || hist.Recent[0].Text() != "published" {
			t.Errorf("published history = %v", texts(hist.All()))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published history")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := h.m.Pin(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Pin() after Close error = %v, want ErrClosed", err)
	}
}
