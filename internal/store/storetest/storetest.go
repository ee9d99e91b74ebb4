// Package storetest provides a conformance suite that every store.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yiblet/clipkeep/internal/store"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// TextItem builds a text item captured offset after a fixed base time.
func TextItem(t *testing.T, text string, offset time.Duration, opts ...store.ItemOption) store.Item {
	t.Helper()
	it, err := store.NewTextItem(text, base.Add(offset), opts...)
	if err != nil {
		t.Fatalf("NewTextItem(%q) error = %v", text, err)
	}
	return it
}

// Run executes the conformance suite against the store produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsIDs", func(t *testing.T) { testInsert(t, newStore(t)) })
	t.Run("QueryAllNewestFirst", func(t *testing.T) { testQueryOrder(t, newStore(t)) })
	t.Run("UpdatePin", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteAllUnpinned", func(t *testing.T) { testDeleteAllUnpinned(t, newStore(t)) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, newStore(t)) })
	t.Run("MediaFieldsRoundTrip", func(t *testing.T) { testMediaRoundTrip(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("Config", func(t *testing.T) { testConfig(t, newStore(t)) })
}

func testInsert(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	a, err := h.Insert(ctx, TextItem(t, "alpha", 0))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	b, err := h.Insert(ctx, TextItem(t, "beta", time.Second).WithID(99))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if a.ID() == 0 || b.ID() == 0 {
		t.Fatalf("expected non-zero IDs, got %d and %d", a.ID(), b.ID())
	}
	if a.ID() == b.ID() {
		t.Errorf("expected unique IDs, both are %d", a.ID())
	}
	if b.ID() == 99 {
		t.Errorf("expected store to ignore caller-provided ID")
	}

	got, err := h.Get(ctx, a.ID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Text() != "alpha" || got.ID() != a.ID() {
		t.Errorf("Get() = (%d, %q), want (%d, %q)", got.ID(), got.Text(), a.ID(), "alpha")
	}

	count, err := h.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	if _, err := h.Get(ctx, 12345); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testQueryOrder(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	for i, text := range []string{"first", "second", "third"} {
		if _, err := h.Insert(ctx, TextItem(t, text, time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	// Same timestamp as "third": insertion order breaks the tie.
	if _, err := h.Insert(ctx, TextItem(t, "fourth", 2*time.Second)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	items, err := h.QueryAll(ctx)
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	want := []string{"fourth", "third", "second", "first"}
	if len(items) != len(want) {
		t.Fatalf("QueryAll() returned %d items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if it.Text() != want[i] {
			t.Errorf("items[%d] = %q, want %q", i, it.Text(), want[i])
		}
	}
}

func testUpdate(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	saved, err := h.Insert(ctx, TextItem(t, "pin me", 0))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := h.Update(ctx, saved.WithPinned(true)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := h.Get(ctx, saved.ID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.IsPinned() {
		t.Error("expected item to be pinned after Update")
	}
	if saved.IsPinned() {
		t.Error("expected original value to stay unpinned")
	}

	if err := h.Update(ctx, got.WithPinned(false)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = h.Get(ctx, saved.ID())
	if got.IsPinned() {
		t.Error("expected item to be unpinned after second Update")
	}
}

func testUpdateMissing(t *testing.T, st store.Store) {
	err := st.History().Update(context.Background(), TextItem(t, "ghost", 0).WithID(777))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func testDelete(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	a, _ := h.Insert(ctx, TextItem(t, "a", 0))
	b, _ := h.Insert(ctx, TextItem(t, "b", time.Second))

	if err := h.Delete(ctx, a.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := h.Delete(ctx, a.ID()); err != nil {
		t.Errorf("Delete() of absent row error = %v, want nil", err)
	}
	if err := h.Delete(ctx); err != nil {
		t.Errorf("Delete() with no ids error = %v", err)
	}

	items, _ := h.QueryAll(ctx)
	if len(items) != 1 || items[0].ID() != b.ID() {
		t.Errorf("expected only %d to remain, got %v", b.ID(), ids(items))
	}
}

func testDeleteAllUnpinned(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	h.Insert(ctx, TextItem(t, "loose 1", 0))
	pinned, _ := h.Insert(ctx, TextItem(t, "keep", time.Second, store.Pinned()))
	h.Insert(ctx, TextItem(t, "loose 2", 2*time.Second))

	removed, err := h.DeleteAllUnpinned(ctx)
	if err != nil {
		t.Fatalf("DeleteAllUnpinned() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removed items, got %d", len(removed))
	}
	for _, it := range removed {
		if it.IsPinned() {
			t.Errorf("removed pinned item %d", it.ID())
		}
	}

	items, _ := h.QueryAll(ctx)
	if len(items) != 1 || items[0].ID() != pinned.ID() {
		t.Errorf("expected only pinned item %d to remain, got %v", pinned.ID(), ids(items))
	}
}

func testDeleteAll(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	first, _ := h.Insert(ctx, TextItem(t, "a", 0))
	h.Insert(ctx, TextItem(t, "b", time.Second, store.Pinned()))

	if err := h.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	count, _ := h.Count(ctx)
	if count != 0 {
		t.Errorf("Count() after DeleteAll = %d, want 0", count)
	}

	// IDs are never reused for a new row.
	next, err := h.Insert(ctx, TextItem(t, "c", 2*time.Second))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if next.ID() == first.ID() {
		t.Errorf("expected fresh ID after DeleteAll, got reused %d", next.ID())
	}
}

func testMediaRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	media, err := store.NewMediaItem(store.KindImage, "clip-42", []string{"image/png", "IMAGE/PNG", "image/*"},
		base, store.Sensitive(), store.RemoteDevice())
	if err != nil {
		t.Fatalf("NewMediaItem() error = %v", err)
	}
	saved, err := h.Insert(ctx, media)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := h.Get(ctx, saved.ID())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind() != store.KindImage || got.MediaRef() != "clip-42" {
		t.Errorf("got kind=%s ref=%q, want image clip-42", got.Kind(), got.MediaRef())
	}
	if !got.IsSensitive() || !got.IsRemoteDevice() {
		t.Errorf("expected sensitive and remote flags to survive, got %v/%v", got.IsSensitive(), got.IsRemoteDevice())
	}
	mimes := got.MimeTypes()
	if len(mimes) != 2 || mimes[0] != "image/png" || mimes[1] != "image/*" {
		t.Errorf("MimeTypes() = %v, want [image/png image/*]", mimes)
	}
	if !got.CreatedAt().Equal(base) {
		t.Errorf("CreatedAt() = %v, want %v", got.CreatedAt(), base)
	}
}

func testSubscribe(t *testing.T, st store.Store) {
	ctx := context.Background()
	h := st.History()

	h.Insert(ctx, TextItem(t, "existing", 0))

	ch, cancel := h.Subscribe()
	defer cancel()

	initial := receive(t, ch)
	if len(initial) != 1 {
		t.Fatalf("initial delivery has %d items, want 1", len(initial))
	}

	h.Insert(ctx, TextItem(t, "new", time.Second))
	if got := receive(t, ch); len(got) != 2 {
		t.Errorf("after insert got %d items, want 2", len(got))
	}

	if err := h.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if got := receive(t, ch); len(got) != 0 {
		t.Errorf("after DeleteAll got %d items, want 0", len(got))
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}
}

func testConfig(t *testing.T, st store.Store) {
	cfg := st.Config()

	version, err := cfg.Get(store.KeySchemaVersion)
	if err != nil {
		t.Fatalf("Get(db_version) error = %v", err)
	}
	if version != store.SchemaVersion {
		t.Errorf("db_version = %s, want %s", version, store.SchemaVersion)
	}

	if err := cfg.Set("max_history_size", "30"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cfg.Set("max_history_size", "40"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	value, err := cfg.Get("max_history_size")
	if err != nil || value != "40" {
		t.Errorf("Get() = %q, %v, want 40", value, err)
	}

	all, err := cfg.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all["max_history_size"] != "40" {
		t.Errorf("List() missing max_history_size: %v", all)
	}

	if err := cfg.Delete("max_history_size"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := cfg.Get("max_history_size"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := cfg.Delete("max_history_size"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func receive(t *testing.T, ch <-chan []store.Item) []store.Item {
	t.Helper()
	select {
	case items, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store notification")
		return nil
	}
}

func ids(items []store.Item) []uint {
	out := make([]uint, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}
