package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/clipboard/mockboard"
	"github.com/yiblet/clipkeep/internal/history"
	"github.com/yiblet/clipkeep/internal/media"
	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
	"github.com/yiblet/clipkeep/internal/store/memstore"
)

func main() {
	fmt.Println("clipkeep Clipboard Manager Demo")

	mediaDir, err := os.MkdirTemp("", "clipkeep-demo-")
	if err != nil {
		log.Fatalf("Failed to create media directory: %v", err)
	}
	defer os.RemoveAll(mediaDir)

	ms, err := media.New(mediaDir)
	if err != nil {
		log.Fatalf("Failed to create media store: %v", err)
	}

	// Create in-memory store, fake host clipboard and manager
	st := memstore.NewMemoryStore()
	defer st.Close()
	board := mockboard.New()
	defer board.Close()

	policy := prefs.Defaults()
	policy.MaxHistorySize = 4

	editor := history.EditorFunc(func(_ context.Context, item store.Item, content io.Reader) (bool, error) {
		data, err := io.ReadAll(content)
		if err != nil {
			return false, err
		}
		fmt.Printf("Editor received %d bytes: %s\n", len(data), history.Truncate(history.Sanitize(string(data)), 60))
		return true, nil
	})

	m, err := history.New(history.Config{
		Store:         st.History(),
		Media:         ms,
		Bridge:        board,
		Prefs:         prefs.Static(policy),
		Editor:        editor,
		SweepInterval: -1,
	})
	if err != nil {
		log.Fatalf("Failed to create clipboard manager: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	drain := func() {
		if err := m.Drain(ctx); err != nil {
			log.Fatalf("Failed to drain manager: %v", err)
		}
	}

	testContent := []string{
		"Hello, World! This is the first clip.",
		"package main\n\nimport \"fmt\"\n\nfunc main() {\n    fmt.Println(\"Hello, Go!\")\n}",
		"SELECT * FROM users WHERE created_at > '2023-01-01' ORDER BY created_at DESC LIMIT 10;",
	}

	fmt.Println("\nCopying from the app:")
	for i, content := range testContent {
		item, err := store.NewTextItem(content, time.Now())
		if err != nil {
			log.Fatalf("Failed to create item %d: %v", i, err)
		}
		m.Copy(item)
		fmt.Printf("%d. %s\n", i+1, history.Preview(item, 60))
	}
	drain()

	fmt.Println("\nAnother application copies text and an image:")
	board.SetExternal(&clipboard.Clip{Text: "https://example.com/shared-link"})
	m.HandleHostChange()
	drain()
	board.SetExternal(&clipboard.Clip{MimeTypes: []string{"image/png"}, Data: []byte("\x89PNG demo")})
	m.HandleHostChange()
	drain()

	// Copying the first clip again moves it to the front
	first, err := store.NewTextItem(testContent[0], time.Now())
	if err != nil {
		log.Fatalf("Failed to create item: %v", err)
	}
	m.Copy(first)
	drain()

	h := m.History()
	if len(h.Recent) > 0 {
		if err := m.Pin(ctx, h.Recent[len(h.Recent)-1].ID()); err != nil {
			log.Printf("Failed to pin item: %v", err)
		}
	}
	drain()

	h = m.History()
	fmt.Printf("\nHistory (%d items, limit %d):\n", h.Len(), policy.MaxHistorySize)
	printSection("Pinned", h.Pinned)
	printSection("Recent", h.Recent)
	printSection("Other", h.Other)

	if primary := m.PrimaryClip(); primary != nil {
		fmt.Printf("\nPrimary clip: %s\n", history.Preview(*primary, 60))
	}
	fmt.Printf("Host clipboard writes: %d\n", board.Writes())

	// Demonstrate pasting the first listed item
	if all := h.All(); len(all) > 0 {
		fmt.Println("\nPasting the pinned item:")
		if err := m.Paste(ctx, all[0].ID()); err != nil {
			log.Printf("Failed to paste: %v", err)
		}
	}

	results, err := m.Search(ctx, "image/*")
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	fmt.Printf("\nSearch image/* found %d item(s)\n", len(results))
}

func printSection(title string, items []store.Item) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, it := range items {
		fmt.Printf("  %3d. [%s] %s\n", it.ID(), it.CreatedAt().Format("15:04:05"), strings.TrimSpace(history.Preview(it, 60)))
	}
}
