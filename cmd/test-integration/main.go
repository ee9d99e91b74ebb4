package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/yiblet/clipkeep/internal/clipboard/sysboard"
	"github.com/yiblet/clipkeep/internal/history"
	"github.com/yiblet/clipkeep/internal/logging"
	"github.com/yiblet/clipkeep/internal/media"
	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
	"github.com/yiblet/clipkeep/internal/store/memstore"
)

// Manual check of the system clipboard bridge. It needs a desktop session
// and overwrites the current clipboard.
func main() {
	fmt.Println("Testing System Clipboard Sync")
	fmt.Println("=============================")

	logger := logging.Setup(logging.FormatText, logging.ParseLevel("debug"))

	board, err := sysboard.New(100*time.Millisecond, logger)
	if err != nil {
		log.Fatalf("Error opening system clipboard: %v", err)
	}
	defer board.Close()

	mediaDir, err := os.MkdirTemp("", "clipkeep-integration-")
	if err != nil {
		log.Fatalf("Error creating media directory: %v", err)
	}
	defer os.RemoveAll(mediaDir)
	ms, err := media.New(mediaDir)
	if err != nil {
		log.Fatalf("Error creating media store: %v", err)
	}

	st := memstore.NewMemoryStore()
	defer st.Close()

	m, err := history.New(history.Config{
		Store:         st.History(),
		Media:         ms,
		Bridge:        board,
		Prefs:         prefs.Static(prefs.Defaults()),
		Logger:        logger,
		SweepInterval: -1,
	})
	if err != nil {
		log.Fatalf("Error creating clipboard manager: %v", err)
	}
	defer m.Close()

	ctx := context.Background()

	// 1. App copy must reach the host exactly once and not come back as a
	//    second history entry.
	marker := fmt.Sprintf("clipkeep integration %d", time.Now().UnixNano())
	item, err := store.NewTextItem(marker, time.Now())
	if err != nil {
		log.Fatalf("Error creating item: %v", err)
	}
	m.Copy(item)
	if err := m.Drain(ctx); err != nil {
		log.Fatalf("Error draining: %v", err)
	}

	clip, err := board.Current()
	if err != nil {
		log.Fatalf("Error reading clipboard: %v", err)
	}
	if clip == nil || clip.Text != marker {
		fmt.Printf("Host clipboard mismatch: got %+v\n", clip)
	} else {
		fmt.Println("Host clipboard holds the copied text")
	}

	// Give the poller time to notice our own write.
	time.Sleep(500 * time.Millisecond)
	if err := m.Drain(ctx); err != nil {
		log.Fatalf("Error draining: %v", err)
	}

	count, err := st.History().Count(ctx)
	if err != nil {
		log.Fatalf("Error counting items: %v", err)
	}
	if count == 1 {
		fmt.Println("Own write was not recorded twice")
	} else {
		fmt.Printf("Expected 1 history item, found %d\n", count)
	}

	// 2. Copy something else from another application.
	fmt.Println("\nCopy some text in another application within 10 seconds...")
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(250 * time.Millisecond)
		if n, _ := st.History().Count(ctx); n > count {
			h := m.History()
			fmt.Printf("Captured: %s\n", history.Preview(h.All()[0], 60))
			fmt.Println("\nSystem clipboard sync verification complete!")
			return
		}
	}
	fmt.Println("No external copy observed")
}
