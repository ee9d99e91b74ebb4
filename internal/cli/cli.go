package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/yiblet/clipkeep/internal/backup"
	"github.com/yiblet/clipkeep/internal/clipboard"
	"github.com/yiblet/clipkeep/internal/clipboard/sysboard"
	"github.com/yiblet/clipkeep/internal/config"
	"github.com/yiblet/clipkeep/internal/history"
	"github.com/yiblet/clipkeep/internal/logging"
	"github.com/yiblet/clipkeep/internal/media"
	"github.com/yiblet/clipkeep/internal/prefs"
	"github.com/yiblet/clipkeep/internal/store"
	"github.com/yiblet/clipkeep/internal/store/boltstore"
	"github.com/yiblet/clipkeep/internal/store/dbstore"
	"github.com/yiblet/clipkeep/internal/store/memstore"
)

// CLI handles the command-line interface
type CLI struct {
	cfg    *config.Config
	cfgMgr *config.ConfigManager
	store  store.Store
	media  *media.Store
	prefs  *prefs.StoreSource
	logger *slog.Logger

	out io.Writer
	in  io.Reader
	now func() time.Time

	// newBridge opens the host clipboard.
	newBridge func(interval time.Duration) (clipboard.Bridge, error)
}

// New creates a new CLI instance
func New() (*CLI, error) {
	return NewWithArgs(nil)
}

// NewWithArgs creates a new CLI instance. Global flags override the config
// file (precedence: flag > env var > config file > default).
func NewWithArgs(args *Args) (*CLI, error) {
	if args == nil {
		args = &Args{}
	}

	var cfgMgr *config.ConfigManager
	if args.ConfigFile != nil {
		cfgMgr = config.NewConfigManagerWithPath(*args.ConfigFile)
	} else {
		var err error
		cfgMgr, err = config.NewConfigManager()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Setup(logging.ParseFormat(cfg.LogFormat), logging.ParseLevel(cfg.LogLevel))

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	mediaRoot, err := media.ResolveRoot(cfg.MediaDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to resolve media directory: %w", err)
	}
	ms, err := media.New(mediaRoot)
	if err != nil {
		st.Close()
		return nil, err
	}

	c := &CLI{
		cfg:    cfg,
		cfgMgr: cfgMgr,
		store:  st,
		media:  ms,
		prefs:  prefs.NewStoreSource(st.Config(), logger),
		logger: logger,
		out:    os.Stdout,
		in:     os.Stdin,
		now:    time.Now,
	}
	c.newBridge = func(interval time.Duration) (clipboard.Bridge, error) {
		return sysboard.New(interval, logger)
	}
	return c, nil
}

func applyOverrides(cfg *config.Config, args *Args) {
	if args.Backend != nil {
		cfg.Backend = *args.Backend
	}
	if args.DBPath != nil {
		cfg.DBPath = *args.DBPath
	}
	if args.MediaDir != nil {
		cfg.MediaDir = *args.MediaDir
	}
	if args.LogLevel != nil {
		cfg.LogLevel = *args.LogLevel
	}
	if args.LogFormat != nil {
		cfg.LogFormat = *args.LogFormat
	}
}

// openStore opens the configured storage backend
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Backend == config.BackendMemory {
		return memstore.NewMemoryStore(), nil
	}

	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	var st store.Store
	switch cfg.Backend {
	case config.BackendBolt:
		st, err = boltstore.NewBoltStore(dbPath)
	default:
		st, err = dbstore.NewSQLiteStore(dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database store: %w", err)
	}
	return st, nil
}

// Close releases the store
func (c *CLI) Close() error {
	return c.store.Close()
}

// Execute runs the CLI command based on parsed arguments. Interrupts cancel
// the command.
func (c *CLI) Execute(args *Args) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.ExecuteContext(ctx, args)
}

// ExecuteContext runs the CLI command under ctx
func (c *CLI) ExecuteContext(ctx context.Context, args *Args) error {
	if err := args.Validate(); err != nil {
		return err
	}

	switch {
	case args.Daemon != nil:
		return c.executeDaemon(ctx, args.Daemon)
	case args.List != nil:
		return c.executeList(ctx, args.List)
	case args.Copy != nil:
		return c.executeCopy(ctx, args.Copy)
	case args.Paste != nil:
		return c.executePaste(ctx, args.Paste)
	case args.Pin != nil:
		return c.executePin(ctx, args.Pin.ID, true)
	case args.Unpin != nil:
		return c.executePin(ctx, args.Unpin.ID, false)
	case args.Delete != nil:
		return c.executeDelete(ctx, args.Delete)
	case args.Clear != nil:
		return c.executeClear(ctx, args.Clear)
	case args.Search != nil:
		return c.executeSearch(ctx, args.Search)
	case args.Export != nil:
		return c.executeExport(ctx, args.Export)
	case args.Import != nil:
		return c.executeImport(ctx, args.Import)
	case args.Prefs != nil:
		return c.executePrefs(args.Prefs)
	case args.Config != nil:
		return c.executeConfig(args.Config)
	default:
		return c.executeList(ctx, &ListCmd{Width: 60})
	}
}

// withManager runs fn against a short-lived clipboard manager and waits for
// the work it queued to finish.
func (c *CLI) withManager(ctx context.Context, bridge clipboard.Bridge, editor history.Editor, fn func(m *history.Manager) error) error {
	m, err := history.New(history.Config{
		Store:         c.store.History(),
		Media:         c.media,
		Bridge:        bridge,
		Prefs:         c.prefs,
		Editor:        editor,
		Logger:        c.logger,
		Clock:         c.now,
		SweepInterval: -1,
	})
	if err != nil {
		return fmt.Errorf("failed to start clipboard manager: %w", err)
	}
	defer m.Close()

	if err := fn(m); err != nil {
		return err
	}
	return m.Drain(ctx)
}

// executeDaemon handles the 'clipkeep daemon' command
func (c *CLI) executeDaemon(ctx context.Context, cmd *DaemonCmd) error {
	interval := c.cfg.PollInterval()
	if cmd.PollMs != nil {
		interval = time.Duration(*cmd.PollMs) * time.Millisecond
	}

	bridge, err := c.newBridge(interval)
	if err != nil {
		return fmt.Errorf("failed to open system clipboard: %w", err)
	}
	defer bridge.Close()

	m, err := history.New(history.Config{
		Store:         c.store.History(),
		Media:         c.media,
		Bridge:        bridge,
		Prefs:         c.prefs,
		Logger:        c.logger,
		Clock:         c.now,
		SweepInterval: c.cfg.SweepInterval(),
	})
	if err != nil {
		return fmt.Errorf("failed to start clipboard manager: %w", err)
	}
	defer m.Close()

	clipboardName := "custom"
	if named, ok := bridge.(interface{ Name() string }); ok {
		clipboardName = named.Name()
	}
	c.logger.Info("daemon started",
		"backend", c.cfg.Backend,
		"clipboard", clipboardName,
		"media", c.media.Root(),
		"poll", interval,
		"sweep", c.cfg.SweepInterval())

	// Pick up whatever was copied while the daemon was not running.
	m.HandleHostChange()
	if err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("startup sweep failed", "err", err)
	}

	<-ctx.Done()
	c.logger.Info("daemon stopping")
	return nil
}

// executeList handles the 'clipkeep list' command
func (c *CLI) executeList(ctx context.Context, cmd *ListCmd) error {
	items, err := c.store.History().QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	now := c.now()
	h := history.Partition(items, now)

	if cmd.JSON {
		return writeJSON(c.out, h, cmd.Reveal)
	}

	if h.Len() == 0 {
		fmt.Fprintln(c.out, "History is empty!")
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "To add items to the history:")
		fmt.Fprintln(c.out, "  clipkeep daemon                # record the system clipboard")
		fmt.Fprintln(c.out, "  echo \"Hello World\" | clipkeep copy")
		return nil
	}

	renderHistory(c.out, h, now, cmd.Width, cmd.Reveal)
	return nil
}

// executeCopy handles the 'clipkeep copy' command
func (c *CLI) executeCopy(ctx context.Context, cmd *CopyCmd) error {
	item, err := c.readCopyItem(cmd)
	if err != nil {
		return err
	}

	var bridge clipboard.Bridge
	if !cmd.NoClipboard {
		b, err := c.newBridge(c.cfg.PollInterval())
		if err != nil {
			c.logger.Warn("system clipboard unavailable, recording only", "err", err)
		} else {
			defer b.Close()
			bridge = b
		}
	}

	err = c.withManager(ctx, bridge, nil, func(m *history.Manager) error {
		m.Copy(item)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Copied: %s\n", history.Preview(item, 80))
	return nil
}

func (c *CLI) readCopyItem(cmd *CopyCmd) (store.Item, error) {
	var opts []store.ItemOption
	if cmd.Sensitive {
		opts = append(opts, store.Sensitive())
	}

	if cmd.File != nil {
		mimeType := ""
		if cmd.MIME != nil {
			mimeType = *cmd.MIME
		} else {
			mimeType = mime.TypeByExtension(filepath.Ext(*cmd.File))
		}
		mimeType, _, _ = strings.Cut(mimeType, ";")

		var kind store.Kind
		switch {
		case clipboard.MatchMIME("image/*", mimeType):
			kind = store.KindImage
		case clipboard.MatchMIME("video/*", mimeType):
			kind = store.KindVideo
		default:
			return store.Item{}, fmt.Errorf("unsupported file type %q: only images and videos can be copied from a file", mimeType)
		}

		ref, err := c.media.CloneURI(*cmd.File)
		if err != nil {
			return store.Item{}, fmt.Errorf("failed to read file %s: %w", *cmd.File, err)
		}
		return store.NewMediaItem(kind, ref, []string{mimeType}, c.now(), opts...)
	}

	var text string
	if cmd.Text != nil {
		text = *cmd.Text
	} else {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return store.Item{}, fmt.Errorf("failed to read content: %w", err)
		}
		text = string(data)
	}
	if text == "" {
		return store.Item{}, fmt.Errorf("no input provided")
	}
	return store.NewTextItem(text, c.now(), opts...)
}

// executePaste handles the 'clipkeep paste' command
func (c *CLI) executePaste(ctx context.Context, cmd *PasteCmd) error {
	editor := history.EditorFunc(func(_ context.Context, _ store.Item, content io.Reader) (bool, error) {
		if _, err := io.Copy(c.out, content); err != nil {
			return false, err
		}
		return true, nil
	})

	return c.withManager(ctx, nil, editor, func(m *history.Manager) error {
		return m.Paste(ctx, cmd.ID)
	})
}

// executePin handles the 'clipkeep pin' and 'clipkeep unpin' commands
func (c *CLI) executePin(ctx context.Context, id uint, pinned bool) error {
	err := c.withManager(ctx, nil, nil, func(m *history.Manager) error {
		if pinned {
			return m.Pin(ctx, id)
		}
		return m.Unpin(ctx, id)
	})
	if err != nil {
		return err
	}

	if pinned {
		fmt.Fprintf(c.out, "Pinned item %d\n", id)
	} else {
		fmt.Fprintf(c.out, "Unpinned item %d\n", id)
	}
	return nil
}

// executeDelete handles the 'clipkeep delete' command
func (c *CLI) executeDelete(ctx context.Context, cmd *IDCmd) error {
	err := c.withManager(ctx, nil, nil, func(m *history.Manager) error {
		return m.Delete(ctx, cmd.ID)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Deleted item %d\n", cmd.ID)
	return nil
}

// executeClear handles the 'clipkeep clear' command
func (c *CLI) executeClear(ctx context.Context, cmd *ClearCmd) error {
	count, err := c.store.History().Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}

	if count == 0 && !cmd.All {
		fmt.Fprintln(c.out, "History is already empty.")
		return nil
	}

	if !cmd.Force {
		scope := "unpinned"
		if cmd.All {
			scope = "all"
		}
		fmt.Fprintf(c.out, "This will delete %s items (%d in history). Continue? [y/N]: ", scope, count)
		response, _ := bufio.NewReader(c.in).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Cancelled.")
			return nil
		}
	}

	err = c.withManager(ctx, nil, nil, func(m *history.Manager) error {
		if cmd.All {
			return m.ClearAll(ctx)
		}
		return m.ClearUnpinned(ctx)
	})
	if err != nil {
		return err
	}

	remaining, err := c.store.History().Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	fmt.Fprintf(c.out, "Cleared %d item(s) from history.\n", count-remaining)
	return nil
}

// executeSearch handles the 'clipkeep search' command
func (c *CLI) executeSearch(ctx context.Context, cmd *SearchCmd) error {
	var results []store.Item
	err := c.withManager(ctx, nil, nil, func(m *history.Manager) error {
		var err error
		results, err = m.Search(ctx, cmd.Pattern)
		return err
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		return fmt.Errorf("no matches found for pattern: %s", cmd.Pattern)
	}

	for _, it := range results {
		if cmd.IDsOnly {
			fmt.Fprintf(c.out, "%d\n", it.ID())
		} else {
			fmt.Fprintf(c.out, "%d\t%s\n", it.ID(), history.Preview(it, 80))
		}
	}
	return nil
}

// executeExport handles the 'clipkeep export' command
func (c *CLI) executeExport(ctx context.Context, cmd *ExportCmd) error {
	f, err := os.Create(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	manifest, err := backup.Export(ctx, f, c.store.History(), c.media)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(cmd.File)
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(c.out, "Exported %d item(s) and %d media file(s) to %s\n",
		manifest.ItemCount, manifest.MediaCount, cmd.File)
	return nil
}

// executeImport handles the 'clipkeep import' command
func (c *CLI) executeImport(ctx context.Context, cmd *ImportCmd) error {
	f, err := os.Open(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	items, manifest, err := backup.Import(ctx, f, c.media)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	var added int
	err = c.withManager(ctx, nil, nil, func(m *history.Manager) error {
		added, err = m.RestoreHistory(ctx, items)
		return err
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	c.logger.Debug("imported archive", "id", manifest.ID, "created", manifest.CreatedAt)
	fmt.Fprintf(c.out, "Imported %d of %d item(s) from %s\n", added, len(items), cmd.File)
	return nil
}

// executePrefs handles the 'clipkeep prefs' command
func (c *CLI) executePrefs(cmd *PrefsCmd) error {
	switch {
	case cmd.Get != nil:
		value, err := c.prefs.Get(cmd.Get.Key)
		if err != nil {
			return fmt.Errorf("failed to get preference: %w", err)
		}
		fmt.Fprintln(c.out, value)
	case cmd.Set != nil:
		if err := c.prefs.Set(cmd.Set.Key, cmd.Set.Value); err != nil {
			return fmt.Errorf("failed to set preference: %w", err)
		}
		fmt.Fprintf(c.out, "Set %s = %s\n", cmd.Set.Key, cmd.Set.Value)
	case cmd.Reset != nil:
		if err := c.prefs.Reset(cmd.Reset.Key); err != nil {
			return fmt.Errorf("failed to reset preference: %w", err)
		}
		value, _ := c.prefs.Get(cmd.Reset.Key)
		fmt.Fprintf(c.out, "Reset %s = %s\n", cmd.Reset.Key, value)
	case cmd.List != nil:
		values, err := c.prefs.List()
		if err != nil {
			return fmt.Errorf("failed to list preferences: %w", err)
		}
		fmt.Fprintln(c.out, "Current preferences:")
		printSorted(c.out, values)
	default:
		return fmt.Errorf("no prefs subcommand specified")
	}
	return nil
}

// executeConfig handles the 'clipkeep config' command
func (c *CLI) executeConfig(cmd *ConfigCmd) error {
	switch {
	case cmd.Get != nil:
		value, err := c.cfgMgr.Get(cmd.Get.Key)
		if err != nil {
			return fmt.Errorf("failed to get config value: %w", err)
		}
		fmt.Fprintln(c.out, value)
	case cmd.Set != nil:
		if err := c.cfgMgr.Update(cmd.Set.Key, cmd.Set.Value); err != nil {
			return fmt.Errorf("failed to set config value: %w", err)
		}
		fmt.Fprintf(c.out, "Set %s = %s\n", cmd.Set.Key, cmd.Set.Value)
	case cmd.List != nil:
		values, err := c.cfgMgr.List()
		if err != nil {
			return fmt.Errorf("failed to list config values: %w", err)
		}
		fmt.Fprintf(c.out, "Current configuration (%s):\n", c.cfgMgr.GetConfigPath())
		printSorted(c.out, values)
	default:
		return fmt.Errorf("no config subcommand specified")
	}
	return nil
}

func printSorted(w io.Writer, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", k, values[k])
	}
}

// listEntry is the JSON form of a listed item
type listEntry struct {
	Section string `json:"section"`
	store.Record
}

func writeJSON(w io.Writer, h history.History, reveal bool) error {
	entries := make([]listEntry, 0, h.Len())
	add := func(section string, items []store.Item) {
		for _, it := range items {
			rec := it.Record()
			if rec.IsSensitive && !reveal && rec.Text != "" {
				rec.Text = history.SensitiveMask
			}
			entries = append(entries, listEntry{Section: section, Record: rec})
		}
	}
	add("pinned", h.Pinned)
	add("recent", h.Recent)
	add("other", h.Other)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
