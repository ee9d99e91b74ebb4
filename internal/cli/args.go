package cli

import (
	"fmt"

	"github.com/yiblet/clipkeep/internal/config"
	"github.com/yiblet/clipkeep/internal/prefs"
)

// Args represents the top-level command structure
type Args struct {
	ConfigFile *string `arg:"--config,env:CLIPKEEP_CONFIG" help:"Path to the config file (default ~/.config/clipkeep/config.yaml)"`
	Backend    *string `arg:"--backend,env:CLIPKEEP_BACKEND" help:"Storage backend: sqlite, bolt or memory"`
	DBPath     *string `arg:"--db,env:CLIPKEEP_DB" help:"Database file"`
	MediaDir   *string `arg:"--media,env:CLIPKEEP_MEDIA" help:"Media directory (relative paths are under ~/.config/clipkeep)"`
	LogLevel   *string `arg:"--log-level,env:CLIPKEEP_LOG_LEVEL" help:"Log level: debug, info, warn, error"`
	LogFormat  *string `arg:"--log-format,env:CLIPKEEP_LOG_FORMAT" help:"Log format: auto, text, json"`

	Daemon *DaemonCmd `arg:"subcommand:daemon" help:"Watch the system clipboard and record history"`
	List   *ListCmd   `arg:"subcommand:list" help:"Show the clipboard history"`
	Copy   *CopyCmd   `arg:"subcommand:copy" help:"Put content on the clipboard and record it"`
	Paste  *PasteCmd  `arg:"subcommand:paste" help:"Write a history item to stdout"`
	Pin    *IDCmd     `arg:"subcommand:pin" help:"Pin a history item"`
	Unpin  *IDCmd     `arg:"subcommand:unpin" help:"Unpin a history item"`
	Delete *IDCmd     `arg:"subcommand:delete" help:"Delete a history item"`
	Clear  *ClearCmd  `arg:"subcommand:clear" help:"Clear the history"`
	Search *SearchCmd `arg:"subcommand:search" help:"Search the history"`
	Export *ExportCmd `arg:"subcommand:export" help:"Write the history to a backup archive"`
	Import *ImportCmd `arg:"subcommand:import" help:"Restore history from a backup archive"`
	Prefs  *PrefsCmd  `arg:"subcommand:prefs" help:"Manage clipboard preferences"`
	Config *ConfigCmd `arg:"subcommand:config" help:"Manage the config file"`
}

// DaemonCmd represents the 'clipkeep daemon' command
type DaemonCmd struct {
	PollMs *int `arg:"--poll-ms" help:"Clipboard poll interval in milliseconds"`
}

// ListCmd represents the 'clipkeep list' command
type ListCmd struct {
	JSON   bool `arg:"--json" help:"Print items as JSON"`
	Reveal bool `arg:"--reveal" help:"Show the content of sensitive items"`
	Width  int  `arg:"--width" default:"60" help:"Preview width"`
}

// CopyCmd represents the 'clipkeep copy' command
type CopyCmd struct {
	Text        *string `arg:"positional" help:"Text to copy (stdin when omitted)"`
	File        *string `arg:"-f,--file" help:"Copy an image or video file"`
	MIME        *string `arg:"--mime" help:"MIME type of --file (guessed from the extension by default)"`
	Sensitive   bool    `arg:"-s,--sensitive" help:"Mark the item as sensitive"`
	NoClipboard bool    `arg:"--no-clipboard" help:"Record only; do not touch the system clipboard"`
}

// PasteCmd represents the 'clipkeep paste' command
type PasteCmd struct {
	ID uint `arg:"positional,required" help:"Item id"`
}

// IDCmd is a command taking a single item id
type IDCmd struct {
	ID uint `arg:"positional,required" help:"Item id"`
}

// ClearCmd represents the 'clipkeep clear' command
type ClearCmd struct {
	All   bool `arg:"--all" help:"Also remove pinned items and every media file"`
	Force bool `arg:"-f,--force" help:"Skip confirmation prompt"`
}

// SearchCmd represents the 'clipkeep search' command
type SearchCmd struct {
	Pattern string `arg:"positional,required" help:"Substring, /regexp/ or MIME pattern such as image/*"`
	IDsOnly bool   `arg:"--ids" help:"Print only matching ids"`
}

// ExportCmd represents the 'clipkeep export' command
type ExportCmd struct {
	File string `arg:"positional,required" help:"Archive to write (.tar.gz)"`
}

// ImportCmd represents the 'clipkeep import' command
type ImportCmd struct {
	File string `arg:"positional,required" help:"Archive to read"`
}

// PrefsCmd represents the 'clipkeep prefs' command
type PrefsCmd struct {
	Get   *PrefsGetCmd   `arg:"subcommand:get" help:"Show a preference"`
	Set   *PrefsSetCmd   `arg:"subcommand:set" help:"Change a preference"`
	List  *PrefsListCmd  `arg:"subcommand:list" help:"Show all preferences"`
	Reset *PrefsResetCmd `arg:"subcommand:reset" help:"Restore a preference to its default"`
}

type PrefsGetCmd struct {
	Key string `arg:"positional,required" help:"Preference key"`
}

type PrefsSetCmd struct {
	Key   string `arg:"positional,required" help:"Preference key"`
	Value string `arg:"positional,required" help:"New value"`
}

type PrefsListCmd struct{}

type PrefsResetCmd struct {
	Key string `arg:"positional,required" help:"Preference key"`
}

// ConfigCmd represents the 'clipkeep config' command
type ConfigCmd struct {
	Get  *ConfigGetCmd  `arg:"subcommand:get" help:"Show a config value"`
	Set  *ConfigSetCmd  `arg:"subcommand:set" help:"Change a config value"`
	List *ConfigListCmd `arg:"subcommand:list" help:"Show all config values"`
}

type ConfigGetCmd struct {
	Key string `arg:"positional,required" help:"Config key"`
}

type ConfigSetCmd struct {
	Key   string `arg:"positional,required" help:"Config key"`
	Value string `arg:"positional,required" help:"New value"`
}

type ConfigListCmd struct{}

// Description returns the program description
func (Args) Description() string {
	return "clipkeep - clipboard history with pinning, eviction and system clipboard sync"
}

// Version returns the program version
func (Args) Version() string {
	return "clipkeep 0.1.0"
}

// Epilogue returns additional help text
func (Args) Epilogue() string {
	return `Examples:
  clipkeep daemon                  # Record system clipboard changes
  clipkeep list                    # Show pinned, recent and older items
  echo "hello" | clipkeep copy     # Copy stdin and record it
  clipkeep copy -f shot.png        # Copy an image
  clipkeep paste 12 > out.txt      # Write item 12 to a file
  clipkeep pin 12                  # Keep item 12 through eviction
  clipkeep search '/^https?:/'     # Regexp search
  clipkeep prefs set max_history_size 50
  clipkeep export backup.tar.gz`
}

// Validate performs validation on the parsed arguments
func (args *Args) Validate() error {
	switch {
	case args.Copy != nil:
		return args.Copy.Validate()
	case args.List != nil:
		return args.List.Validate()
	case args.Prefs != nil:
		return args.Prefs.Validate()
	case args.Config != nil:
		return args.Config.Validate()
	case args.Daemon != nil:
		return args.Daemon.Validate()
	}
	return nil
}

// Validate validates daemon command arguments
func (d *DaemonCmd) Validate() error {
	if d.PollMs != nil && *d.PollMs < 10 {
		return fmt.Errorf("poll interval must be at least 10ms")
	}
	return nil
}

// Validate validates list command arguments
func (l *ListCmd) Validate() error {
	if l.Width < 0 {
		return fmt.Errorf("width must be non-negative")
	}
	return nil
}

// Validate validates copy command arguments
func (c *CopyCmd) Validate() error {
	if c.File != nil && c.Text != nil {
		return fmt.Errorf("cannot specify both text and file input")
	}
	if c.MIME != nil && c.File == nil {
		return fmt.Errorf("--mime requires --file")
	}
	return nil
}

// Validate validates prefs command arguments
func (p *PrefsCmd) Validate() error {
	if err := exactlyOne(p.Get != nil, p.Set != nil, p.List != nil, p.Reset != nil); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}

	var key string
	switch {
	case p.Get != nil:
		key = p.Get.Key
	case p.Set != nil:
		if _, err := prefs.Normalize(p.Set.Key, p.Set.Value); err != nil {
			return err
		}
		return nil
	case p.Reset != nil:
		key = p.Reset.Key
	default:
		return nil
	}
	if _, err := prefs.Defaults().Value(key); err != nil {
		return err
	}
	return nil
}

// Validate validates config command arguments
func (c *ConfigCmd) Validate() error {
	if err := exactlyOne(c.Get != nil, c.Set != nil, c.List != nil); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch {
	case c.Get != nil && !config.IsKey(c.Get.Key):
		return fmt.Errorf("unknown configuration key: %s", c.Get.Key)
	case c.Set != nil && !config.IsKey(c.Set.Key):
		return fmt.Errorf("unknown configuration key: %s", c.Set.Key)
	}
	return nil
}

func exactlyOne(flags ...bool) error {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	switch n {
	case 0:
		return fmt.Errorf("no subcommand specified")
	case 1:
		return nil
	default:
		return fmt.Errorf("only one subcommand may be specified")
	}
}
