// Package media keeps binary clipboard payloads (images, video) in a managed
// directory, addressed by opaque handles of the form "clip-<n>".
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	ConfigDir       = ".config/clipkeep"
	DefaultMediaDir = "media"

	handlePrefix = "clip-"
	tempPattern  = ".incoming-*"
)

var (
	// ErrIO reports a failed read, write or delete of a media file.
	ErrIO = errors.New("media i/o failure")
	// ErrInvalidHandle reports a handle that could not have been issued by a Store.
	ErrInvalidHandle = errors.New("invalid media handle")
)

// lastStamp backs the handle counter. Handles are nanosecond timestamps
// forced to be strictly increasing within the process.
var lastStamp atomic.Int64

func nextStamp() int64 {
	for {
		now := time.Now().UnixNano()
		prev := lastStamp.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Store is a media directory rooted at a single path
type Store struct {
	root string
}

// ResolveRoot maps a configured media path to a directory.
// An empty path gives ~/.config/clipkeep/media, an absolute path is used as
// is, and a relative path is taken as a subdirectory of ~/.config/clipkeep.
func ResolveRoot(mediaPath string) (string, error) {
	if filepath.IsAbs(mediaPath) {
		return mediaPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if mediaPath == "" {
		mediaPath = DefaultMediaDir
	}
	return filepath.Join(homeDir, ConfigDir, mediaPath), nil
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create media directory: %w", ErrIO, err)
	}
	return &Store{root: root}, nil
}

// Root returns the root directory path
func (s *Store) Root() string {
	return s.root
}

// ValidHandle reports whether h has the shape of an issued handle.
func ValidHandle(h string) bool {
	digits, ok := strings.CutPrefix(h, handlePrefix)
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}

// HandleTime returns the moment a handle was issued.
func HandleTime(h string) (time.Time, bool) {
	if !ValidHandle(h) {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(h, handlePrefix), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// observeStamp moves the handle counter past n.
func observeStamp(n int64) {
	for {
		prev := lastStamp.Load()
		if n <= prev || lastStamp.CompareAndSwap(prev, n) {
			return
		}
	}
}

func (s *Store) path(handle string) (string, error) {
	if !ValidHandle(handle) || !fs.ValidPath(handle) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return filepath.Join(s.root, handle), nil
}

// Clone copies src into managed storage under a fresh handle. The data is
// written to a temporary file first so a failed copy never leaves a
// half-written handle behind.
func (s *Store) Clone(src io.Reader) (string, error) {
	tmpName, err := s.writeTemp(src)
	if err != nil {
		return "", err
	}

	handle := handlePrefix + strconv.FormatInt(nextStamp(), 10)
	if err := os.Rename(tmpName, filepath.Join(s.root, handle)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: failed to store media: %w", ErrIO, err)
	}
	return handle, nil
}

// Adopt stores src under a handle issued elsewhere, such as one read from a
// backup archive. If the handle is already taken by identical content it is
// reused; if it is taken by different content or is not a valid handle, a
// fresh handle is issued instead.
func (s *Store) Adopt(handle string, src io.Reader) (string, error) {
	if !ValidHandle(handle) {
		return s.Clone(src)
	}

	tmpName, err := s.writeTemp(src)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpName)

	target := filepath.Join(s.root, handle)
	if _, err := os.Stat(target); err == nil {
		same, err := sameFile(tmpName, target)
		if err != nil {
			return "", fmt.Errorf("%w: failed to compare %s: %w", ErrIO, handle, err)
		}
		if same {
			return handle, nil
		}
		f, err := os.Open(tmpName)
		if err != nil {
			return "", fmt.Errorf("%w: failed to reopen media: %w", ErrIO, err)
		}
		defer f.Close()
		return s.Clone(f)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("%w: failed to store media: %w", ErrIO, err)
	}
	if t, ok := HandleTime(handle); ok {
		observeStamp(t.UnixNano())
	}
	return handle, nil
}

func (s *Store) writeTemp(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.root, tempPattern)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %w", ErrIO, err)
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: failed to copy media: %w", ErrIO, err)
	}
	return tmpName, nil
}

func sameFile(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

// CloneBytes is Clone for an in-memory payload.
func (s *Store) CloneBytes(data []byte) (string, error) {
	return s.Clone(bytes.NewReader(data))
}

// CloneURI copies the file named by uri, which is either a file:// URI or a
// plain filesystem path.
func (s *Store) CloneURI(uri string) (string, error) {
	path := uri
	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("%w: bad source uri %q: %w", ErrIO, uri, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: unsupported uri scheme %q", ErrIO, u.Scheme)
		}
		path = u.Path
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open source: %w", ErrIO, err)
	}
	defer f.Close()
	return s.Clone(f)
}

// Resolve opens the payload behind handle. A handle whose file has gone
// missing resolves to an empty reader so a dangling row never fails a read.
func (s *Store) Resolve(handle string) (io.ReadCloser, error) {
	p, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrIO, handle, err)
	}
	return f, nil
}

// ReadAll returns the full payload behind handle.
func (s *Store) ReadAll(handle string) ([]byte, error) {
	rc, err := s.Resolve(handle)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, handle, err)
	}
	return data, nil
}

// Has reports whether a file exists for handle.
func (s *Store) Has(handle string) bool {
	p, err := s.path(handle)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Delete removes the file behind handle. Deleting a missing file succeeds.
func (s *Store) Delete(handle string) error {
	p, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete %s: %w", ErrIO, handle, err)
	}
	return nil
}

// Handles lists every handle currently stored.
func (s *Store) Handles() ([]string, error) {
	entries, err := s.handleEntries()
	if err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(entries))
	for _, entry := range entries {
		handles = append(handles, entry.Name())
	}
	return handles, nil
}

func (s *Store) handleEntries() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read media directory: %w", ErrIO, err)
	}
	return slices.DeleteFunc(entries, func(e fs.DirEntry) bool {
		return e.IsDir() || !ValidHandle(e.Name())
	}), nil
}

// Reset deletes every managed file, including leftover temp files.
func (s *Store) Reset() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("%w: failed to read media directory: %w", ErrIO, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: failed to reset media directory: %w", ErrIO, err)
	}
	return nil
}

// Prune deletes every stored handle for which keep returns false and
// reports how many files were removed. keep also receives the time the file
// was last written.
func (s *Store) Prune(keep func(handle string, written time.Time) bool) (int, error) {
	entries, err := s.handleEntries()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("%w: failed to stat %s: %w", ErrIO, entry.Name(), err)
		}
		if keep(entry.Name(), info.ModTime()) {
			continue
		}
		if err := s.Delete(entry.Name()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
