// Package backup writes the clipboard history and its media files to a
// gzip-compressed tar archive and reads it back.
//
// An archive holds manifest.json, items.json and one media/<handle> entry
// per referenced media file, in that order.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/yiblet/clipkeep/internal/store"
)

// FormatVersion is the archive layout written by Export.
const FormatVersion = 1

const (
	manifestName = "manifest.json"
	itemsName    = "items.json"
	mediaDir     = "media"
)

// ErrInvalidArchive reports an archive that is truncated, tampered with or
// written by an unsupported version.
var ErrInvalidArchive = errors.New("invalid backup archive")

// Manifest describes an archive.
type Manifest struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	ItemCount  int       `json:"item_count"`
	MediaCount int       `json:"media_count"`
	Checksum   string    `json:"checksum"` // sha256 of items.json
}

// MediaSource reads media payloads for Export.
type MediaSource interface {
	Resolve(handle string) (io.ReadCloser, error)
}

// MediaSink stores media payloads for Import.
type MediaSink interface {
	Adopt(handle string, src io.Reader) (string, error)
}

// Export writes every item in hist, with the media files they reference, to w.
func Export(ctx context.Context, w io.Writer, hist store.HistoryStore, media MediaSource) (*Manifest, error) {
	items, err := hist.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	records := make([]store.Record, len(items))
	var refs []string
	seen := make(map[string]bool)
	for i, it := range items {
		records[i] = it.Record()
		if it.Kind().IsMedia() && !seen[it.MediaRef()] {
			seen[it.MediaRef()] = true
			refs = append(refs, it.MediaRef())
		}
	}

	itemsData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode items: %w", err)
	}
	sum := sha256.Sum256(itemsData)

	manifest := &Manifest{
		ID:         uuid.NewString(),
		Version:    FormatVersion,
		CreatedAt:  time.Now().UTC(),
		ItemCount:  len(records),
		MediaCount: len(refs),
		Checksum:   hex.EncodeToString(sum[:]),
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	if err := writeEntry(tw, manifestName, manifest.CreatedAt, manifestData); err != nil {
		return nil, err
	}
	if err := writeEntry(tw, itemsName, manifest.CreatedAt, itemsData); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := readMedia(media, ref)
		if err != nil {
			return nil, err
		}
		if err := writeEntry(tw, path.Join(mediaDir, ref), manifest.CreatedAt, data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return manifest, nil
}

func readMedia(media MediaSource, ref string) ([]byte, error) {
	rc, err := media.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to open media %s: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", ref, err)
	}
	return data, nil
}

func writeEntry(tw *tar.Writer, name string, modTime time.Time, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0600,
		Size:     int64(len(data)),
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Import reads an archive written by Export. Media files are stored through
// media and the returned items refer to the handles it assigned. Media items
// whose payload is missing from the archive are dropped. The items are not
// written to any history store.
func Import(ctx context.Context, r io.Reader, media MediaSink) ([]store.Item, *Manifest, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	var (
		manifest *Manifest
		records  []store.Record
		handles  = make(map[string]string)
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		switch {
		case hdr.Name == manifestName:
			manifest = &Manifest{}
			if err := json.NewDecoder(tr).Decode(manifest); err != nil {
				return nil, nil, fmt.Errorf("%w: bad manifest: %w", ErrInvalidArchive, err)
			}
			if manifest.Version != FormatVersion {
				return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, manifest.Version)
			}

		case hdr.Name == itemsName:
			if manifest == nil {
				return nil, nil, fmt.Errorf("%w: items before manifest", ErrInvalidArchive)
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
			}
			sum := sha256.Sum256(data)
			if hex.EncodeToString(sum[:]) != manifest.Checksum {
				return nil, nil, fmt.Errorf("%w: items checksum mismatch", ErrInvalidArchive)
			}
			if err := json.Unmarshal(data, &records); err != nil {
				return nil, nil, fmt.Errorf("%w: bad items: %w", ErrInvalidArchive, err)
			}

		case path.Dir(hdr.Name) == mediaDir:
			old := path.Base(hdr.Name)
			handle, err := media.Adopt(old, tr)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to restore media %s: %w", old, err)
			}
			handles[old] = handle
		}
	}

	if manifest == nil || records == nil && manifest.ItemCount > 0 {
		return nil, nil, fmt.Errorf("%w: missing manifest or items", ErrInvalidArchive)
	}

	items := make([]store.Item, 0, len(records))
	for _, rec := range records {
		if rec.MediaRef != "" {
			handle, ok := handles[rec.MediaRef]
			if !ok {
				continue
			}
			rec.MediaRef = handle
		}
		rec.ID = 0
		it, err := rec.Item()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		items = append(items, it)
	}
	return items, manifest, nil
}
