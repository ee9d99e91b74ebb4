// Package clipboard defines the bridge to the host's shared clipboard and the
// value that crosses it.
package clipboard

import (
	"bytes"
	"errors"
	"strings"
)

// ErrUnavailable reports that the host clipboard cannot be read or written.
var ErrUnavailable = errors.New("host clipboard unavailable")

// Clip is one value on the host clipboard.
//
// A text clip carries Text. A media clip carries its payload in Data and, when
// the payload is already held in managed media storage, the handle in Ref.
type Clip struct {
	Text      string
	Ref       string
	MimeTypes []string
	Data      []byte
	Sensitive bool
	Remote    bool
}

// IsEmpty reports whether the clip holds no content.
func (c *Clip) IsEmpty() bool {
	return c == nil || (c.Text == "" && c.Ref == "" && len(c.Data) == 0)
}

// IsMedia reports whether the clip carries a binary payload rather than text.
func (c *Clip) IsMedia() bool {
	return c != nil && c.Text == "" && (c.Ref != "" || len(c.Data) > 0)
}

// SameContent compares two clips by value: text by equality, media by
// reference when both sides have one, otherwise by payload bytes.
func (c *Clip) SameContent(other *Clip) bool {
	if c.IsEmpty() || other.IsEmpty() {
		return c.IsEmpty() && other.IsEmpty()
	}
	if c.IsMedia() != other.IsMedia() {
		return false
	}
	if !c.IsMedia() {
		return c.Text == other.Text
	}
	if c.Ref != "" && other.Ref != "" {
		return c.Ref == other.Ref
	}
	return len(c.Data) > 0 && bytes.Equal(c.Data, other.Data)
}

// Bridge is the single point of contact with the host clipboard.
type Bridge interface {
	// Current returns the host clip, or nil when the clipboard is empty.
	Current() (*Clip, error)
	// Set publishes clip to the host. A nil clip clears the clipboard.
	Set(clip *Clip) error
	// Watch fires whenever the host clipboard changes, including changes
	// made through Set.
	Watch() <-chan struct{}
	Close() error
}

// MatchMIME reports whether mime satisfies pattern. Either side may use a
// "type/*" or "*/*" wildcard.
func MatchMIME(pattern, mime string) bool {
	pType, pSub, ok := splitMIME(pattern)
	if !ok {
		return false
	}
	mType, mSub, ok := splitMIME(mime)
	if !ok {
		return false
	}
	if pType != "*" && mType != "*" && pType != mType {
		return false
	}
	return pSub == "*" || mSub == "*" || pSub == mSub
}

// AcceptsAny reports whether any offered type matches any accepted type.
func AcceptsAny(offered, accepted []string) bool {
	for _, o := range offered {
		for _, a := range accepted {
			if MatchMIME(a, o) {
				return true
			}
		}
	}
	return false
}

func splitMIME(m string) (string, string, bool) {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	typ, sub, ok := strings.Cut(m, "/")
	if !ok || typ == "" || sub == "" {
		return "", "", false
	}
	return typ, sub, true
}
