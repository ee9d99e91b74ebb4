package sysboard

import (
	"errors"
	"fmt"

	"github.com/yiblet/clipkeep/internal/clipboard"

	atotto "github.com/atotto/clipboard"
	xclip "golang.design/x/clipboard"
)

var errImagesUnsupported = errors.New("images are not supported by this clipboard backend")

// nativeBackend talks to the display server through golang.design/x/clipboard.
type nativeBackend struct{}

func newNativeBackend() (backend, error) {
	if err := xclip.Init(); err != nil {
		return nil, err
	}
	return nativeBackend{}, nil
}

func (nativeBackend) name() string { return "native" }

func (nativeBackend) readText() ([]byte, error) {
	return xclip.Read(xclip.FmtText), nil
}

func (nativeBackend) readImage() ([]byte, error) {
	return xclip.Read(xclip.FmtImage), nil
}

func (nativeBackend) writeText(data []byte) error {
	xclip.Write(xclip.FmtText, data)
	return nil
}

func (nativeBackend) writeImage(data []byte) error {
	xclip.Write(xclip.FmtImage, data)
	return nil
}

// textBackend shells out to the platform clipboard tools via atotto/clipboard.
type textBackend struct{}

func newTextBackend() (backend, error) {
	if atotto.Unsupported {
		return nil, ErrNoBackend
	}
	return textBackend{}, nil
}

// ErrNoBackend is returned by New when no clipboard backend is usable.
var ErrNoBackend = fmt.Errorf("%w: no clipboard backend available", clipboard.ErrUnavailable)

func (textBackend) name() string { return "text" }

func (textBackend) readText() ([]byte, error) {
	s, err := atotto.ReadAll()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (textBackend) readImage() ([]byte, error) {
	return nil, nil
}

func (textBackend) writeText(data []byte) error {
	return atotto.WriteAll(string(data))
}

func (textBackend) writeImage([]byte) error {
	return errImagesUnsupported
}
