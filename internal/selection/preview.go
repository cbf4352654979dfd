package selection

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nfnt/resize"
)

// PreviewSize bounds the longest edge of a preview thumbnail.
const PreviewSize = 256

// Preview is a thumbnail on local disk. It is acquired when an image is
// selected and released exactly once when that image is replaced or the
// session ends.
type Preview struct {
	path     string
	once     sync.Once
	released atomic.Bool
	err      error
}

func newPreview(data []byte, mediaType, dir string) (*Preview, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	thumb := resize.Thumbnail(PreviewSize, PreviewSize, img, resize.Lanczos3)

	pattern := "ecosort-preview-*.png"
	if mediaType == "image/jpeg" {
		pattern = "ecosort-preview-*.jpg"
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview file: %w", err)
	}

	if mediaType == "image/jpeg" {
		err = jpeg.Encode(f, thumb, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(f, thumb)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write preview: %w", err)
	}

	return &Preview{path: f.Name()}, nil
}

// Path is the display handle for the preview.
func (p *Preview) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Release removes the preview file. Calls after the first are no-ops that
// return the first call's result.
func (p *Preview) Release() error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.err = fmt.Errorf("failed to release preview %s: %w", p.path, err)
		}
		p.released.Store(true)
	})
	return p.err
}

// Released reports whether Release has run.
func (p *Preview) Released() bool {
	return p == nil || p.released.Load()
}
