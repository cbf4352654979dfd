// Package selection turns a user-picked local file into the single image a
// session classifies, together with a preview that can be shown without
// re-reading the original file.
package selection

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lehigh-university-libraries/ecosort/internal/utils"
)

// MaxFileSize matches the upload limit enforced by the classify endpoint.
const MaxFileSize = 5 * 1024 * 1024

// MaxPixels bounds the decoded size of an image. A few megabytes of PNG can
// declare dimensions that would need gigabytes once decoded.
const MaxPixels = 50_000_000

var (
	ErrNotRegular      = errors.New("not a regular file")
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file size exceeds the 5MB limit")
	ErrUnsupportedType = errors.New("invalid file type, please use PNG, JPG, or JPEG")
	ErrUndecodable     = errors.New("file could not be decoded as an image")
	ErrTooManyPixels   = errors.New("image dimensions exceed the 50 megapixel limit")
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

var allowedMediaTypes = []string{"image/png", "image/jpeg"}

// Candidate is a file the user picked that has not been validated yet.
type Candidate struct {
	Path     string
	Filename string
	Data     []byte
}

// Image is the validated selection owned by a session.
type Image struct {
	Filename  string
	MediaType string
	Data      []byte
	Digest    string
	Width     int
	Height    int
	Preview   *Preview
}

// Open reads a candidate from disk. An empty path means the picker was
// dismissed and yields a nil candidate without error.
func Open(path string) (*Candidate, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// One extra byte lets us notice files that grew after the stat.
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &Candidate{
		Path:     path,
		Filename: filepath.Base(path),
		Data:     data,
	}, nil
}

// FromBytes wraps in-memory data as a candidate.
func FromBytes(filename string, data []byte) *Candidate {
	return &Candidate{Filename: filename, Data: data}
}

// Validate checks size, extension and sniffed media type and returns the
// media type that will be declared on upload.
func (c *Candidate) Validate() (string, error) {
	if len(c.Data) == 0 {
		return "", fmt.Errorf("%s: %w", c.Filename, ErrEmptyFile)
	}
	if len(c.Data) > MaxFileSize {
		return "", fmt.Errorf("%s: %w", c.Filename, ErrTooLarge)
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(c.Filename))] {
		return "", fmt.Errorf("%s: %w", c.Filename, ErrUnsupportedType)
	}

	mtype := mimetype.Detect(c.Data)
	for _, allowed := range allowedMediaTypes {
		if mtype.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%s (detected %s): %w", c.Filename, mtype.String(), ErrUnsupportedType)
}

// Matches reports whether the candidate is the file this image was built from.
func (img *Image) Matches(c *Candidate) bool {
	if img == nil || c == nil {
		return false
	}
	return img.Filename == c.Filename && img.Digest == utils.CalculateDataSHA256(c.Data)
}

// CheckDimensions rejects headers that declare an empty image or one larger
// than MaxPixels. Call it on image.DecodeConfig output before image.Decode.
func CheckDimensions(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrUndecodable, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	return nil
}

// Select validates the candidate and acquires its preview in dir (the
// default temp directory when dir is empty). The caller owns the returned
// image and must release its preview.
func Select(c *Candidate, dir string) (*Image, error) {
	if c == nil {
		return nil, nil
	}

	mediaType, err := c.Validate()
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", c.Filename, ErrUndecodable, err)
	}
	if err := CheckDimensions(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Filename, err)
	}

	preview, err := newPreview(c.Data, mediaType, dir)
	if err != nil {
		return nil, err
	}

	return &Image{
		Filename:  c.Filename,
		MediaType: mediaType,
		Data:      c.Data,
		Digest:    utils.CalculateDataSHA256(c.Data),
		Width:     cfg.Width,
		Height:    cfg.Height,
		Preview:   preview,
	}, nil
}
