package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

// Fetcher retrieves images from local paths or http(s) URLs
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsURL reports whether src should be downloaded rather than read from disk.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch returns a candidate for src. Local paths go through selection.Open,
// URLs are downloaded. An empty src yields nil, nil.
func (f *Fetcher) Fetch(ctx context.Context, src string) (*selection.Candidate, error) {
	src = strings.TrimSpace(src)
	if !IsURL(src) {
		return selection.Open(src)
	}

	data, contentType, err := f.download(ctx, src)
	if err != nil {
		return nil, err
	}

	filename := withExtension(filenameFromURL(src), contentType, data)
	slog.Info("Downloaded image", "url", src, "filename", filename, "bytes", len(data))
	return &selection.Candidate{Path: src, Filename: filename, Data: data}, nil
}

// download returns the body and the response media type.
func (f *Fetcher) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > selection.MaxFileSize {
		return nil, "", fmt.Errorf("%s: %w", imageURL, selection.ErrTooLarge)
	}

	// one extra byte lets Validate see oversized bodies
	imageData, err := io.ReadAll(io.LimitReader(resp.Body, selection.MaxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	return imageData, mediaType, nil
}

// filenameFromURL takes the last path segment, falling back to "image".
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "image"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}

var mediaTypeExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// withExtension names extensionless downloads after the Content-Type, or
// after the sniffed bytes when the server sent none we recognize. Names
// that already carry an extension are left for Validate to judge.
func withExtension(name, contentType string, data []byte) string {
	if path.Ext(name) != "" {
		return name
	}
	if ext, ok := mediaTypeExtensions[contentType]; ok {
		return name + ext
	}
	if ext, ok := mediaTypeExtensions[mimetype.Detect(data).String()]; ok {
		return name + ext
	}
	return name
}
