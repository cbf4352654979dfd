package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.org/photos/bottle.jpg", "bottle.jpg"},
		{"https://example.org/photos/bottle.jpg?size=large", "bottle.jpg"},
		{"https://example.org/", "image"},
		{"https://example.org", "image"},
	}

	for _, tt := range tests {
		if got := filenameFromURL(tt.url); got != tt.expected {
			t.Errorf("filenameFromURL(%q): expected %s, got %s", tt.url, tt.expected, got)
		}
	}
}

func TestFetchURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bottle.png":
			_, _ = w.Write([]byte("png-bytes"))
		case "/huge.png":
			_, _ = w.Write(bytes.Repeat([]byte("a"), selection.MaxFileSize+10))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewFetcher()

	cand, err := f.Fetch(context.Background(), server.URL+"/bottle.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cand.Filename != "bottle.png" || string(cand.Data) != "png-bytes" {
		t.Errorf("unexpected candidate %q %q", cand.Filename, cand.Data)
	}

	if _, err := f.Fetch(context.Background(), server.URL+"/missing.png"); err == nil {
		t.Error("Expected error for 404")
	}

	cand, err = f.Fetch(context.Background(), server.URL+"/huge.png")
	if err != nil && !errors.Is(err, selection.ErrTooLarge) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err == nil {
		if _, verr := cand.Validate(); !errors.Is(verr, selection.ErrTooLarge) {
			t.Errorf("Expected oversized download to fail validation, got %v", verr)
		}
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{40, uint8(x * 16), uint8(y * 16), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWithExtension(t *testing.T) {
	pngMagic := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		expected    string
	}{
		{"keeps existing extension", "bottle.png", "image/jpeg", nil, "bottle.png"},
		{"jpeg content type", "photo", "image/jpeg", nil, "photo.jpg"},
		{"png content type", "photo", "image/png", nil, "photo.png"},
		{"sniffs when header is generic", "photo", "application/octet-stream", pngMagic, "photo.png"},
		{"leaves unknown types alone", "notes", "text/plain", []byte("hello"), "notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withExtension(tt.filename, tt.contentType, tt.data); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFetchExtensionlessURL(t *testing.T) {
	data := testJPEG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	cand, err := NewFetcher().Fetch(context.Background(), server.URL+"/photo")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cand.Filename != "photo.jpg" {
		t.Errorf("Expected photo.jpg, got %s", cand.Filename)
	}
	mediaType, err := cand.Validate()
	if err != nil {
		t.Fatalf("Expected extensionless download to validate, got %v", err)
	}
	if mediaType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", mediaType)
	}
}

func TestFetchEmptyIsDismissal(t *testing.T) {
	cand, err := NewFetcher().Fetch(context.Background(), "  ")
	if cand != nil || err != nil {
		t.Errorf("Expected nil, nil; got %v, %v", cand, err)
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.org/a.jpg") || IsURL("/tmp/a.jpg") || IsURL("ftp://example.org/a.jpg") {
		t.Error("IsURL misclassified input")
	}
}
