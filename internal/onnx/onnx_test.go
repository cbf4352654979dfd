package onnx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

func TestArgmax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		idx    int
		best   float32
	}{
		{"empty", nil, -1, 0},
		{"single", []float32{0.3}, 0, 0.3},
		{"last wins", []float32{0.1, 0.2, 0.7}, 2, 0.7},
		{"first of ties", []float32{0.5, 0.5, 0}, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, best := argmax(tt.scores)
			if idx != tt.idx || best != tt.best {
				t.Errorf("Expected (%d, %v), got (%d, %v)", tt.idx, tt.best, idx, best)
			}
		})
	}
}

func TestPreprocessShapeAndRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	data := Preprocess(img)
	if len(data) != InputSize*InputSize*3 {
		t.Fatalf("Expected %d values, got %d", InputSize*InputSize*3, len(data))
	}
	for i, v := range data {
		if v < -1.0001 || v > 1.0001 {
			t.Fatalf("value %d out of range: %v", i, v)
		}
	}

	// NHWC: first pixel is R, G, B
	if math.Abs(float64(data[0]-1)) > 0.01 {
		t.Errorf("Expected red channel near 1, got %v", data[0])
	}
	if math.Abs(float64(data[1]+1)) > 0.01 {
		t.Errorf("Expected green channel near -1, got %v", data[1])
	}
	if math.Abs(float64(data[2]-0.0039)) > 0.02 {
		t.Errorf("Expected blue channel near 0, got %v", data[2])
	}
}

func TestCropSquareCentersWideImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 100))
	// mark the center column band
	for y := 0; y < 100; y++ {
		for x := 100; x < 200; x++ {
			img.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}

	sq := cropSquare(img)
	if b := sq.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("Expected 100x100, got %v", b)
	}
	_, g, _, _ := sq.At(0, 0).RGBA()
	if g>>8 != 255 {
		t.Errorf("Expected crop to start at the green band, got g=%d", g>>8)
	}
}

func TestNewRequiresLabels(t *testing.T) {
	if _, err := New("model.onnx", nil, Options{}); err == nil {
		t.Error("Expected error with no labels")
	}
}

func greyPNGHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

// The model has no session here, so reaching inference would panic.
func TestPredictRejectsOversizedDimensions(t *testing.T) {
	m := &Model{labels: []string{"glass", "plastic"}}

	_, err := m.Predict(context.Background(), providers.Config{Image: greyPNGHeader(20000, 20000)})
	if !errors.Is(err, selection.ErrTooManyPixels) {
		t.Fatalf("Expected ErrTooManyPixels, got %v", err)
	}
}
