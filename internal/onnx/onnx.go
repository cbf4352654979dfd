// Package onnx runs a local image classification model with ONNX Runtime.
// The model takes one 1x224x224x3 float32 tensor scaled to [-1,1] and
// returns one score per label.
package onnx

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

// InputSize is the square edge, in pixels, the model was trained on.
const InputSize = 224

// Options configures the runtime. Empty names fall back to "input" and "output".
type Options struct {
	LibraryPath string
	InputName   string
	OutputName  string
}

// Model wraps one ONNX Runtime session. Run reuses the same tensors, so
// calls are serialized.
type Model struct {
	mu           sync.Mutex
	labels       []string
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// New loads the model at modelPath. labels must be in output order.
func New(modelPath string, labels []string, opts Options) (*Model, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels for model %s", modelPath)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, InputSize, InputSize, 3))
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		inputTensor.Destroy()
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		labels:       labels,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Predict decodes config.Image, runs the model and returns the top label.
// The context is only checked before inference starts.
func (m *Model) Predict(ctx context.Context, config providers.Config) (*providers.Prediction, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(config.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := selection.CheckDimensions(cfg); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(config.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	input := Preprocess(img)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.inputTensor.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	idx, score := argmax(m.outputTensor.GetData())
	if idx < 0 || idx >= len(m.labels) {
		return nil, fmt.Errorf("model returned no scores")
	}
	return &providers.Prediction{Label: m.labels[idx], Confidence: float64(score)}, nil
}

func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	_ = ort.DestroyEnvironment()
}

// Preprocess center-crops img to a square, scales it to InputSize with
// Lanczos resampling and returns NHWC RGB values mapped to [-1,1].
func Preprocess(img image.Image) []float32 {
	resized := resize.Resize(InputSize, InputSize, cropSquare(img), resize.Lanczos3)

	bounds := resized.Bounds()
	data := make([]float32, 0, InputSize*InputSize*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data = append(data,
				float32(r>>8)/127.5-1,
				float32(g>>8)/127.5-1,
				float32(b>>8)/127.5-1,
			)
		}
	}
	return data
}

// cropSquare returns the largest centered square of img.
func cropSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}

// argmax returns the index and value of the largest score, or -1 when
// scores is empty.
func argmax(scores []float32) (int, float32) {
	if len(scores) == 0 {
		return -1, 0
	}
	idx, best := 0, scores[0]
	for i, v := range scores[1:] {
		if v > best {
			idx, best = i+1, v
		}
	}
	return idx, best
}
