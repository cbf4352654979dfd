package labeling

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/ecosort/internal/gemini"
	"github.com/lehigh-university-libraries/ecosort/internal/ollama"
	"github.com/lehigh-university-libraries/ecosort/internal/onnx"
	"github.com/lehigh-university-libraries/ecosort/internal/openai"
	"github.com/lehigh-university-libraries/ecosort/internal/providers"
	"github.com/lehigh-university-libraries/ecosort/internal/storage"
	"github.com/lehigh-university-libraries/ecosort/internal/utils"
)

// Service classifies image bytes with one configured backend.
type Service struct {
	provider    string
	model       string
	temperature float64
	labels      []string
	prompt      string
	backend     providers.Provider
	cache       *storage.PredictionCache
	closer      func()
}

type Option func(*Service)

// WithBackend skips backend construction and uses p.
func WithBackend(p providers.Provider) Option {
	return func(s *Service) {
		s.backend = p
	}
}

func WithCache(c *storage.PredictionCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService builds the backend for provider. Empty provider and model fall
// back to CLASSIFIER_PROVIDER and the provider's model env var.
func NewService(provider, model string, labels []string, opts ...Option) (*Service, error) {
	if provider == "" {
		provider = os.Getenv("CLASSIFIER_PROVIDER")
		if provider == "" {
			provider = "onnx"
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels configured")
	}

	s := &Service{
		provider:    provider,
		labels:      labels,
		temperature: 0.1,
		prompt:      providers.BuildPrompt(labels),
	}
	for _, opt := range opts {
		opt(s)
	}

	if model == "" {
		model = s.getDefaultModel(provider)
	}
	s.model = model

	if s.backend != nil {
		return s, nil
	}

	switch provider {
	case "onnx":
		m, err := onnx.New(model, labels, onnx.Options{LibraryPath: os.Getenv("ONNXRUNTIME_LIB")})
		if err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		s.backend = m
		s.closer = m.Close
	case "gemini":
		s.backend = gemini.New()
	case "ollama":
		s.backend = ollama.New()
	case "openai":
		s.backend = openai.New()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return s, nil
}

func (s *Service) getDefaultModel(provider string) string {
	switch provider {
	case "onnx":
		model := os.Getenv("MODEL_PATH")
		if model == "" {
			return "model.onnx"
		}
		return model
	case "gemini":
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			return "gemini-1.5-flash"
		}
		return model
	case "openai":
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			return "gpt-4o"
		}
		return model
	case "ollama":
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			return "llava:13b"
		}
		return model
	default:
		return ""
	}
}

// Ready reports whether the service can classify.
func (s *Service) Ready() bool {
	return s != nil && s.backend != nil && len(s.labels) > 0
}

func (s *Service) Provider() string { return s.provider }
func (s *Service) Model() string    { return s.model }
func (s *Service) Labels() []string { return s.labels }

// Classify returns the label and confidence for one image. cached is true
// when the answer came from the prediction cache.
func (s *Service) Classify(ctx context.Context, data []byte, mediaType string) (pred *providers.Prediction, cached bool, err error) {
	if !s.Ready() {
		return nil, false, fmt.Errorf("classifier not ready")
	}

	digest := utils.CalculateDataSHA256(data)
	if p, ok := s.cache.Get(digest); ok {
		slog.Debug("Prediction cache hit", "digest", digest, "classification", p.Label)
		return &p, true, nil
	}

	pred, err = s.backend.Predict(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      s.prompt,
		Image:       data,
		MediaType:   mediaType,
		Labels:      s.labels,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s prediction failed: %w", s.provider, err)
	}

	s.cache.Set(digest, *pred)
	slog.Info("Classified image",
		"provider", s.provider,
		"model", s.model,
		"classification", pred.Label,
		"confidence", pred.Confidence,
		"bytes", len(data))
	return pred, false, nil
}

// Close releases the backend's native resources, if any.
func (s *Service) Close() {
	if s != nil && s.closer != nil {
		s.closer()
	}
}

// LoadLabels reads one label per line, skipping blank lines and cleaning
// each with CleanLabel.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, CleanLabel(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// CleanLabel drops a leading class index, so "0 plastic" becomes "plastic".
func CleanLabel(line string) string {
	line = strings.TrimSpace(line)
	head, rest, ok := strings.Cut(line, " ")
	if !ok || !isDigits(head) {
		return line
	}
	return strings.TrimSpace(rest)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
