package labeling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
	"github.com/lehigh-university-libraries/ecosort/internal/storage"
)

type stubBackend struct {
	calls int
	last  providers.Config
	pred  *providers.Prediction
	err   error
}

func (s *stubBackend) Predict(ctx context.Context, config providers.Config) (*providers.Prediction, error) {
	s.calls++
	s.last = config
	return s.pred, s.err
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0 plastic", "plastic"},
		{"12 food waste", "food waste"},
		{"plastic", "plastic"},
		{"  3 glass  ", "glass"},
		{"brown glass", "brown glass"},
		{"7", "7"},
	}

	for _, tt := range tests {
		if got := CleanLabel(tt.input); got != tt.expected {
			t.Errorf("CleanLabel(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("0 cardboard\n1 glass\n\n2 plastic\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	expected := []string{"cardboard", "glass", "plastic"}
	if !reflect.DeepEqual(labels, expected) {
		t.Errorf("Expected %v, got %v", expected, labels)
	}
}

func TestLoadLabelsErrors(t *testing.T) {
	if _, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLabels(empty); err == nil {
		t.Error("Expected error for empty labels file")
	}
}

func TestGetDefaultModel(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OLLAMA_MODEL", "llava:7b")
	s := &Service{}

	tests := map[string]string{
		"openai":  "gpt-4o",
		"ollama":  "llava:7b",
		"unknown": "",
	}
	for provider, want := range tests {
		if got := s.getDefaultModel(provider); got != want {
			t.Errorf("getDefaultModel(%s): expected %q, got %q", provider, want, got)
		}
	}
}

func TestNewServiceUnsupportedProvider(t *testing.T) {
	if _, err := NewService("tesseract", "", []string{"glass"}); err == nil {
		t.Error("Expected unsupported provider error")
	}
}

func TestNewServiceRequiresLabels(t *testing.T) {
	if _, err := NewService("ollama", "", nil); err == nil {
		t.Error("Expected error without labels")
	}
}

func TestClassifyUsesCache(t *testing.T) {
	backend := &stubBackend{pred: &providers.Prediction{Label: "plastic", Confidence: 0.87}}
	cache, err := storage.New(8)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewService("ollama", "llava", []string{"glass", "plastic"}, WithBackend(backend), WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Ready() {
		t.Fatal("Expected service to be ready")
	}

	pred, cached, err := s.Classify(context.Background(), []byte("image"), "image/jpeg")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cached || pred.Label != "plastic" {
		t.Errorf("Unexpected first result %+v cached=%v", pred, cached)
	}
	if backend.last.MediaType != "image/jpeg" || backend.last.Model != "llava" {
		t.Errorf("Unexpected backend config %+v", backend.last)
	}

	pred, cached, err = s.Classify(context.Background(), []byte("image"), "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if !cached || pred.Confidence != 0.87 {
		t.Errorf("Expected cached 0.87, got %+v cached=%v", pred, cached)
	}
	if backend.calls != 1 {
		t.Errorf("Expected one backend call, got %d", backend.calls)
	}
}

func TestClassifyBackendError(t *testing.T) {
	backend := &stubBackend{err: errors.New("boom")}
	s, err := NewService("gemini", "", []string{"glass"}, WithBackend(backend))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Classify(context.Background(), []byte("x"), "image/png"); err == nil {
		t.Error("Expected backend error")
	}
}

func TestNilServiceNotReady(t *testing.T) {
	var s *Service
	if s.Ready() {
		t.Error("nil service should not be ready")
	}
	s.Close()
}
