package gemini

import (
	"context"
	"testing"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
)

func TestImageFormat(t *testing.T) {
	tests := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpeg",
		"":           "jpeg",
		"image/":     "jpeg",
	}
	for in, want := range tests {
		if got := imageFormat(in); got != want {
			t.Errorf("imageFormat(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestPredictRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := New().Predict(context.Background(), providers.Config{}); err == nil {
		t.Error("Expected error without GEMINI_API_KEY")
	}
}
