package providers

import (
	"errors"
	"strings"
	"testing"
)

func TestParseReply(t *testing.T) {
	labels := []string{"cardboard", "glass", "plastic"}

	tests := []struct {
		name       string
		reply      string
		label      string
		confidence float64
		wantErr    bool
	}{
		{
			name:       "plain JSON",
			reply:      `{"classification": "plastic", "confidence": 0.87}`,
			label:      "plastic",
			confidence: 0.87,
		},
		{
			name:       "fenced JSON",
			reply:      "```json\n{\"classification\": \"glass\", \"confidence\": 0.5}\n```",
			label:      "glass",
			confidence: 0.5,
		},
		{
			name:       "case folded",
			reply:      `{"classification": " Cardboard ", "confidence": 1}`,
			label:      "cardboard",
			confidence: 1,
		},
		{
			name:    "unknown label",
			reply:   `{"classification": "metal", "confidence": 0.4}`,
			wantErr: true,
		},
		{
			name:    "missing confidence",
			reply:   `{"classification": "glass"}`,
			wantErr: true,
		},
		{
			name:    "confidence above one",
			reply:   `{"classification": "glass", "confidence": 87}`,
			wantErr: true,
		},
		{
			name:    "not JSON",
			reply:   "It looks like plastic.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply, labels)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Label != tt.label || got.Confidence != tt.confidence {
				t.Errorf("Expected %s/%v, got %s/%v", tt.label, tt.confidence, got.Label, got.Confidence)
			}
		})
	}
}

func TestParseReplyUnknownLabelIsTyped(t *testing.T) {
	_, err := ParseReply(`{"classification": "metal", "confidence": 0.4}`, []string{"glass"})
	if !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Expected ErrUnknownLabel, got %v", err)
	}
}

func TestBuildPromptListsLabels(t *testing.T) {
	prompt := BuildPrompt([]string{"glass", "plastic"})
	for _, want := range []string{"- glass", "- plastic", `"classification"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
}
