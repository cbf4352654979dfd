package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLabel is returned when a reply names a class outside the label set.
var ErrUnknownLabel = errors.New("reply names an unknown label")

// Config represents one classification request for a provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Image       []byte
	MediaType   string
	Labels      []string
}

// Prediction is a provider's answer: one label and its confidence in [0,1].
type Prediction struct {
	Label      string  `json:"classification"`
	Confidence float64 `json:"confidence"`
}

// Provider defines the interface for a classification backend
type Provider interface {
	Predict(ctx context.Context, config Config) (*Prediction, error)
}

// BuildPrompt asks a vision model to pick exactly one of labels.
func BuildPrompt(labels []string) string {
	return fmt.Sprintf(`You are sorting household waste for recycling. Look at the photo and decide which ONE of these categories the main object belongs to:

%s

Respond with ONLY a JSON object in the following format:

{"classification": "<one of the categories above>", "confidence": <number between 0 and 1>}`,
		"- "+strings.Join(labels, "\n- "))
}

// ParseReply reads a model's JSON reply, tolerating markdown code fences,
// and maps the label onto the canonical spelling in labels.
func ParseReply(reply string, labels []string) (*Prediction, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	var raw struct {
		Label      string   `json:"classification"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("model reply has no confidence")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", *raw.Confidence)
	}

	label := strings.TrimSpace(raw.Label)
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return &Prediction{Label: l, Confidence: *raw.Confidence}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, raw.Label)
}
