// Package presenter renders session state. It holds no state of its own.
package presenter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss/v2"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/ecosort/internal/classifier"
	"github.com/lehigh-university-libraries/ecosort/internal/selection"
	"github.com/lehigh-university-libraries/ecosort/internal/session"
)

// MessageBusy asks the user to retry once a replaced request has finished.
const MessageBusy = "Please wait, the previous request is still finishing."

type Severity string

const (
	SeverityNone    Severity = ""
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// View is everything a front end needs to draw one frame.
type View struct {
	Status     string   `json:"status" yaml:"status"`
	Image      string   `json:"image,omitempty" yaml:"image,omitempty"`
	Preview    string   `json:"preview,omitempty" yaml:"preview,omitempty"`
	Label      string   `json:"classification,omitempty" yaml:"classification,omitempty"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Percent    string   `json:"confidence_percent,omitempty" yaml:"confidence_percent,omitempty"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Severity   Severity `json:"-" yaml:"-"`
	CanSubmit  bool     `json:"-" yaml:"-"`
}

// FormatConfidence renders c in [0,1] as a percentage with two decimals.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c*100)
}

// Describe maps the controller's state and selection to a View.
func Describe(state session.State, img *selection.Image) View {
	v := View{Status: session.PhaseIdle.String()}
	if img != nil {
		v.Image = img.Filename
		v.Preview = img.Preview.Path()
	}

	switch s := state.(type) {
	case session.Submitting:
		v.Status = s.Phase().String()
		v.Message = "Classifying..."
		v.Severity = SeverityInfo
	case session.Succeeded:
		confidence := s.Result.Confidence
		v.Status = s.Phase().String()
		v.Label = s.Result.Label
		v.Confidence = &confidence
		v.Percent = FormatConfidence(confidence)
		v.Severity = SeveritySuccess
	case session.Failed:
		v.Status = s.Phase().String()
		v.Message = s.Message
		v.ErrorKind = s.Kind.String()
		v.Severity = SeverityError
	}

	v.CanSubmit = img != nil && v.Status != session.PhaseSubmitting.String()
	return v
}

// DescribeError shows an error that never became a state transition, such
// as submitting with no image or picking an unsupported file. A busy
// controller is shown as a notice rather than a failure.
func DescribeError(base View, err error) View {
	if errors.Is(err, session.ErrBusy) {
		base.Message = MessageBusy
		base.Severity = SeverityInfo
		return base
	}
	var cerr *classifier.Error
	if errors.As(err, &cerr) {
		base.Message = cerr.Message
		base.ErrorKind = cerr.Kind.String()
	} else {
		base.Message = err.Error()
	}
	base.Severity = SeverityError
	return base
}

// Encode writes v as text, json or yaml.
func Encode(w io.Writer, v View, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return NewRenderer(w).Render(v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1976D2"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E7D32")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D32F2F")).Bold(true)
)

// Renderer draws views for a terminal. Colors are downsampled or stripped
// to whatever the output supports.
type Renderer struct {
	out io.Writer
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{out: colorprofile.NewWriter(w, os.Environ())}
}

func (r *Renderer) Render(v View) error {
	var b strings.Builder

	if v.Image != "" {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Image:"), v.Image)
		if v.Preview != "" {
			fmt.Fprintf(&b, "%s\n", mutedStyle.Render("Preview: "+v.Preview))
		}
	}

	switch v.Severity {
	case SeveritySuccess:
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Classification:"), successStyle.Render(v.Label))
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Confidence:"), v.Percent)
	case SeverityError:
		fmt.Fprintf(&b, "%s\n", errorStyle.Render(v.Message))
	case SeverityInfo:
		fmt.Fprintf(&b, "%s\n", infoStyle.Render(v.Message))
	default:
		if v.Image == "" {
			fmt.Fprintf(&b, "%s\n", mutedStyle.Render("No image selected."))
		} else {
			fmt.Fprintf(&b, "%s\n", mutedStyle.Render("Ready to classify."))
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}
