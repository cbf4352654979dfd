package session

import "github.com/lehigh-university-libraries/ecosort/internal/classifier"

// Phase names the variant of a State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is one of Idle, Submitting, Succeeded or Failed.
type State interface {
	Phase() Phase
	isState()
}

// Idle: nothing in flight and no outcome to show.
type Idle struct{}

// Submitting: a classification request for the current image is in flight.
type Submitting struct {
	ID string
}

// Succeeded holds the outcome of the submission with the same ID.
type Succeeded struct {
	ID     string
	Result classifier.Result
}

// Failed holds the user-visible reason the submission with the same ID ended.
type Failed struct {
	ID      string
	Kind    classifier.Kind
	Message string
}

func (Idle) Phase() Phase       { return PhaseIdle }
func (Submitting) Phase() Phase { return PhaseSubmitting }
func (Succeeded) Phase() Phase  { return PhaseSucceeded }
func (Failed) Phase() Phase     { return PhaseFailed }

func (Idle) isState()       {}
func (Submitting) isState() {}
func (Succeeded) isState()  {}
func (Failed) isState()     {}

// outcome maps a classify return into the terminal state for submission id.
func outcome(id string, result *classifier.Result, err error) State {
	if err != nil {
		return Failed{ID: id, Kind: classifier.KindOf(err), Message: classifier.Message(err)}
	}
	if result == nil {
		return Failed{ID: id, Kind: classifier.KindMalformedResponse, Message: classifier.MessageMalformed}
	}
	return Succeeded{ID: id, Result: *result}
}
