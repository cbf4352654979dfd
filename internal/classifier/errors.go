package classifier

import (
	"errors"
	"fmt"
)

// Kind classifies why a submission did not produce a result.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindTransport
	KindServerReported
	KindMalformedResponse
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindServerReported:
		return "server_reported"
	case KindMalformedResponse:
		return "malformed_response"
	case KindCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// User-visible messages. Raw transport errors never reach the user.
const (
	MessageNoImage        = "Please select an image first!"
	MessageUnreachable    = "Classification failed. Make sure the classification service is running and reachable."
	MessageServerFallback = "Failed to get a response from the server."
	MessageMalformed      = "The server returned an unexpected response."
	MessageCanceled       = "Classification was canceled."
	MessageTimeout        = "Classification timed out. The service took too long to respond."
)

// Error is returned for every failed classification.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status for server-side failures, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of a classifier error, KindTransport for any other
// non-nil error and KindNone for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindTransport
}

// Message returns the text to show the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Message != "" {
		return cerr.Message
	}
	return MessageUnreachable
}

// NoImageError is the validation failure for submitting without a selection.
func NoImageError() *Error {
	return &Error{Kind: KindValidation, Message: MessageNoImage}
}
