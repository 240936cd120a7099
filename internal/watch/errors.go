package watch

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure the loop knows how to contain.
// The set is closed: components return *Error values tagged with one of these.
type Kind int

const (
	KindUnknown Kind = iota
	SourceUnreachable
	MalformedResponse
	IncompleteRecord
	UnknownStatus
	DeliveryError
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case SourceUnreachable:
		return "source unreachable"
	case MalformedResponse:
		return "malformed response"
	case IncompleteRecord:
		return "incomplete record"
	case UnknownStatus:
		return "unknown status"
	case DeliveryError:
		return "delivery error"
	case ConfigurationError:
		return "configuration error"
	default:
		return "none"
	}
}

// Interpretation reports whether k is raised while turning a record into text.
func (k Kind) Interpretation() bool {
	return k == IncompleteRecord || k == UnknownStatus
}

// Fatal reports whether k must stop the process instead of being retried.
func (k Kind) Fatal() bool { return k == ConfigurationError }

// Error is the tagged error type shared by the validator, interpreter,
// source, notifier and configuration layers.
type Error struct {
	Kind Kind

	// Field names the offending key (IncompleteRecord, MalformedResponse).
	Field string
	// Code is the unrecognized status code (UnknownStatus).
	Code string
	// Missing lists absent required settings (ConfigurationError).
	Missing []string

	Msg   string
	Cause error
}

// NewError builds a tagged error. format may be empty.
func NewError(kind Kind, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Cause: cause}
	if format != "" {
		e.Msg = fmt.Sprintf(format, args...)
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Kind == KindUnknown {
		b.WriteString("error")
	} else {
		b.WriteString(e.Kind.String())
	}
	switch e.Kind {
	case IncompleteRecord:
		if e.Field != "" {
			fmt.Fprintf(&b, ": missing field %q", e.Field)
		}
	case UnknownStatus:
		fmt.Fprintf(&b, ": %q", e.Code)
	case ConfigurationError:
		if len(e.Missing) > 0 {
			b.WriteString(": missing ")
			b.WriteString(strings.Join(e.Missing, ", "))
		}
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// classify tags an untyped collaborator error with a fallback kind.
func classify(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &Error{Kind: fallback, Cause: err}
}
