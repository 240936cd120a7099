package watch

import (
	"context"
	"time"

	"statusbot/internal/storage"
)

// Record is one observed state of the tracked entity.
type Record struct {
	Name   string
	Status string
}

// Snapshot is the validated result of a single fetch.
type Snapshot struct {
	Records []Record
	// Advance is the server-reported cursor; only meaningful when HasAdvance is set.
	Advance    int64
	HasAdvance bool
}

// Fields maps snapshot keys on the wire to their meaning.
type Fields struct {
	Records string
	Advance string
	Name    string
	Status  string
}

// DefaultFields returns the neutral key names.
func DefaultFields() Fields {
	return Fields{Records: "records", Advance: "advance", Name: "name", Status: "status"}
}

func (f Fields) withDefaults() Fields {
	d := DefaultFields()
	if f.Records == "" {
		f.Records = d.Records
	}
	if f.Advance == "" {
		f.Advance = d.Advance
	}
	if f.Name == "" {
		f.Name = d.Name
	}
	if f.Status == "" {
		f.Status = d.Status
	}
	return f
}

// Source fetches the raw status snapshot newer than cursor.
// The returned value is the decoded, untrusted payload.
type Source interface {
	Fetch(ctx context.Context, cursor int64) (any, error)
}

// Notifier delivers one text to the fixed destination.
type Notifier interface {
	Deliver(ctx context.Context, text string) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, text string) error

func (f NotifierFunc) Deliver(ctx context.Context, text string) error { return f(ctx, text) }

// Cadence yields the pause before the next iteration.
type Cadence interface {
	Next(now time.Time) time.Duration
}

// StateStore persists loop state between restarts. storage.Store satisfies it.
type StateStore interface {
	LoadState(ctx context.Context) (storage.State, bool, error)
	SaveState(ctx context.Context, st storage.State) error
	AppendDelivery(ctx context.Context, e storage.DeliveryEntry) error
}

// Phase names the step an iteration ended in.
type Phase string

const (
	PhaseFetch     Phase = "fetch"
	PhaseValidate  Phase = "validate"
	PhaseIdle      Phase = "idle"
	PhaseInterpret Phase = "interpret"
	PhaseNotify    Phase = "notify"
)

// Outcome summarizes one iteration.
type Outcome struct {
	Phase Phase
	// Err is the fetch/validate/interpret failure, if any.
	Err error
	// DeliveryErr is set when sending Text failed.
	DeliveryErr error
	// Text is the notification or diagnostic produced by the iteration.
	Text       string
	Delivered  bool
	Suppressed bool
	Cursor     int64
}

// Kind returns the failure kind of the iteration (KindUnknown, rendered "none", when clean).
func (o Outcome) Kind() Kind {
	if o.Err != nil {
		return KindOf(o.Err)
	}
	if o.DeliveryErr != nil {
		return DeliveryError
	}
	return KindUnknown
}

// Failed reports whether anything in the iteration went wrong.
func (o Outcome) Failed() bool { return o.Err != nil || o.DeliveryErr != nil }
