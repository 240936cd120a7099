package watch

import (
	"errors"
	"strings"
	"testing"
)

var testVerdicts = map[string]string{
	"approved":  "Reviewed: the reviewer liked everything. Hooray!",
	"reviewing": "Taken for review.",
	"rejected":  "Reviewed: the reviewer has remarks.",
}

func TestInterpretKnownStatuses(t *testing.T) {
	t.Parallel()
	in := NewInterpreter(testVerdicts)
	for code, verdict := range testVerdicts {
		r := Record{Name: "task1", Status: code}
		got, err := in.Interpret(r)
		if err != nil {
			t.Fatalf("Interpret(%+v) error: %v", r, err)
		}
		want := `Status of "task1" changed. ` + verdict
		if got != want {
			t.Fatalf("Interpret(%+v) = %q, want %q", r, got, want)
		}
		again, _ := in.Interpret(r)
		if again != got {
			t.Fatalf("Interpret is not deterministic: %q vs %q", got, again)
		}
	}
}

func TestInterpretIncompleteRecord(t *testing.T) {
	t.Parallel()
	in := NewInterpreter(testVerdicts)
	tests := []struct {
		rec   Record
		field string
	}{
		{rec: Record{Status: "approved"}, field: "name"},
		{rec: Record{Name: "task1"}, field: "status"},
		{rec: Record{}, field: "name"},
	}
	for _, tt := range tests {
		_, err := in.Interpret(tt.rec)
		var we *Error
		if !errors.As(err, &we) || we.Kind != IncompleteRecord {
			t.Fatalf("Interpret(%+v) err = %v, want IncompleteRecord", tt.rec, err)
		}
		if we.Field != tt.field {
			t.Fatalf("Interpret(%+v) field = %q, want %q", tt.rec, we.Field, tt.field)
		}
		if !strings.Contains(err.Error(), tt.field) {
			t.Fatalf("error %q does not name field %q", err, tt.field)
		}
	}
}

func TestInterpretUnknownStatus(t *testing.T) {
	t.Parallel()
	in := NewInterpreter(testVerdicts)
	_, err := in.Interpret(Record{Name: "task2", Status: "archived"})
	var we *Error
	if !errors.As(err, &we) || we.Kind != UnknownStatus {
		t.Fatalf("err = %v, want UnknownStatus", err)
	}
	if we.Code != "archived" || !strings.Contains(DiagnosticText(err), "archived") {
		t.Fatalf("diagnostic %q does not carry the code", DiagnosticText(err))
	}
}

func TestInterpreterCopiesVerdicts(t *testing.T) {
	t.Parallel()
	v := map[string]string{"approved": "ok"}
	in := NewInterpreter(v)
	v["archived"] = "later"
	if in.Known("archived") {
		t.Fatal("interpreter must not observe later changes to the verdict map")
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()
	cause := errors.New("dial tcp: timeout")
	err := NewError(SourceUnreachable, cause, "GET %s", "https://example.test")
	if !errors.Is(err, cause) {
		t.Fatal("Unwrap must expose the cause")
	}
	if got := err.Error(); got != "source unreachable: GET https://example.test: dial tcp: timeout" {
		t.Fatalf("Error() = %q", got)
	}
	cfgErr := &Error{Kind: ConfigurationError, Missing: []string{"SOURCE_TOKEN", "TELEGRAM_CHAT_ID"}}
	if !cfgErr.Kind.Fatal() || !strings.Contains(cfgErr.Error(), "SOURCE_TOKEN, TELEGRAM_CHAT_ID") {
		t.Fatalf("config error = %q", cfgErr)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors have no kind")
	}
	if !UnknownStatus.Interpretation() || DeliveryError.Interpretation() {
		t.Fatal("Interpretation() classification wrong")
	}
}

func TestOutcomeKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		out    Outcome
		want   string
		failed bool
	}{
		{name: "delivered", out: Outcome{Phase: PhaseNotify, Delivered: true}, want: "none"},
		{name: "idle", out: Outcome{Phase: PhaseIdle}, want: "none"},
		{name: "fetch failure", out: Outcome{Phase: PhaseFetch, Err: NewError(SourceUnreachable, nil, "down")}, want: "source unreachable", failed: true},
		{name: "delivery failure", out: Outcome{Phase: PhaseNotify, DeliveryErr: errors.New("chat not found")}, want: "delivery error", failed: true},
	}
	for _, tt := range tests {
		if got := tt.out.Kind().String(); got != tt.want {
			t.Fatalf("%s: Kind() = %q, want %q", tt.name, got, tt.want)
		}
		if tt.out.Failed() != tt.failed {
			t.Fatalf("%s: Failed() = %v, want %v", tt.name, tt.out.Failed(), tt.failed)
		}
	}
	if got := (&Error{Msg: "boom"}).Error(); got != "error: boom" {
		t.Fatalf("untagged Error() = %q", got)
	}
}
