package watch

import "strings"

// Interpreter turns a record into notification text using a verdict table.
// It is immutable after construction and safe for concurrent use.
type Interpreter struct {
	verdicts map[string]string
}

// NewInterpreter copies verdicts (status code -> human text).
func NewInterpreter(verdicts map[string]string) *Interpreter {
	cp := make(map[string]string, len(verdicts))
	for k, v := range verdicts {
		cp[strings.TrimSpace(k)] = v
	}
	return &Interpreter{verdicts: cp}
}

// Known reports whether code has a verdict.
func (in *Interpreter) Known(code string) bool {
	_, ok := in.verdicts[code]
	return ok
}

// Interpret returns `Status of "<name>" changed. <verdict>`.
func (in *Interpreter) Interpret(r Record) (string, error) {
	if r.Name == "" {
		return "", &Error{Kind: IncompleteRecord, Field: "name"}
	}
	if r.Status == "" {
		return "", &Error{Kind: IncompleteRecord, Field: "status"}
	}
	verdict, ok := in.verdicts[r.Status]
	if !ok {
		return "", &Error{Kind: UnknownStatus, Code: r.Status}
	}
	return ChangeText(r.Name, verdict), nil
}

// ChangeText formats a status-change notification.
func ChangeText(name, verdict string) string {
	return `Status of "` + name + `" changed. ` + verdict
}

// DiagnosticText formats the operator-facing message for a contained failure.
func DiagnosticText(err error) string {
	return "Program failure: " + err.Error()
}
