package eval

import (
	"github.com/funvibe/wdlx/internal/diagnostics"
)

// Error is a runtime evaluation failure carrying a diagnostic that
// references the failing expression.
type Error struct {
	Diagnostic *diagnostics.Diagnostic
}

func (e *Error) Error() string {
	return e.Diagnostic.String()
}

// NewError wraps a diagnostic as an evaluation error.
func NewError(d *diagnostics.Diagnostic) *Error {
	return &Error{Diagnostic: d}
}

// AsDiagnostic extracts the diagnostic from an evaluation error, or
// wraps any other error as a plain error diagnostic.
func AsDiagnostic(err error) *diagnostics.Diagnostic {
	if e, ok := err.(*Error); ok {
		return e.Diagnostic
	}
	return diagnostics.New(err.Error())
}
