package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/wdlx/internal/diagnostics"
)

// ANSI codes used for diagnostic rendering.
const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

// RenderDiagnostics writes diagnostics in a one-per-line terminal form,
// colored when the writer is a terminal.
func RenderDiagnostics(w io.Writer, uri string, diags []*diagnostics.Diagnostic) {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	for _, d := range diags {
		fmt.Fprintln(w, renderDiagnostic(uri, d, color))
	}
}

func renderDiagnostic(uri string, d *diagnostics.Diagnostic, color bool) string {
	severity := d.Severity.String()
	if color {
		switch d.Severity {
		case diagnostics.Error:
			severity = ansiRed + severity + ansiReset
		case diagnostics.Warning:
			severity = ansiYellow + severity + ansiReset
		default:
			severity = ansiCyan + severity + ansiReset
		}
	}

	span := d.Span()
	location := fmt.Sprintf("%s:%d", uri, span.Start)
	if color {
		location = ansiDim + location + ansiReset
	}

	s := fmt.Sprintf("%s: %s: %s", location, severity, d.Message)
	if len(d.Labels) > 1 {
		for _, label := range d.Labels[1:] {
			if label.Message != "" {
				s += fmt.Sprintf("\n  %s: %s", label.Span, label.Message)
			}
		}
	}
	if d.Rule != "" {
		s += fmt.Sprintf(" [%s]", d.Rule)
	}
	return s
}
