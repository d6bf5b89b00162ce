// Package diagnostics defines the diagnostic data model shared by
// analysis and evaluation.
//
// A diagnostic carries a severity, a message, and one or more labeled
// byte spans into document source. Analysis accumulates diagnostics and
// keeps going; evaluation stops at the first error-severity diagnostic.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/wdlx/internal/ast"
)

// Severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "note"
	}
}

// Label attaches a message to a byte span in document source.
type Label struct {
	Span    ast.Span
	Message string
}

// Diagnostic is a single analysis or evaluation finding.
type Diagnostic struct {
	Severity Severity
	Message  string
	Labels   []Label
	// Rule identifies the lint rule for suppressible warnings; empty for
	// hard diagnostics.
	Rule string
}

// New creates an error-severity diagnostic.
func New(message string) *Diagnostic {
	return &Diagnostic{Severity: Error, Message: message}
}

// Warn creates a warning-severity diagnostic.
func Warn(message string) *Diagnostic {
	return &Diagnostic{Severity: Warning, Message: message}
}

// WithLabel appends a primary or secondary label.
func (d *Diagnostic) WithLabel(span ast.Span, message string) *Diagnostic {
	d.Labels = append(d.Labels, Label{Span: span, Message: message})
	return d
}

// WithRule sets the lint rule id.
func (d *Diagnostic) WithRule(rule string) *Diagnostic {
	d.Rule = rule
	return d
}

// Span returns the primary (first) label span.
func (d *Diagnostic) Span() ast.Span {
	if len(d.Labels) == 0 {
		return ast.Span{}
	}
	return d.Labels[0].Span
}

func (d *Diagnostic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", d.Severity, d.Message)
	for _, l := range d.Labels {
		fmt.Fprintf(&sb, " [%s", l.Span)
		if l.Message != "" {
			fmt.Fprintf(&sb, ": %s", l.Message)
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// Counts tallies diagnostics by severity.
type Counts struct {
	Errors   int
	Warnings int
	Notes    int
}

// Count tallies a sequence of diagnostics.
func Count(diags []*Diagnostic) Counts {
	var c Counts
	for _, d := range diags {
		switch d.Severity {
		case Error:
			c.Errors++
		case Warning:
			c.Warnings++
		default:
			c.Notes++
		}
	}
	return c
}

// Check returns an error when the counts exceed what the caller
// accepts: errors always fail; warnings and notes fail only when
// denied.
func (c Counts) Check(denyWarnings, denyNotes bool) error {
	if c.Errors > 0 {
		return fmt.Errorf("failing due to %d error%s", c.Errors, pluralize(c.Errors))
	}
	if denyWarnings && c.Warnings > 0 {
		return fmt.Errorf("failing due to %d warning%s (`--deny-warnings` was specified)", c.Warnings, pluralize(c.Warnings))
	}
	if denyNotes && c.Notes > 0 {
		return fmt.Errorf("failing due to %d note%s (`--deny-notes` was specified)", c.Notes, pluralize(c.Notes))
	}
	return nil
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Sort orders diagnostics by primary span start, then severity.
func Sort(diags []*Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Span(), diags[j].Span()
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return diags[i].Severity < diags[j].Severity
	})
}

// oxford joins quoted names with commas and a final conjunction.
func oxford(names []string, conjunction string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("`%s`", n)
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " " + conjunction + " " + quoted[1]
	default:
		return strings.Join(quoted[:len(quoted)-1], ", ") + ", " + conjunction + " " + quoted[len(quoted)-1]
	}
}
