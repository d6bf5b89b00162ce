// Package ast defines the syntax tree for WDL documents.
//
// The tree is the input to semantic analysis: a parser (or the JSON
// interchange decoder in this package) produces it, and the analyzer and
// evaluator consume it. Nodes carry byte spans into the original source so
// diagnostics can point at the offending text.
package ast

import "fmt"

// Span is a half-open byte range [Start, End) in document source.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the given byte offset falls within the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Node is the base interface for all AST nodes.
type Node interface {
	// Pos returns the node's source span.
	Pos() Span
}

// Ident is a name together with its source span.
type Ident struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}

func (i Ident) Pos() Span { return i.Span }

// Version identifies a WDL language version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Supported WDL versions.
var (
	V1_0 = Version{1, 0}
	V1_1 = Version{1, 1}
	V1_2 = Version{1, 2}
)

// ParseVersion parses the text of a version statement.
func ParseVersion(text string) (Version, bool) {
	var v Version
	if _, err := fmt.Sscanf(text, "%d.%d", &v.Major, &v.Minor); err != nil {
		return Version{}, false
	}
	if v.Major != 1 || v.Minor < 0 || v.Minor > 2 {
		return Version{}, false
	}
	return v, true
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v is the same or a later version than o.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

// Document is the root node of a parsed WDL file.
type Document struct {
	// URI is the address the document was loaded from.
	URI string `json:"uri"`
	// VersionText is the raw text of the version statement; empty when the
	// statement is missing, which aborts analysis.
	VersionText string             `json:"version"`
	VersionSpan Span               `json:"versionSpan"`
	Imports     []*ImportStatement `json:"imports,omitempty"`
	Structs     []*StructDefinition `json:"structs,omitempty"`
	Tasks       []*TaskDefinition   `json:"tasks,omitempty"`
	Workflows   []*WorkflowDefinition `json:"workflows,omitempty"`
	Span        Span               `json:"span"`
}

func (d *Document) Pos() Span { return d.Span }

// Version parses the document's version statement.
func (d *Document) Version() (Version, bool) {
	if d.VersionText == "" {
		return Version{}, false
	}
	return ParseVersion(d.VersionText)
}

// StructAlias renames an imported struct.
//
//	import "lib.wdl" alias Foo as Bar
type StructAlias struct {
	From Ident `json:"from"`
	To   Ident `json:"to"`
}

// ImportStatement brings another document's names into scope.
//
//	import "../lib.wdl" as lib alias Foo as Bar
type ImportStatement struct {
	// URI is the import target, relative or absolute.
	URI     string        `json:"uri"`
	URISpan Span          `json:"uriSpan"`
	// Namespace is the explicit `as` alias; when nil the namespace derives
	// from the URI file stem.
	Namespace *Ident        `json:"namespace,omitempty"`
	Aliases   []StructAlias `json:"aliases,omitempty"`
	// Excepts lists lint rule ids suppressed on this import.
	Excepts []string `json:"excepts,omitempty"`
	Span    Span     `json:"span"`
}

func (i *ImportStatement) Pos() Span { return i.Span }

// StructDefinition declares a named struct type.
//
//	struct Person { String name  Int age }
type StructDefinition struct {
	Name    Ident   `json:"name"`
	Members []*Decl `json:"members,omitempty"`
	Span    Span    `json:"span"`
}

func (s *StructDefinition) Pos() Span { return s.Span }
