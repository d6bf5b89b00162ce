// Package document implements semantic analysis of WDL documents:
// import resolution across the document graph, struct unification, and
// type checking of tasks and workflows.
//
// Analysis accumulates diagnostics and always produces a typed document;
// `Union` stands in for unresolvable types so a single error does not
// cascade.
package document

import (
	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/scope"
	"github.com/funvibe/wdlx/internal/types"
)

// Namespace is an imported document bound to a local name.
type Namespace struct {
	Name string
	Span ast.Span
	// URI is the resolved address of the imported document.
	URI      string
	Document *Document
	// Used is set when any name resolves through the namespace.
	Used bool
	// Excepted suppresses the unused-import warning.
	Excepted bool
}

// Struct is a struct type slot in a document: either locally defined or
// imported (possibly under an alias).
type Struct struct {
	Name string
	Span ast.Span
	// Def is the defining AST node; for imported structs it belongs to
	// the source document and is used for structural equivalence.
	Def *ast.StructDefinition
	// Namespace names the origin namespace; empty for local structs.
	Namespace string
	// Type is assigned during unification; nil only for slots that were
	// rejected as conflicting.
	Type *types.Struct
	// aliases maps source-document struct names to local slot names for
	// imported structs, so member references resolve through the import's
	// alias clauses.
	aliases map[string]string
}

// Input is a declared input of a task or workflow.
type Input struct {
	Type types.Type
	// Required inputs have no default and are not optional.
	Required bool
}

// Output is a declared output of a task or workflow.
type Output struct {
	Type types.Type
}

// IOMap is an ordered name to input/output mapping.
type IOMap[V any] struct {
	names []string
	m     map[string]V
}

// NewIOMap creates an empty ordered map.
func NewIOMap[V any]() *IOMap[V] {
	return &IOMap[V]{m: make(map[string]V)}
}

// Add inserts a binding unless the name is already present; duplicates
// are silently ignored.
func (io *IOMap[V]) Add(name string, v V) {
	if _, ok := io.m[name]; ok {
		return
	}
	io.names = append(io.names, name)
	io.m[name] = v
}

// Get returns the binding for a name.
func (io *IOMap[V]) Get(name string) (V, bool) {
	v, ok := io.m[name]
	return v, ok
}

// Names returns the binding names in declaration order.
func (io *IOMap[V]) Names() []string { return io.names }

// Len returns the number of bindings.
func (io *IOMap[V]) Len() int { return len(io.names) }

// Task is an analyzed task.
type Task struct {
	Name     string
	NameSpan ast.Span
	Def      *ast.TaskDefinition
	Scopes   *scope.Arena
	Inputs   *IOMap[Input]
	Outputs  *IOMap[Output]

	rootScope         int
	commandScope      int
	outputScope       int
	runtimeScope      int
	requirementsScope int
	hintsScope        int
}

// RootScope is the scope holding inputs and private declarations.
func (t *Task) RootScope() scope.Ref { return t.Scopes.Scope(t.rootScope) }

// CommandScope is the command section's scope; ok is false when the task
// has no command.
func (t *Task) CommandScope() (scope.Ref, bool) {
	return t.maybeScope(t.commandScope)
}

// OutputScope is the output section's scope.
func (t *Task) OutputScope() (scope.Ref, bool) {
	return t.maybeScope(t.outputScope)
}

// RuntimeScope is the runtime section's scope.
func (t *Task) RuntimeScope() (scope.Ref, bool) {
	return t.maybeScope(t.runtimeScope)
}

// RequirementsScope is the requirements section's scope.
func (t *Task) RequirementsScope() (scope.Ref, bool) {
	return t.maybeScope(t.requirementsScope)
}

// HintsScope is the hints section's scope.
func (t *Task) HintsScope() (scope.Ref, bool) {
	return t.maybeScope(t.hintsScope)
}

func (t *Task) maybeScope(index int) (scope.Ref, bool) {
	if index < 0 {
		return scope.Ref{}, false
	}
	return t.Scopes.Scope(index), true
}

// Workflow is an analyzed workflow.
type Workflow struct {
	Name     string
	NameSpan ast.Span
	Def      *ast.WorkflowDefinition
	Scopes   *scope.Arena
	Inputs   *IOMap[Input]
	Outputs  *IOMap[Output]
	// Calls maps each bound call name to its call type.
	Calls map[string]*types.Call
	// AllowsNestedInputs permits call inputs to be satisfied from
	// workflow inputs.
	AllowsNestedInputs bool

	rootScope   int
	outputScope int
	// blockScopes maps each scatter/conditional statement to its scope.
	blockScopes map[ast.WorkflowStatement]int
}

// RootScope is the workflow's top-level scope.
func (w *Workflow) RootScope() scope.Ref { return w.Scopes.Scope(w.rootScope) }

// OutputScope is the output section's scope.
func (w *Workflow) OutputScope() (scope.Ref, bool) {
	if w.outputScope < 0 {
		return scope.Ref{}, false
	}
	return w.Scopes.Scope(w.outputScope), true
}

// BlockScope returns the scope of a scatter or conditional statement.
func (w *Workflow) BlockScope(stmt ast.WorkflowStatement) (scope.Ref, bool) {
	index, ok := w.blockScopes[stmt]
	if !ok {
		return scope.Ref{}, false
	}
	return w.Scopes.Scope(index), true
}

// Document is the result of analyzing one WDL document.
type Document struct {
	URI     string
	Version ast.Version
	// HasVersion is false when the version statement was missing or
	// unsupported; analysis of such a document is aborted.
	HasVersion  bool
	Diagnostics []*diagnostics.Diagnostic

	namespaces     []*Namespace
	namespaceIndex map[string]int
	structs        []*Struct
	structIndex    map[string]int
	tasks          []*Task
	taskIndex      map[string]int
	workflow       *Workflow

	astDoc *ast.Document
}

// AST returns the syntax tree the document was analyzed from.
func (d *Document) AST() *ast.Document { return d.astDoc }

// Namespaces returns the document's namespaces in import order.
func (d *Document) Namespaces() []*Namespace { return d.namespaces }

// Namespace looks up a namespace by name.
func (d *Document) Namespace(name string) (*Namespace, bool) {
	if i, ok := d.namespaceIndex[name]; ok {
		return d.namespaces[i], true
	}
	return nil, false
}

// Structs returns the document's struct slots in declaration order.
func (d *Document) Structs() []*Struct { return d.structs }

// Struct looks up a struct slot by name.
func (d *Document) Struct(name string) (*Struct, bool) {
	if i, ok := d.structIndex[name]; ok {
		return d.structs[i], true
	}
	return nil, false
}

// Tasks returns the document's tasks in declaration order.
func (d *Document) Tasks() []*Task { return d.tasks }

// Task looks up a task by name.
func (d *Document) Task(name string) (*Task, bool) {
	if i, ok := d.taskIndex[name]; ok {
		return d.tasks[i], true
	}
	return nil, false
}

// Workflow returns the document's workflow, if any.
func (d *Document) Workflow() *Workflow { return d.workflow }

// Counts tallies the document's diagnostics by severity.
func (d *Document) Counts() diagnostics.Counts {
	return diagnostics.Count(d.Diagnostics)
}

func (d *Document) diag(diag *diagnostics.Diagnostic) {
	d.Diagnostics = append(d.Diagnostics, diag)
}

func newDocument(uri string, astDoc *ast.Document) *Document {
	return &Document{
		URI:            uri,
		astDoc:         astDoc,
		namespaceIndex: make(map[string]int),
		structIndex:    make(map[string]int),
		taskIndex:      make(map[string]int),
	}
}
