package diagnostics

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
)

// Lint rule ids for suppressible warnings.
const (
	RuleUnusedImport      = "UnusedImport"
	RuleUnusedInput       = "UnusedInput"
	RuleUnusedDeclaration = "UnusedDeclaration"
	RuleUnusedCall        = "UnusedCall"
)

// NameContext describes what kind of binding introduced a name; it is
// used to word conflict diagnostics.
type NameContext struct {
	Kind string
	Span ast.Span
}

// Name contexts for conflict diagnostics.
func InputContext(span ast.Span) NameContext   { return NameContext{Kind: "input", Span: span} }
func DeclContext(span ast.Span) NameContext    { return NameContext{Kind: "declaration", Span: span} }
func OutputContext(span ast.Span) NameContext  { return NameContext{Kind: "output", Span: span} }
func CallContext(span ast.Span) NameContext    { return NameContext{Kind: "call", Span: span} }
func ScatterContext(span ast.Span) NameContext { return NameContext{Kind: "scatter variable", Span: span} }
func StructContext(span ast.Span) NameContext  { return NameContext{Kind: "struct", Span: span} }
func TaskContext(span ast.Span) NameContext    { return NameContext{Kind: "task", Span: span} }
func WorkflowContext(span ast.Span) NameContext {
	return NameContext{Kind: "workflow", Span: span}
}

// UnknownName reports a reference to a name not in scope.
func UnknownName(name string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("unknown name `%s`", name)).WithLabel(span, "not in scope")
}

// UnknownType reports an unresolvable type annotation.
func UnknownType(name string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("unknown type `%s`", name)).WithLabel(span, "")
}

// UnknownFunction reports a call to a name absent from the standard
// library.
func UnknownFunction(name string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("unknown function `%s`", name)).WithLabel(span, "not a standard library function")
}

// UnknownNamespace reports a reference to an unimported namespace.
func UnknownNamespace(name string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("unknown namespace `%s`", name)).WithLabel(span, "")
}

// UnknownCallInput reports a call-site input absent from the callable.
func UnknownCallInput(callable, input string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("`%s` is not an input of `%s`", input, callable)).WithLabel(span, "")
}

// UnknownCallOutput reports access to an output the callable lacks.
func UnknownCallOutput(callable, output string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("`%s` is not an output of `%s`", output, callable)).WithLabel(span, "")
}

// TypeMismatch reports a value of the wrong type.
func TypeMismatch(expected, actual fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("type mismatch: expected type `%s`, but found type `%s`", expected, actual)).
		WithLabel(span, fmt.Sprintf("this is type `%s`", actual))
}

// NoCommonType reports two types with no common supertype.
func NoCommonType(a, b fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("types `%s` and `%s` have no common type", a, b)).WithLabel(span, "")
}

// CannotCoerce reports a failed coercion.
func CannotCoerce(from, to fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot coerce type `%s` to type `%s`", from, to)).WithLabel(span, "")
}

// CannotIndex reports indexing of a non-indexable type.
func CannotIndex(ty fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot index type `%s`", ty)).WithLabel(span, "only arrays and maps may be indexed")
}

// CannotAccess reports member access on a type without members.
func CannotAccess(ty fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot access a member of type `%s`", ty)).WithLabel(span, "")
}

// NotAStructMember reports access to a member the struct lacks.
func NotAStructMember(structName, member string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("struct `%s` does not have a member named `%s`", structName, member)).WithLabel(span, "")
}

// NotAPairAccessor reports a pair access other than left or right.
func NotAPairAccessor(member string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot access a member named `%s` on a pair", member)).
		WithLabel(span, "a pair only has members `left` and `right`")
}

// NotATaskMember reports access to a member the task variable lacks.
func NotATaskMember(member string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("the task variable does not have a member named `%s`", member)).WithLabel(span, "")
}

// NotAnObjectMember reports access to a member an object value lacks.
func NotAnObjectMember(member string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("object does not have a member named `%s`", member)).WithLabel(span, "")
}

// NameConflict reports a binding that reuses a local name.
func NameConflict(name string, conflicting, first NameContext) *Diagnostic {
	return New(fmt.Sprintf("conflicting %s name `%s`", conflicting.Kind, name)).
		WithLabel(conflicting.Span, "this conflicts with a previous name").
		WithLabel(first.Span, fmt.Sprintf("first %s with this name is here", first.Kind))
}

// CallConflict reports a call whose bound name conflicts; suggests an
// alias when the call has none.
func CallConflict(name string, first NameContext, suggestAlias bool, span ast.Span) *Diagnostic {
	d := New(fmt.Sprintf("conflicting call name `%s`", name)).
		WithLabel(span, "this conflicts with a previous name").
		WithLabel(first.Span, fmt.Sprintf("first %s with this name is here", first.Kind))
	if suggestAlias {
		d.Message += "; use an `as` clause to rename the call"
	}
	return d
}

// DuplicateWorkflow reports a second workflow definition in a document.
func DuplicateWorkflow(name string, span, first ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot define workflow `%s`: a workflow is already defined", name)).
		WithLabel(span, "").
		WithLabel(first, "first workflow is defined here")
}

// NamespaceConflict reports two imports binding the same namespace.
func NamespaceConflict(name string, span, first ast.Span) *Diagnostic {
	return New(fmt.Sprintf("conflicting import namespace `%s`", name)).
		WithLabel(span, "this conflicts with a previous import").
		WithLabel(first, "first introduced by this import")
}

// ImportedStructConflict reports an imported struct clashing with a
// structurally different struct of the same name.
func ImportedStructConflict(name string, span, first ast.Span) *Diagnostic {
	return New(fmt.Sprintf("conflicting struct name `%s` between imported documents", name)).
		WithLabel(span, "the struct is imported again here").
		WithLabel(first, "the struct was first imported here")
}

// StructConflictsWithImport reports a locally defined struct clashing
// with an imported one.
func StructConflictsWithImport(name string, span, importSpan ast.Span) *Diagnostic {
	return New(fmt.Sprintf("struct `%s` conflicts with an imported struct", name)).
		WithLabel(span, "the struct is defined here").
		WithLabel(importSpan, "the conflicting struct was imported here")
}

// RecursiveStruct reports a struct member that closes a type cycle.
func RecursiveStruct(name string, memberSpan ast.Span) *Diagnostic {
	return New(fmt.Sprintf("struct `%s` is recursive", name)).WithLabel(memberSpan, "this member participates in the cycle")
}

// RecursiveWorkflowCall reports a workflow calling itself.
func RecursiveWorkflowCall(name string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("cannot recursively call workflow `%s`", name)).WithLabel(span, "")
}

// SelfReferential reports a declaration whose expression references its
// own name.
func SelfReferential(name string, declSpan, refSpan ast.Span) *Diagnostic {
	return New(fmt.Sprintf("self-referential declaration `%s`", name)).
		WithLabel(refSpan, "the declaration references itself here").
		WithLabel(declSpan, "the declaration is here")
}

// ReferenceCycle reports an edge that would close a dependency cycle.
func ReferenceCycle(from, name string, refSpan, defSpan ast.Span) *Diagnostic {
	return New(fmt.Sprintf("a reference cycle was detected between %s and `%s`", from, name)).
		WithLabel(refSpan, "this reference closes the cycle").
		WithLabel(defSpan, "the referenced name is defined here")
}

// NumericOverflow reports arithmetic wrapping outside the integer range.
func NumericOverflow(span ast.Span) *Diagnostic {
	return New("evaluation of arithmetic overflowed").WithLabel(span, "")
}

// DivisionByZero reports integer division or modulo by zero.
func DivisionByZero(span ast.Span) *Diagnostic {
	return New("attempt to divide by zero").WithLabel(span, "")
}

// IntegerNotInRange reports an integer outside the 64-bit range.
func IntegerNotInRange(span ast.Span) *Diagnostic {
	return New("literal integer exceeds the range for a 64-bit signed integer").WithLabel(span, "")
}

// FloatNotInRange reports a float outside the 64-bit range.
func FloatNotInRange(span ast.Span) *Diagnostic {
	return New("literal float exceeds the range for a 64-bit float").WithLabel(span, "")
}

// ExponentNotInRange reports an exponent too large to evaluate.
func ExponentNotInRange(span ast.Span) *Diagnostic {
	return New("exponent is out of range for exponentiation").WithLabel(span, "")
}

// InvalidRegex reports a malformed regular expression argument.
func InvalidRegex(err error, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("invalid regular expression: %v", err)).WithLabel(span, "")
}

// InvalidGlob reports a malformed glob pattern argument.
func InvalidGlob(err error, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("invalid glob pattern: %v", err)).WithLabel(span, "")
}

// InvalidStorageUnit reports an unrecognized storage unit suffix.
func InvalidStorageUnit(unit string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("invalid storage unit `%s`", unit)).
		WithLabel(span, "supported units are B, KB, K, MB, M, GB, G, TB, T, KiB, Ki, MiB, Mi, GiB, Gi, TiB, and Ti")
}

// InvalidPlaceholderOption reports a placeholder option applied to an
// incompatible operand type.
func InvalidPlaceholderOption(option string, ty fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("placeholder option `%s` cannot be used with type `%s`", option, ty)).WithLabel(span, "")
}

// ImportCycle reports an import participating in a cycle.
func ImportCycle(span ast.Span) *Diagnostic {
	return New("import introduces a dependency cycle").WithLabel(span, "this import is part of the cycle")
}

// ImportFailure reports a document that failed to load or parse.
func ImportFailure(uri string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("failed to import `%s`", uri)).WithLabel(span, "this document could not be analyzed")
}

// IncompatibleImport reports an import with a mismatched major version.
func IncompatibleImport(imported, importer string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("imported document has version %s which is incompatible with this document's version %s", imported, importer)).
		WithLabel(span, "")
}

// ImportMissingVersion reports an import of a document without a version
// statement.
func ImportMissingVersion(span ast.Span) *Diagnostic {
	return New("imported document is missing a version statement").WithLabel(span, "")
}

// InvalidImportNamespace reports an import whose derived namespace is not
// a valid identifier.
func InvalidImportNamespace(span ast.Span) *Diagnostic {
	return New("import namespace is not a valid WDL identifier").
		WithLabel(span, "a namespace cannot be derived from this import path; add an `as` clause")
}

// MissingVersionStatement reports a document with no version statement.
func MissingVersionStatement(span ast.Span) *Diagnostic {
	return New("document is missing a version statement").WithLabel(span, "")
}

// ArrayIndexOutOfRange reports an index outside an array's bounds.
func ArrayIndexOutOfRange(index int64, length int, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("array index %d is out of range for an array of length %d", index, length)).WithLabel(span, "")
}

// MapKeyNotFound reports a lookup of a key absent from a map.
func MapKeyNotFound(span ast.Span) *Diagnostic {
	return New("the map does not contain an entry for the specified key").WithLabel(span, "")
}

// FunctionCallFailed wraps an inner cause from a standard library call.
func FunctionCallFailed(name string, err error, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("call to function `%s` failed: %v", name, err)).WithLabel(span, "")
}

// MissingStructMembers reports a struct literal lacking required members.
func MissingStructMembers(structName string, missing []string, span ast.Span) *Diagnostic {
	plural := ""
	if len(missing) > 1 {
		plural = "s"
	}
	return New(fmt.Sprintf("missing required member%s %s in literal of struct `%s`", plural, oxford(missing, "and"), structName)).
		WithLabel(span, "")
}

// AmbiguousArgument reports arguments satisfying more than one overload.
func AmbiguousArgument(name, first, second string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("ambiguous call to function `%s` with conflicting signatures `%s` and `%s`", name, first, second)).
		WithLabel(span, "")
}

// ArgumentTypeMismatch reports an argument no overload accepts.
func ArgumentTypeMismatch(name string, expected string, actual fmt.Stringer, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("type mismatch for argument to function `%s`: expected %s, but found type `%s`", name, expected, actual)).
		WithLabel(span, fmt.Sprintf("this is type `%s`", actual))
}

// TooFewArguments reports a call with too few arguments.
func TooFewArguments(name string, minimum, actual int, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("function `%s` requires at least %d argument%s but %d %s supplied", name, minimum, pluralS(minimum), actual, wasWere(actual))).
		WithLabel(span, "")
}

// TooManyArguments reports a call with too many arguments.
func TooManyArguments(name string, maximum, actual int, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("function `%s` accepts at most %d argument%s but %d %s supplied", name, maximum, pluralS(maximum), actual, wasWere(actual))).
		WithLabel(span, "")
}

// UnsupportedFunction reports a call below the function's minimum
// version.
func UnsupportedFunction(name, minimum, version string, span ast.Span) *Diagnostic {
	return New(fmt.Sprintf("function `%s` requires WDL version %s or later, but the document version is %s", name, minimum, version)).
		WithLabel(span, "")
}

// UnsupportedSection reports a requirements or hints section below 1.2
// or one coexisting with a runtime section.
func UnsupportedSection(section string, span ast.Span, reason string) *Diagnostic {
	return New(fmt.Sprintf("the `%s` section is not supported here: %s", section, reason)).WithLabel(span, "")
}

// UnusedImport warns about a namespace no name references.
func UnusedImport(name string, span ast.Span) *Diagnostic {
	return Warn(fmt.Sprintf("unused import namespace `%s`", name)).WithLabel(span, "").WithRule(RuleUnusedImport)
}

// UnusedInput warns about an input nothing references.
func UnusedInput(name string, span ast.Span) *Diagnostic {
	return Warn(fmt.Sprintf("unused input `%s`", name)).WithLabel(span, "").WithRule(RuleUnusedInput)
}

// UnusedDeclaration warns about a private declaration nothing references.
func UnusedDeclaration(name string, span ast.Span) *Diagnostic {
	return Warn(fmt.Sprintf("unused declaration `%s`", name)).WithLabel(span, "").WithRule(RuleUnusedDeclaration)
}

// UnusedCall warns about a call whose outputs nothing references.
func UnusedCall(name string, span ast.Span) *Diagnostic {
	return Warn(fmt.Sprintf("unused call `%s`", name)).WithLabel(span, "").WithRule(RuleUnusedCall)
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
