package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/types"
)

var nextOffset int

func sp() ast.Span {
	nextOffset += 10
	return ast.Span{Start: nextOffset, End: nextOffset + 5}
}

func id(name string) ast.Ident {
	return ast.Ident{Name: name, Span: sp()}
}

func ty(name string, params ...*ast.TypeRef) *ast.TypeRef {
	return &ast.TypeRef{Name: name, Params: params, Span: sp()}
}

func optional(ref *ast.TypeRef) *ast.TypeRef {
	ref.Optional = true
	return ref
}

func decl(typeRef *ast.TypeRef, name string, expr ast.Expr) *ast.Decl {
	return &ast.Decl{Type: typeRef, Name: id(name), Expr: expr, Span: sp()}
}

func intLit(v int64) ast.Expr    { return &ast.LiteralInt{Value: v, Span: sp()} }
func floatLit(v float64) ast.Expr { return &ast.LiteralFloat{Value: v, Span: sp()} }
func boolLit(v bool) ast.Expr    { return &ast.LiteralBool{Value: v, Span: sp()} }
func ref(name string) ast.Expr   { return &ast.NameRef{Name: name, Span: sp()} }

func strLit(text string) ast.Expr {
	return &ast.LiteralString{Parts: []ast.StringPart{&ast.StringText{Value: text, Span: sp()}}, Span: sp()}
}

func binary(op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	return &ast.BinaryExpr{Op: op, Left: left, Right: right, Span: sp()}
}

func doc(uri string, version string) *ast.Document {
	return &ast.Document{
		URI:         uri,
		VersionText: version,
		VersionSpan: sp(),
		Span:        ast.Span{Start: 0, End: 100000},
	}
}

func memorySource(docs map[string]*ast.Document) Source {
	return func(uri string) (*ast.Document, error) {
		if d, ok := docs[uri]; ok {
			return d, nil
		}
		return nil, &notFoundError{uri}
	}
}

type notFoundError struct{ uri string }

func (e *notFoundError) Error() string { return "document not found: " + e.uri }

func analyzeOne(t *testing.T, d *ast.Document) *Document {
	t.Helper()
	g := NewGraph(memorySource(map[string]*ast.Document{d.URI: d}))
	result, err := g.Analyze(d.URI)
	require.NoError(t, err)
	return result
}

func messages(doc *Document) []string {
	var out []string
	for _, d := range doc.Diagnostics {
		out = append(out, d.Message)
	}
	return out
}

func errorsOnly(doc *Document) []string {
	var out []string
	for _, d := range doc.Diagnostics {
		if d.Severity == diagnostics.Error {
			out = append(out, d.Message)
		}
	}
	return out
}

func TestMissingVersionAbortsAnalysis(t *testing.T) {
	d := doc("mem://wdl/a.wdl", "")
	d.Tasks = []*ast.TaskDefinition{{Name: id("t"), Span: sp()}}

	result := analyzeOne(t, d)
	assert.False(t, result.HasVersion)
	assert.Empty(t, result.Tasks(), "no tasks should be populated without a version")
	require.Len(t, result.Diagnostics, 1)
	assert.Contains(t, result.Diagnostics[0].Message, "missing a version statement")
}

func TestTaskDeclarationTypes(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: id("arith"),
		Inputs: []*ast.Decl{
			decl(ty("Int"), "a", nil),
			decl(optional(ty("String")), "b", nil),
			decl(ty("Float"), "c", floatLit(1.5)),
		},
		Decls: []*ast.Decl{
			decl(ty("Int"), "sum", binary(ast.OpAdd, ref("a"), intLit(2))),
			decl(ty("Float"), "mixed", binary(ast.OpAdd, ref("a"), floatLit(2.0))),
			decl(ty("String"), "greeting", binary(ast.OpAdd, strLit("a"), intLit(1))),
		},
		Span: sp(),
	}
	d := doc("mem://arith.wdl", "1.2")
	d.Tasks = []*ast.TaskDefinition{task}

	result := analyzeOne(t, d)
	assert.Empty(t, errorsOnly(result), "all declarations should type-check")

	analyzed, ok := result.Task("arith")
	require.True(t, ok)

	in, ok := analyzed.Inputs.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Int", in.Type.String())
	assert.True(t, in.Required)

	in, ok = analyzed.Inputs.Get("b")
	require.True(t, ok)
	assert.Equal(t, "String?", in.Type.String())
	assert.False(t, in.Required, "optional inputs are not required")

	in, ok = analyzed.Inputs.Get("c")
	require.True(t, ok)
	assert.False(t, in.Required, "defaulted inputs are not required")

	root := analyzed.RootScope()
	for name, want := range map[string]string{
		"sum":      "Int",
		"mixed":    "Float",
		"greeting": "String",
	} {
		n, ok := root.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, n.Type.String(), name)
	}
}

func TestBooleanAdditionIsError(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: id("bad"),
		Decls: []*ast.Decl{
			decl(ty("Int"), "x", binary(ast.OpAdd, boolLit(true), intLit(1))),
		},
		Span: sp(),
	}
	d := doc("mem://bad.wdl", "1.2")
	d.Tasks = []*ast.TaskDefinition{task}

	result := analyzeOne(t, d)
	errs := errorsOnly(result)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "operator `+` cannot be applied to type `Boolean`")
}

func TestStructLiteralMissingMembers(t *testing.T) {
	d := doc("mem://structs.wdl", "1.2")
	d.Structs = []*ast.StructDefinition{{
		Name: id("Foo"),
		Members: []*ast.Decl{
			decl(ty("Int"), "a", nil),
			decl(ty("String"), "b", nil),
		},
		Span: sp(),
	}}
	d.Tasks = []*ast.TaskDefinition{{
		Name: id("t"),
		Decls: []*ast.Decl{
			decl(ty("Foo"), "ok", &ast.LiteralStruct{
				Name: id("Foo"),
				Items: []*ast.ObjectItem{
					{Name: id("a"), Value: intLit(1), Span: sp()},
					{Name: id("b"), Value: strLit("x"), Span: sp()},
				},
				Span: sp(),
			}),
			decl(ty("Foo"), "incomplete", &ast.LiteralStruct{
				Name: id("Foo"),
				Items: []*ast.ObjectItem{
					{Name: id("b"), Value: strLit("x"), Span: sp()},
				},
				Span: sp(),
			}),
		},
		Span: sp(),
	}}

	result := analyzeOne(t, d)
	errs := errorsOnly(result)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "missing required member `a` in literal of struct `Foo`")
}

func TestRecursiveStruct(t *testing.T) {
	d := doc("mem://recursive.wdl", "1.2")
	d.Structs = []*ast.StructDefinition{
		{
			Name:    id("Node"),
			Members: []*ast.Decl{decl(ty("Node"), "next", nil)},
			Span:    sp(),
		},
	}

	result := analyzeOne(t, d)
	errs := errorsOnly(result)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "struct `Node` is recursive")
}

func TestMutuallyRecursiveStructs(t *testing.T) {
	d := doc("mem://mutual.wdl", "1.2")
	d.Structs = []*ast.StructDefinition{
		{Name: id("A"), Members: []*ast.Decl{decl(ty("B"), "b", nil)}, Span: sp()},
		{Name: id("B"), Members: []*ast.Decl{decl(ty("A"), "a", nil)}, Span: sp()},
	}

	result := analyzeOne(t, d)
	errs := errorsOnly(result)
	require.Len(t, errs, 1, "one back edge closes the cycle")
	assert.Contains(t, errs[0], "is recursive")

	// The acyclic remainder still receives types.
	a, ok := result.Struct("A")
	require.True(t, ok)
	assert.NotNil(t, a.Type)
}

func TestImportCycleBothDiagnose(t *testing.T) {
	a := doc("mem://wdl/a.wdl", "1.2")
	a.Imports = []*ast.ImportStatement{{URI: "b.wdl", URISpan: sp(), Span: sp()}}
	a.Tasks = []*ast.TaskDefinition{{Name: id("ta"), Span: sp()}}

	b := doc("mem://wdl/b.wdl", "1.2")
	b.Imports = []*ast.ImportStatement{{URI: "a.wdl", URISpan: sp(), Span: sp()}}
	b.Tasks = []*ast.TaskDefinition{{Name: id("tb"), Span: sp()}}

	g := NewGraph(memorySource(map[string]*ast.Document{"mem://wdl/a.wdl": a, "mem://wdl/b.wdl": b}))
	docA, err := g.Analyze("mem://wdl/a.wdl")
	require.NoError(t, err)
	docB, ok := g.Document("mem://wdl/b.wdl")
	require.True(t, ok)

	assert.Contains(t, strings.Join(messages(docA), "\n"), "dependency cycle")
	assert.Contains(t, strings.Join(messages(docB), "\n"), "dependency cycle")

	// Analysis still completes: tasks are populated in both documents.
	_, ok = docA.Task("ta")
	assert.True(t, ok)
	_, ok = docB.Task("tb")
	assert.True(t, ok)
}

func TestUnusedImportWarning(t *testing.T) {
	lib := doc("mem://wdl/lib.wdl", "1.2")

	a := doc("mem://wdl/main.wdl", "1.2")
	a.Imports = []*ast.ImportStatement{{URI: "lib.wdl", URISpan: sp(), Span: sp()}}

	g := NewGraph(memorySource(map[string]*ast.Document{"mem://wdl/main.wdl": a, "mem://wdl/lib.wdl": lib}))
	result, err := g.Analyze("mem://wdl/main.wdl")
	require.NoError(t, err)

	found := false
	for _, diag := range result.Diagnostics {
		if diag.Rule == diagnostics.RuleUnusedImport {
			found = true
			assert.Equal(t, diagnostics.Warning, diag.Severity)
		}
	}
	assert.True(t, found, "expected an unused import warning")
}

func TestUnusedImportExcepted(t *testing.T) {
	lib := doc("mem://wdl/lib.wdl", "1.2")

	a := doc("mem://wdl/main.wdl", "1.2")
	a.Imports = []*ast.ImportStatement{{
		URI:     "lib.wdl",
		URISpan: sp(),
		Excepts: []string{diagnostics.RuleUnusedImport},
		Span:    sp(),
	}}

	g := NewGraph(memorySource(map[string]*ast.Document{"mem://wdl/main.wdl": a, "mem://wdl/lib.wdl": lib}))
	result, err := g.Analyze("mem://wdl/main.wdl")
	require.NoError(t, err)

	for _, diag := range result.Diagnostics {
		assert.NotEqual(t, diagnostics.RuleUnusedImport, diag.Rule)
	}
}

func TestImportedStructEquivalence(t *testing.T) {
	// The same struct imported under the same name is accepted when
	// structurally equivalent by member names and raw type text.
	lib := doc("mem://wdl/lib.wdl", "1.2")
	lib.Structs = []*ast.StructDefinition{{
		Name:    id("Sample"),
		Members: []*ast.Decl{decl(ty("Int"), "count", nil)},
		Span:    sp(),
	}}

	main := doc("mem://wdl/main.wdl", "1.2")
	main.Structs = []*ast.StructDefinition{{
		Name:    id("Sample"),
		Members: []*ast.Decl{decl(ty("Int"), "count", nil)},
		Span:    sp(),
	}}
	main.Imports = []*ast.ImportStatement{{URI: "lib.wdl", URISpan: sp(), Span: sp()}}

	g := NewGraph(memorySource(map[string]*ast.Document{"mem://wdl/main.wdl": main, "mem://wdl/lib.wdl": lib}))
	result, err := g.Analyze("mem://wdl/main.wdl")
	require.NoError(t, err)
	assert.Empty(t, errorsOnly(result))
}

func TestImportedStructConflict(t *testing.T) {
	lib := doc("mem://wdl/lib.wdl", "1.2")
	lib.Structs = []*ast.StructDefinition{{
		Name:    id("Sample"),
		Members: []*ast.Decl{decl(ty("Float"), "count", nil)},
		Span:    sp(),
	}}

	main := doc("mem://wdl/main.wdl", "1.2")
	main.Structs = []*ast.StructDefinition{{
		Name:    id("Sample"),
		Members: []*ast.Decl{decl(ty("Int"), "count", nil)},
		Span:    sp(),
	}}
	main.Imports = []*ast.ImportStatement{{URI: "lib.wdl", URISpan: sp(), Span: sp()}}

	g := NewGraph(memorySource(map[string]*ast.Document{"mem://wdl/main.wdl": main, "mem://wdl/lib.wdl": lib}))
	result, err := g.Analyze("mem://wdl/main.wdl")
	require.NoError(t, err)

	errs := errorsOnly(result)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "conflicts with an imported struct")
}

func TestScatterPromotion(t *testing.T) {
	scatterStmt := &ast.ScatterStatement{
		Variable: id("i"),
		Expr: &ast.LiteralArray{
			Elements: []ast.Expr{intLit(1), intLit(2), intLit(3)},
			Span:     sp(),
		},
		Statements: []ast.WorkflowStatement{
			decl(ty("Int"), "x", binary(ast.OpMul, ref("i"), intLit(2))),
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name: id("wf"),
		Statements: []ast.WorkflowStatement{
			scatterStmt,
			decl(ty("Array", ty("Int")), "y", ref("x")),
		},
		Span: sp(),
	}
	d := doc("mem://scatter.wdl", "1.2")
	d.Workflows = []*ast.WorkflowDefinition{w}

	result := analyzeOne(t, d)
	assert.Empty(t, errorsOnly(result))

	workflow := result.Workflow()
	require.NotNil(t, workflow)

	// The promoted name has its inner type wrapped in Array.
	n, ok := workflow.RootScope().Lookup("x")
	require.True(t, ok, "x should be promoted into the root scope")
	assert.Equal(t, "Array[Int]", n.Type.String())

	// The scatter variable is not promoted.
	_, ok = workflow.RootScope().Lookup("i")
	assert.False(t, ok)

	// Inside the scatter body, the variable binds to the element type.
	block, ok := workflow.BlockScope(scatterStmt)
	require.True(t, ok)
	v, ok := block.Lookup("i")
	require.True(t, ok)
	assert.Equal(t, "Int", v.Type.String())
}

func TestConditionalPromotion(t *testing.T) {
	condStmt := &ast.ConditionalStatement{
		Expr: boolLit(true),
		Statements: []ast.WorkflowStatement{
			decl(ty("Int"), "x", intLit(1)),
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name:       id("wf"),
		Statements: []ast.WorkflowStatement{condStmt},
		Span:       sp(),
	}
	d := doc("mem://cond.wdl", "1.2")
	d.Workflows = []*ast.WorkflowDefinition{w}

	result := analyzeOne(t, d)
	assert.Empty(t, errorsOnly(result))

	workflow := result.Workflow()
	require.NotNil(t, workflow)
	n, ok := workflow.RootScope().Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "Int?", n.Type.String())
}

func TestCallResolution(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:    id("echo"),
		Inputs:  []*ast.Decl{decl(ty("String"), "msg", nil)},
		Outputs: []*ast.Decl{decl(ty("String"), "out", ref("msg"))},
		Span:    sp(),
	}
	call := &ast.CallStatement{
		Target: []ast.Ident{id("echo")},
		Inputs: []*ast.CallInput{
			{Name: id("msg"), Expr: strLit("hi"), Span: sp()},
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name: id("wf"),
		Statements: []ast.WorkflowStatement{call},
		Outputs: []*ast.Decl{
			decl(ty("String"), "result", &ast.AccessExpr{
				Target: ref("echo"),
				Member: id("out"),
				Span:   sp(),
			}),
		},
		Span: sp(),
	}
	d := doc("mem://call.wdl", "1.2")
	d.Tasks = []*ast.TaskDefinition{task}
	d.Workflows = []*ast.WorkflowDefinition{w}

	result := analyzeOne(t, d)
	assert.Empty(t, errorsOnly(result))

	workflow := result.Workflow()
	require.NotNil(t, workflow)
	callType, ok := workflow.Calls["echo"]
	require.True(t, ok)
	assert.Equal(t, types.TaskCall, callType.Kind)

	out, ok := callType.Output("out")
	require.True(t, ok)
	assert.Equal(t, "String", out.String())
}

func TestUnknownCallInput(t *testing.T) {
	task := &ast.TaskDefinition{Name: id("noop"), Span: sp()}
	call := &ast.CallStatement{
		Target: []ast.Ident{id("noop")},
		Inputs: []*ast.CallInput{
			{Name: id("bogus"), Expr: intLit(1), Span: sp()},
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name:       id("wf"),
		Statements: []ast.WorkflowStatement{call},
		Span:       sp(),
	}
	d := doc("mem://badcall.wdl", "1.2")
	d.Tasks = []*ast.TaskDefinition{task}
	d.Workflows = []*ast.WorkflowDefinition{w}

	result := analyzeOne(t, d)
	errs := errorsOnly(result)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "`bogus` is not an input of `noop`")
}

func TestFindScopeByPosition(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:   id("t"),
		Inputs: []*ast.Decl{decl(ty("Int"), "x", nil)},
		Span:   ast.Span{Start: 0, End: 99000},
	}
	d := doc("mem://pos.wdl", "1.2")
	d.Tasks = []*ast.TaskDefinition{task}

	result := analyzeOne(t, d)
	analyzed, ok := result.Task("t")
	require.True(t, ok)

	s, ok := analyzed.Scopes.FindByPosition(500)
	require.True(t, ok)
	_, ok = s.Lookup("x")
	assert.True(t, ok)
}
