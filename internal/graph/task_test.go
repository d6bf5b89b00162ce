package graph

import (
	"strings"
	"testing"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
)

var nextSpan int

func sp() ast.Span {
	nextSpan += 10
	return ast.Span{Start: nextSpan, End: nextSpan + 5}
}

func ident(name string) ast.Ident {
	return ast.Ident{Name: name, Span: sp()}
}

func intType() *ast.TypeRef {
	return &ast.TypeRef{Name: "Int", Span: sp()}
}

func decl(name string, expr ast.Expr) *ast.Decl {
	return &ast.Decl{Type: intType(), Name: ident(name), Expr: expr, Span: sp()}
}

func ref(name string) ast.Expr {
	return &ast.NameRef{Name: name, Span: sp()}
}

func intLit(v int64) ast.Expr {
	return &ast.LiteralInt{Value: v, Span: sp()}
}

func add(left, right ast.Expr) ast.Expr {
	return &ast.BinaryExpr{Op: ast.OpAdd, Left: left, Right: right, Span: sp()}
}

func command(refs ...string) *ast.CommandSection {
	section := &ast.CommandSection{Heredoc: true, Span: sp()}
	section.Parts = append(section.Parts, &ast.CommandText{Value: "echo ", Span: sp()})
	for _, name := range refs {
		section.Parts = append(section.Parts, &ast.Placeholder{Expr: ref(name), Span: sp()})
	}
	return section
}

func TestTaskGraphOrder(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:    ident("hello"),
		Inputs:  []*ast.Decl{decl("name", nil)},
		Decls:   []*ast.Decl{decl("greeting", add(ref("name"), intLit(1)))},
		Command: command("greeting"),
		Outputs: []*ast.Decl{decl("out", ref("greeting"))},
		Span:    sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildTaskGraph(ast.V1_0, task, &diags)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	order := g.Toposort()
	if len(order) != 4 {
		t.Fatalf("node count = %d, want 4", len(order))
	}

	position := make(map[string]int)
	for pos, index := range order {
		position[DescribeTaskNode(g.Node(index))] = pos
	}
	if position["`name`"] > position["`greeting`"] {
		t.Errorf("input should evaluate before the declaration referencing it")
	}
	if position["`greeting`"] > position["command section"] {
		t.Errorf("declarations should evaluate before the command")
	}
	if position["command section"] > position["`out`"] {
		t.Errorf("outputs should evaluate after the command")
	}
}

func TestTaskGraphSelfReference(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:  ident("t"),
		Decls: []*ast.Decl{decl("x", add(ref("x"), intLit(1)))},
		Span:  sp(),
	}

	var diags []*diagnostics.Diagnostic
	BuildTaskGraph(ast.V1_0, task, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "self-referential") {
		t.Fatalf("diagnostics = %v, want a self-referential error", diags)
	}
}

func TestTaskGraphCycle(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: ident("t"),
		Decls: []*ast.Decl{
			decl("a", ref("b")),
			decl("b", ref("a")),
		},
		Span: sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildTaskGraph(ast.V1_0, task, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "reference cycle") {
		t.Fatalf("diagnostics = %v, want a reference cycle error", diags)
	}
	// The offending edge is omitted, so the sort covers every node.
	if got := len(g.Toposort()); got != g.NodeCount() {
		t.Errorf("toposort covered %d of %d nodes", got, g.NodeCount())
	}
}

func TestTaskGraphNameConflict(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: ident("t"),
		Inputs: []*ast.Decl{
			decl("x", nil),
			decl("x", nil),
		},
		Span: sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildTaskGraph(ast.V1_0, task, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "conflicting input name") {
		t.Fatalf("diagnostics = %v, want a name conflict", diags)
	}
	if g.NodeCount() != 1 {
		t.Errorf("the conflicting node should not be added")
	}
}

func TestTaskGraphUnknownName(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:  ident("t"),
		Decls: []*ast.Decl{decl("x", ref("missing"))},
		Span:  sp(),
	}

	var diags []*diagnostics.Diagnostic
	BuildTaskGraph(ast.V1_0, task, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "unknown name `missing`") {
		t.Fatalf("diagnostics = %v, want an unknown name error", diags)
	}
}

func TestTaskVarVersionGate(t *testing.T) {
	outputs := []*ast.Decl{decl("out", ref(TaskVarName))}

	for _, tt := range []struct {
		version ast.Version
		want    int
	}{
		{ast.V1_0, 1},
		{ast.V1_2, 0},
	} {
		task := &ast.TaskDefinition{
			Name:    ident("t"),
			Command: command(),
			Outputs: outputs,
			Span:    sp(),
		}
		var diags []*diagnostics.Diagnostic
		BuildTaskGraph(tt.version, task, &diags)
		if len(diags) != tt.want {
			t.Errorf("version %s: diagnostics = %v, want %d", tt.version, diags, tt.want)
		}
	}
}

func TestRequirementsExclusiveWithRuntime(t *testing.T) {
	task := &ast.TaskDefinition{
		Name:         ident("t"),
		Command:      command(),
		Runtime:      &ast.RuntimeSection{Span: sp()},
		Requirements: &ast.RequirementsSection{Span: sp()},
		Span:         sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildTaskGraph(ast.V1_2, task, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "cannot coexist") {
		t.Fatalf("diagnostics = %v, want a coexistence error", diags)
	}
	if g.Requirements != -1 {
		t.Errorf("the requirements node should not be added alongside runtime")
	}
}
