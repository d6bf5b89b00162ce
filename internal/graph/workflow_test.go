package graph

import (
	"strings"
	"testing"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
)

func scatter(variable string, iterand ast.Expr, body ...ast.WorkflowStatement) *ast.ScatterStatement {
	return &ast.ScatterStatement{
		Variable:   ident(variable),
		Expr:       iterand,
		Statements: body,
		Span:       sp(),
	}
}

func conditional(guard ast.Expr, body ...ast.WorkflowStatement) *ast.ConditionalStatement {
	return &ast.ConditionalStatement{Expr: guard, Statements: body, Span: sp()}
}

func TestWorkflowScatterEntryExit(t *testing.T) {
	inner := decl("x", add(ref("i"), intLit(1)))
	sc := scatter("i", ref("items"), inner)
	w := &ast.WorkflowDefinition{
		Name:   ident("w"),
		Inputs: []*ast.Decl{decl("items", nil)},
		Statements: []ast.WorkflowStatement{
			sc,
			decl("y", ref("x")),
		},
		Span: sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildWorkflowGraph(w, &diags)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	ee, ok := g.EntryExits[ast.WorkflowStatement(sc)]
	if !ok {
		t.Fatalf("the scatter should have entry and exit nodes")
	}
	entry, exit := ee[0], ee[1]

	// The exit depends on the entry and on the body statement.
	if !g.HasPath(entry, exit) {
		t.Errorf("exit should depend on entry")
	}

	// A reference from outside the scatter to a name defined inside it
	// connects to the scatter's exit node.
	var yIndex NodeIndex = -1
	var xIndex NodeIndex = -1
	for i := 0; i < g.NodeCount(); i++ {
		switch n := g.Node(NodeIndex(i)).(type) {
		case WorkflowDecl:
			switch n.Decl.Name.Name {
			case "y":
				yIndex = NodeIndex(i)
			case "x":
				xIndex = NodeIndex(i)
			}
		}
	}
	if yIndex < 0 || xIndex < 0 {
		t.Fatalf("declaration nodes not found")
	}
	if !contains(g.Dependencies(yIndex), exit) {
		t.Errorf("`y` should depend on the scatter exit, not the inner declaration")
	}
	if contains(g.Dependencies(yIndex), xIndex) {
		t.Errorf("`y` should not depend on the inner declaration directly")
	}

	// A reference from inside the scatter to a name in the enclosing
	// scope connects from the scatter entry.
	var itemsIndex NodeIndex = -1
	for i := 0; i < g.NodeCount(); i++ {
		if n, ok := g.Node(NodeIndex(i)).(WorkflowInput); ok && n.Decl.Name.Name == "items" {
			itemsIndex = NodeIndex(i)
		}
	}
	if !contains(g.Dependencies(entry), itemsIndex) {
		t.Errorf("the scatter entry should depend on the iterand input")
	}

	// Topological order runs entry, body, exit.
	order := g.Toposort()
	position := make(map[NodeIndex]int)
	for pos, index := range order {
		position[index] = pos
	}
	if !(position[entry] < position[xIndex] && position[xIndex] < position[exit]) {
		t.Errorf("order should be entry < body < exit")
	}
	if position[exit] > position[yIndex] {
		t.Errorf("`y` should come after the scatter exit")
	}
}

func TestWorkflowScatterVariableScoping(t *testing.T) {
	// The scatter variable is not visible outside its statement.
	w := &ast.WorkflowDefinition{
		Name:   ident("w"),
		Inputs: []*ast.Decl{decl("items", nil)},
		Statements: []ast.WorkflowStatement{
			scatter("i", ref("items")),
			decl("y", ref("i")),
		},
		Span: sp(),
	}

	var diags []*diagnostics.Diagnostic
	BuildWorkflowGraph(w, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "unknown name `i`") {
		t.Fatalf("diagnostics = %v, want unknown name `i`", diags)
	}
}

func TestWorkflowConditionalNodes(t *testing.T) {
	cond := conditional(ref("go"), decl("x", intLit(1)))
	w := &ast.WorkflowDefinition{
		Name:       ident("w"),
		Inputs:     []*ast.Decl{decl("go", nil)},
		Statements: []ast.WorkflowStatement{cond},
		Outputs:    []*ast.Decl{decl("out", ref("x"))},
		Span:       sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildWorkflowGraph(w, &diags)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	ee := g.EntryExits[ast.WorkflowStatement(cond)]
	var outIndex NodeIndex = -1
	for i := 0; i < g.NodeCount(); i++ {
		if n, ok := g.Node(NodeIndex(i)).(WorkflowOutput); ok && n.Decl.Name.Name == "out" {
			outIndex = NodeIndex(i)
		}
	}
	if !contains(g.Dependencies(outIndex), ee[1]) {
		t.Errorf("the output should depend on the conditional exit")
	}
}

func TestWorkflowCallAfter(t *testing.T) {
	first := &ast.CallStatement{Target: []ast.Ident{ident("setup")}, Span: sp()}
	second := &ast.CallStatement{
		Target: []ast.Ident{ident("work")},
		Afters: []ast.Ident{ident("setup")},
		Span:   sp(),
	}
	w := &ast.WorkflowDefinition{
		Name:       ident("w"),
		Statements: []ast.WorkflowStatement{first, second},
		Span:       sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildWorkflowGraph(w, &diags)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	var firstIndex, secondIndex NodeIndex = -1, -1
	for i := 0; i < g.NodeCount(); i++ {
		if n, ok := g.Node(NodeIndex(i)).(WorkflowCall); ok {
			if n.Stmt == first {
				firstIndex = NodeIndex(i)
			} else {
				secondIndex = NodeIndex(i)
			}
		}
	}
	if !contains(g.Dependencies(secondIndex), firstIndex) {
		t.Errorf("`after` should order the second call behind the first")
	}
}

func TestWorkflowDeclOverridesScatterVariable(t *testing.T) {
	// A declaration conflicting with a scatter variable reports the
	// conflict but still wins.
	inner := decl("i", intLit(1))
	w := &ast.WorkflowDefinition{
		Name:   ident("w"),
		Inputs: []*ast.Decl{decl("items", nil)},
		Statements: []ast.WorkflowStatement{
			scatter("i", ref("items"), inner),
		},
		Span: sp(),
	}

	var diags []*diagnostics.Diagnostic
	g := BuildWorkflowGraph(w, &diags)
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "conflicting") {
		t.Fatalf("diagnostics = %v, want a conflict", diags)
	}
	found := false
	for i := 0; i < g.NodeCount(); i++ {
		if n, ok := g.Node(NodeIndex(i)).(WorkflowDecl); ok && n.Decl == inner {
			found = true
		}
	}
	if !found {
		t.Errorf("the declaration node should still be added")
	}
}

func contains(indexes []NodeIndex, want NodeIndex) bool {
	for _, i := range indexes {
		if i == want {
			return true
		}
	}
	return false
}
