package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/backend"
	"github.com/funvibe/wdlx/internal/document"
)

func typeRef(name string, params ...*ast.TypeRef) *ast.TypeRef {
	return &ast.TypeRef{Name: name, Params: params, Span: sp()}
}

func optionalRef(ref *ast.TypeRef) *ast.TypeRef {
	ref.Optional = true
	return ref
}

func newDecl(t *ast.TypeRef, name string, expr ast.Expr) *ast.Decl {
	return &ast.Decl{Type: t, Name: id(name), Expr: expr, Span: sp()}
}

func analyzeDoc(t *testing.T, d *ast.Document) *document.Document {
	t.Helper()
	g := document.NewGraph(func(uri string) (*ast.Document, error) { return d, nil })
	doc, err := g.Analyze(d.URI)
	require.NoError(t, err)
	require.Zero(t, doc.Counts().Errors, "diagnostics: %v", doc.Diagnostics)
	return doc
}

func echoTask() *ast.TaskDefinition {
	return &ast.TaskDefinition{
		Name: id("greet"),
		Inputs: []*ast.Decl{
			newDecl(typeRef("String"), "name", nil),
		},
		Command: &ast.CommandSection{
			Heredoc: true,
			Parts: []ast.CommandPart{
				&ast.CommandText{Value: "echo hello ", Span: sp()},
				&ast.Placeholder{Expr: ref("name"), Span: sp()},
			},
			Span: sp(),
		},
		Outputs: []*ast.Decl{
			newDecl(typeRef("String"), "out", call("read_string", call("stdout"))),
		},
		Span: sp(),
	}
}

func TestTaskEvaluation(t *testing.T) {
	d := &ast.Document{
		URI:         "mem://wdl/greet.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks:       []*ast.TaskDefinition{echoTask()},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)
	task, ok := doc.Task("greet")
	require.True(t, ok)

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	result, err := te.Evaluate(context.Background(), doc, task,
		map[string]Value{"name": String("bob")}, t.TempDir(), "test-task")
	require.NoError(t, err)

	assert.Equal(t, 0, result.StatusCode)
	out, ok := result.Outputs.Get("out")
	require.True(t, ok)
	assert.Equal(t, String("hello bob"), out)
}

func TestTaskMissingRequiredInput(t *testing.T) {
	d := &ast.Document{
		URI:         "mem://wdl/greet.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks:       []*ast.TaskDefinition{echoTask()},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)
	task, _ := doc.Task("greet")

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	_, err := te.Evaluate(context.Background(), doc, task, nil, t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required input `name`")
}

func TestTaskRejectedStatusCode(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: id("fail"),
		Command: &ast.CommandSection{
			Heredoc: true,
			Parts: []ast.CommandPart{
				&ast.CommandText{Value: "exit 3", Span: sp()},
			},
			Span: sp(),
		},
		Span: sp(),
	}
	d := &ast.Document{
		URI:         "mem://wdl/fail.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks:       []*ast.TaskDefinition{task},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)
	analyzed, _ := doc.Task("fail")

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	_, err := te.Evaluate(context.Background(), doc, analyzed, nil, t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 3")
}

func TestTaskAcceptedReturnCodes(t *testing.T) {
	task := &ast.TaskDefinition{
		Name: id("flaky"),
		Command: &ast.CommandSection{
			Heredoc: true,
			Parts: []ast.CommandPart{
				&ast.CommandText{Value: "exit 3", Span: sp()},
			},
			Span: sp(),
		},
		Requirements: &ast.RequirementsSection{
			Items: []*ast.SectionItem{
				{Name: id("return_codes"), Expr: intLit(3), Span: sp()},
			},
			Span: sp(),
		},
		Span: sp(),
	}
	d := &ast.Document{
		URI:         "mem://wdl/flaky.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks:       []*ast.TaskDefinition{task},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)
	analyzed, _ := doc.Task("flaky")

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	result, err := te.Evaluate(context.Background(), doc, analyzed, nil, t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.StatusCode)
}

func TestWorkflowScatterPromotion(t *testing.T) {
	scatterStmt := &ast.ScatterStatement{
		Variable: id("i"),
		Expr:     array(intLit(1), intLit(2), intLit(3)),
		Statements: []ast.WorkflowStatement{
			newDecl(typeRef("Int"), "x", binary(ast.OpMul, ref("i"), intLit(2))),
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name:       id("wf"),
		Statements: []ast.WorkflowStatement{scatterStmt},
		Outputs: []*ast.Decl{
			newDecl(typeRef("Array", typeRef("Int")), "y", ref("x")),
		},
		Span: sp(),
	}
	d := &ast.Document{
		URI:         "mem://wdl/scatter.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Workflows:   []*ast.WorkflowDefinition{w},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	we := NewWorkflowEvaluator(te, zap.NewNop(), 4)
	outputs, err := we.Evaluate(context.Background(), doc, nil, t.TempDir())
	require.NoError(t, err)

	y, ok := outputs.Get("y")
	require.True(t, ok)
	assert.Equal(t, "[2, 4, 6]", y.String())
}

func TestWorkflowConditional(t *testing.T) {
	build := func(guard bool) *ast.Document {
		condStmt := &ast.ConditionalStatement{
			Expr: boolLit(guard),
			Statements: []ast.WorkflowStatement{
				newDecl(typeRef("Int"), "x", intLit(42)),
			},
			Span: sp(),
		}
		w := &ast.WorkflowDefinition{
			Name:       id("wf"),
			Statements: []ast.WorkflowStatement{condStmt},
			Outputs: []*ast.Decl{
				newDecl(optionalRef(typeRef("Int")), "z", ref("x")),
			},
			Span: sp(),
		}
		return &ast.Document{
			URI:         "mem://wdl/cond.wdl",
			VersionText: "1.2",
			VersionSpan: sp(),
			Workflows:   []*ast.WorkflowDefinition{w},
			Span:        ast.Span{Start: 0, End: 1000000},
		}
	}

	te := NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	we := NewWorkflowEvaluator(te, zap.NewNop(), 1)

	outputs, err := we.Evaluate(context.Background(), analyzeDoc(t, build(true)), nil, t.TempDir())
	require.NoError(t, err)
	z, _ := outputs.Get("z")
	assert.Equal(t, "42", z.String())

	outputs, err = we.Evaluate(context.Background(), analyzeDoc(t, build(false)), nil, t.TempDir())
	require.NoError(t, err)
	z, _ = outputs.Get("z")
	assert.True(t, IsNone(z), "a false conditional promotes None")
}

func TestWorkflowCallsTask(t *testing.T) {
	task := echoTask()
	callStmt := &ast.CallStatement{
		Target: []ast.Ident{id("greet")},
		Inputs: []*ast.CallInput{
			{Name: id("name"), Expr: strLit("world"), Span: sp()},
		},
		Span: sp(),
	}
	w := &ast.WorkflowDefinition{
		Name:       id("wf"),
		Statements: []ast.WorkflowStatement{callStmt},
		Outputs: []*ast.Decl{
			newDecl(typeRef("String"), "message", &ast.AccessExpr{
				Target: ref("greet"),
				Member: id("out"),
				Span:   sp(),
			}),
		},
		Span: sp(),
	}
	d := &ast.Document{
		URI:         "mem://wdl/pipeline.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks:       []*ast.TaskDefinition{task},
		Workflows:   []*ast.WorkflowDefinition{w},
		Span:        ast.Span{Start: 0, End: 1000000},
	}
	doc := analyzeDoc(t, d)

	te := NewTaskEvaluator(backend.NewLocal(2, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	we := NewWorkflowEvaluator(te, zap.NewNop(), 2)
	outputs, err := we.Evaluate(context.Background(), doc, nil, t.TempDir())
	require.NoError(t, err)

	message, ok := outputs.Get("message")
	require.True(t, ok)
	assert.Equal(t, String("hello world"), message)
}
