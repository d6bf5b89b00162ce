package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/backend"
	"github.com/funvibe/wdlx/internal/eval"
)

var offset int

func sp() ast.Span {
	offset += 10
	return ast.Span{Start: offset, End: offset + 5}
}

func id(name string) ast.Ident { return ast.Ident{Name: name, Span: sp()} }

func helloDocument() *ast.Document {
	return &ast.Document{
		URI:         "mem://wdl/hello.wdl",
		VersionText: "1.2",
		VersionSpan: sp(),
		Tasks: []*ast.TaskDefinition{{
			Name: id("hello"),
			Command: &ast.CommandSection{
				Heredoc: true,
				Parts: []ast.CommandPart{
					&ast.CommandText{Value: "true", Span: sp()},
				},
				Span: sp(),
			},
			Span: sp(),
		}},
		Span: ast.Span{Start: 0, End: 100000},
	}
}

func source(d *ast.Document) func(string) (*ast.Document, error) {
	return func(string) (*ast.Document, error) { return d, nil }
}

func TestPipelineAnalyzeAndEvaluate(t *testing.T) {
	tasks := eval.NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	workflows := eval.NewWorkflowEvaluator(tasks, zap.NewNop(), 1)

	result := New(
		&AnalyzeProcessor{Source: source(helloDocument())},
		&GateProcessor{},
		&EvaluateProcessor{Tasks: tasks, Workflows: workflows},
	).Run(&Context{
		Ctx:       context.Background(),
		URI:       "mem://wdl/hello.wdl",
		Target:    "hello",
		OutputDir: t.TempDir(),
	})

	require.Empty(t, result.Errors)
	require.NotNil(t, result.Doc)
	assert.NotNil(t, result.Outputs)
}

func TestPipelineGateStopsEvaluation(t *testing.T) {
	d := helloDocument()
	// An unknown name in a declaration makes analysis fail with an
	// error diagnostic.
	d.Tasks[0].Decls = []*ast.Decl{{
		Type: &ast.TypeRef{Name: "Int", Span: sp()},
		Name: id("x"),
		Expr: &ast.NameRef{Name: "missing", Span: sp()},
		Span: sp(),
	}}

	tasks := eval.NewTaskEvaluator(backend.NewLocal(1, zap.NewNop()), nil, nil, zap.NewNop(), 0)
	workflows := eval.NewWorkflowEvaluator(tasks, zap.NewNop(), 1)

	result := New(
		&AnalyzeProcessor{Source: source(d)},
		&GateProcessor{},
		&EvaluateProcessor{Tasks: tasks, Workflows: workflows},
	).Run(&Context{
		Ctx:    context.Background(),
		URI:    "mem://wdl/hello.wdl",
		Target: "hello",
	})

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Error(), "failing due to")
	assert.Nil(t, result.Outputs, "evaluation must not run past the gate")
	assert.NotEmpty(t, result.Diagnostics(), "analysis diagnostics still accumulate")
}
