// Package pipeline chains the stages of a wdlx invocation: document
// analysis, diagnostic gating, and evaluation.
package pipeline

import (
	"context"

	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/eval"
)

// Context flows through the pipeline stages.
type Context struct {
	Ctx context.Context
	// URI addresses the root document.
	URI   string
	Graph *document.Graph
	Doc   *document.Document
	// Target names the task to evaluate; empty selects the workflow.
	Target string
	Inputs map[string]eval.Value
	// OutputDir is the run root directory.
	OutputDir string
	Outputs   *eval.Outputs
	// Errors collects stage failures; evaluation is skipped once a
	// failure is recorded, but analysis diagnostics still accumulate.
	Errors []error
}

// Diagnostics returns the root document's diagnostics, if analyzed.
func (c *Context) Diagnostics() []*diagnostics.Diagnostic {
	if c.Doc == nil {
		return nil
	}
	return c.Doc.Diagnostics
}

func (c *Context) fail(err error) {
	c.Errors = append(c.Errors, err)
}

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *Context) *Context
}

// Pipeline is a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

// New creates a pipeline from stages.
func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline. Stages run even after failures so
// diagnostics from every stage accumulate; stages that cannot make
// progress return the context unchanged.
func (p *Pipeline) Run(initial *Context) *Context {
	ctx := initial
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
	}
	return ctx
}

// AnalyzeProcessor analyzes the root document and its import closure.
type AnalyzeProcessor struct {
	Source document.Source
}

func (p *AnalyzeProcessor) Process(c *Context) *Context {
	c.Graph = document.NewGraph(p.Source)
	doc, err := c.Graph.Analyze(c.URI)
	if err != nil {
		c.fail(err)
		return c
	}
	c.Doc = doc
	return c
}

// GateProcessor fails the pipeline when diagnostics exceed the allowed
// severity.
type GateProcessor struct {
	DenyWarnings bool
	DenyNotes    bool
}

func (p *GateProcessor) Process(c *Context) *Context {
	if c.Doc == nil {
		return c
	}
	if err := c.Doc.Counts().Check(p.DenyWarnings, p.DenyNotes); err != nil {
		c.fail(err)
	}
	return c
}

// EvaluateProcessor runs the selected task or workflow.
type EvaluateProcessor struct {
	Tasks     *eval.TaskEvaluator
	Workflows *eval.WorkflowEvaluator
}

func (p *EvaluateProcessor) Process(c *Context) *Context {
	if c.Doc == nil || len(c.Errors) > 0 {
		return c
	}
	if c.Target != "" {
		if task, ok := c.Doc.Task(c.Target); ok {
			result, err := p.Tasks.Evaluate(c.Ctx, c.Doc, task, c.Inputs, c.OutputDir, "")
			if err != nil {
				c.fail(err)
				return c
			}
			c.Outputs = result.Outputs
			return c
		}
	}
	outputs, err := p.Workflows.Evaluate(c.Ctx, c.Doc, c.Inputs, c.OutputDir)
	if err != nil {
		c.fail(err)
		return c
	}
	c.Outputs = outputs
	return c
}
