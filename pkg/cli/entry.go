// Package cli implements the command entry points shared by the wdlx
// binary: document loading, pipeline assembly, and terminal diagnostic
// rendering.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/backend"
	"github.com/funvibe/wdlx/internal/config"
	"github.com/funvibe/wdlx/internal/eval"
	"github.com/funvibe/wdlx/internal/journal"
	"github.com/funvibe/wdlx/internal/pipeline"
	"github.com/funvibe/wdlx/internal/transfer"
)

// FileSource loads documents from the local filesystem. Documents are
// the JSON syntax-tree interchange produced by the companion parser.
func FileSource(uri string) (*ast.Document, error) {
	path := uri
	if parsed, err := url.Parse(uri); err == nil && parsed.Scheme == "file" {
		path = parsed.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ast.DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.URI == "" {
		doc.URI = uri
	}
	return doc, nil
}

// Check analyzes a document and renders its diagnostics. It returns an
// error when diagnostics exceed the accepted severities.
func Check(uri string, denyWarnings, denyNotes bool) error {
	result := pipeline.New(
		&pipeline.AnalyzeProcessor{Source: FileSource},
		&pipeline.GateProcessor{DenyWarnings: denyWarnings, DenyNotes: denyNotes},
	).Run(&pipeline.Context{Ctx: context.Background(), URI: uri})

	RenderDiagnostics(os.Stderr, uri, result.Diagnostics())
	return firstError(result.Errors)
}

// RunOptions configure a run invocation.
type RunOptions struct {
	// Target selects a task by name; empty runs the workflow.
	Target string
	// InputsPath is a JSON file of input values keyed by input name.
	InputsPath   string
	DenyWarnings bool
	DenyNotes    bool
	Config       *config.Config
	Logger       *zap.Logger
}

// Run analyzes and evaluates a document, printing outputs as JSON.
func Run(ctx context.Context, uri string, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inputs, err := loadInputs(opts.InputsPath)
	if err != nil {
		return err
	}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
	}

	var t transfer.Transferer
	if cfg.StageDir != "" {
		t = transfer.New(cfg.StageDir)
	}

	local := backend.NewLocal(cfg.MaxConcurrentTasks, logger)
	tasks := eval.NewTaskEvaluator(local, t, j, logger, cfg.DefaultMaxRetries)
	workflows := eval.NewWorkflowEvaluator(tasks, logger, int(cfg.MaxConcurrentScatter))

	result := pipeline.New(
		&pipeline.AnalyzeProcessor{Source: FileSource},
		&pipeline.GateProcessor{DenyWarnings: opts.DenyWarnings, DenyNotes: opts.DenyNotes},
		&pipeline.EvaluateProcessor{Tasks: tasks, Workflows: workflows},
	).Run(&pipeline.Context{
		Ctx:       ctx,
		URI:       uri,
		Target:    opts.Target,
		Inputs:    inputs,
		OutputDir: cfg.OutputDir,
	})

	RenderDiagnostics(os.Stderr, uri, result.Diagnostics())
	if err := firstError(result.Errors); err != nil {
		return err
	}
	return printOutputs(result.Outputs)
}

func loadInputs(path string) (map[string]eval.Value, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inputs `%s`: %w", path, err)
	}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing inputs `%s`: %w", path, err)
	}
	inputs := make(map[string]eval.Value, len(raw))
	for name, value := range raw {
		v, err := eval.FromJSON(value)
		if err != nil {
			return nil, fmt.Errorf("input `%s`: %w", name, err)
		}
		inputs[name] = v
	}
	return inputs, nil
}

func printOutputs(outputs *eval.Outputs) error {
	if outputs == nil {
		return nil
	}
	rendered := make(map[string]string, outputs.Len())
	for _, name := range outputs.Names() {
		v, _ := outputs.Get(name)
		rendered[name] = v.String()
	}
	data, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func firstError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
