package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/graph"
	"github.com/funvibe/wdlx/internal/scope"
	"github.com/funvibe/wdlx/internal/types"
)

// WorkflowEvaluator drives workflow composition: scatter and
// conditional execution, call submission, and promotion of inner scopes
// into parent scopes.
type WorkflowEvaluator struct {
	tasks  *TaskEvaluator
	logger *zap.Logger
	// maxScatter bounds concurrently evaluating scatter bodies per
	// scatter statement.
	maxScatter int
}

// NewWorkflowEvaluator creates a workflow evaluator submitting calls to
// the given task evaluator.
func NewWorkflowEvaluator(tasks *TaskEvaluator, logger *zap.Logger, maxScatter int) *WorkflowEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxScatter <= 0 {
		maxScatter = 1
	}
	return &WorkflowEvaluator{tasks: tasks, logger: logger, maxScatter: maxScatter}
}

// Evaluate runs a document's workflow with the given inputs, placing
// run state under rootDir, and returns the workflow outputs.
func (we *WorkflowEvaluator) Evaluate(ctx context.Context, doc *document.Document, inputs map[string]Value, rootDir string) (*Outputs, error) {
	w := doc.Workflow()
	if w == nil {
		return nil, fmt.Errorf("document `%s` does not contain a workflow", doc.URI)
	}
	if counts := doc.Counts(); counts.Errors > 0 {
		return nil, fmt.Errorf("cannot evaluate workflow `%s`: the document has %d error diagnostic(s)", w.Name, counts.Errors)
	}
	return we.evaluateWorkflow(ctx, doc, w, inputs, rootDir)
}

func (we *WorkflowEvaluator) evaluateWorkflow(ctx context.Context, doc *document.Document, w *document.Workflow, inputs map[string]Value, rootDir string) (*Outputs, error) {
	var scratch []*diagnostics.Diagnostic
	g := graph.BuildWorkflowGraph(w.Def, &scratch)

	run := &workflowRun{
		we:      we,
		doc:     doc,
		w:       w,
		graph:   g,
		rootDir: rootDir,
		order:   make(map[graph.NodeIndex]int),
		nodes:   make(map[ast.WorkflowStatement]graph.NodeIndex),
	}
	for position, index := range g.Toposort() {
		run.order[index] = position
	}
	for i := 0; i < g.NodeCount(); i++ {
		index := graph.NodeIndex(i)
		switch n := g.Node(index).(type) {
		case graph.WorkflowDecl:
			run.nodes[n.Decl] = index
		case graph.WorkflowCall:
			run.nodes[n.Stmt] = index
		case graph.WorkflowScatter:
			run.nodes[n.Stmt] = index
		case graph.WorkflowConditional:
			run.nodes[n.Stmt] = index
		case graph.WorkflowOutput:
			run.nodes[n.Decl] = index
		}
	}

	root := NewScope(nil)
	io := &IO{WorkDir: rootDir, TempDir: filepath.Join(rootDir, "tmp"), Transfer: we.tasks.transfer}

	// Bind inputs first: user-supplied values win, then defaults.
	for _, name := range w.Inputs.Names() {
		in, _ := w.Inputs.Get(name)
		decl := workflowInputDecl(w.Def, name)
		v, supplied := inputs[name]
		if !supplied {
			if decl != nil && decl.Expr != nil {
				ev := NewEvaluator(doc, root, io)
				evaluated, err := ev.Eval(ctx, decl.Expr)
				if err != nil {
					return nil, err
				}
				v = evaluated
			} else if in.Type.IsOptional() {
				v = NoneOf(in.Type)
			} else {
				return nil, fmt.Errorf("missing required input `%s` to workflow `%s`", name, w.Name)
			}
		}
		span := ast.Span{}
		if decl != nil {
			span = decl.Name.Span
		}
		coerced, err := Coerce(v, in.Type, span)
		if err != nil {
			return nil, err
		}
		root.Insert(name, coerced)
	}
	for name := range inputs {
		if _, ok := w.Inputs.Get(name); !ok {
			return nil, fmt.Errorf("`%s` is not an input of workflow `%s`", name, w.Name)
		}
	}

	if err := run.evalStatements(ctx, w.Def.Statements, root, rootDir); err != nil {
		return nil, err
	}

	// Outputs evaluate against the fully promoted root scope.
	outputs := NewOutputs()
	ev := NewEvaluator(doc, NewScope(root), io)
	for _, decl := range orderedOutputs(w, run) {
		out, _ := w.Outputs.Get(decl.Name.Name)
		v, err := ev.Eval(ctx, decl.Expr)
		if err != nil {
			return nil, err
		}
		coerced, err := Coerce(v, out.Type, decl.Expr.Pos())
		if err != nil {
			return nil, err
		}
		ev.scope.Insert(decl.Name.Name, coerced)
		outputs.Add(decl.Name.Name, coerced)
	}
	return outputs, nil
}

// workflowRun is per-evaluation driver state.
type workflowRun struct {
	we      *WorkflowEvaluator
	doc     *document.Document
	w       *document.Workflow
	graph   *graph.WorkflowGraph
	rootDir string
	// order maps graph nodes to topological positions; sibling
	// statements evaluate in this order.
	order map[graph.NodeIndex]int
	nodes map[ast.WorkflowStatement]graph.NodeIndex

	// callSeq disambiguates call directories across scatter shards.
	callSeq atomic.Int64
}

// evalStatements evaluates a block's statements in topological order
// within the given scope.
func (run *workflowRun) evalStatements(ctx context.Context, stmts []ast.WorkflowStatement, s *Scope, dir string) error {
	ordered := append([]ast.WorkflowStatement(nil), stmts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return run.order[run.nodes[ordered[i]]] < run.order[run.nodes[ordered[j]]]
	})

	for _, stmt := range ordered {
		switch stmt := stmt.(type) {
		case *ast.Decl:
			if err := run.evalDecl(ctx, stmt, s, dir); err != nil {
				return err
			}
		case *ast.CallStatement:
			if err := run.evalCallStatement(ctx, stmt, s, dir); err != nil {
				return err
			}
		case *ast.ConditionalStatement:
			if err := run.evalConditional(ctx, stmt, s, dir); err != nil {
				return err
			}
		case *ast.ScatterStatement:
			if err := run.evalScatter(ctx, stmt, s, dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (run *workflowRun) newEvaluator(s *Scope, dir string) *Evaluator {
	io := &IO{WorkDir: dir, TempDir: filepath.Join(run.rootDir, "tmp"), Transfer: run.we.tasks.transfer}
	return NewEvaluator(run.doc, s, io)
}

func (run *workflowRun) evalDecl(ctx context.Context, decl *ast.Decl, s *Scope, dir string) error {
	ev := run.newEvaluator(s, dir)
	v, err := ev.Eval(ctx, decl.Expr)
	if err != nil {
		return err
	}
	declared := run.declaredType(decl, s)
	coerced, err := Coerce(v, declared, decl.Expr.Pos())
	if err != nil {
		return err
	}
	s.Insert(decl.Name.Name, coerced)
	return nil
}

// declaredType finds a declaration's analyzed type via the workflow's
// scope tree.
func (run *workflowRun) declaredType(decl *ast.Decl, s *Scope) types.Type {
	if ref, ok := run.w.Scopes.FindByPosition(decl.Name.Span.Start); ok {
		if n, ok := ref.Lookup(decl.Name.Name); ok {
			return n.Type
		}
	}
	return types.Union
}

func (run *workflowRun) evalConditional(ctx context.Context, stmt *ast.ConditionalStatement, s *Scope, dir string) error {
	ev := run.newEvaluator(s, dir)
	guard, err := ev.Eval(ctx, stmt.Expr)
	if err != nil {
		return err
	}
	b, ok := guard.(Boolean)
	if !ok {
		return NewError(diagnostics.TypeMismatch(types.Boolean, guard.Type(), stmt.Expr.Pos()))
	}

	if bool(b) {
		inner := NewScope(s)
		if err := run.evalStatements(ctx, stmt.Statements, inner, dir); err != nil {
			return err
		}
		// Promotion: every name defined inside becomes optional in the
		// parent.
		inner.Names(func(name string, v Value) bool {
			s.Insert(name, v)
			return true
		})
		return nil
	}

	// The body is skipped; every name defined inside becomes None of
	// its optional type, taken from the analyzed block scope.
	if block, ok := run.w.BlockScope(stmt); ok {
		names, nameTypes := blockNames(block)
		for i, name := range names {
			s.Insert(name, NoneOf(nameTypes[i]))
		}
	}
	return nil
}

func (run *workflowRun) evalScatter(ctx context.Context, stmt *ast.ScatterStatement, s *Scope, dir string) error {
	ev := run.newEvaluator(s, dir)
	iterand, err := ev.Eval(ctx, stmt.Expr)
	if err != nil {
		return err
	}
	arr, ok := iterand.(Array)
	if !ok {
		return NewError(diagnostics.TypeMismatch(types.Array{Element: types.Union}, iterand.Type(), stmt.Expr.Pos()))
	}

	// Each element evaluates in its own child scope; bodies run
	// concurrently and results preserve iteration order.
	shards := make([]*Scope, len(arr.Elements))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(run.we.maxScatter)
	for i, element := range arr.Elements {
		group.Go(func() error {
			shard := NewScope(s)
			shard.Insert(stmt.Variable.Name, element)
			shardDir := filepath.Join(dir, fmt.Sprintf("shard-%d", i))
			if err := run.evalStatements(groupCtx, stmt.Statements, shard, shardDir); err != nil {
				return err
			}
			shards[i] = shard
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	// Promotion: wrap every name defined inside in an Array preserving
	// iteration order; the scatter variable itself is excluded.
	var names []string
	if len(shards) > 0 {
		shards[0].Names(func(name string, _ Value) bool {
			if name != stmt.Variable.Name {
				names = append(names, name)
			}
			return true
		})
	} else if block, ok := run.w.BlockScope(stmt); ok {
		ns, _ := blockNames(block)
		for _, name := range ns {
			if name != stmt.Variable.Name {
				names = append(names, name)
			}
		}
	}

	for _, name := range names {
		elements := make([]Value, len(shards))
		var elemType types.Type = types.Union
		for i, shard := range shards {
			v, _ := shard.Lookup(name)
			elements[i] = v
			if v != nil {
				if i == 0 {
					elemType = v.Type()
				} else if common, ok := types.CommonType(elemType, v.Type()); ok {
					elemType = common
				}
			}
		}
		s.Insert(name, Array{ty: types.Array{Element: elemType, NonEmpty: len(elements) > 0}, Elements: elements})
	}
	return nil
}

func (run *workflowRun) evalCallStatement(ctx context.Context, stmt *ast.CallStatement, s *Scope, dir string) error {
	name := stmt.Name().Name
	callType, ok := run.w.Calls[name]
	if !ok {
		return NewError(diagnostics.New(fmt.Sprintf("unknown call `%s`", name)).WithLabel(stmt.Span, ""))
	}

	// Resolve the target document through the namespace path.
	target := run.doc
	for _, nsName := range stmt.Target[:len(stmt.Target)-1] {
		ns, found := target.Namespace(nsName.Name)
		if !found || ns.Document == nil {
			return NewError(diagnostics.UnknownNamespace(nsName.Name, nsName.Span))
		}
		target = ns.Document
	}

	// Assemble call inputs: explicit bindings first, then enclosing-
	// scope names for the remainder when nested inputs are permitted.
	callInputs := make(map[string]Value, len(stmt.Inputs))
	ev := run.newEvaluator(s, dir)
	for _, input := range stmt.Inputs {
		var v Value
		var err error
		if input.Expr != nil {
			v, err = ev.Eval(ctx, input.Expr)
		} else if found, ok := s.Lookup(input.Name.Name); ok {
			v = found
		} else {
			err = NewError(diagnostics.UnknownName(input.Name.Name, input.Name.Span))
		}
		if err != nil {
			return err
		}
		declared, ok := callType.Input(input.Name.Name)
		if !ok {
			return NewError(diagnostics.UnknownCallInput(callType.Name, input.Name.Name, input.Name.Span))
		}
		coerced, err := Coerce(v, declared.Type, input.Span)
		if err != nil {
			return err
		}
		callInputs[input.Name.Name] = coerced
	}
	if run.w.AllowsNestedInputs {
		for _, in := range callType.Inputs {
			if _, bound := callInputs[in.Name]; bound {
				continue
			}
			if v, ok := s.Lookup(in.Name); ok {
				callInputs[in.Name] = v
			}
		}
	}

	seq := run.callSeq.Add(1)
	callDir := filepath.Join(dir, "calls", fmt.Sprintf("%s-%d", name, seq))

	outputs, err := run.invoke(ctx, target, callType, callInputs, callDir)
	if err != nil {
		return err
	}
	values := make(map[string]Value, outputs.Len())
	for _, outName := range outputs.Names() {
		v, _ := outputs.Get(outName)
		values[outName] = v
	}
	s.Insert(name, NewCallOutputs(callType, values))
	return nil
}

func (run *workflowRun) invoke(ctx context.Context, target *document.Document, callType *types.Call, inputs map[string]Value, dir string) (*Outputs, error) {
	run.we.logger.Info("invoking call",
		zap.String("workflow", run.w.Name),
		zap.String("target", callType.Name),
		zap.String("kind", callType.Kind.String()))

	if callType.Kind == types.WorkflowCall {
		return run.we.evaluateWorkflow(ctx, target, target.Workflow(), inputs, dir)
	}
	task, ok := target.Task(callType.Name)
	if !ok {
		return nil, fmt.Errorf("task `%s` was not found in `%s`", callType.Name, target.URI)
	}
	result, err := run.we.tasks.Evaluate(ctx, target, task, inputs, dir, "")
	if err != nil {
		return nil, err
	}
	return result.Outputs, nil
}

// blockNames extracts the names and types bound in an analyzed block
// scope, in insertion order.
func blockNames(block scope.Ref) ([]string, []types.Type) {
	var names []string
	var nameTypes []types.Type
	block.Names(func(name string, n scope.Name) bool {
		names = append(names, name)
		nameTypes = append(nameTypes, n.Type)
		return true
	})
	return names, nameTypes
}

func workflowInputDecl(def *ast.WorkflowDefinition, name string) *ast.Decl {
	for _, decl := range def.Inputs {
		if decl.Name.Name == name {
			return decl
		}
	}
	return nil
}

func orderedOutputs(w *document.Workflow, run *workflowRun) []*ast.Decl {
	ordered := append([]*ast.Decl(nil), w.Def.Outputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return run.order[run.nodes[ordered[i]]] < run.order[run.nodes[ordered[j]]]
	})
	return ordered
}
