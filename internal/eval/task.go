package eval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/backend"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/graph"
	"github.com/funvibe/wdlx/internal/journal"
	"github.com/funvibe/wdlx/internal/transfer"
	"github.com/funvibe/wdlx/internal/trie"
	"github.com/funvibe/wdlx/internal/types"
)

// EvaluatedTask is the result of executing a task's command and
// evaluating its outputs.
type EvaluatedTask struct {
	WorkDir    string
	Stdout     string
	Stderr     string
	StatusCode int
	Outputs    *Outputs
}

// TaskEvaluator drives single-task evaluation: command assembly,
// backend submission, and output evaluation.
type TaskEvaluator struct {
	backend  backend.Backend
	transfer transfer.Transferer
	journal  *journal.Journal
	logger   *zap.Logger
	// defaultMaxRetries applies when a task declares no max_retries.
	defaultMaxRetries int
}

// NewTaskEvaluator creates a task evaluator over a backend. The journal
// and transferer may be nil.
func NewTaskEvaluator(b backend.Backend, t transfer.Transferer, j *journal.Journal, logger *zap.Logger, defaultMaxRetries int) *TaskEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskEvaluator{backend: b, transfer: t, journal: j, logger: logger, defaultMaxRetries: defaultMaxRetries}
}

// Evaluate runs a task with the given effective inputs. The document
// must have no error diagnostics; the task id is generated when empty.
func (te *TaskEvaluator) Evaluate(ctx context.Context, doc *document.Document, task *document.Task, inputs map[string]Value, rootDir, id string) (*EvaluatedTask, error) {
	if counts := doc.Counts(); counts.Errors > 0 {
		return nil, fmt.Errorf("cannot evaluate task `%s`: the document has %d error diagnostic(s)", task.Name, counts.Errors)
	}
	if id == "" {
		id = uuid.NewString()
	}
	for name := range inputs {
		if _, ok := task.Inputs.Get(name); !ok {
			return nil, fmt.Errorf("`%s` is not an input of task `%s`", name, task.Name)
		}
	}

	exec, err := te.backend.CreateExecution(rootDir)
	if err != nil {
		return nil, fmt.Errorf("creating execution for task `%s`: %w", task.Name, err)
	}

	var scratch []*diagnostics.Diagnostic
	version := doc.Version
	g := graph.BuildTaskGraph(version, task.Def, &scratch)

	root := NewScope(nil)
	io := &IO{
		WorkDir:  rootDir,
		TempDir:  exec.TempDir(),
		Transfer: te.transfer,
	}
	ev := NewEvaluator(doc, root, io)

	info := &TaskInfo{
		Name:      task.Name,
		Id:        id,
		Cpu:       1,
		Attempt:   1,
		Meta:      metaObject(task.Def.Meta),
		ParamMeta: metaObject(task.Def.ParameterMeta),
		Ext:       NewObject(nil, map[string]Value{}),
	}

	state := &taskRun{
		te:      te,
		exec:    exec,
		ev:      ev,
		graph:   g,
		task:    task,
		info:    info,
		version: version,
		rootDir: rootDir,
		reqs:    make(map[string]Value),
		hints:   make(map[string]Value),
	}

	order := g.Toposort()
	for _, index := range order {
		switch n := g.Node(index).(type) {
		case graph.TaskInput:
			if err := state.bindInput(ctx, n.Decl, inputs); err != nil {
				return nil, err
			}
		case graph.TaskDecl:
			if err := state.bindDecl(ctx, n.Decl); err != nil {
				return nil, err
			}
		case graph.TaskRuntime:
			items, err := state.evalSection(ctx, n.Section.Items)
			if err != nil {
				return nil, err
			}
			state.reqs, state.hints = splitRuntimeItems(items)
		case graph.TaskRequirements:
			items, err := state.evalSection(ctx, n.Section.Items)
			if err != nil {
				return nil, err
			}
			state.reqs = items
		case graph.TaskHints:
			items, err := state.evalSection(ctx, n.Section.Items)
			if err != nil {
				return nil, err
			}
			state.hints = items
		case graph.TaskCommand:
			if err := state.runCommand(ctx, n.Section); err != nil {
				return nil, err
			}
		case graph.TaskOutput:
			if err := state.evalOutput(ctx, n.Decl); err != nil {
				return nil, err
			}
		}
	}

	if state.result == nil {
		return nil, fmt.Errorf("task `%s` has no command section", task.Name)
	}
	state.result.Outputs = state.outputs()
	return state.result, nil
}

// taskRun is the per-evaluation driver state; it is owned exclusively
// by one task evaluation and discarded at completion.
type taskRun struct {
	te      *TaskEvaluator
	exec    backend.Execution
	ev      *Evaluator
	graph   *graph.TaskGraph
	task    *document.Task
	info    *TaskInfo
	version ast.Version
	rootDir string

	reqs  map[string]Value
	hints map[string]Value
	// env accumulates NAME=value bindings for `env` declarations.
	env        []Value
	envNames   []string
	req        *backend.Requirements
	result     *EvaluatedTask
	outputVals *Outputs
}

func (r *taskRun) bindInput(ctx context.Context, decl *ast.Decl, inputs map[string]Value) error {
	in, _ := r.task.Inputs.Get(decl.Name.Name)
	v, supplied := inputs[decl.Name.Name]
	if !supplied {
		if decl.Expr != nil {
			evaluated, err := r.ev.Eval(ctx, decl.Expr)
			if err != nil {
				return err
			}
			v = evaluated
		} else if in.Type.IsOptional() {
			v = NoneOf(in.Type)
		} else {
			return fmt.Errorf("missing required input `%s` to task `%s`", decl.Name.Name, r.task.Name)
		}
	}
	coerced, err := Coerce(v, in.Type, decl.Name.Span)
	if err != nil {
		return err
	}
	r.bind(decl, coerced)
	return nil
}

func (r *taskRun) bindDecl(ctx context.Context, decl *ast.Decl) error {
	declared := declType(r.task, decl)
	v, err := r.ev.Eval(ctx, decl.Expr)
	if err != nil {
		return err
	}
	coerced, err := Coerce(v, declared, decl.Expr.Pos())
	if err != nil {
		return err
	}
	r.bind(decl, coerced)
	return nil
}

func (r *taskRun) bind(decl *ast.Decl, v Value) {
	r.ev.scope.Insert(decl.Name.Name, v)
	if decl.Env {
		r.envNames = append(r.envNames, decl.Name.Name)
		r.env = append(r.env, v)
	}
}

func (r *taskRun) evalSection(ctx context.Context, items []*ast.SectionItem) (map[string]Value, error) {
	values := make(map[string]Value, len(items))
	for _, item := range items {
		v, err := r.ev.Eval(ctx, item.Expr)
		if err != nil {
			return nil, err
		}
		values[item.Name.Name] = v
	}
	return values, nil
}

func (r *taskRun) runCommand(ctx context.Context, section *ast.CommandSection) error {
	req, err := convertRequirements(r.reqs)
	if err != nil {
		return fmt.Errorf("task `%s`: %w", r.task.Name, err)
	}
	_, declared := r.reqs["max_retries"]
	_, declaredAlias := r.reqs["maxRetries"]
	if !declared && !declaredAlias {
		req.MaxRetries = r.te.defaultMaxRetries
	}
	r.req = req
	hints := convertHints(r.hints)

	constraints, err := r.exec.Constraints(req, hints)
	if err != nil {
		return fmt.Errorf("task `%s`: computing constraints: %w", r.task.Name, err)
	}
	r.info.Container = constraints.Container
	if constraints.CPU > 0 {
		r.info.Cpu = constraints.CPU
	}
	r.info.Memory = constraints.Memory

	// Map every file and directory the command observes into the guest
	// namespace when the backend provides one.
	mapping, err := r.buildPathMapping(constraints)
	if err != nil {
		return err
	}
	r.ev.mapper = func(host string) (string, bool) {
		if guest, ok := r.exec.MapPath(host); ok {
			return guest, true
		}
		guest, ok := mapping[host]
		return guest, ok
	}

	// The command scope sees the task variable in 1.2 documents.
	saved := r.ev.scope
	commandScope := NewScope(saved)
	if r.version.AtLeast(ast.V1_2) {
		commandScope.Insert(graph.TaskVarName, *r.info)
	}
	r.ev.scope = commandScope
	command, err := r.ev.EvalCommand(ctx, section)
	r.ev.scope = saved
	r.ev.mapper = nil
	if err != nil {
		return err
	}

	env := make([]string, len(r.envNames))
	for i, name := range r.envNames {
		env[i] = name + "=" + Raw(r.env[i])
	}

	return r.spawn(ctx, command, req, hints, env)
}

func (r *taskRun) spawn(ctx context.Context, command string, req *backend.Requirements, hints backend.Hints, env []string) error {
	attempts := int64(req.MaxRetries) + 1
	container := r.info.Container

	for attempt := int64(1); attempt <= attempts; attempt++ {
		r.info.Attempt = attempt
		if err := r.te.journal.Submitted(r.info.Id, r.task.Name, container, attempt); err != nil {
			r.te.logger.Warn("failed to journal task submission", zap.Error(err))
		}
		r.te.logger.Info("spawning task",
			zap.String("task", r.task.Name),
			zap.String("id", r.info.Id),
			zap.Int64("attempt", attempt))

		code, err := r.exec.Spawn(ctx, command, req, hints, env)
		if err != nil {
			_ = r.te.journal.Finished(r.info.Id, -1, false)
			return fmt.Errorf("task `%s` failed to spawn: %w", r.task.Name, err)
		}

		accepted := req.Accepts(code)
		if err := r.te.journal.Finished(r.info.Id, code, accepted); err != nil {
			r.te.logger.Warn("failed to journal task completion", zap.Error(err))
		}

		if accepted {
			r.finish(code)
			return nil
		}
		r.te.logger.Warn("task exited with unaccepted status code",
			zap.String("task", r.task.Name),
			zap.Int("code", code),
			zap.Int64("attempt", attempt))
		if attempt == attempts {
			r.finish(code)
			return fmt.Errorf(
				"task `%s` terminated with status code %d; see `%s` for task error messages",
				r.task.Name, code, r.exec.Stderr())
		}
	}
	return nil
}

func (r *taskRun) finish(code int) {
	rc := int64(code)
	r.info.ReturnCode = &rc
	r.result = &EvaluatedTask{
		WorkDir:    r.exec.WorkDir(),
		Stdout:     r.exec.Stdout(),
		Stderr:     r.exec.Stderr(),
		StatusCode: code,
	}

	// Output expressions resolve stdout()/stderr() to the recorded
	// streams and relative paths against the work directory.
	r.ev.io.WorkDir = r.result.WorkDir
	r.ev.io.StdoutPath = r.result.Stdout
	r.ev.io.StderrPath = r.result.Stderr
}

// buildPathMapping localizes every file or directory reachable from a
// declaration the command depends on, using the input trie to derive
// stable guest paths.
func (r *taskRun) buildPathMapping(constraints *backend.Constraints) (map[string]string, error) {
	if constraints.GuestInputsDir == "" {
		return nil, nil
	}
	t := trie.NewWithGuestDir(constraints.GuestInputsDir)
	mapping := make(map[string]string)

	var insert func(v Value) error
	insert = func(v Value) error {
		switch v := v.(type) {
		case File:
			return insertPath(t, trie.FileKind, string(v), r.rootDir, mapping)
		case Directory:
			return insertPath(t, trie.DirectoryKind, string(v), r.rootDir, mapping)
		case Array:
			for _, el := range v.Elements {
				if err := insert(el); err != nil {
					return err
				}
			}
		case Pair:
			if err := insert(v.Left); err != nil {
				return err
			}
			return insert(v.Right)
		case Map:
			for _, e := range v.Entries {
				if err := insert(e.Value); err != nil {
					return err
				}
			}
		case Object:
			for _, name := range v.names {
				if err := insert(v.members[name]); err != nil {
					return err
				}
			}
		case Struct:
			for _, member := range v.members {
				if err := insert(member); err != nil {
					return err
				}
			}
		}
		return nil
	}

	command := r.graph.Command
	if command < 0 {
		return mapping, nil
	}
	for _, dep := range r.graph.Dependencies(command) {
		name := namedNode(r.graph.Node(dep))
		if name == "" {
			continue
		}
		if v, ok := r.ev.scope.Lookup(name); ok {
			if err := insert(v); err != nil {
				return nil, err
			}
		}
	}
	return mapping, nil
}

func insertPath(t *trie.InputTrie, kind trie.ContentKind, p, baseDir string, mapping map[string]string) error {
	index, err := t.Insert(kind, p, baseDir)
	if err != nil {
		return err
	}
	if index < 0 {
		return nil
	}
	input := t.Inputs()[index]
	if input.GuestPath != "" {
		mapping[p] = input.GuestPath
	}
	return nil
}

func (r *taskRun) evalOutput(ctx context.Context, decl *ast.Decl) error {
	if r.result == nil {
		return fmt.Errorf("task `%s`: outputs cannot be evaluated before the command completes", r.task.Name)
	}
	out, _ := r.task.Outputs.Get(decl.Name.Name)

	saved := r.ev.scope
	outputScope := NewScope(saved)
	if r.version.AtLeast(ast.V1_2) {
		outputScope.Insert(graph.TaskVarName, *r.info)
	}
	r.ev.scope = outputScope
	v, err := r.ev.Eval(ctx, decl.Expr)
	r.ev.scope = saved
	if err != nil {
		return err
	}

	coerced, err := Coerce(v, out.Type, decl.Expr.Pos())
	if err != nil {
		return err
	}
	resolved, err := r.resolveOutputValue(ctx, coerced, out.Type, decl.Expr.Pos())
	if err != nil {
		return err
	}

	r.ev.scope.Insert(decl.Name.Name, resolved)
	if r.outputVals == nil {
		r.outputVals = NewOutputs()
	}
	r.outputVals.Add(decl.Name.Name, resolved)
	return nil
}

// resolveOutputValue joins every embedded path against the work
// directory and verifies existence. A missing path is permitted only
// for optional slots, which become None.
func (r *taskRun) resolveOutputValue(ctx context.Context, v Value, t types.Type, span ast.Span) (Value, error) {
	resolvePath := func(p string) (string, bool, error) {
		if transfer.IsURL(p) {
			exists, err := r.ev.io.Exists(ctx, p)
			return p, exists, err
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.result.WorkDir, p)
		}
		_, err := os.Stat(p)
		if err == nil {
			return p, true, nil
		}
		if os.IsNotExist(err) {
			return p, false, nil
		}
		return p, false, err
	}

	switch v := v.(type) {
	case File:
		p, exists, err := resolvePath(string(v))
		if err != nil {
			return nil, err
		}
		if !exists {
			if t.IsOptional() {
				return NoneOf(types.File), nil
			}
			return nil, NewError(diagnostics.New(
				fmt.Sprintf("task output file `%s` does not exist", p)).WithLabel(span, ""))
		}
		return File(p), nil
	case Directory:
		p, exists, err := resolvePath(string(v))
		if err != nil {
			return nil, err
		}
		if !exists {
			if t.IsOptional() {
				return NoneOf(types.Directory), nil
			}
			return nil, NewError(diagnostics.New(
				fmt.Sprintf("task output directory `%s` does not exist", p)).WithLabel(span, ""))
		}
		return Directory(p), nil
	case Array:
		elemType := types.Type(types.Union)
		if at, ok := t.(types.Array); ok {
			elemType = at.Element
		}
		out := make([]Value, len(v.Elements))
		for i, el := range v.Elements {
			resolved, err := r.resolveOutputValue(ctx, el, elemType, span)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return Array{ty: v.ty, Elements: out}, nil
	case Pair:
		leftType, rightType := types.Type(types.Union), types.Type(types.Union)
		if pt, ok := t.(types.Pair); ok {
			leftType, rightType = pt.Left, pt.Right
		}
		left, err := r.resolveOutputValue(ctx, v.Left, leftType, span)
		if err != nil {
			return nil, err
		}
		right, err := r.resolveOutputValue(ctx, v.Right, rightType, span)
		if err != nil {
			return nil, err
		}
		return Pair{ty: v.ty, Left: left, Right: right}, nil
	case Map:
		valueType := types.Type(types.Union)
		if mt, ok := t.(types.Map); ok {
			valueType = mt.Value
		}
		entries := make([]MapEntry, len(v.Entries))
		for i, e := range v.Entries {
			resolved, err := r.resolveOutputValue(ctx, e.Value, valueType, span)
			if err != nil {
				return nil, err
			}
			entries[i] = MapEntry{Key: e.Key, Value: resolved}
		}
		return Map{ty: v.ty, Entries: entries}, nil
	case Struct:
		members := make(map[string]Value, len(v.members))
		for _, m := range v.ty.Members {
			resolved, err := r.resolveOutputValue(ctx, v.members[m.Name], m.Type, span)
			if err != nil {
				return nil, err
			}
			members[m.Name] = resolved
		}
		return NewStruct(v.ty, members), nil
	case Object:
		members := make(map[string]Value, len(v.names))
		for _, name := range v.names {
			resolved, err := r.resolveOutputValue(ctx, v.members[name], types.Union, span)
			if err != nil {
				return nil, err
			}
			members[name] = resolved
		}
		return NewObject(v.names, members), nil
	default:
		return v, nil
	}
}

func (r *taskRun) outputs() *Outputs {
	ordered := NewOutputs()
	if r.outputVals == nil {
		return ordered
	}
	for _, name := range r.task.Outputs.Names() {
		if v, ok := r.outputVals.Get(name); ok {
			ordered.Add(name, v)
		}
	}
	return ordered
}

// declType resolves a private declaration's type from its binding in
// the task's root scope.
func declType(task *document.Task, decl *ast.Decl) types.Type {
	if n, ok := task.RootScope().Lookup(decl.Name.Name); ok {
		return n.Type
	}
	return types.Union
}

func namedNode(n graph.TaskNode) string {
	switch n := n.(type) {
	case graph.TaskInput:
		return n.Decl.Name.Name
	case graph.TaskDecl:
		return n.Decl.Name.Name
	case graph.TaskOutput:
		return n.Decl.Name.Name
	default:
		return ""
	}
}

// metaObject converts a meta section's literal entries into an object
// value; expressions that are not metadata literals are skipped.
func metaObject(section *ast.MetaSection) Object {
	if section == nil {
		return NewObject(nil, map[string]Value{})
	}
	names := make([]string, 0, len(section.Items))
	members := make(map[string]Value, len(section.Items))
	for _, item := range section.Items {
		v, ok := metaValue(item.Expr)
		if !ok {
			continue
		}
		names = append(names, item.Name.Name)
		members[item.Name.Name] = v
	}
	return NewObject(names, members)
}

func metaValue(e ast.Expr) (Value, bool) {
	switch e := e.(type) {
	case *ast.LiteralBool:
		return Boolean(e.Value), true
	case *ast.LiteralInt:
		return Int(e.Value), true
	case *ast.LiteralFloat:
		return Float(e.Value), true
	case *ast.LiteralNone:
		return None, true
	case *ast.LiteralString:
		if text, ok := e.Text(); ok {
			return String(text), true
		}
		return nil, false
	case *ast.LiteralArray:
		out := make([]Value, 0, len(e.Elements))
		for _, el := range e.Elements {
			v, ok := metaValue(el)
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return NewArray(types.Union, out), true
	case *ast.LiteralObject:
		names := make([]string, 0, len(e.Items))
		members := make(map[string]Value, len(e.Items))
		for _, item := range e.Items {
			v, ok := metaValue(item.Value)
			if !ok {
				return nil, false
			}
			names = append(names, item.Name.Name)
			members[item.Name.Name] = v
		}
		return NewObject(names, members), true
	default:
		return nil, false
	}
}

