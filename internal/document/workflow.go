package document

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/graph"
	"github.com/funvibe/wdlx/internal/scope"
	"github.com/funvibe/wdlx/internal/types"
)

func (a *analyzer) analyzeWorkflow(def *ast.WorkflowDefinition) {
	w := &Workflow{
		Name:               def.Name.Name,
		NameSpan:           def.Name.Span,
		Def:                def,
		Scopes:             scope.NewArena(),
		Inputs:             NewIOMap[Input](),
		Outputs:            NewIOMap[Output](),
		Calls:              make(map[string]*types.Call),
		AllowsNestedInputs: def.AllowNestedInputs,
		rootScope:          -1,
		outputScope:        -1,
		blockScopes:        make(map[ast.WorkflowStatement]int),
	}

	for _, decl := range def.Inputs {
		t := a.resolveType(decl.Type, nil)
		w.Inputs.Add(decl.Name.Name, Input{
			Type:     t,
			Required: decl.Expr == nil && !t.IsOptional(),
		})
	}
	for _, decl := range def.Outputs {
		w.Outputs.Add(decl.Name.Name, Output{Type: a.resolveType(decl.Type, nil)})
	}

	parents := make(map[ast.WorkflowStatement]ast.WorkflowStatement)
	ast.WalkWorkflow(def, func(stmt, parent ast.WorkflowStatement) bool {
		if parent != nil {
			parents[stmt] = parent
		}
		return true
	})

	g := graph.BuildWorkflowGraph(def, &a.doc.Diagnostics)

	root := w.Scopes.Alloc(-1, def.Span)
	rootIndex := root.Index()
	outputIndex := -1
	blockIndexes := make(map[ast.WorkflowStatement]int)

	// scopeOf returns the scope a statement's names bind in: the scope of
	// the nearest enclosing scatter/conditional, or the root. Entry nodes
	// precede their body in topological order, so the lookup always hits.
	scopeOf := func(stmt ast.WorkflowStatement) scope.Mut {
		for parent := parents[stmt]; parent != nil; parent = parents[parent] {
			if index, ok := blockIndexes[parent]; ok {
				return scope.Mut{Ref: w.Scopes.Scope(index)}
			}
		}
		return scope.Mut{Ref: w.Scopes.Scope(rootIndex)}
	}

	for _, index := range g.Toposort() {
		switch n := g.Node(index).(type) {
		case graph.WorkflowInput:
			in, _ := w.Inputs.Get(n.Decl.Name.Name)
			a.analyzeDecl(root, n.Decl, in.Type)
		case graph.WorkflowDecl:
			a.analyzeDecl(scopeOf(n.Decl), n.Decl, a.resolveType(n.Decl.Type, nil))
		case graph.WorkflowOutput:
			if outputIndex < 0 {
				s := w.Scopes.Alloc(rootIndex, outputSectionSpan(def))
				outputIndex = s.Index()
			}
			out, _ := w.Outputs.Get(n.Decl.Name.Name)
			a.analyzeDecl(scope.Mut{Ref: w.Scopes.Scope(outputIndex)}, n.Decl, out.Type)
		case graph.WorkflowConditional:
			parent := scopeOf(n.Stmt)
			guard := a.checkExpr(n.Stmt.Expr, parent.Ref)
			if !types.Coercible(guard, types.Boolean) {
				a.doc.diag(diagnostics.TypeMismatch(types.Boolean, guard, n.Stmt.Expr.Pos()))
			}
			s := w.Scopes.Alloc(parent.Index(), n.Stmt.Span)
			blockIndexes[n.Stmt] = s.Index()
		case graph.WorkflowScatter:
			parent := scopeOf(n.Stmt)
			iterand := a.checkExpr(n.Stmt.Expr, parent.Ref)
			elem := types.Type(types.Union)
			switch t := iterand.(type) {
			case types.Array:
				if t.Optional {
					a.doc.diag(diagnostics.TypeMismatch(types.Array{Element: types.Union}, iterand, n.Stmt.Expr.Pos()))
				} else {
					elem = t.Element
				}
			case types.UnionType:
			default:
				a.doc.diag(diagnostics.TypeMismatch(types.Array{Element: types.Union}, iterand, n.Stmt.Expr.Pos()))
			}
			s := w.Scopes.Alloc(parent.Index(), n.Stmt.Span)
			s.Insert(n.Stmt.Variable.Name, scope.Name{Span: n.Stmt.Variable.Span, Type: elem})
			blockIndexes[n.Stmt] = s.Index()
		case graph.WorkflowCall:
			s := scopeOf(n.Stmt)
			call := a.resolveCall(n.Stmt, w, s.Ref)
			if call == nil {
				s.Insert(n.Stmt.Name().Name, scope.Name{Span: n.Stmt.Name().Span, Type: types.Union})
				continue
			}
			w.Calls[n.Stmt.Name().Name] = call
			s.Insert(n.Stmt.Name().Name, scope.Name{Span: n.Stmt.Name().Span, Type: call})
		case graph.ExitConditional:
			a.promoteScope(w, blockIndexes[n.Stmt], "", func(t types.Type) types.Type {
				return types.Optional(t)
			})
		case graph.ExitScatter:
			a.promoteScope(w, blockIndexes[n.Stmt], n.Stmt.Variable.Name, func(t types.Type) types.Type {
				return types.Array{Element: t}
			})
		}
	}

	a.warnUnusedWorkflowNodes(g)

	remap := w.Scopes.SortByStart()
	w.rootScope = remap[rootIndex]
	w.outputScope = remapIndex(remap, outputIndex)
	for stmt, index := range blockIndexes {
		w.blockScopes[stmt] = remap[index]
	}

	a.doc.workflow = w
}

// promoteScope lifts every name of an exited block scope into its parent
// scope with a promoted type: optional for conditionals, array-wrapped
// for scatters. The scatter variable itself is skipped.
func (a *analyzer) promoteScope(w *Workflow, index int, skip string, promote func(types.Type) types.Type) {
	inner := w.Scopes.Scope(index)
	parent, ok := inner.Parent()
	if !ok {
		return
	}
	mut := scope.Mut{Ref: parent}
	inner.Names(func(name string, n scope.Name) bool {
		if name == skip {
			return true
		}
		mut.Insert(name, scope.Name{Span: n.Span, Type: promote(n.Type)})
		return true
	})
}

// resolveCall resolves a call target to its callable and validates the
// call-site inputs.
func (a *analyzer) resolveCall(stmt *ast.CallStatement, w *Workflow, s scope.Ref) *types.Call {
	target := a.doc
	for _, nsName := range stmt.Target[:len(stmt.Target)-1] {
		ns, ok := target.Namespace(nsName.Name)
		if !ok {
			a.doc.diag(diagnostics.UnknownNamespace(nsName.Name, nsName.Span))
			return nil
		}
		if target == a.doc {
			ns.Used = true
		}
		if ns.Document == nil {
			// The import itself failed; a diagnostic already exists.
			return nil
		}
		target = ns.Document
	}

	name := stmt.Target[len(stmt.Target)-1]
	var call *types.Call
	if task, ok := target.Task(name.Name); ok {
		call = callType(types.TaskCall, task.Name, task.Inputs, task.Outputs)
	} else if wf := target.Workflow(); wf != nil && wf.Name == name.Name {
		if target == a.doc {
			a.doc.diag(diagnostics.RecursiveWorkflowCall(name.Name, name.Span))
			return nil
		}
		call = callType(types.WorkflowCall, wf.Name, wf.Inputs, wf.Outputs)
	} else {
		a.doc.diag(diagnostics.New(fmt.Sprintf("unknown task or workflow `%s`", name.Name)).
			WithLabel(name.Span, "not defined in the target document"))
		return nil
	}

	for _, input := range stmt.Inputs {
		declared, ok := call.Input(input.Name.Name)
		if !ok {
			a.doc.diag(diagnostics.UnknownCallInput(call.Name, input.Name.Name, input.Name.Span))
			continue
		}
		var actual types.Type
		if input.Expr != nil {
			actual = a.checkExpr(input.Expr, s)
		} else if n, found := s.Lookup(input.Name.Name); found {
			actual = n.Type
		} else {
			a.doc.diag(diagnostics.UnknownName(input.Name.Name, input.Name.Span))
			continue
		}
		if !types.Coercible(actual, declared.Type) {
			a.doc.diag(diagnostics.CannotCoerce(actual, declared.Type, input.Span))
		}
	}
	return call
}

func callType(kind types.CallKind, name string, inputs *IOMap[Input], outputs *IOMap[Output]) *types.Call {
	call := &types.Call{Kind: kind, Name: name}
	for _, n := range inputs.Names() {
		in, _ := inputs.Get(n)
		call.Inputs = append(call.Inputs, types.CallInput{Name: n, Type: in.Type, Required: in.Required})
	}
	for _, n := range outputs.Names() {
		out, _ := outputs.Get(n)
		call.Outputs = append(call.Outputs, types.CallOutput{Name: n, Type: out.Type})
	}
	return call
}

func (a *analyzer) warnUnusedWorkflowNodes(g *graph.WorkflowGraph) {
	for i := 0; i < g.NodeCount(); i++ {
		if len(g.Dependents(graph.NodeIndex(i))) > 0 {
			continue
		}
		switch n := g.Node(graph.NodeIndex(i)).(type) {
		case graph.WorkflowInput:
			if !hasExcept(n.Decl.Excepts, diagnostics.RuleUnusedInput) {
				a.doc.diag(diagnostics.UnusedInput(n.Decl.Name.Name, n.Decl.Name.Span))
			}
		case graph.WorkflowDecl:
			if !hasExcept(n.Decl.Excepts, diagnostics.RuleUnusedDeclaration) {
				a.doc.diag(diagnostics.UnusedDeclaration(n.Decl.Name.Name, n.Decl.Name.Span))
			}
		}
	}
}

func outputSectionSpan(def *ast.WorkflowDefinition) ast.Span {
	if len(def.Outputs) == 0 {
		return def.Span
	}
	span := def.Outputs[0].Span
	for _, decl := range def.Outputs[1:] {
		if decl.Span.End > span.End {
			span.End = decl.Span.End
		}
	}
	return span
}
