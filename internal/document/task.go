package document

import (
	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/graph"
	"github.com/funvibe/wdlx/internal/scope"
	"github.com/funvibe/wdlx/internal/types"
)

func (a *analyzer) analyzeTask(def *ast.TaskDefinition) {
	task := &Task{
		Name:              def.Name.Name,
		NameSpan:          def.Name.Span,
		Def:               def,
		Scopes:            scope.NewArena(),
		Inputs:            NewIOMap[Input](),
		Outputs:           NewIOMap[Output](),
		rootScope:         -1,
		commandScope:      -1,
		outputScope:       -1,
		runtimeScope:      -1,
		requirementsScope: -1,
		hintsScope:        -1,
	}

	// Compute the input and output type maps first; duplicates are
	// silently ignored here and diagnosed by the graph builder.
	for _, decl := range def.Inputs {
		t := a.resolveType(decl.Type, nil)
		task.Inputs.Add(decl.Name.Name, Input{
			Type:     t,
			Required: decl.Expr == nil && !t.IsOptional(),
		})
	}
	for _, decl := range def.Outputs {
		task.Outputs.Add(decl.Name.Name, Output{Type: a.resolveType(decl.Type, nil)})
	}

	g := graph.BuildTaskGraph(a.version, def, &a.doc.Diagnostics)

	root := task.Scopes.Alloc(-1, def.Span)
	rootIndex := root.Index()
	commandIndex, outputIndex := -1, -1
	runtimeIndex, requirementsIndex, hintsIndex := -1, -1, -1

	for _, index := range g.Toposort() {
		switch n := g.Node(index).(type) {
		case graph.TaskInput:
			in, _ := task.Inputs.Get(n.Decl.Name.Name)
			a.analyzeDecl(root, n.Decl, in.Type)
		case graph.TaskDecl:
			a.analyzeDecl(root, n.Decl, a.resolveType(n.Decl.Type, nil))
		case graph.TaskOutput:
			if outputIndex < 0 {
				s := task.Scopes.Alloc(rootIndex, sectionSpan(def, n.Decl.Span))
				outputIndex = s.Index()
				a.injectTaskVar(s)
			}
			out, _ := task.Outputs.Get(n.Decl.Name.Name)
			a.analyzeDecl(scope.Mut{Ref: task.Scopes.Scope(outputIndex)}, n.Decl, out.Type)
		case graph.TaskCommand:
			s := task.Scopes.Alloc(rootIndex, n.Section.Span)
			commandIndex = s.Index()
			a.injectTaskVar(s)
			c := &exprChecker{a: a, resolve: scopeResolver(s.Ref)}
			for _, part := range n.Section.Parts {
				if p, ok := part.(*ast.Placeholder); ok {
					c.checkPlaceholder(p)
				}
			}
		case graph.TaskRuntime:
			s := task.Scopes.Alloc(rootIndex, n.Section.Span)
			runtimeIndex = s.Index()
			a.checkSectionItems(s.Ref, n.Section.Items, runtimeKeyTypes)
		case graph.TaskRequirements:
			s := task.Scopes.Alloc(rootIndex, n.Section.Span)
			requirementsIndex = s.Index()
			a.checkSectionItems(s.Ref, n.Section.Items, requirementKeyTypes)
		case graph.TaskHints:
			s := task.Scopes.Alloc(rootIndex, n.Section.Span)
			hintsIndex = s.Index()
			a.checkSectionItems(s.Ref, n.Section.Items, hintKeyTypes)
		}
	}

	a.warnUnusedTaskNodes(g)

	remap := task.Scopes.SortByStart()
	task.rootScope = remap[rootIndex]
	task.commandScope = remapIndex(remap, commandIndex)
	task.outputScope = remapIndex(remap, outputIndex)
	task.runtimeScope = remapIndex(remap, runtimeIndex)
	task.requirementsScope = remapIndex(remap, requirementsIndex)
	task.hintsScope = remapIndex(remap, hintsIndex)

	a.doc.taskIndex[task.Name] = len(a.doc.tasks)
	a.doc.tasks = append(a.doc.tasks, task)
}

// analyzeDecl type-checks a declaration's expression against its
// declared type and binds the name in the given scope.
func (a *analyzer) analyzeDecl(s scope.Mut, decl *ast.Decl, declared types.Type) {
	if decl.Expr != nil {
		actual := a.checkExpr(decl.Expr, s.Ref)
		if !types.Coercible(actual, declared) {
			a.doc.diag(diagnostics.CannotCoerce(actual, declared, decl.Expr.Pos()))
		}
	}
	if decl.Env {
		if _, ok := declared.(types.Primitive); !ok && !types.IsUnion(declared) {
			a.doc.diag(diagnostics.New("environment variable declarations must have a primitive type").
				WithLabel(decl.Type.Span, ""))
		}
	}
	s.Insert(decl.Name.Name, scope.Name{Span: decl.Name.Span, Type: declared})
}

// injectTaskVar binds the hidden `task` variable in 1.2 documents.
func (a *analyzer) injectTaskVar(s scope.Mut) {
	if a.version.AtLeast(ast.V1_2) {
		s.Insert(graph.TaskVarName, scope.Name{Type: types.Task})
	}
}

type keyTypesFunc func(name string, version ast.Version) ([]types.Type, bool)

// checkSectionItems type-checks a runtime, requirements, or hints
// section against the recognized-name table; unknown names are accepted
// with no constraint.
func (a *analyzer) checkSectionItems(s scope.Ref, items []*ast.SectionItem, keyTypes keyTypesFunc) {
	for _, item := range items {
		actual := a.checkExpr(item.Expr, s)
		allowed, known := keyTypes(item.Name.Name, a.version)
		if !known {
			continue
		}
		accepted := false
		for _, t := range allowed {
			if types.Coercible(actual, t) {
				accepted = true
				break
			}
		}
		if !accepted {
			a.doc.diag(diagnostics.TypeMismatch(allowed[0], actual, item.Expr.Pos()))
		}
	}
}

// warnUnusedTaskNodes emits unused-input and unused-declaration warnings
// for named nodes nothing depends on.
func (a *analyzer) warnUnusedTaskNodes(g *graph.TaskGraph) {
	for i := 0; i < g.NodeCount(); i++ {
		if len(g.Dependents(graph.NodeIndex(i))) > 0 {
			continue
		}
		switch n := g.Node(graph.NodeIndex(i)).(type) {
		case graph.TaskInput:
			if !n.Decl.Env && !hasExcept(n.Decl.Excepts, diagnostics.RuleUnusedInput) {
				a.doc.diag(diagnostics.UnusedInput(n.Decl.Name.Name, n.Decl.Name.Span))
			}
		case graph.TaskDecl:
			if !n.Decl.Env && !hasExcept(n.Decl.Excepts, diagnostics.RuleUnusedDeclaration) {
				a.doc.diag(diagnostics.UnusedDeclaration(n.Decl.Name.Name, n.Decl.Name.Span))
			}
		}
	}
}

// sectionSpan approximates the output section span from its first
// declaration when the AST carries no explicit section node.
func sectionSpan(def *ast.TaskDefinition, first ast.Span) ast.Span {
	span := first
	for _, decl := range def.Outputs {
		if decl.Span.Start < span.Start {
			span.Start = decl.Span.Start
		}
		if decl.Span.End > span.End {
			span.End = decl.Span.End
		}
	}
	return span
}

func remapIndex(remap []int, index int) int {
	if index < 0 {
		return -1
	}
	return remap[index]
}

// Recognized requirement names and their allowed types.
func requirementKeyTypes(name string, version ast.Version) ([]types.Type, bool) {
	switch name {
	case "container", "docker":
		return []types.Type{types.String, types.Array{Element: types.String}}, true
	case "cpu":
		return []types.Type{types.Integer, types.Float}, true
	case "memory":
		return []types.Type{types.Integer, types.String}, true
	case "disks":
		return []types.Type{types.Integer, types.String, types.Array{Element: types.String}}, true
	case "gpu":
		return []types.Type{types.Boolean}, true
	case "fpga":
		if version.AtLeast(ast.V1_2) {
			return []types.Type{types.Boolean}, true
		}
		return nil, false
	case "max_retries", "maxRetries":
		return []types.Type{types.Integer}, true
	case "return_codes", "returnCodes":
		return []types.Type{types.Integer, types.String, types.Array{Element: types.Integer}}, true
	default:
		return nil, false
	}
}

// Recognized hint names and their allowed types.
func hintKeyTypes(name string, version ast.Version) ([]types.Type, bool) {
	switch name {
	case "max_cpu", "maxCpu":
		return []types.Type{types.Integer, types.Float}, true
	case "max_memory", "maxMemory":
		return []types.Type{types.Integer, types.String}, true
	case "short_task", "shortTask":
		if version.AtLeast(ast.V1_2) {
			return []types.Type{types.Boolean}, true
		}
		return nil, false
	case "localization_optional", "localizationOptional":
		return []types.Type{types.Boolean}, true
	case "inputs":
		return []types.Type{types.Object, types.Input}, true
	case "outputs":
		return []types.Type{types.Object, types.Output}, true
	default:
		return nil, false
	}
}

// runtimeKeyTypes recognizes the union of requirement and hint names,
// which is what a pre-1.2 `runtime` section accepts.
func runtimeKeyTypes(name string, version ast.Version) ([]types.Type, bool) {
	if allowed, ok := requirementKeyTypes(name, version); ok {
		return allowed, ok
	}
	return hintKeyTypes(name, version)
}
