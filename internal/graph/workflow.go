package graph

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
)

// WorkflowNode is a node in a workflow evaluation graph.
type WorkflowNode interface {
	workflowNode()
}

// WorkflowInput is an input declaration node.
type WorkflowInput struct{ Decl *ast.Decl }

// WorkflowDecl is a private declaration node.
type WorkflowDecl struct{ Decl *ast.Decl }

// WorkflowOutput is an output declaration node.
type WorkflowOutput struct{ Decl *ast.Decl }

// WorkflowConditional is a conditional entry node, paired with its exit.
type WorkflowConditional struct {
	Stmt *ast.ConditionalStatement
	Exit NodeIndex
}

// WorkflowScatter is a scatter entry node, paired with its exit.
type WorkflowScatter struct {
	Stmt *ast.ScatterStatement
	Exit NodeIndex
}

// WorkflowCall is a call node.
type WorkflowCall struct{ Stmt *ast.CallStatement }

// ExitConditional marks the point where a conditional's names are
// promoted into the parent scope.
type ExitConditional struct{ Stmt *ast.ConditionalStatement }

// ExitScatter marks the point where a scatter's names are promoted into
// the parent scope.
type ExitScatter struct{ Stmt *ast.ScatterStatement }

func (WorkflowInput) workflowNode()       {}
func (WorkflowDecl) workflowNode()        {}
func (WorkflowOutput) workflowNode()      {}
func (WorkflowConditional) workflowNode() {}
func (WorkflowScatter) workflowNode()     {}
func (WorkflowCall) workflowNode()        {}
func (ExitConditional) workflowNode()     {}
func (ExitScatter) workflowNode()         {}

// DescribeWorkflowNode names a node for diagnostics.
func DescribeWorkflowNode(n WorkflowNode) string {
	switch n := n.(type) {
	case WorkflowInput:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case WorkflowDecl:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case WorkflowOutput:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case WorkflowScatter:
		return fmt.Sprintf("`%s`", n.Stmt.Variable.Name)
	case WorkflowCall:
		return fmt.Sprintf("`%s`", n.Stmt.Name().Name)
	case WorkflowConditional:
		return "conditional expression"
	default:
		return "exit"
	}
}

func workflowNodeContext(n WorkflowNode) (diagnostics.NameContext, bool) {
	switch n := n.(type) {
	case WorkflowInput:
		return diagnostics.InputContext(n.Decl.Name.Span), true
	case WorkflowDecl:
		return diagnostics.DeclContext(n.Decl.Name.Span), true
	case WorkflowOutput:
		return diagnostics.OutputContext(n.Decl.Name.Span), true
	case WorkflowScatter:
		return diagnostics.ScatterContext(n.Stmt.Variable.Span), true
	case WorkflowCall:
		return diagnostics.CallContext(n.Stmt.Name().Span), true
	default:
		return diagnostics.NameContext{}, false
	}
}

// workflowNodeStatement returns the AST statement a node models; exit nodes have
// none.
func workflowNodeStatement(n WorkflowNode) ast.WorkflowStatement {
	switch n := n.(type) {
	case WorkflowInput:
		return n.Decl
	case WorkflowDecl:
		return n.Decl
	case WorkflowOutput:
		return n.Decl
	case WorkflowConditional:
		return n.Stmt
	case WorkflowScatter:
		return n.Stmt
	case WorkflowCall:
		return n.Stmt
	default:
		return nil
	}
}

// WorkflowGraph is an acyclic evaluation graph over a workflow's
// statements.
type WorkflowGraph struct {
	*Digraph
	Nodes []WorkflowNode
	// EntryExits maps a scatter or conditional statement to its entry and
	// exit node indices.
	EntryExits map[ast.WorkflowStatement][2]NodeIndex
}

// Node returns the payload at an index.
func (g *WorkflowGraph) Node(i NodeIndex) WorkflowNode { return g.Nodes[i] }

type workflowGraphBuilder struct {
	graph *WorkflowGraph
	names map[string]NodeIndex
	// variables is the stack of in-scope scatter variables.
	variables []ast.Ident
	// parents maps a statement to its enclosing scatter or conditional.
	parents map[ast.WorkflowStatement]ast.WorkflowStatement
	diags   *[]*diagnostics.Diagnostic
}

// BuildWorkflowGraph constructs the evaluation graph for a workflow.
// Scatter and conditional statements become entry/exit node pairs;
// dependency edges between nodes in different scopes connect at their
// common scope.
func BuildWorkflowGraph(workflow *ast.WorkflowDefinition, diags *[]*diagnostics.Diagnostic) *WorkflowGraph {
	b := &workflowGraphBuilder{
		graph: &WorkflowGraph{
			Digraph:    NewDigraph(),
			EntryExits: make(map[ast.WorkflowStatement][2]NodeIndex),
		},
		names:   make(map[string]NodeIndex),
		parents: make(map[ast.WorkflowStatement]ast.WorkflowStatement),
		diags:   diags,
	}
	ast.WalkWorkflow(workflow, func(stmt, parent ast.WorkflowStatement) bool {
		if parent != nil {
			b.parents[stmt] = parent
		}
		return true
	})

	for _, decl := range workflow.Inputs {
		b.addNamedNode(decl.Name, WorkflowInput{Decl: decl})
	}
	for _, stmt := range workflow.Statements {
		b.addStatement(stmt, -1, -1)
	}

	// Add reference edges before adding the outputs.
	b.addReferenceEdges(0)

	count := b.graph.NodeCount()
	for _, decl := range workflow.Outputs {
		b.addNamedNode(decl.Name, WorkflowOutput{Decl: decl})
	}
	b.addReferenceEdges(count)
	return b.graph
}

func (b *workflowGraphBuilder) addNode(n WorkflowNode) NodeIndex {
	index := b.graph.Digraph.AddNode()
	b.graph.Nodes = append(b.graph.Nodes, n)
	return index
}

func (b *workflowGraphBuilder) addStatement(stmt ast.WorkflowStatement, parentEntry, parentExit NodeIndex) {
	var entry, exit NodeIndex = -1, -1
	switch stmt := stmt.(type) {
	case *ast.ConditionalStatement:
		// The exit node always depends on the entry node.
		exit = b.addNode(ExitConditional{Stmt: stmt})
		entry = b.addNode(WorkflowConditional{Stmt: stmt, Exit: exit})
		b.graph.UpdateEdge(entry, exit)
		b.graph.EntryExits[stmt] = [2]NodeIndex{entry, exit}
		for _, inner := range stmt.Statements {
			b.addStatement(inner, entry, exit)
		}
	case *ast.ScatterStatement:
		exit = b.addNode(ExitScatter{Stmt: stmt})
		entry = b.addNode(WorkflowScatter{Stmt: stmt, Exit: exit})
		b.graph.UpdateEdge(entry, exit)
		b.graph.EntryExits[stmt] = [2]NodeIndex{entry, exit}

		// The scatter variable is visible only inside the statement.
		pushed := false
		if existing, ok := b.names[stmt.Variable.Name]; ok {
			first, _ := workflowNodeContext(b.graph.Nodes[existing])
			*b.diags = append(*b.diags, diagnostics.NameConflict(stmt.Variable.Name,
				diagnostics.ScatterContext(stmt.Variable.Span), first))
		} else {
			b.variables = append(b.variables, stmt.Variable)
			pushed = true
		}
		for _, inner := range stmt.Statements {
			b.addStatement(inner, entry, exit)
		}
		if pushed {
			b.variables = b.variables[:len(b.variables)-1]
		}
	case *ast.CallStatement:
		if index, ok := b.addNamedNode(stmt.Name(), WorkflowCall{Stmt: stmt}); ok {
			// The call node is both its own entry and exit.
			entry, exit = index, index
		}
	case *ast.Decl:
		if index, ok := b.addNamedNode(stmt.Name, WorkflowDecl{Decl: stmt}); ok {
			entry, exit = index, index
		}
	}

	// Each statement inside a block depends on the enclosing entry and is
	// depended on by the enclosing exit.
	if entry >= 0 && parentEntry >= 0 {
		b.graph.UpdateEdge(parentEntry, entry)
		b.graph.UpdateEdge(exit, parentExit)
	}
}

func (b *workflowGraphBuilder) addNamedNode(name ast.Ident, n WorkflowNode) (NodeIndex, bool) {
	var first diagnostics.NameContext
	conflict, cont := false, true
	if existing, ok := b.names[name.Name]; ok {
		first, _ = workflowNodeContext(b.graph.Nodes[existing])
		conflict, cont = true, false
	} else {
		for _, v := range b.variables {
			if v.Name == name.Name {
				// A declaration overrides a conflicting scatter variable,
				// so the node is still added.
				first = diagnostics.ScatterContext(v.Span)
				conflict = true
				break
			}
		}
	}

	if conflict {
		if call, ok := n.(WorkflowCall); ok {
			*b.diags = append(*b.diags, diagnostics.CallConflict(name.Name, first, call.Stmt.Alias == nil, name.Span))
		} else {
			context, _ := workflowNodeContext(n)
			*b.diags = append(*b.diags, diagnostics.NameConflict(name.Name, context, first))
		}
		if !cont {
			return 0, false
		}
	}

	index := b.addNode(n)
	b.names[name.Name] = index
	return index, true
}

func (b *workflowGraphBuilder) addReferenceEdges(skip int) {
	for i := skip; i < b.graph.NodeCount(); i++ {
		from := NodeIndex(i)
		switch n := b.graph.Nodes[i].(type) {
		case WorkflowInput:
			if n.Decl.Expr != nil {
				b.addExprEdges(from, n.Decl.Expr)
			}
		case WorkflowDecl:
			if n.Decl.Expr != nil {
				b.addExprEdges(from, n.Decl.Expr)
			}
		case WorkflowOutput:
			if n.Decl.Expr != nil {
				b.addExprEdges(from, n.Decl.Expr)
			}
		case WorkflowConditional:
			b.addExprEdges(from, n.Stmt.Expr)
		case WorkflowScatter:
			b.addExprEdges(from, n.Stmt.Expr)
		case WorkflowCall:
			for _, input := range n.Stmt.Inputs {
				if input.Expr != nil {
					b.addExprEdges(from, input.Expr)
					continue
				}
				// A bare input name resolves in the enclosing scope.
				if to, ok := b.findNodeByName(input.Name.Name, n.Stmt); ok {
					b.checkedEdge(from, to, input.Name.Name, input.Name.Span)
				}
			}
			for _, after := range n.Stmt.Afters {
				if to, ok := b.findNodeByName(after.Name, n.Stmt); ok {
					b.checkedEdge(from, to, after.Name, after.Span)
				} else {
					*b.diags = append(*b.diags, diagnostics.UnknownName(after.Name, after.Span))
				}
			}
		}
	}
}

func (b *workflowGraphBuilder) addExprEdges(from NodeIndex, expr ast.Expr) {
	fromStmt := workflowNodeStatement(b.graph.Nodes[from])
	for _, r := range ast.NameRefs(expr) {
		to, ok := b.findNodeByName(r.Name, fromStmt)
		if !ok {
			*b.diags = append(*b.diags, diagnostics.UnknownName(r.Name, r.Span))
			continue
		}
		if to == from {
			context, _ := workflowNodeContext(b.graph.Nodes[from])
			*b.diags = append(*b.diags, diagnostics.SelfReferential(r.Name, context.Span, r.Span))
			continue
		}
		b.checkedEdge(from, to, r.Name, r.Span)
	}
}

// checkedEdge adds a dependency edge after checking for a cycle.
func (b *workflowGraphBuilder) checkedEdge(from, to NodeIndex, name string, refSpan ast.Span) {
	if b.graph.HasPath(from, to) {
		context, _ := workflowNodeContext(b.graph.Nodes[to])
		*b.diags = append(*b.diags, diagnostics.ReferenceCycle(
			DescribeWorkflowNode(b.graph.Nodes[from]), name, refSpan, context.Span))
		return
	}
	b.addDependencyEdge(from, to)
}

// addDependencyEdge connects two nodes at their common scope.
//
// Walking the AST ancestors of both statements up to the workflow root,
// the first differing children of the common ancestor determine the
// actual endpoints: the referencing side uses that child's entry node
// and the referenced side uses that child's exit node, falling back to
// the original nodes when the child has no entry/exit pair.
func (b *workflowGraphBuilder) addDependencyEdge(from, to NodeIndex) {
	fromStmt := workflowNodeStatement(b.graph.Nodes[from])
	toStmt := workflowNodeStatement(b.graph.Nodes[to])
	if fromChild, toChild, ok := b.childrenOfCommonAncestor(fromStmt, toStmt); ok {
		if ee, ok := b.graph.EntryExits[fromChild]; ok {
			from = ee[0]
		}
		if ee, ok := b.graph.EntryExits[toChild]; ok {
			to = ee[1]
		}
	}

	// The endpoints coincide for a scatter variable referenced within its
	// own scatter body; no edge is needed.
	if from == to {
		return
	}
	b.graph.UpdateEdge(to, from)
}

// childrenOfCommonAncestor finds, for two statements, the children of
// their deepest common ancestor along each path.
func (b *workflowGraphBuilder) childrenOfCommonAncestor(first, second ast.WorkflowStatement) (ast.WorkflowStatement, ast.WorkflowStatement, bool) {
	firstChain := b.ancestors(first)
	secondChain := b.ancestors(second)
	for i, j := len(firstChain)-1, len(secondChain)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if firstChain[i] == secondChain[j] {
			continue
		}
		return firstChain[i], secondChain[j], true
	}
	return nil, nil, false
}

// ancestors returns the chain from a statement up to the workflow root,
// starting with the statement itself.
func (b *workflowGraphBuilder) ancestors(stmt ast.WorkflowStatement) []ast.WorkflowStatement {
	var chain []ast.WorkflowStatement
	for stmt != nil {
		chain = append(chain, stmt)
		stmt = b.parents[stmt]
	}
	return chain
}

// findNodeByName resolves a name to a node, taking in-scope scatter
// variables into account: a scatter variable resolves to its statement's
// entry node.
func (b *workflowGraphBuilder) findNodeByName(name string, ref ast.WorkflowStatement) (NodeIndex, bool) {
	if index, ok := b.names[name]; ok {
		return index, true
	}
	for stmt := ref; stmt != nil; stmt = b.parents[stmt] {
		if scatter, ok := stmt.(*ast.ScatterStatement); ok && scatter.Variable.Name == name {
			return b.graph.EntryExits[scatter][0], true
		}
	}
	return 0, false
}
