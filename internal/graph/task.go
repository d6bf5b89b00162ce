package graph

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
)

// TaskVarName is the hidden `task` variable available in command and
// output expressions from WDL 1.2.
const TaskVarName = "task"

// TaskNode is a node in a task evaluation graph.
type TaskNode interface {
	taskNode()
}

// TaskInput is an input declaration node.
type TaskInput struct{ Decl *ast.Decl }

// TaskDecl is a private declaration node.
type TaskDecl struct{ Decl *ast.Decl }

// TaskOutput is an output declaration node.
type TaskOutput struct{ Decl *ast.Decl }

// TaskCommand is the command section node.
type TaskCommand struct{ Section *ast.CommandSection }

// TaskRuntime is the runtime section node.
type TaskRuntime struct{ Section *ast.RuntimeSection }

// TaskRequirements is the requirements section node.
type TaskRequirements struct{ Section *ast.RequirementsSection }

// TaskHints is the hints section node.
type TaskHints struct{ Section *ast.HintsSection }

func (TaskInput) taskNode()        {}
func (TaskDecl) taskNode()         {}
func (TaskOutput) taskNode()       {}
func (TaskCommand) taskNode()      {}
func (TaskRuntime) taskNode()      {}
func (TaskRequirements) taskNode() {}
func (TaskHints) taskNode()        {}

// DescribeTaskNode names a node for diagnostics.
func DescribeTaskNode(n TaskNode) string {
	switch n := n.(type) {
	case TaskInput:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case TaskDecl:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case TaskOutput:
		return fmt.Sprintf("`%s`", n.Decl.Name.Name)
	case TaskCommand:
		return "command section"
	case TaskRuntime:
		return "runtime section"
	case TaskRequirements:
		return "requirements section"
	default:
		return "hints section"
	}
}

func taskNodeContext(n TaskNode) (diagnostics.NameContext, bool) {
	switch n := n.(type) {
	case TaskInput:
		return diagnostics.InputContext(n.Decl.Name.Span), true
	case TaskDecl:
		return diagnostics.DeclContext(n.Decl.Name.Span), true
	case TaskOutput:
		return diagnostics.OutputContext(n.Decl.Name.Span), true
	default:
		return diagnostics.NameContext{}, false
	}
}

func taskNodeExpr(n TaskNode) ast.Expr {
	switch n := n.(type) {
	case TaskInput:
		return n.Decl.Expr
	case TaskDecl:
		return n.Decl.Expr
	case TaskOutput:
		return n.Decl.Expr
	default:
		return nil
	}
}

// TaskGraph is an acyclic evaluation graph over a task's declarations
// and sections.
type TaskGraph struct {
	*Digraph
	Nodes []TaskNode
	// Command is the index of the command node, -1 when absent.
	Command NodeIndex
	// Runtime, Requirements, and Hints are section node indices, -1 when
	// absent.
	Runtime      NodeIndex
	Requirements NodeIndex
	Hints        NodeIndex
}

// Node returns the payload at an index.
func (g *TaskGraph) Node(i NodeIndex) TaskNode { return g.Nodes[i] }

type taskGraphBuilder struct {
	graph   *TaskGraph
	names   map[string]NodeIndex
	version ast.Version
	diags   *[]*diagnostics.Diagnostic
}

// BuildTaskGraph constructs the evaluation graph for a task, reporting
// name conflicts, unknown names, self-references, and reference cycles.
func BuildTaskGraph(version ast.Version, task *ast.TaskDefinition, diags *[]*diagnostics.Diagnostic) *TaskGraph {
	b := &taskGraphBuilder{
		graph: &TaskGraph{
			Digraph:      NewDigraph(),
			Command:      -1,
			Runtime:      -1,
			Requirements: -1,
			Hints:        -1,
		},
		names:   make(map[string]NodeIndex),
		version: version,
		diags:   diags,
	}

	for _, decl := range task.Inputs {
		b.addNamedNode(decl.Name, TaskInput{Decl: decl})
	}
	for _, decl := range task.Decls {
		b.addNamedNode(decl.Name, TaskDecl{Decl: decl})
	}
	if task.Command != nil {
		b.graph.Command = b.addNode(TaskCommand{Section: task.Command})
	}
	if task.Runtime != nil {
		b.graph.Runtime = b.addNode(TaskRuntime{Section: task.Runtime})
	}
	if task.Requirements != nil {
		switch {
		case !version.AtLeast(ast.V1_2):
			*b.diags = append(*b.diags, diagnostics.UnsupportedSection("requirements", task.Requirements.Span,
				fmt.Sprintf("it requires WDL version 1.2 or later, but the document version is %s", version)))
		case task.Runtime != nil:
			*b.diags = append(*b.diags, diagnostics.UnsupportedSection("requirements", task.Requirements.Span,
				"it cannot coexist with a `runtime` section"))
		default:
			b.graph.Requirements = b.addNode(TaskRequirements{Section: task.Requirements})
		}
	}
	if task.Hints != nil {
		switch {
		case !version.AtLeast(ast.V1_2):
			*b.diags = append(*b.diags, diagnostics.UnsupportedSection("hints", task.Hints.Span,
				fmt.Sprintf("it requires WDL version 1.2 or later, but the document version is %s", version)))
		case task.Runtime != nil:
			*b.diags = append(*b.diags, diagnostics.UnsupportedSection("hints", task.Hints.Span,
				"it cannot coexist with a `runtime` section"))
		default:
			b.graph.Hints = b.addNode(TaskHints{Section: task.Hints})
		}
	}

	// Add reference edges for everything before the outputs.
	b.addReferenceEdges(0)

	// Outputs come last so references between outputs resolve after all
	// other nodes; every output implicitly depends on the command.
	count := b.graph.NodeCount()
	for _, decl := range task.Outputs {
		if index, ok := b.addNamedNode(decl.Name, TaskOutput{Decl: decl}); ok {
			if b.graph.Command >= 0 {
				b.graph.UpdateEdge(b.graph.Command, index)
			}
		}
	}
	b.addReferenceEdges(count)

	// The command implicitly depends on the constraint sections.
	if b.graph.Command >= 0 {
		for _, section := range []NodeIndex{b.graph.Runtime, b.graph.Requirements, b.graph.Hints} {
			if section >= 0 {
				b.graph.UpdateEdge(section, b.graph.Command)
			}
		}
	}
	return b.graph
}

func (b *taskGraphBuilder) addNode(n TaskNode) NodeIndex {
	index := b.graph.Digraph.AddNode()
	b.graph.Nodes = append(b.graph.Nodes, n)
	return index
}

func (b *taskGraphBuilder) addNamedNode(name ast.Ident, n TaskNode) (NodeIndex, bool) {
	if existing, ok := b.names[name.Name]; ok {
		context, _ := taskNodeContext(n)
		first, _ := taskNodeContext(b.graph.Nodes[existing])
		*b.diags = append(*b.diags, diagnostics.NameConflict(name.Name, context, first))
		return 0, false
	}
	index := b.addNode(n)
	b.names[name.Name] = index
	return index, true
}

func (b *taskGraphBuilder) addReferenceEdges(skip int) {
	for i := skip; i < b.graph.NodeCount(); i++ {
		from := NodeIndex(i)
		switch n := b.graph.Nodes[i].(type) {
		case TaskInput, TaskDecl:
			if expr := taskNodeExpr(b.graph.Nodes[i]); expr != nil {
				b.addExprEdges(from, expr, false)
			}
		case TaskOutput:
			if n.Decl.Expr != nil {
				b.addExprEdges(from, n.Decl.Expr, b.version.AtLeast(ast.V1_2))
			}
		case TaskCommand:
			b.addSectionEdges(from, ast.PlaceholderRefs(n.Section), b.version.AtLeast(ast.V1_2))
		case TaskRuntime:
			for _, item := range n.Section.Items {
				b.addSectionEdges(from, ast.NameRefs(item.Expr), false)
			}
		case TaskRequirements:
			for _, item := range n.Section.Items {
				b.addSectionEdges(from, ast.NameRefs(item.Expr), false)
			}
		case TaskHints:
			for _, item := range n.Section.Items {
				b.addSectionEdges(from, ast.NameRefs(item.Expr), false)
			}
		}
	}
}

// addSectionEdges links a section node to the declarations it references.
// Declarations cannot reference a section, so no cycle check is needed.
func (b *taskGraphBuilder) addSectionEdges(from NodeIndex, refs []*ast.NameRef, allowTaskVar bool) {
	for _, r := range refs {
		if to, ok := b.names[r.Name]; ok {
			b.graph.UpdateEdge(to, from)
		} else if r.Name != TaskVarName || !allowTaskVar {
			*b.diags = append(*b.diags, diagnostics.UnknownName(r.Name, r.Span))
		}
	}
}

func (b *taskGraphBuilder) addExprEdges(from NodeIndex, expr ast.Expr, allowTaskVar bool) {
	for _, r := range ast.NameRefs(expr) {
		to, ok := b.names[r.Name]
		if !ok {
			if r.Name != TaskVarName || !allowTaskVar {
				*b.diags = append(*b.diags, diagnostics.UnknownName(r.Name, r.Span))
			}
			continue
		}
		if to == from {
			context, _ := taskNodeContext(b.graph.Nodes[from])
			*b.diags = append(*b.diags, diagnostics.SelfReferential(r.Name, context.Span, r.Span))
			continue
		}
		if b.graph.HasPath(from, to) {
			defExpr := taskNodeExpr(b.graph.Nodes[to])
			*b.diags = append(*b.diags, diagnostics.ReferenceCycle(
				DescribeTaskNode(b.graph.Nodes[from]), r.Name, r.Span, defExpr.Pos()))
			continue
		}
		b.graph.UpdateEdge(to, from)
	}
}
