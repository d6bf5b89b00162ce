package document

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/graph"
	"github.com/funvibe/wdlx/internal/stdlib"
	"github.com/funvibe/wdlx/internal/types"
)

type analyzer struct {
	graph   *Graph
	doc     *Document
	astDoc  *ast.Document
	version ast.Version
	lib     *stdlib.Library
	// topLevel tracks struct, task, and workflow names, which share one
	// namespace within a document.
	topLevel map[string]diagnostics.NameContext
}

// analyze produces the typed document for a parsed syntax tree.
func analyze(g *Graph, uri string, astDoc *ast.Document) *Document {
	doc := newDocument(uri, astDoc)

	version, ok := astDoc.Version()
	if astDoc.VersionText == "" {
		doc.diag(diagnostics.MissingVersionStatement(ast.Span{Start: astDoc.Span.Start, End: astDoc.Span.Start}))
		return doc
	}
	if !ok {
		doc.diag(diagnostics.New(fmt.Sprintf("unsupported WDL version `%s`", astDoc.VersionText)).
			WithLabel(astDoc.VersionSpan, "this version of WDL is not supported"))
		return doc
	}
	doc.Version = version
	doc.HasVersion = true

	a := &analyzer{
		graph:    g,
		doc:      doc,
		astDoc:   astDoc,
		version:  version,
		lib:      stdlib.Default(),
		topLevel: make(map[string]diagnostics.NameContext),
	}
	a.populateNamespaces()
	a.populateStructStubs()
	a.resolveImports()
	a.unifyStructs()

	for _, task := range astDoc.Tasks {
		a.analyzeTask(task)
	}
	for i, workflow := range astDoc.Workflows {
		if i > 0 {
			doc.diag(diagnostics.DuplicateWorkflow(workflow.Name.Name, workflow.Name.Span, astDoc.Workflows[0].Name.Span))
			continue
		}
		a.analyzeWorkflow(workflow)
	}

	for _, ns := range doc.namespaces {
		if !ns.Used && !ns.Excepted {
			doc.diag(diagnostics.UnusedImport(ns.Name, ns.Span))
		}
	}
	diagnostics.Sort(doc.Diagnostics)
	return doc
}

func (a *analyzer) populateNamespaces() {
	for _, imp := range a.astDoc.Imports {
		var name string
		var span ast.Span
		if imp.Namespace != nil {
			name = imp.Namespace.Name
			span = imp.Namespace.Span
		} else {
			derived, ok := namespaceFromURI(imp.URI)
			if !ok {
				a.doc.diag(diagnostics.InvalidImportNamespace(imp.URISpan))
				continue
			}
			name = derived
			span = imp.URISpan
		}

		if existing, ok := a.doc.Namespace(name); ok {
			a.doc.diag(diagnostics.NamespaceConflict(name, span, existing.Span))
			continue
		}

		a.doc.namespaceIndex[name] = len(a.doc.namespaces)
		a.doc.namespaces = append(a.doc.namespaces, &Namespace{
			Name:     name,
			Span:     span,
			URI:      ResolveURI(a.doc.URI, imp.URI),
			Excepted: hasExcept(imp.Excepts, diagnostics.RuleUnusedImport),
		})
	}
}

func (a *analyzer) populateStructStubs() {
	for _, def := range a.astDoc.Structs {
		if first, ok := a.topLevel[def.Name.Name]; ok {
			a.doc.diag(diagnostics.NameConflict(def.Name.Name, diagnostics.StructContext(def.Name.Span), first))
			continue
		}
		a.topLevel[def.Name.Name] = diagnostics.StructContext(def.Name.Span)
		a.doc.structIndex[def.Name.Name] = len(a.doc.structs)
		a.doc.structs = append(a.doc.structs, &Struct{
			Name: def.Name.Name,
			Span: def.Name.Span,
			Def:  def,
		})
	}
	for _, def := range a.astDoc.Tasks {
		if first, ok := a.topLevel[def.Name.Name]; ok {
			a.doc.diag(diagnostics.NameConflict(def.Name.Name, diagnostics.TaskContext(def.Name.Span), first))
			continue
		}
		a.topLevel[def.Name.Name] = diagnostics.TaskContext(def.Name.Span)
	}
	for _, def := range a.astDoc.Workflows {
		if first, ok := a.topLevel[def.Name.Name]; ok {
			a.doc.diag(diagnostics.NameConflict(def.Name.Name, diagnostics.WorkflowContext(def.Name.Span), first))
			continue
		}
		a.topLevel[def.Name.Name] = diagnostics.WorkflowContext(def.Name.Span)
	}
}

func (a *analyzer) resolveImports() {
	for _, imp := range a.astDoc.Imports {
		ns := a.namespaceForImport(imp)
		if ns == nil {
			continue
		}

		imported, err := a.graph.Analyze(ns.URI)
		switch {
		case err == ErrImportCycle:
			a.graph.markCycle(a.doc.URI, ns.URI)
			a.doc.diag(diagnostics.ImportCycle(imp.URISpan))
			continue
		case err != nil:
			a.doc.diag(diagnostics.ImportFailure(imp.URI, imp.URISpan))
			continue
		case a.graph.inCycle(a.doc.URI, ns.URI):
			a.doc.diag(diagnostics.ImportCycle(imp.URISpan))
			continue
		}

		if !imported.HasVersion {
			a.doc.diag(diagnostics.ImportMissingVersion(imp.URISpan))
			continue
		}
		if imported.Version.Major != a.version.Major {
			a.doc.diag(diagnostics.IncompatibleImport(imported.Version.String(), a.version.String(), imp.URISpan))
			continue
		}
		ns.Document = imported

		a.importStructs(imp, ns, imported)
	}
}

func (a *analyzer) namespaceForImport(imp *ast.ImportStatement) *Namespace {
	name := ""
	if imp.Namespace != nil {
		name = imp.Namespace.Name
	} else if derived, ok := namespaceFromURI(imp.URI); ok {
		name = derived
	} else {
		return nil
	}
	ns, ok := a.doc.Namespace(name)
	if !ok || ns.URI != ResolveURI(a.doc.URI, imp.URI) {
		// The namespace lost a conflict; its import is not resolved.
		return nil
	}
	return ns
}

// importStructs aliases every struct slot of the imported document into
// this document, requiring structural equivalence on name collisions.
func (a *analyzer) importStructs(imp *ast.ImportStatement, ns *Namespace, imported *Document) {
	// Map source-document names to local slot names so member references
	// inside imported structs resolve through the alias clauses.
	rename := make(map[string]string, len(imported.structs))
	for _, s := range imported.structs {
		rename[s.Name] = s.Name
	}
	for _, alias := range imp.Aliases {
		rename[alias.From.Name] = alias.To.Name
	}

	for _, s := range imported.structs {
		local := rename[s.Name]
		span := imp.Span
		for _, alias := range imp.Aliases {
			if alias.From.Name == s.Name {
				span = alias.To.Span
			}
		}

		if existing, ok := a.doc.Struct(local); ok {
			if structsEquivalent(existing.Def, s.Def) {
				continue
			}
			if existing.Namespace == "" {
				a.doc.diag(diagnostics.StructConflictsWithImport(local, existing.Span, span))
			} else {
				a.doc.diag(diagnostics.ImportedStructConflict(local, span, existing.Span))
			}
			continue
		}
		if first, ok := a.topLevel[local]; ok {
			a.doc.diag(diagnostics.NameConflict(local, diagnostics.StructContext(span), first))
			continue
		}

		a.topLevel[local] = diagnostics.StructContext(span)
		a.doc.structIndex[local] = len(a.doc.structs)
		a.doc.structs = append(a.doc.structs, &Struct{
			Name:      local,
			Span:      span,
			Def:       s.Def,
			Namespace: ns.Name,
			aliases:   rename,
		})
	}
}

// structsEquivalent compares two struct definitions by ordered member
// names and the raw source text of their member types. The raw text is
// deliberate: a member typed `Int` and one typed via an alias of `Int`
// are not equivalent.
func structsEquivalent(a, b *ast.StructDefinition) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.Members) != len(b.Members) {
		return false
	}
	for i, m := range a.Members {
		o := b.Members[i]
		if m.Name.Name != o.Name.Name || m.Type.String() != o.Type.String() {
			return false
		}
	}
	return true
}

// unifyStructs orders struct slots by their type dependencies and
// assigns each a concrete type. Back edges that would close a cycle are
// reported and omitted so the remainder stays acyclic.
func (a *analyzer) unifyStructs() {
	dig := graph.NewDigraph()
	for range a.doc.structs {
		dig.AddNode()
	}

	for i, stub := range a.doc.structs {
		if stub.Def == nil {
			continue
		}
		for _, member := range stub.Def.Members {
			for _, ref := range structRefs(member.Type) {
				name := ref.Name
				if stub.aliases != nil {
					if renamed, ok := stub.aliases[name]; ok {
						name = renamed
					}
				}
				j, ok := a.doc.structIndex[name]
				if !ok {
					continue
				}
				if i == j || dig.HasPath(graph.NodeIndex(i), graph.NodeIndex(j)) {
					a.doc.diag(diagnostics.RecursiveStruct(stub.Name, ref.Span))
					continue
				}
				// The edge points definition to use.
				dig.UpdateEdge(graph.NodeIndex(j), graph.NodeIndex(i))
			}
		}
	}

	for _, index := range dig.Toposort() {
		stub := a.doc.structs[index]
		if stub.Def == nil {
			continue
		}
		members := make([]types.StructMember, 0, len(stub.Def.Members))
		for _, member := range stub.Def.Members {
			members = append(members, types.StructMember{
				Name: member.Name.Name,
				Type: a.resolveType(member.Type, stub.aliases),
			})
		}
		stub.Type = types.NewStruct(stub.Name, members)
	}
}

// structRefs collects the named (non-builtin) type references in a type
// annotation.
func structRefs(ref *ast.TypeRef) []*ast.TypeRef {
	var refs []*ast.TypeRef
	var walk func(*ast.TypeRef)
	walk = func(r *ast.TypeRef) {
		if r == nil {
			return
		}
		if !builtinTypeName(r.Name) {
			refs = append(refs, r)
		}
		for _, p := range r.Params {
			walk(p)
		}
	}
	walk(ref)
	return refs
}

func builtinTypeName(name string) bool {
	switch name {
	case "Boolean", "Int", "Float", "String", "File", "Directory", "Array", "Pair", "Map", "Object":
		return true
	}
	return false
}

func hasExcept(excepts []string, rule string) bool {
	for _, e := range excepts {
		if e == rule {
			return true
		}
	}
	return false
}
