// Package scope implements the lexical scope arena used by tasks and
// workflows.
//
// Scopes are created and mutated only during analysis; afterwards the
// arena is sorted by span start and accessed read-only, with lookup by
// source position via binary search.
package scope

import (
	"sort"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/types"
)

// Name is a binding in a scope.
type Name struct {
	Span ast.Span
	Type types.Type
}

type scopeData struct {
	parent int
	span   ast.Span
	order  []string
	names  map[string]Name
}

// Arena holds the flat set of scopes for one task or workflow.
type Arena struct {
	scopes []*scopeData
	sorted bool
}

// NewArena creates an empty scope arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc creates a new scope with the given parent index (-1 for a root
// scope) and returns a mutable handle.
func (a *Arena) Alloc(parent int, span ast.Span) Mut {
	a.scopes = append(a.scopes, &scopeData{
		parent: parent,
		span:   span,
		names:  make(map[string]Name),
	})
	return Mut{Ref{arena: a, index: len(a.scopes) - 1}}
}

// Len returns the number of scopes in the arena.
func (a *Arena) Len() int { return len(a.scopes) }

// Scope returns a read-only handle for the scope at index.
func (a *Arena) Scope(index int) Ref {
	return Ref{arena: a, index: index}
}

// SortByStart orders the arena by span start so position lookup can use
// binary search. It returns the mapping from old indices to new ones;
// parent links are rewritten in place.
func (a *Arena) SortByStart() []int {
	order := make([]int, len(a.scopes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return a.scopes[order[i]].span.Start < a.scopes[order[j]].span.Start
	})

	remap := make([]int, len(a.scopes))
	sorted := make([]*scopeData, len(a.scopes))
	for newIndex, oldIndex := range order {
		remap[oldIndex] = newIndex
		sorted[newIndex] = a.scopes[oldIndex]
	}
	for _, s := range sorted {
		if s.parent >= 0 {
			s.parent = remap[s.parent]
		}
	}
	a.scopes = sorted
	a.sorted = true
	return remap
}

// FindByPosition returns the innermost scope whose span contains the
// given byte offset. The arena must have been sorted.
func (a *Arena) FindByPosition(offset int) (Ref, bool) {
	if !a.sorted {
		panic("scope arena has not been sorted")
	}
	// Find the last scope starting at or before the offset, then walk
	// back to the closest one that actually contains it.
	i := sort.Search(len(a.scopes), func(i int) bool {
		return a.scopes[i].span.Start > offset
	}) - 1
	for ; i >= 0; i-- {
		if a.scopes[i].span.Contains(offset) {
			return Ref{arena: a, index: i}, true
		}
	}
	return Ref{}, false
}

// Ref is a read-only handle to a scope in an arena.
type Ref struct {
	arena *Arena
	index int
}

// Index returns the scope's arena index.
func (r Ref) Index() int { return r.index }

// Span returns the scope's source span.
func (r Ref) Span() ast.Span { return r.arena.scopes[r.index].span }

// Parent returns the parent scope; ok is false at a root.
func (r Ref) Parent() (Ref, bool) {
	p := r.arena.scopes[r.index].parent
	if p < 0 {
		return Ref{}, false
	}
	return Ref{arena: r.arena, index: p}, true
}

// Local returns the binding declared directly in this scope.
func (r Ref) Local(name string) (Name, bool) {
	n, ok := r.arena.scopes[r.index].names[name]
	return n, ok
}

// Lookup resolves a name, walking parent scopes; the closest binding
// shadows outer ones.
func (r Ref) Lookup(name string) (Name, bool) {
	current := r
	for {
		if n, ok := current.Local(name); ok {
			return n, true
		}
		parent, ok := current.Parent()
		if !ok {
			return Name{}, false
		}
		current = parent
	}
}

// Names iterates the scope's local bindings in insertion order.
func (r Ref) Names(visit func(name string, n Name) bool) {
	data := r.arena.scopes[r.index]
	for _, name := range data.order {
		if !visit(name, data.names[name]) {
			return
		}
	}
}

// Mut is a mutable scope handle used during analysis.
type Mut struct {
	Ref
}

// Insert adds a binding; it reports false when the name is already bound
// in this scope.
func (m Mut) Insert(name string, n Name) bool {
	data := m.arena.scopes[m.index]
	if _, exists := data.names[name]; exists {
		return false
	}
	data.names[name] = n
	data.order = append(data.order, name)
	return true
}

// Replace rebinds an existing name, preserving insertion order; a name
// not yet bound is appended.
func (m Mut) Replace(name string, n Name) {
	data := m.arena.scopes[m.index]
	if _, exists := data.names[name]; !exists {
		data.order = append(data.order, name)
	}
	data.names[name] = n
}
