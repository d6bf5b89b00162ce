package eval

import (
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/types"
)

// Scope is a runtime name environment. Unlike analysis scopes it holds
// values; lookup walks parent scopes with the closest binding shadowing.
type Scope struct {
	parent *Scope
	names  []string
	values map[string]Value
}

// NewScope creates a scope with an optional parent.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, values: make(map[string]Value)}
}

// Lookup resolves a name, walking parents.
func (s *Scope) Lookup(name string) (Value, bool) {
	for current := s; current != nil; current = current.parent {
		if v, ok := current.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Insert binds a name, overwriting any local binding.
func (s *Scope) Insert(name string, v Value) {
	if _, exists := s.values[name]; !exists {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

// Names iterates local bindings in insertion order.
func (s *Scope) Names(visit func(name string, v Value) bool) {
	for _, name := range s.names {
		if !visit(name, s.values[name]) {
			return
		}
	}
}

// Resolver adapts the scope for type-only expression walks.
func (s *Scope) Resolver() document.NameResolver {
	return func(name string) (types.Type, bool) {
		v, ok := s.Lookup(name)
		if !ok {
			return nil, false
		}
		return v.Type(), true
	}
}
