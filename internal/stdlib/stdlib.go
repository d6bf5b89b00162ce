// Package stdlib defines the standard function library's signature
// tables: names, overloads, parameter types, return types, and minimum
// versions.
//
// Binding is purely type-level so the analyzer can check calls without
// executing them; implementations live with the evaluator and dispatch
// on the bound signature index.
package stdlib

import (
	"fmt"
	"strings"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/types"
)

// Binder attempts to match argument types against one signature,
// returning the call's result type. In strict mode arguments must match
// parameters exactly (modulo T fitting T?); otherwise coercion applies.
type Binder func(args []types.Type, strict bool) (types.Type, bool)

// Signature is one overload of a standard function.
type Signature struct {
	// Display is the human-readable form used in diagnostics.
	Display string
	// Min and Max are the accepted argument counts.
	Min, Max int
	Bind     Binder
}

// Function is a named standard function with one or more overloads.
type Function struct {
	Name       string
	MinVersion ast.Version
	Signatures []Signature
}

// BindErrorKind classifies a failed binding.
type BindErrorKind int

const (
	// BindTooFew means fewer arguments than any overload accepts.
	BindTooFew BindErrorKind = iota
	// BindTooMany means more arguments than any overload accepts.
	BindTooMany
	// BindMismatch means an argument type no overload accepts.
	BindMismatch
	// BindAmbiguous means the arguments satisfy multiple overloads.
	BindAmbiguous
)

// BindError describes why a call failed to bind.
type BindError struct {
	Kind BindErrorKind
	// Min and Max bound the accepted argument counts across overloads.
	Min, Max int
	// ArgIndex is the first mismatching argument for BindMismatch.
	ArgIndex int
	// Expected describes acceptable types for the mismatching argument.
	Expected string
	// First and Second are the conflicting displays for BindAmbiguous.
	First, Second string
}

// Binding is a successful signature selection.
type Binding struct {
	// Index selects the bound signature within the function.
	Index int
	// Return is the call's result type.
	Return types.Type
}

// Bind selects the unique overload accepting the argument types.
//
// Binding is two-phase: overloads matching the arguments exactly win
// over overloads that require coercion, and ambiguity is only reported
// within a phase. Version gating is checked by the caller so that
// unsupported-function diagnostics still carry accurate types.
func (f *Function) Bind(args []types.Type) (Binding, *BindError) {
	minCount, maxCount := -1, -1
	for _, sig := range f.Signatures {
		if minCount < 0 || sig.Min < minCount {
			minCount = sig.Min
		}
		if sig.Max > maxCount {
			maxCount = sig.Max
		}
	}
	if len(args) < minCount {
		return Binding{}, &BindError{Kind: BindTooFew, Min: minCount, Max: maxCount}
	}
	if len(args) > maxCount {
		return Binding{}, &BindError{Kind: BindTooMany, Min: minCount, Max: maxCount}
	}

	// Union arguments are error recovery and bind to the first matching
	// overload rather than reporting ambiguity.
	hasUnion := false
	for _, arg := range args {
		if types.IsUnion(arg) {
			hasUnion = true
			break
		}
	}

	for _, strict := range []bool{true, false} {
		bound := -1
		var ret types.Type
		for i, sig := range f.Signatures {
			if len(args) < sig.Min || len(args) > sig.Max {
				continue
			}
			r, ok := sig.Bind(args, strict)
			if !ok {
				continue
			}
			if bound >= 0 {
				if hasUnion {
					continue
				}
				return Binding{}, &BindError{
					Kind:   BindAmbiguous,
					First:  f.Signatures[bound].Display,
					Second: sig.Display,
				}
			}
			bound, ret = i, r
		}
		if bound >= 0 {
			return Binding{Index: bound, Return: ret}, nil
		}
	}

	// Arguments matched no overload; report against the first overload
	// accepting this argument count.
	for _, sig := range f.Signatures {
		if len(args) >= sig.Min && len(args) <= sig.Max {
			return Binding{}, &BindError{
				Kind:     BindMismatch,
				ArgIndex: mismatchIndex(sig, args),
				Expected: sig.Display,
			}
		}
	}
	return Binding{}, &BindError{Kind: BindMismatch, Expected: f.Signatures[0].Display}
}

// mismatchIndex finds the first argument that breaks the signature by
// replacing one argument at a time with Union and rebinding.
func mismatchIndex(sig Signature, args []types.Type) int {
	for i := range args {
		probe := make([]types.Type, len(args))
		copy(probe, args)
		probe[i] = types.Union
		if _, ok := sig.Bind(probe, false); ok {
			return i
		}
	}
	return 0
}

// Library is the process-wide immutable function table.
type Library struct {
	funcs map[string]*Function
}

// Function looks up a standard function by name.
func (l *Library) Function(name string) (*Function, bool) {
	f, ok := l.funcs[name]
	return f, ok
}

// accepts reports whether an argument fits a parameter. Strict mode
// requires equality apart from the parameter being optional.
func accepts(arg, param types.Type, strict bool) bool {
	if types.IsUnion(arg) {
		return true
	}
	if strict {
		return types.Equal(arg, param) || types.Equal(arg, param.WithOptional(false))
	}
	return types.Coercible(arg, param)
}

// display renders a signature string like `sub(String, String, String) -> String`.
func display(name string, ret types.Type, params ...string) string {
	return fmt.Sprintf("%s(%s) -> %s", name, strings.Join(params, ", "), ret)
}

// fixed builds a binder over concrete parameter types; optional trailing
// parameters are expressed by Min < Max on the signature.
func fixed(ret types.Type, params ...types.Type) Binder {
	return func(args []types.Type, strict bool) (types.Type, bool) {
		if len(args) > len(params) {
			return nil, false
		}
		for i, arg := range args {
			if !accepts(arg, params[i], strict) {
				return nil, false
			}
		}
		return ret, true
	}
}

// anyArray matches a single required Array argument, handing the element
// type to result.
func anyArray(result func(arr types.Array) (types.Type, bool)) Binder {
	return func(args []types.Type, strict bool) (types.Type, bool) {
		if len(args) != 1 {
			return nil, false
		}
		arr, ok := asArray(args[0])
		if !ok {
			return nil, false
		}
		return result(arr)
	}
}

func asArray(t types.Type) (types.Array, bool) {
	if types.IsUnion(t) {
		return types.Array{Element: types.Union}, true
	}
	arr, ok := t.(types.Array)
	if !ok || arr.Optional {
		return types.Array{}, false
	}
	return arr, true
}

func asMap(t types.Type) (types.Map, bool) {
	if types.IsUnion(t) {
		return types.Map{Key: types.Union, Value: types.Union}, true
	}
	m, ok := t.(types.Map)
	if !ok || m.Optional {
		return types.Map{}, false
	}
	return m, true
}

func asPair(t types.Type) (types.Pair, bool) {
	if types.IsUnion(t) {
		return types.Pair{Left: types.Union, Right: types.Union}, true
	}
	p, ok := t.(types.Pair)
	if !ok || p.Optional {
		return types.Pair{}, false
	}
	return p, true
}

// primitive reports whether t is a required primitive type.
func primitive(t types.Type) bool {
	if types.IsUnion(t) {
		return true
	}
	p, ok := t.(types.Primitive)
	return ok && !p.Optional
}
