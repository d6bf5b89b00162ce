// Package eval implements runtime evaluation: expressions to values,
// task command assembly and execution, and workflow composition.
package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/wdlx/internal/types"
)

// Value is the runtime mirror of the type model. Every compound value
// carries its concrete type; values are trees and never cyclic.
type Value interface {
	Type() types.Type
	// String renders the value in WDL literal syntax for display.
	String() string
}

// NoneValue is the absent value; it remembers the optional type of the
// slot it fills.
type NoneValue struct {
	ty types.Type
}

// None is the untyped None value.
var None = NoneValue{ty: types.None}

// NoneOf creates a None carrying a concrete optional type.
func NoneOf(t types.Type) NoneValue {
	return NoneValue{ty: types.Optional(t.WithOptional(false))}
}

func (n NoneValue) Type() types.Type { return n.ty }
func (n NoneValue) String() string   { return "None" }

// IsNone reports whether a value is None.
func IsNone(v Value) bool {
	_, ok := v.(NoneValue)
	return ok
}

// Boolean is a Boolean value.
type Boolean bool

func (b Boolean) Type() types.Type { return types.Boolean }
func (b Boolean) String() string   { return strconv.FormatBool(bool(b)) }

// Int is an Int value.
type Int int64

func (i Int) Type() types.Type { return types.Integer }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Float is a Float value.
type Float float64

func (f Float) Type() types.Type { return types.Float }
func (f Float) String() string   { return strconv.FormatFloat(float64(f), 'f', -1, 64) }

// String is a String value.
type String string

func (s String) Type() types.Type { return types.String }
func (s String) String() string   { return strconv.Quote(string(s)) }

// File is a File value holding a path or URL.
type File string

func (f File) Type() types.Type { return types.File }
func (f File) String() string   { return strconv.Quote(string(f)) }

// Directory is a Directory value holding a path or URL.
type Directory string

func (d Directory) Type() types.Type { return types.Directory }
func (d Directory) String() string   { return strconv.Quote(string(d)) }

// Array is an Array value.
type Array struct {
	ty       types.Array
	Elements []Value
}

// NewArray creates an array of the given element type.
func NewArray(elem types.Type, elements []Value) Array {
	return Array{ty: types.Array{Element: elem, NonEmpty: len(elements) > 0}, Elements: elements}
}

func (a Array) Type() types.Type { return a.ty }

func (a Array) String() string {
	parts := make([]string, len(a.Elements))
	for i, el := range a.Elements {
		parts[i] = el.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Pair is a Pair value.
type Pair struct {
	ty    types.Pair
	Left  Value
	Right Value
}

// NewPair creates a pair value.
func NewPair(left, right Value) Pair {
	return Pair{
		ty:    types.Pair{Left: left.Type(), Right: right.Type()},
		Left:  left,
		Right: right,
	}
}

func (p Pair) Type() types.Type { return p.ty }

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.Left, p.Right)
}

// MapEntry is one key/value pair of a Map value.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is a Map value with insertion-ordered entries.
type Map struct {
	ty      types.Map
	Entries []MapEntry
}

// NewMap creates a map value.
func NewMap(key, value types.Type, entries []MapEntry) Map {
	return Map{ty: types.Map{Key: key, Value: value}, Entries: entries}
}

func (m Map) Type() types.Type { return m.ty }

// Get looks up an entry by key equality.
func (m Map) Get(key Value) (Value, bool) {
	for _, e := range m.Entries {
		if ValuesEqual(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

func (m Map) String() string {
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = fmt.Sprintf("%s: %s", e.Key, e.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Object is a dynamically-typed member collection.
type Object struct {
	names   []string
	members map[string]Value
}

// NewObject creates an object preserving member order.
func NewObject(names []string, members map[string]Value) Object {
	return Object{names: names, members: members}
}

func (o Object) Type() types.Type { return types.Object }

// Member returns the named member.
func (o Object) Member(name string) (Value, bool) {
	v, ok := o.members[name]
	return v, ok
}

// Names returns the member names in insertion order.
func (o Object) Names() []string { return o.names }

func (o Object) String() string {
	parts := make([]string, len(o.names))
	for i, name := range o.names {
		parts[i] = fmt.Sprintf("%s: %s", name, o.members[name])
	}
	return "object {" + strings.Join(parts, ", ") + "}"
}

// Struct is a struct value; member order comes from its type.
type Struct struct {
	ty      *types.Struct
	members map[string]Value
}

// NewStruct creates a struct value.
func NewStruct(ty *types.Struct, members map[string]Value) Struct {
	return Struct{ty: ty, members: members}
}

func (s Struct) Type() types.Type { return s.ty }

// Member returns the named member.
func (s Struct) Member(name string) (Value, bool) {
	v, ok := s.members[name]
	return v, ok
}

// StructType returns the value's struct type.
func (s Struct) StructType() *types.Struct { return s.ty }

func (s Struct) String() string {
	parts := make([]string, 0, len(s.ty.Members))
	for _, m := range s.ty.Members {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Name, s.members[m.Name]))
	}
	return s.ty.Name + " {" + strings.Join(parts, ", ") + "}"
}

// CallOutputs binds a completed call's outputs to its alias.
type CallOutputs struct {
	ty      *types.Call
	outputs map[string]Value
}

// NewCallOutputs creates a call value.
func NewCallOutputs(ty *types.Call, outputs map[string]Value) CallOutputs {
	return CallOutputs{ty: ty, outputs: outputs}
}

func (c CallOutputs) Type() types.Type { return c.ty }

// Output returns the named output value.
func (c CallOutputs) Output(name string) (Value, bool) {
	v, ok := c.outputs[name]
	return v, ok
}

func (c CallOutputs) String() string { return c.ty.String() }

// TaskInfo is the hidden `task` value available in 1.2 command and
// output sections.
type TaskInfo struct {
	Name       string
	Id         string
	Container  string
	Cpu        float64
	Memory     int64
	Attempt    int64
	Gpu        []string
	Fpga       []string
	Disks      map[string]int64
	EndTime    *int64
	ReturnCode *int64
	Meta       Object
	ParamMeta  Object
	Ext        Object
}

func (t TaskInfo) Type() types.Type { return types.Task }
func (t TaskInfo) String() string   { return "task" }

// Member resolves a member of the task variable.
func (t TaskInfo) Member(name string) (Value, bool) {
	switch name {
	case "name":
		return String(t.Name), true
	case "id":
		return String(t.Id), true
	case "container":
		return String(t.Container), true
	case "cpu":
		return Float(t.Cpu), true
	case "memory":
		return Int(t.Memory), true
	case "attempt":
		return Int(t.Attempt), true
	case "gpu":
		return stringArray(t.Gpu), true
	case "fpga":
		return stringArray(t.Fpga), true
	case "disks":
		entries := make([]MapEntry, 0, len(t.Disks))
		for k, v := range t.Disks {
			entries = append(entries, MapEntry{Key: String(k), Value: Int(v)})
		}
		return NewMap(types.String, types.Integer, entries), true
	case "end_time":
		return optionalInt(t.EndTime), true
	case "return_code":
		return optionalInt(t.ReturnCode), true
	case "meta":
		return t.Meta, true
	case "parameter_meta":
		return t.ParamMeta, true
	case "ext":
		return t.Ext, true
	default:
		return nil, false
	}
}

// Hints is the hidden value of an evaluated hints section.
type Hints struct {
	Members Object
}

func (h Hints) Type() types.Type { return types.Hints }
func (h Hints) String() string   { return "hints" }

// InputHints and OutputHints are the hidden `input`/`output` hint
// carriers valid inside a 1.2 hints section.
type InputHints struct{ Members Object }

func (i InputHints) Type() types.Type { return types.Input }
func (i InputHints) String() string   { return "input" }

type OutputHints struct{ Members Object }

func (o OutputHints) Type() types.Type { return types.Output }
func (o OutputHints) String() string   { return "output" }

func stringArray(elems []string) Array {
	values := make([]Value, len(elems))
	for i, s := range elems {
		values[i] = String(s)
	}
	return NewArray(types.String, values)
}

func optionalInt(v *int64) Value {
	if v == nil {
		return NoneOf(types.Integer)
	}
	return Int(*v)
}

// ValuesEqual implements WDL equality: structural over primitives and
// compounds; None equals only None.
func ValuesEqual(a, b Value) bool {
	switch a := a.(type) {
	case NoneValue:
		return IsNone(b)
	case Boolean:
		o, ok := b.(Boolean)
		return ok && a == o
	case Int:
		switch o := b.(type) {
		case Int:
			return a == o
		case Float:
			return Float(a) == o
		}
		return false
	case Float:
		switch o := b.(type) {
		case Float:
			return a == o
		case Int:
			return a == Float(o)
		}
		return false
	case String:
		return a == toStringLike(b)
	case File:
		return String(a) == toStringLike(b)
	case Directory:
		return String(a) == toStringLike(b)
	case Array:
		o, ok := b.(Array)
		if !ok || len(a.Elements) != len(o.Elements) {
			return false
		}
		for i := range a.Elements {
			if !ValuesEqual(a.Elements[i], o.Elements[i]) {
				return false
			}
		}
		return true
	case Pair:
		o, ok := b.(Pair)
		return ok && ValuesEqual(a.Left, o.Left) && ValuesEqual(a.Right, o.Right)
	case Map:
		o, ok := b.(Map)
		if !ok || len(a.Entries) != len(o.Entries) {
			return false
		}
		for i := range a.Entries {
			if !ValuesEqual(a.Entries[i].Key, o.Entries[i].Key) || !ValuesEqual(a.Entries[i].Value, o.Entries[i].Value) {
				return false
			}
		}
		return true
	case Object:
		o, ok := b.(Object)
		if !ok || len(a.names) != len(o.names) {
			return false
		}
		for _, name := range a.names {
			bv, ok := o.Member(name)
			if !ok || !ValuesEqual(a.members[name], bv) {
				return false
			}
		}
		return true
	case Struct:
		o, ok := b.(Struct)
		if !ok || len(a.members) != len(o.members) {
			return false
		}
		for name, av := range a.members {
			bv, ok := o.Member(name)
			if !ok || !ValuesEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// toStringLike unwraps String, File, and Directory values to a common
// representation; other values produce a sentinel that never matches.
func toStringLike(v Value) String {
	switch v := v.(type) {
	case String:
		return v
	case File:
		return String(v)
	case Directory:
		return String(v)
	default:
		return String("\x00nonstring")
	}
}

// Raw renders a value the way placeholder interpolation and string
// concatenation do: no quoting, booleans as `true`/`false`.
func Raw(v Value) string {
	switch v := v.(type) {
	case String:
		return string(v)
	case File:
		return string(v)
	case Directory:
		return string(v)
	case Boolean:
		return strconv.FormatBool(bool(v))
	case Int:
		return v.String()
	case Float:
		return v.String()
	case NoneValue:
		return ""
	default:
		return v.String()
	}
}
