// Package types defines the WDL type model: a closed set of primitive,
// compound, and hidden types with optionality, structural equivalence,
// coercion, and a common-supertype lattice.
package types

import (
	"fmt"
	"strings"
)

// Type is the interface for all types in the system.
type Type interface {
	fmt.Stringer
	// IsOptional reports whether the type accepts `None`.
	IsOptional() bool
	// WithOptional returns the same type with optionality set.
	WithOptional(optional bool) Type
	typeNode()
}

// PrimitiveKind enumerates the primitive types.
type PrimitiveKind int

const (
	BooleanKind PrimitiveKind = iota
	IntegerKind
	FloatKind
	StringKind
	FileKind
	DirectoryKind
)

func (k PrimitiveKind) String() string {
	switch k {
	case BooleanKind:
		return "Boolean"
	case IntegerKind:
		return "Int"
	case FloatKind:
		return "Float"
	case StringKind:
		return "String"
	case FileKind:
		return "File"
	case DirectoryKind:
		return "Directory"
	default:
		return "Union"
	}
}

// Primitive is a primitive type, optionally optional.
type Primitive struct {
	Kind     PrimitiveKind
	Optional bool
}

// Convenience constructors for required primitive types.
var (
	Boolean   = Primitive{Kind: BooleanKind}
	Integer   = Primitive{Kind: IntegerKind}
	Float     = Primitive{Kind: FloatKind}
	String    = Primitive{Kind: StringKind}
	File      = Primitive{Kind: FileKind}
	Directory = Primitive{Kind: DirectoryKind}
)

func (p Primitive) String() string {
	if p.Optional {
		return p.Kind.String() + "?"
	}
	return p.Kind.String()
}

func (p Primitive) IsOptional() bool { return p.Optional }

func (p Primitive) WithOptional(optional bool) Type {
	p.Optional = optional
	return p
}

func (p Primitive) typeNode() {}

// NoneType is the type of the `None` literal. It is coercible to any
// optional type.
type NoneType struct{}

// None is the singleton None type.
var None = NoneType{}

func (NoneType) String() string              { return "None" }
func (NoneType) IsOptional() bool            { return true }
func (n NoneType) WithOptional(bool) Type    { return n }
func (NoneType) typeNode()                   {}

// UnionType is the indeterminate type used for error recovery: it is
// coercible to and from every type, so a single diagnostic does not
// cascade.
type UnionType struct{}

// Union is the singleton Union type.
var Union = UnionType{}

func (UnionType) String() string           { return "Union" }
func (UnionType) IsOptional() bool         { return true }
func (u UnionType) WithOptional(bool) Type { return u }
func (UnionType) typeNode()                {}

// Array is `Array[X]`, optionally non-empty (`+`).
type Array struct {
	Element  Type
	NonEmpty bool
	Optional bool
}

func (a Array) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Array[%s]", a.Element)
	if a.NonEmpty {
		sb.WriteByte('+')
	}
	if a.Optional {
		sb.WriteByte('?')
	}
	return sb.String()
}

func (a Array) IsOptional() bool { return a.Optional }

func (a Array) WithOptional(optional bool) Type {
	a.Optional = optional
	return a
}

func (a Array) typeNode() {}

// Pair is `Pair[L, R]`.
type Pair struct {
	Left     Type
	Right    Type
	Optional bool
}

func (p Pair) String() string {
	s := fmt.Sprintf("Pair[%s, %s]", p.Left, p.Right)
	if p.Optional {
		s += "?"
	}
	return s
}

func (p Pair) IsOptional() bool { return p.Optional }

func (p Pair) WithOptional(optional bool) Type {
	p.Optional = optional
	return p
}

func (p Pair) typeNode() {}

// Map is `Map[K, V]`. Keys are always primitive.
type Map struct {
	Key      Type
	Value    Type
	Optional bool
}

func (m Map) String() string {
	s := fmt.Sprintf("Map[%s, %s]", m.Key, m.Value)
	if m.Optional {
		s += "?"
	}
	return s
}

func (m Map) IsOptional() bool { return m.Optional }

func (m Map) WithOptional(optional bool) Type {
	m.Optional = optional
	return m
}

func (m Map) typeNode() {}

// ObjectType is the dynamic `Object` type.
type ObjectType struct {
	Optional bool
}

// Object is the required Object type.
var Object = ObjectType{}

func (o ObjectType) String() string {
	if o.Optional {
		return "Object?"
	}
	return "Object"
}

func (o ObjectType) IsOptional() bool { return o.Optional }

func (o ObjectType) WithOptional(optional bool) Type {
	o.Optional = optional
	return o
}

func (o ObjectType) typeNode() {}

// StructMember is a named member of a struct type.
type StructMember struct {
	Name string
	Type Type
}

// Struct is a named struct type with ordered members.
type Struct struct {
	Name     string
	Members  []StructMember
	Optional bool
	index    map[string]int
}

// NewStruct creates a struct type from ordered members.
func NewStruct(name string, members []StructMember) *Struct {
	s := &Struct{Name: name, Members: members, index: make(map[string]int, len(members))}
	for i, m := range members {
		s.index[m.Name] = i
	}
	return s
}

// Member returns the type of the named member.
func (s *Struct) Member(name string) (Type, bool) {
	if i, ok := s.index[name]; ok {
		return s.Members[i].Type, true
	}
	return nil, false
}

func (s *Struct) String() string {
	if s.Optional {
		return s.Name + "?"
	}
	return s.Name
}

func (s *Struct) IsOptional() bool { return s.Optional }

func (s *Struct) WithOptional(optional bool) Type {
	clone := *s
	clone.Optional = optional
	return &clone
}

func (s *Struct) typeNode() {}

// EnumVariant is a named variant of an enum type.
type EnumVariant struct {
	Name string
}

// Enum is a named enumeration over an inner primitive type.
type Enum struct {
	Name     string
	Inner    Type
	Variants []EnumVariant
	Optional bool
}

func (e *Enum) String() string {
	if e.Optional {
		return e.Name + "?"
	}
	return e.Name
}

func (e *Enum) IsOptional() bool { return e.Optional }

func (e *Enum) WithOptional(optional bool) Type {
	clone := *e
	clone.Optional = optional
	return &clone
}

func (e *Enum) typeNode() {}

// CallKind distinguishes task calls from workflow calls.
type CallKind int

const (
	TaskCall CallKind = iota
	WorkflowCall
)

func (k CallKind) String() string {
	if k == WorkflowCall {
		return "workflow"
	}
	return "task"
}

// CallInput is a declared input of a callable.
type CallInput struct {
	Name     string
	Type     Type
	Required bool
}

// CallOutput is a declared output of a callable.
type CallOutput struct {
	Name string
	Type Type
}

// Call is the type of a call statement's bound name: the callable's
// outputs accessed by member name.
type Call struct {
	Kind    CallKind
	Name    string
	Inputs  []CallInput
	Outputs []CallOutput
}

// Input returns the named input.
func (c *Call) Input(name string) (CallInput, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return CallInput{}, false
}

// Output returns the type of the named output.
func (c *Call) Output(name string) (Type, bool) {
	for _, out := range c.Outputs {
		if out.Name == name {
			return out.Type, true
		}
	}
	return nil, false
}

func (c *Call) String() string {
	return fmt.Sprintf("call to %s `%s`", c.Kind, c.Name)
}

func (c *Call) IsOptional() bool         { return false }
func (c *Call) WithOptional(b bool) Type { return c }
func (c *Call) typeNode()                {}

// Hidden types are valid only in specific syntactic positions and are not
// user-constructible.
type (
	// TaskType is the type of the 1.2 `task` variable in command and
	// output sections.
	TaskType struct{}
	// HintsType is the type of a `hints` section literal.
	HintsType struct{}
	// InputType is the type of `inputs` inside a hints section.
	InputType struct{}
	// OutputType is the type of `outputs` inside a hints section.
	OutputType struct{}
)

// Singletons for the hidden types.
var (
	Task   = TaskType{}
	Hints  = HintsType{}
	Input  = InputType{}
	Output = OutputType{}
)

func (TaskType) String() string           { return "task" }
func (TaskType) IsOptional() bool         { return false }
func (t TaskType) WithOptional(bool) Type { return t }
func (TaskType) typeNode()                {}

func (HintsType) String() string           { return "hints" }
func (HintsType) IsOptional() bool         { return false }
func (h HintsType) WithOptional(bool) Type { return h }
func (HintsType) typeNode()                {}

func (InputType) String() string           { return "input" }
func (InputType) IsOptional() bool         { return false }
func (i InputType) WithOptional(bool) Type { return i }
func (InputType) typeNode()                {}

func (OutputType) String() string           { return "output" }
func (OutputType) IsOptional() bool         { return false }
func (o OutputType) WithOptional(bool) Type { return o }
func (OutputType) typeNode()                {}

// Optional returns t with optionality set, preserving the concrete type.
func Optional(t Type) Type {
	return t.WithOptional(true)
}

// IsUnion reports whether t is the indeterminate Union type.
func IsUnion(t Type) bool {
	_, ok := t.(UnionType)
	return ok
}

// IsNone reports whether t is the None type.
func IsNone(t Type) bool {
	_, ok := t.(NoneType)
	return ok
}
