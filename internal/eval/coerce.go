package eval

import (
	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/types"
)

// Coerce converts a value to the target type, applying the same lattice
// the type checker uses. The span locates coercion failures.
func Coerce(v Value, to types.Type, span ast.Span) (Value, error) {
	if types.IsUnion(to) {
		return v, nil
	}
	if IsNone(v) {
		if to.IsOptional() || types.IsNone(to) {
			return NoneOf(to), nil
		}
		return nil, NewError(diagnostics.CannotCoerce(v.Type(), to, span))
	}

	switch to := to.(type) {
	case types.Primitive:
		return coercePrimitive(v, to, span)
	case types.Array:
		arr, ok := v.(Array)
		if !ok {
			return nil, cannotCoerce(v, to, span)
		}
		if to.NonEmpty && len(arr.Elements) == 0 {
			return nil, NewError(diagnostics.New("cannot coerce an empty array to a non-empty array type").
				WithLabel(span, ""))
		}
		elements := make([]Value, len(arr.Elements))
		for i, el := range arr.Elements {
			coerced, err := Coerce(el, to.Element, span)
			if err != nil {
				return nil, err
			}
			elements[i] = coerced
		}
		return Array{ty: types.Array{Element: to.Element, NonEmpty: to.NonEmpty || len(elements) > 0}, Elements: elements}, nil
	case types.Pair:
		p, ok := v.(Pair)
		if !ok {
			return nil, cannotCoerce(v, to, span)
		}
		left, err := Coerce(p.Left, to.Left, span)
		if err != nil {
			return nil, err
		}
		right, err := Coerce(p.Right, to.Right, span)
		if err != nil {
			return nil, err
		}
		return Pair{ty: types.Pair{Left: to.Left, Right: to.Right}, Left: left, Right: right}, nil
	case types.Map:
		switch v := v.(type) {
		case Map:
			entries := make([]MapEntry, len(v.Entries))
			for i, e := range v.Entries {
				key, err := Coerce(e.Key, to.Key, span)
				if err != nil {
					return nil, err
				}
				value, err := Coerce(e.Value, to.Value, span)
				if err != nil {
					return nil, err
				}
				entries[i] = MapEntry{Key: key, Value: value}
			}
			return NewMap(to.Key, to.Value, entries), nil
		case Object:
			entries := make([]MapEntry, 0, len(v.names))
			for _, name := range v.names {
				key, err := Coerce(String(name), to.Key, span)
				if err != nil {
					return nil, err
				}
				value, err := Coerce(v.members[name], to.Value, span)
				if err != nil {
					return nil, err
				}
				entries = append(entries, MapEntry{Key: key, Value: value})
			}
			return NewMap(to.Key, to.Value, entries), nil
		}
		return nil, cannotCoerce(v, to, span)
	case types.ObjectType:
		switch v := v.(type) {
		case Object:
			return v, nil
		case Struct:
			names := make([]string, 0, len(v.ty.Members))
			members := make(map[string]Value, len(v.ty.Members))
			for _, m := range v.ty.Members {
				names = append(names, m.Name)
				members[m.Name] = v.members[m.Name]
			}
			return NewObject(names, members), nil
		case Map:
			names := make([]string, 0, len(v.Entries))
			members := make(map[string]Value, len(v.Entries))
			for _, e := range v.Entries {
				key, err := Coerce(e.Key, types.String, span)
				if err != nil {
					return nil, err
				}
				name := string(key.(String))
				if _, exists := members[name]; !exists {
					names = append(names, name)
				}
				members[name] = e.Value
			}
			return NewObject(names, members), nil
		}
		return nil, cannotCoerce(v, to, span)
	case *types.Struct:
		return coerceStruct(v, to, span)
	default:
		if types.Equal(v.Type().WithOptional(false), to.WithOptional(false)) {
			return v, nil
		}
		return nil, cannotCoerce(v, to, span)
	}
}

func coercePrimitive(v Value, to types.Primitive, span ast.Span) (Value, error) {
	switch to.Kind {
	case types.BooleanKind:
		if b, ok := v.(Boolean); ok {
			return b, nil
		}
	case types.IntegerKind:
		if i, ok := v.(Int); ok {
			return i, nil
		}
	case types.FloatKind:
		switch v := v.(type) {
		case Float:
			return v, nil
		case Int:
			return Float(v), nil
		}
	case types.StringKind:
		switch v := v.(type) {
		case String:
			return v, nil
		case File:
			return String(v), nil
		case Directory:
			return String(v), nil
		}
	case types.FileKind:
		switch v := v.(type) {
		case File:
			return v, nil
		case String:
			return File(v), nil
		}
	case types.DirectoryKind:
		switch v := v.(type) {
		case Directory:
			return v, nil
		case String:
			return Directory(v), nil
		}
	}
	return nil, cannotCoerce(v, to, span)
}

func coerceStruct(v Value, to *types.Struct, span ast.Span) (Value, error) {
	memberValue := func(name string) (Value, bool) {
		switch v := v.(type) {
		case Struct:
			return v.Member(name)
		case Object:
			return v.Member(name)
		case Map:
			return v.Get(String(name))
		}
		return nil, false
	}

	switch v.(type) {
	case Struct, Object, Map:
	default:
		return nil, cannotCoerce(v, to, span)
	}

	members := make(map[string]Value, len(to.Members))
	for _, m := range to.Members {
		value, ok := memberValue(m.Name)
		if !ok {
			if m.Type.IsOptional() {
				members[m.Name] = NoneOf(m.Type)
				continue
			}
			return nil, NewError(diagnostics.New(
				"cannot coerce to struct `"+to.Name+"`: missing required member `"+m.Name+"`").
				WithLabel(span, ""))
		}
		coerced, err := Coerce(value, m.Type, span)
		if err != nil {
			return nil, err
		}
		members[m.Name] = coerced
	}
	return NewStruct(to, members), nil
}

func cannotCoerce(v Value, to types.Type, span ast.Span) error {
	return NewError(diagnostics.CannotCoerce(v.Type(), to, span))
}
