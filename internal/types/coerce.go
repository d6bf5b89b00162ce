package types

// Equal reports structural equivalence of two types, including
// optionality. Structs compare by name plus ordered member names and
// types.
func Equal(a, b Type) bool {
	switch a := a.(type) {
	case NoneType:
		return IsNone(b)
	case UnionType:
		return IsUnion(b)
	case Primitive:
		p, ok := b.(Primitive)
		return ok && a == p
	case Array:
		arr, ok := b.(Array)
		return ok && a.NonEmpty == arr.NonEmpty && a.Optional == arr.Optional && Equal(a.Element, arr.Element)
	case Pair:
		p, ok := b.(Pair)
		return ok && a.Optional == p.Optional && Equal(a.Left, p.Left) && Equal(a.Right, p.Right)
	case Map:
		m, ok := b.(Map)
		return ok && a.Optional == m.Optional && Equal(a.Key, m.Key) && Equal(a.Value, m.Value)
	case ObjectType:
		o, ok := b.(ObjectType)
		return ok && a == o
	case *Struct:
		s, ok := b.(*Struct)
		if !ok || a.Name != s.Name || a.Optional != s.Optional || len(a.Members) != len(s.Members) {
			return false
		}
		for i, m := range a.Members {
			if m.Name != s.Members[i].Name || !Equal(m.Type, s.Members[i].Type) {
				return false
			}
		}
		return true
	case *Enum:
		e, ok := b.(*Enum)
		if !ok || a.Name != e.Name || a.Optional != e.Optional || len(a.Variants) != len(e.Variants) {
			return false
		}
		for i, v := range a.Variants {
			if v != e.Variants[i] {
				return false
			}
		}
		return Equal(a.Inner, e.Inner)
	case *Call:
		c, ok := b.(*Call)
		return ok && a == c
	case TaskType:
		_, ok := b.(TaskType)
		return ok
	case HintsType:
		_, ok := b.(HintsType)
		return ok
	case InputType:
		_, ok := b.(InputType)
		return ok
	case OutputType:
		_, ok := b.(OutputType)
		return ok
	default:
		return false
	}
}

// Coercible reports whether a value of type `from` may occupy a slot of
// type `to`.
//
// The lattice: Int coerces to Float; T to T?; File and Directory
// interchange with String; arrays coerce covariantly when non-emptiness
// is preserved; Map[K, V] coerces to Object when K coerces to String;
// structs interchange with Object; Union and None absorb.
func Coercible(from, to Type) bool {
	// Union coerces either way so that error recovery does not cascade.
	if IsUnion(from) || IsUnion(to) {
		return true
	}

	// None coerces to any optional type.
	if IsNone(from) {
		return to.IsOptional()
	}
	if IsNone(to) {
		return false
	}

	// An optional value never fits a required slot.
	if from.IsOptional() && !to.IsOptional() {
		return false
	}

	switch to := to.(type) {
	case Primitive:
		f, ok := from.(Primitive)
		if !ok {
			return false
		}
		if f.Kind == to.Kind {
			return true
		}
		switch to.Kind {
		case FloatKind:
			return f.Kind == IntegerKind
		case StringKind:
			return f.Kind == FileKind || f.Kind == DirectoryKind
		case FileKind, DirectoryKind:
			return f.Kind == StringKind
		default:
			return false
		}
	case Array:
		f, ok := from.(Array)
		if !ok {
			return false
		}
		// A possibly-empty array cannot occupy a non-empty slot.
		if to.NonEmpty && !f.NonEmpty {
			return false
		}
		return Coercible(f.Element, to.Element)
	case Pair:
		f, ok := from.(Pair)
		return ok && Coercible(f.Left, to.Left) && Coercible(f.Right, to.Right)
	case Map:
		f, ok := from.(Map)
		return ok && Coercible(f.Key, to.Key) && Coercible(f.Value, to.Value)
	case ObjectType:
		switch f := from.(type) {
		case ObjectType:
			return true
		case *Struct:
			return true
		case Map:
			return Coercible(f.Key, String.WithOptional(f.Key.IsOptional()))
		default:
			return false
		}
	case *Struct:
		switch f := from.(type) {
		case *Struct:
			if len(f.Members) != len(to.Members) {
				return false
			}
			// Member order may differ between equivalent structs.
			for _, m := range f.Members {
				t, ok := to.Member(m.Name)
				if !ok || !Coercible(m.Type, t) {
					return false
				}
			}
			return true
		case ObjectType:
			// Object member agreement is checked at runtime.
			return true
		case Map:
			return Coercible(f.Key, String.WithOptional(f.Key.IsOptional()))
		default:
			return false
		}
	case *Enum:
		f, ok := from.(*Enum)
		return ok && f.Name == to.Name
	default:
		return Equal(from.WithOptional(false), to.WithOptional(false))
	}
}

// CommonType computes the least common supertype of a and b in the
// coercion lattice. The second result is false when no common type
// exists.
func CommonType(a, b Type) (Type, bool) {
	if Equal(a, b) {
		return a, true
	}
	if IsUnion(a) {
		return b, true
	}
	if IsUnion(b) {
		return a, true
	}
	if IsNone(a) {
		return Optional(b), true
	}
	if IsNone(b) {
		return Optional(a), true
	}

	optional := a.IsOptional() || b.IsOptional()
	ra, rb := a.WithOptional(false), b.WithOptional(false)

	var common Type
	switch {
	case Coercible(ra, rb):
		common = rb
	case Coercible(rb, ra):
		common = ra
	default:
		// Recurse into arrays so that e.g. Array[Int] and Array[Float?]
		// still meet at Array[Float?].
		fa, aok := ra.(Array)
		fb, bok := rb.(Array)
		if aok && bok {
			elem, ok := CommonType(fa.Element, fb.Element)
			if !ok {
				return nil, false
			}
			common = Array{Element: elem, NonEmpty: fa.NonEmpty && fb.NonEmpty}
			break
		}
		return nil, false
	}
	return common.WithOptional(optional), true
}
