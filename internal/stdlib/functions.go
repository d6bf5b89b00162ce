package stdlib

import (
	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/types"
)

var defaultLibrary = buildLibrary()

// Default returns the process-wide standard function library.
func Default() *Library {
	return defaultLibrary
}

func buildLibrary() *Library {
	l := &Library{funcs: make(map[string]*Function)}
	add := func(name string, min ast.Version, sigs ...Signature) {
		l.funcs[name] = &Function{Name: name, MinVersion: min, Signatures: sigs}
	}

	arrayOfString := types.Array{Element: types.String}
	arrayOfFile := types.Array{Element: types.File}
	arrayOfInt := types.Array{Element: types.Integer}
	tsvRows := types.Array{Element: arrayOfString}
	stringMap := types.Map{Key: types.String, Value: types.String}
	arrayOfObject := types.Array{Element: types.Object}

	// File I/O.
	add("stdout", ast.V1_0, Signature{
		Display: display("stdout", types.File),
		Bind:    fixed(types.File),
	})
	add("stderr", ast.V1_0, Signature{
		Display: display("stderr", types.File),
		Bind:    fixed(types.File),
	})
	add("read_lines", ast.V1_0, Signature{
		Display: display("read_lines", arrayOfString, "File"),
		Min:     1, Max: 1,
		Bind: fixed(arrayOfString, types.File),
	})
	add("read_string", ast.V1_0, Signature{
		Display: display("read_string", types.String, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.String, types.File),
	})
	add("read_int", ast.V1_0, Signature{
		Display: display("read_int", types.Integer, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.Integer, types.File),
	})
	add("read_float", ast.V1_0, Signature{
		Display: display("read_float", types.Float, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.Float, types.File),
	})
	add("read_boolean", ast.V1_0, Signature{
		Display: display("read_boolean", types.Boolean, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.Boolean, types.File),
	})
	add("read_json", ast.V1_0, Signature{
		Display: display("read_json", types.Union, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.Union, types.File),
	})
	add("read_map", ast.V1_0, Signature{
		Display: display("read_map", stringMap, "File"),
		Min:     1, Max: 1,
		Bind: fixed(stringMap, types.File),
	})
	add("read_object", ast.V1_0, Signature{
		Display: display("read_object", types.Object, "File"),
		Min:     1, Max: 1,
		Bind: fixed(types.Object, types.File),
	})
	add("read_objects", ast.V1_0, Signature{
		Display: display("read_objects", arrayOfObject, "File"),
		Min:     1, Max: 1,
		Bind: fixed(arrayOfObject, types.File),
	})
	add("read_tsv", ast.V1_0,
		Signature{
			Display: display("read_tsv", tsvRows, "File"),
			Min:     1, Max: 1,
			Bind: fixed(tsvRows, types.File),
		},
		Signature{
			Display: display("read_tsv", arrayOfObject, "File", "Boolean"),
			Min:     2, Max: 2,
			Bind: fixed(arrayOfObject, types.File, types.Boolean),
		},
		Signature{
			Display: display("read_tsv", arrayOfObject, "File", "Boolean", "Array[String]"),
			Min:     3, Max: 3,
			Bind: fixed(arrayOfObject, types.File, types.Boolean, arrayOfString),
		},
	)
	add("write_lines", ast.V1_0, Signature{
		Display: display("write_lines", types.File, "Array[String]"),
		Min:     1, Max: 1,
		Bind: fixed(types.File, arrayOfString),
	})
	add("write_tsv", ast.V1_0,
		Signature{
			Display: display("write_tsv", types.File, "Array[Array[String]]"),
			Min:     1, Max: 1,
			Bind: fixed(types.File, tsvRows),
		},
		Signature{
			Display: display("write_tsv", types.File, "Array[Array[String]]", "Boolean", "Array[String]"),
			Min:     3, Max: 3,
			Bind: fixed(types.File, tsvRows, types.Boolean, arrayOfString),
		},
	)
	add("write_map", ast.V1_0, Signature{
		Display: display("write_map", types.File, "Map[String, String]"),
		Min:     1, Max: 1,
		Bind: fixed(types.File, stringMap),
	})
	add("write_json", ast.V1_0, Signature{
		Display: display("write_json", types.File, "X"),
		Min:     1, Max: 1,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			return types.File, true
		},
	})
	add("write_object", ast.V1_0, Signature{
		Display: display("write_object", types.File, "Object"),
		Min:     1, Max: 1,
		Bind: fixed(types.File, types.Object),
	})
	add("write_objects", ast.V1_0, Signature{
		Display: display("write_objects", types.File, "Array[Object]"),
		Min:     1, Max: 1,
		Bind: fixed(types.File, arrayOfObject),
	})
	add("glob", ast.V1_0, Signature{
		Display: display("glob", arrayOfFile, "String"),
		Min:     1, Max: 1,
		Bind: fixed(arrayOfFile, types.String),
	})
	add("size", ast.V1_0, Signature{
		Display: display("size", types.Float, "X", "<String>"),
		Min:     1, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			if len(args) == 2 && !accepts(args[1], types.String, strict) {
				return nil, false
			}
			return types.Float, true
		},
	})
	add("basename", ast.V1_0, Signature{
		Display: display("basename", types.String, "File | String | Directory", "<String>"),
		Min:     1, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			if !primitive(args[0]) {
				return nil, false
			}
			if len(args) == 2 && !accepts(args[1], types.String, strict) {
				return nil, false
			}
			return types.String, true
		},
	})
	add("join_paths", ast.V1_2,
		Signature{
			Display: display("join_paths", types.File, "File", "String"),
			Min:     2, Max: 2,
			Bind: fixed(types.File, types.File, types.String),
		},
		Signature{
			Display: display("join_paths", types.File, "File", "Array[String]+"),
			Min:     2, Max: 2,
			Bind: fixed(types.File, types.File, types.Array{Element: types.String, NonEmpty: true}),
		},
		Signature{
			Display: display("join_paths", types.File, "Array[String]+"),
			Min:     1, Max: 1,
			Bind: fixed(types.File, types.Array{Element: types.String, NonEmpty: true}),
		},
	)

	// Strings.
	add("sub", ast.V1_0, Signature{
		Display: display("sub", types.String, "String", "String", "String"),
		Min:     3, Max: 3,
		Bind: fixed(types.String, types.String, types.String, types.String),
	})
	add("matches", ast.V1_2, Signature{
		Display: display("matches", types.Boolean, "String", "String"),
		Min:     2, Max: 2,
		Bind: fixed(types.Boolean, types.String, types.String),
	})
	add("find", ast.V1_2, Signature{
		Display: display("find", types.Optional(types.String), "String", "String"),
		Min:     2, Max: 2,
		Bind: fixed(types.Optional(types.String), types.String, types.String),
	})
	add("sep", ast.V1_1, Signature{
		Display: display("sep", types.String, "String", "Array[P]"),
		Min:     2, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			if !accepts(args[0], types.String, strict) {
				return nil, false
			}
			arr, ok := asArray(args[1])
			if !ok || !primitive(arr.Element) {
				return nil, false
			}
			return types.String, true
		},
	})
	quoteLike := func(name string) Signature {
		return Signature{
			Display: display(name, arrayOfString, "Array[P]"),
			Min:     1, Max: 1,
			Bind: anyArray(func(arr types.Array) (types.Type, bool) {
				if !primitive(arr.Element) {
					return nil, false
				}
				return arrayOfString, true
			}),
		}
	}
	add("quote", ast.V1_1, quoteLike("quote"))
	add("squote", ast.V1_1, quoteLike("squote"))
	affix := func(name string) Signature {
		return Signature{
			Display: display(name, arrayOfString, "String", "Array[P]"),
			Min:     2, Max: 2,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				if !accepts(args[0], types.String, strict) {
					return nil, false
				}
				arr, ok := asArray(args[1])
				if !ok || !primitive(arr.Element) {
					return nil, false
				}
				return arrayOfString, true
			},
		}
	}
	add("prefix", ast.V1_0, affix("prefix"))
	add("suffix", ast.V1_1, affix("suffix"))

	// Numeric.
	add("floor", ast.V1_0, Signature{
		Display: display("floor", types.Integer, "Float"),
		Min:     1, Max: 1,
		Bind: fixed(types.Integer, types.Float),
	})
	add("ceil", ast.V1_0, Signature{
		Display: display("ceil", types.Integer, "Float"),
		Min:     1, Max: 1,
		Bind: fixed(types.Integer, types.Float),
	})
	add("round", ast.V1_0, Signature{
		Display: display("round", types.Integer, "Float"),
		Min:     1, Max: 1,
		Bind: fixed(types.Integer, types.Float),
	})
	minMax := func(name string) []Signature {
		return []Signature{
			{
				Display: display(name, types.Integer, "Int", "Int"),
				Min:     2, Max: 2,
				Bind: fixed(types.Integer, types.Integer, types.Integer),
			},
			{
				Display: display(name, types.Float, "Int", "Float"),
				Min:     2, Max: 2,
				Bind: fixed(types.Float, types.Integer, types.Float),
			},
			{
				Display: display(name, types.Float, "Float", "Int"),
				Min:     2, Max: 2,
				Bind: fixed(types.Float, types.Float, types.Integer),
			},
			{
				Display: display(name, types.Float, "Float", "Float"),
				Min:     2, Max: 2,
				Bind: fixed(types.Float, types.Float, types.Float),
			},
		}
	}
	add("min", ast.V1_1, minMax("min")...)
	add("max", ast.V1_1, minMax("max")...)

	// Collections.
	add("length", ast.V1_0,
		Signature{
			Display: display("length", types.Integer, "Array[X]"),
			Min:     1, Max: 1,
			Bind: anyArray(func(arr types.Array) (types.Type, bool) {
				return types.Integer, true
			}),
		},
		Signature{
			Display: display("length", types.Integer, "Map[K, V]"),
			Min:     1, Max: 1,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				if _, ok := args[0].(types.Map); !ok {
					return nil, false
				}
				return types.Integer, true
			},
		},
		Signature{
			Display: display("length", types.Integer, "String"),
			Min:     1, Max: 1,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				if !accepts(args[0], types.String, true) {
					return nil, false
				}
				return types.Integer, true
			},
		},
	)
	add("range", ast.V1_0, Signature{
		Display: display("range", arrayOfInt, "Int"),
		Min:     1, Max: 1,
		Bind: fixed(arrayOfInt, types.Integer),
	})
	add("transpose", ast.V1_0, Signature{
		Display: display("transpose", types.Array{Element: types.Union}, "Array[Array[X]]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			inner, ok := asArray(arr.Element)
			if !ok {
				return nil, false
			}
			return types.Array{Element: types.Array{Element: inner.Element}}, true
		}),
	})
	add("zip", ast.V1_0, Signature{
		Display: display("zip", types.Array{Element: types.Union}, "Array[X]", "Array[Y]"),
		Min:     2, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			left, ok := asArray(args[0])
			if !ok {
				return nil, false
			}
			right, ok := asArray(args[1])
			if !ok {
				return nil, false
			}
			return types.Array{Element: types.Pair{Left: left.Element, Right: right.Element}}, true
		},
	})
	add("unzip", ast.V1_1, Signature{
		Display: display("unzip", types.Pair{Left: types.Union, Right: types.Union}, "Array[Pair[X, Y]]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			p, ok := asPair(arr.Element)
			if !ok {
				return nil, false
			}
			return types.Pair{
				Left:  types.Array{Element: p.Left},
				Right: types.Array{Element: p.Right},
			}, true
		}),
	})
	add("cross", ast.V1_0, Signature{
		Display: display("cross", types.Array{Element: types.Union}, "Array[X]", "Array[Y]"),
		Min:     2, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			left, ok := asArray(args[0])
			if !ok {
				return nil, false
			}
			right, ok := asArray(args[1])
			if !ok {
				return nil, false
			}
			return types.Array{Element: types.Pair{Left: left.Element, Right: right.Element}}, true
		},
	})
	add("flatten", ast.V1_0, Signature{
		Display: display("flatten", types.Array{Element: types.Union}, "Array[Array[X]]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			inner, ok := asArray(arr.Element)
			if !ok {
				return nil, false
			}
			return types.Array{Element: inner.Element}, true
		}),
	})
	add("select_first", ast.V1_0, Signature{
		Display: display("select_first", types.Union, "Array[X?]+", "<X>"),
		Min:     1, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			arr, ok := asArray(args[0])
			if !ok {
				return nil, false
			}
			elem := arr.Element.WithOptional(false)
			if len(args) == 2 && !accepts(args[1], elem, strict) {
				return nil, false
			}
			return elem, true
		},
	})
	add("select_all", ast.V1_0, Signature{
		Display: display("select_all", types.Array{Element: types.Union}, "Array[X?]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			return types.Array{Element: arr.Element.WithOptional(false)}, true
		}),
	})
	add("defined", ast.V1_0, Signature{
		Display: display("defined", types.Boolean, "X?"),
		Min:     1, Max: 1,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			return types.Boolean, true
		},
	})
	add("as_map", ast.V1_1, Signature{
		Display: display("as_map", types.Map{Key: types.Union, Value: types.Union}, "Array[Pair[K, V]]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			p, ok := asPair(arr.Element)
			if !ok || !primitive(p.Left) {
				return nil, false
			}
			return types.Map{Key: p.Left, Value: p.Right}, true
		}),
	})
	add("as_pairs", ast.V1_1, Signature{
		Display: display("as_pairs", types.Array{Element: types.Union}, "Map[K, V]"),
		Min:     1, Max: 1,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			m, ok := asMap(args[0])
			if !ok {
				return nil, false
			}
			return types.Array{Element: types.Pair{Left: m.Key, Right: m.Value}}, true
		},
	})
	add("collect_by_key", ast.V1_1, Signature{
		Display: display("collect_by_key", types.Map{Key: types.Union, Value: types.Union}, "Array[Pair[K, V]]"),
		Min:     1, Max: 1,
		Bind: anyArray(func(arr types.Array) (types.Type, bool) {
			p, ok := asPair(arr.Element)
			if !ok || !primitive(p.Left) {
				return nil, false
			}
			return types.Map{Key: p.Left, Value: types.Array{Element: p.Right}}, true
		}),
	})
	add("keys", ast.V1_1,
		Signature{
			Display: display("keys", types.Array{Element: types.Union}, "Map[K, V]"),
			Min:     1, Max: 1,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				m, ok := asMap(args[0])
				if !ok {
					return nil, false
				}
				return types.Array{Element: m.Key}, true
			},
		},
		Signature{
			Display: display("keys", arrayOfString, "Struct | Object"),
			Min:     1, Max: 1,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				switch args[0].(type) {
				case *types.Struct, types.ObjectType:
					return arrayOfString, true
				}
				return nil, false
			},
		},
	)
	add("values", ast.V1_2, Signature{
		Display: display("values", types.Array{Element: types.Union}, "Map[K, V]"),
		Min:     1, Max: 1,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			m, ok := asMap(args[0])
			if !ok {
				return nil, false
			}
			return types.Array{Element: m.Value}, true
		},
	})
	add("contains", ast.V1_2, Signature{
		Display: display("contains", types.Boolean, "Array[P?]", "P?"),
		Min:     2, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			arr, ok := asArray(args[0])
			if !ok {
				return nil, false
			}
			if !accepts(args[1], types.Optional(arr.Element), false) {
				return nil, false
			}
			return types.Boolean, true
		},
	})
	add("contains_key", ast.V1_2,
		Signature{
			Display: display("contains_key", types.Boolean, "Map[K, V]", "K"),
			Min:     2, Max: 2,
			Bind: func(args []types.Type, strict bool) (types.Type, bool) {
				m, ok := asMap(args[0])
				if !ok {
					return nil, false
				}
				if !accepts(args[1], m.Key, strict) {
					return nil, false
				}
				return types.Boolean, true
			},
		},
		Signature{
			Display: display("contains_key", types.Boolean, "Object", "String"),
			Min:     2, Max: 2,
			Bind: fixed(types.Boolean, types.Object, types.String),
		},
	)
	add("chunk", ast.V1_2, Signature{
		Display: display("chunk", types.Array{Element: types.Union}, "Array[X]", "Int"),
		Min:     2, Max: 2,
		Bind: func(args []types.Type, strict bool) (types.Type, bool) {
			arr, ok := asArray(args[0])
			if !ok {
				return nil, false
			}
			if !accepts(args[1], types.Integer, strict) {
				return nil, false
			}
			return types.Array{Element: types.Array{Element: arr.Element}}, true
		},
	})

	return l
}
