package eval

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/stdlib"
	"github.com/funvibe/wdlx/internal/types"
)

// callCtx carries one standard-library invocation.
type callCtx struct {
	e       *Evaluator
	ctx     context.Context
	expr    *ast.CallExpr
	args    []Value
	binding stdlib.Binding
}

func (c *callCtx) span() ast.Span { return c.expr.Span }

// failf reports a function-call failure wrapping the cause.
func (c *callCtx) failf(format string, args ...any) error {
	return NewError(diagnostics.FunctionCallFailed(c.expr.Target.Name, fmt.Errorf(format, args...), c.span()))
}

func (c *callCtx) fail(err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewError(diagnostics.FunctionCallFailed(c.expr.Target.Name, err, c.span()))
}

type stdlibImpl func(*callCtx) (Value, error)

func (e *Evaluator) evalCall(ctx context.Context, expr *ast.CallExpr) (Value, error) {
	fn, ok := stdlib.Default().Function(expr.Target.Name)
	if !ok {
		return nil, NewError(diagnostics.UnknownFunction(expr.Target.Name, expr.Target.Span))
	}
	if !e.version.AtLeast(fn.MinVersion) {
		return nil, NewError(diagnostics.UnsupportedFunction(fn.Name, fn.MinVersion.String(), e.version.String(), expr.Target.Span))
	}

	args := make([]Value, len(expr.Args))
	argTypes := make([]types.Type, len(expr.Args))
	for i, arg := range expr.Args {
		v, err := e.Eval(ctx, arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
		argTypes[i] = v.Type()
	}

	binding, bindErr := fn.Bind(argTypes)
	if bindErr != nil {
		return nil, NewError(bindDiagnostic(fn.Name, bindErr, expr, argTypes))
	}

	impl, ok := stdlibImpls[fn.Name]
	if !ok {
		return nil, NewError(diagnostics.UnknownFunction(fn.Name, expr.Target.Span))
	}
	return impl(&callCtx{e: e, ctx: ctx, expr: expr, args: args, binding: binding})
}

func bindDiagnostic(name string, err *stdlib.BindError, expr *ast.CallExpr, args []types.Type) *diagnostics.Diagnostic {
	switch err.Kind {
	case stdlib.BindTooFew:
		return diagnostics.TooFewArguments(name, err.Min, len(args), expr.Span)
	case stdlib.BindTooMany:
		return diagnostics.TooManyArguments(name, err.Max, len(args), expr.Span)
	case stdlib.BindAmbiguous:
		return diagnostics.AmbiguousArgument(name, err.First, err.Second, expr.Span)
	default:
		span := expr.Span
		actual := types.Type(types.Union)
		if err.ArgIndex < len(expr.Args) {
			span = expr.Args[err.ArgIndex].Pos()
			actual = args[err.ArgIndex]
		}
		return diagnostics.ArgumentTypeMismatch(name, "`"+err.Expected+"`", actual, span)
	}
}

// stdlibImpls dispatches bound calls to their implementations.
var stdlibImpls map[string]stdlibImpl

func init() {
	stdlibImpls = map[string]stdlibImpl{
		"stdout":         implStdout,
		"stderr":         implStderr,
		"read_lines":     implReadLines,
		"read_string":    implReadString,
		"read_int":       implReadInt,
		"read_float":     implReadFloat,
		"read_boolean":   implReadBoolean,
		"read_json":      implReadJSON,
		"read_map":       implReadMap,
		"read_object":    implReadObject,
		"read_objects":   implReadObjects,
		"read_tsv":       implReadTSV,
		"write_lines":    implWriteLines,
		"write_tsv":      implWriteTSV,
		"write_map":      implWriteMap,
		"write_json":     implWriteJSON,
		"write_object":   implWriteObject,
		"write_objects":  implWriteObjects,
		"glob":           implGlob,
		"size":           implSize,
		"basename":       implBasename,
		"join_paths":     implJoinPaths,
		"sub":            implSub,
		"matches":        implMatches,
		"find":           implFind,
		"sep":            implSep,
		"quote":          implQuote,
		"squote":         implSquote,
		"prefix":         implPrefix,
		"suffix":         implSuffix,
		"floor":          implFloor,
		"ceil":           implCeil,
		"round":          implRound,
		"min":            implMin,
		"max":            implMax,
		"length":         implLength,
		"range":          implRange,
		"transpose":      implTranspose,
		"zip":            implZip,
		"unzip":          implUnzip,
		"cross":          implCross,
		"flatten":        implFlatten,
		"select_first":   implSelectFirst,
		"select_all":     implSelectAll,
		"defined":        implDefined,
		"as_map":         implAsMap,
		"as_pairs":       implAsPairs,
		"collect_by_key": implCollectByKey,
		"keys":           implKeys,
		"values":         implValues,
		"contains":       implContains,
		"contains_key":   implContainsKey,
		"chunk":          implChunk,
	}
}

// argString coerces an argument to its string content.
func argString(v Value) string {
	return string(toStringLike(v))
}

func argArray(v Value) Array {
	arr, _ := v.(Array)
	return arr
}

// Strings.

func implSub(c *callCtx) (Value, error) {
	pattern, err := regexp.Compile(argString(c.args[1]))
	if err != nil {
		return nil, NewError(diagnostics.InvalidRegex(err, c.expr.Args[1].Pos()))
	}
	return String(pattern.ReplaceAllString(argString(c.args[0]), argString(c.args[2]))), nil
}

func implMatches(c *callCtx) (Value, error) {
	pattern, err := regexp.Compile(argString(c.args[1]))
	if err != nil {
		return nil, NewError(diagnostics.InvalidRegex(err, c.expr.Args[1].Pos()))
	}
	return Boolean(pattern.MatchString(argString(c.args[0]))), nil
}

func implFind(c *callCtx) (Value, error) {
	pattern, err := regexp.Compile(argString(c.args[1]))
	if err != nil {
		return nil, NewError(diagnostics.InvalidRegex(err, c.expr.Args[1].Pos()))
	}
	s := argString(c.args[0])
	if loc := pattern.FindStringIndex(s); loc != nil {
		return String(s[loc[0]:loc[1]]), nil
	}
	return NoneOf(types.String), nil
}

func implSep(c *callCtx) (Value, error) {
	arr := argArray(c.args[1])
	parts := make([]string, len(arr.Elements))
	for i, el := range arr.Elements {
		parts[i] = Raw(el)
	}
	return String(strings.Join(parts, argString(c.args[0]))), nil
}

func implQuote(c *callCtx) (Value, error) {
	return quoteWith(c, `"`)
}

func implSquote(c *callCtx) (Value, error) {
	return quoteWith(c, `'`)
}

func quoteWith(c *callCtx, q string) (Value, error) {
	arr := argArray(c.args[0])
	out := make([]Value, len(arr.Elements))
	for i, el := range arr.Elements {
		out[i] = String(q + Raw(el) + q)
	}
	return NewArray(types.String, out), nil
}

func implPrefix(c *callCtx) (Value, error) {
	arr := argArray(c.args[1])
	p := argString(c.args[0])
	out := make([]Value, len(arr.Elements))
	for i, el := range arr.Elements {
		out[i] = String(p + Raw(el))
	}
	return NewArray(types.String, out), nil
}

func implSuffix(c *callCtx) (Value, error) {
	arr := argArray(c.args[1])
	s := argString(c.args[0])
	out := make([]Value, len(arr.Elements))
	for i, el := range arr.Elements {
		out[i] = String(Raw(el) + s)
	}
	return NewArray(types.String, out), nil
}

// Numeric.

func implFloor(c *callCtx) (Value, error) {
	return floatToInt(c, math.Floor)
}

func implCeil(c *callCtx) (Value, error) {
	return floatToInt(c, math.Ceil)
}

func implRound(c *callCtx) (Value, error) {
	return floatToInt(c, math.Round)
}

func floatToInt(c *callCtx, f func(float64) float64) (Value, error) {
	v, _ := toFloat(c.args[0])
	r := f(v)
	if r < math.MinInt64 || r > math.MaxInt64 {
		return nil, NewError(diagnostics.IntegerNotInRange(c.span()))
	}
	return Int(int64(r)), nil
}

func implMin(c *callCtx) (Value, error) {
	return minMax(c, true)
}

func implMax(c *callCtx) (Value, error) {
	return minMax(c, false)
}

func minMax(c *callCtx, min bool) (Value, error) {
	l, _ := toFloat(c.args[0])
	r, _ := toFloat(c.args[1])
	pick := l
	if (min && r < l) || (!min && r > l) {
		pick = r
	}
	// The Int overload is signature 0; the rest return Float.
	if c.binding.Index == 0 {
		return Int(int64(pick)), nil
	}
	return Float(pick), nil
}

// Collections.

func implLength(c *callCtx) (Value, error) {
	switch v := c.args[0].(type) {
	case Array:
		return Int(len(v.Elements)), nil
	case Map:
		return Int(len(v.Entries)), nil
	case String:
		return Int(len(v)), nil
	default:
		return nil, c.failf("cannot compute the length of type `%s`", v.Type())
	}
}

func implRange(c *callCtx) (Value, error) {
	n := int64(c.args[0].(Int))
	if n < 0 {
		return nil, c.failf("range argument must not be negative")
	}
	out := make([]Value, n)
	for i := int64(0); i < n; i++ {
		out[i] = Int(i)
	}
	return Array{ty: types.Array{Element: types.Integer, NonEmpty: n > 0}, Elements: out}, nil
}

func implTranspose(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	var rows [][]Value
	width := -1
	for _, row := range arr.Elements {
		inner := argArray(row)
		if width >= 0 && len(inner.Elements) != width {
			return nil, c.failf("transpose requires equal-length rows")
		}
		width = len(inner.Elements)
		rows = append(rows, inner.Elements)
	}
	if width < 0 {
		width = 0
	}
	var elemType types.Type = types.Union
	if t, ok := c.binding.Return.(types.Array); ok {
		if inner, ok := t.Element.(types.Array); ok {
			elemType = inner.Element
		}
	}
	out := make([]Value, 0, width)
	for col := 0; col < width; col++ {
		column := make([]Value, len(rows))
		for i, row := range rows {
			column[i] = row[col]
		}
		out = append(out, NewArray(elemType, column))
	}
	return NewArray(types.Array{Element: elemType}, out), nil
}

func implZip(c *callCtx) (Value, error) {
	left, right := argArray(c.args[0]), argArray(c.args[1])
	if len(left.Elements) != len(right.Elements) {
		return nil, c.failf("arrays must have the same length")
	}
	out := make([]Value, len(left.Elements))
	for i := range left.Elements {
		out[i] = NewPair(left.Elements[i], right.Elements[i])
	}
	elem := types.Pair{Left: left.ty.Element, Right: right.ty.Element}
	return NewArray(elem, out), nil
}

func implUnzip(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	lefts := make([]Value, len(arr.Elements))
	rights := make([]Value, len(arr.Elements))
	var leftType, rightType types.Type = types.Union, types.Union
	if p, ok := arr.ty.Element.(types.Pair); ok {
		leftType, rightType = p.Left, p.Right
	}
	for i, el := range arr.Elements {
		p := el.(Pair)
		lefts[i] = p.Left
		rights[i] = p.Right
	}
	return NewPair(NewArray(leftType, lefts), NewArray(rightType, rights)), nil
}

func implCross(c *callCtx) (Value, error) {
	left, right := argArray(c.args[0]), argArray(c.args[1])
	out := make([]Value, 0, len(left.Elements)*len(right.Elements))
	for _, l := range left.Elements {
		for _, r := range right.Elements {
			out = append(out, NewPair(l, r))
		}
	}
	elem := types.Pair{Left: left.ty.Element, Right: right.ty.Element}
	return NewArray(elem, out), nil
}

func implFlatten(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	var out []Value
	for _, inner := range arr.Elements {
		out = append(out, argArray(inner).Elements...)
	}
	var elemType types.Type = types.Union
	if inner, ok := arr.ty.Element.(types.Array); ok {
		elemType = inner.Element
	}
	return NewArray(elemType, out), nil
}

func implSelectFirst(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	for _, el := range arr.Elements {
		if !IsNone(el) {
			return el, nil
		}
	}
	if len(c.args) == 2 {
		return c.args[1], nil
	}
	return nil, c.failf("array contains no non-`None` values")
}

func implSelectAll(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	out := make([]Value, 0, len(arr.Elements))
	for _, el := range arr.Elements {
		if !IsNone(el) {
			out = append(out, el)
		}
	}
	return NewArray(arr.ty.Element.WithOptional(false), out), nil
}

func implDefined(c *callCtx) (Value, error) {
	return Boolean(!IsNone(c.args[0])), nil
}

func implAsMap(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	entries := make([]MapEntry, 0, len(arr.Elements))
	seen := make(map[string]bool, len(arr.Elements))
	for _, el := range arr.Elements {
		p := el.(Pair)
		key := Raw(p.Left)
		if seen[key] {
			return nil, c.failf("duplicate key `%s`", key)
		}
		seen[key] = true
		entries = append(entries, MapEntry{Key: p.Left, Value: p.Right})
	}
	keyType, valueType := pairElemTypes(arr)
	return NewMap(keyType, valueType, entries), nil
}

func implAsPairs(c *callCtx) (Value, error) {
	m := c.args[0].(Map)
	out := make([]Value, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = NewPair(e.Key, e.Value)
	}
	return NewArray(types.Pair{Left: m.ty.Key, Right: m.ty.Value}, out), nil
}

func implCollectByKey(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	var order []Value
	grouped := make(map[string][]Value)
	for _, el := range arr.Elements {
		p := el.(Pair)
		key := Raw(p.Left)
		if _, ok := grouped[key]; !ok {
			order = append(order, p.Left)
		}
		grouped[key] = append(grouped[key], p.Right)
	}
	keyType, valueType := pairElemTypes(arr)
	entries := make([]MapEntry, len(order))
	for i, key := range order {
		entries[i] = MapEntry{
			Key:   key,
			Value: NewArray(valueType, grouped[Raw(key)]),
		}
	}
	return NewMap(keyType, types.Array{Element: valueType}, entries), nil
}

func implKeys(c *callCtx) (Value, error) {
	switch v := c.args[0].(type) {
	case Map:
		out := make([]Value, len(v.Entries))
		for i, e := range v.Entries {
			out[i] = e.Key
		}
		return NewArray(v.ty.Key, out), nil
	case Struct:
		names := make([]Value, len(v.ty.Members))
		for i, m := range v.ty.Members {
			names[i] = String(m.Name)
		}
		return NewArray(types.String, names), nil
	case Object:
		names := make([]Value, len(v.names))
		for i, name := range v.names {
			names[i] = String(name)
		}
		return NewArray(types.String, names), nil
	default:
		return nil, c.failf("cannot compute the keys of type `%s`", v.Type())
	}
}

func implValues(c *callCtx) (Value, error) {
	m := c.args[0].(Map)
	out := make([]Value, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Value
	}
	return NewArray(m.ty.Value, out), nil
}

func implContains(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	for _, el := range arr.Elements {
		if ValuesEqual(el, c.args[1]) {
			return Boolean(true), nil
		}
	}
	return Boolean(false), nil
}

func implContainsKey(c *callCtx) (Value, error) {
	switch v := c.args[0].(type) {
	case Map:
		_, ok := v.Get(c.args[1])
		return Boolean(ok), nil
	case Object:
		_, ok := v.Member(argString(c.args[1]))
		return Boolean(ok), nil
	default:
		return nil, c.failf("cannot look up a key in type `%s`", v.Type())
	}
}

func implChunk(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	size := int64(c.args[1].(Int))
	if size < 1 {
		return nil, c.failf("chunk size must be at least 1")
	}
	var out []Value
	for start := 0; start < len(arr.Elements); start += int(size) {
		end := start + int(size)
		if end > len(arr.Elements) {
			end = len(arr.Elements)
		}
		out = append(out, NewArray(arr.ty.Element, arr.Elements[start:end]))
	}
	return NewArray(types.Array{Element: arr.ty.Element}, out), nil
}

func pairElemTypes(arr Array) (types.Type, types.Type) {
	if p, ok := arr.ty.Element.(types.Pair); ok {
		return p.Left, p.Right
	}
	return types.Union, types.Union
}
