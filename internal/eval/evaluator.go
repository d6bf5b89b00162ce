package eval

import (
	"context"
	"fmt"
	"math"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/types"
)

// PathMapper rewrites a host path to a guest path during command
// interpolation; ok is false when the path has no mapping.
type PathMapper func(host string) (string, bool)

// Evaluator evaluates expressions to values against a runtime scope.
// It mirrors the type checker's rules exactly, adding short-circuiting
// and placeholder None-poisoning.
type Evaluator struct {
	doc     *document.Document
	version ast.Version
	scope   *Scope
	io      *IO
	// mapper is set during command interpolation to rewrite file and
	// directory paths into the backend's guest namespace.
	mapper PathMapper

	// placeholderDepth and sawNone implement None poisoning: an error
	// raised after any sub-expression evaluated to None inside an active
	// placeholder collapses the placeholder to an empty expansion.
	placeholderDepth int
	sawNone          bool
}

// NewEvaluator creates an evaluator for a document's expressions.
func NewEvaluator(doc *document.Document, scope *Scope, io *IO) *Evaluator {
	return &Evaluator{doc: doc, version: doc.Version, scope: scope, io: io}
}

// Scope returns the evaluator's current scope.
func (e *Evaluator) Scope() *Scope { return e.scope }

// Eval evaluates an expression to a value. All recursion funnels
// through here so placeholder None tracking observes every
// sub-expression.
func (e *Evaluator) Eval(ctx context.Context, expr ast.Expr) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := e.eval(ctx, expr)
	if err == nil && e.placeholderDepth > 0 && IsNone(v) {
		e.sawNone = true
	}
	return v, err
}

func (e *Evaluator) eval(ctx context.Context, expr ast.Expr) (Value, error) {
	switch expr := expr.(type) {
	case *ast.LiteralBool:
		return Boolean(expr.Value), nil
	case *ast.LiteralInt:
		return Int(expr.Value), nil
	case *ast.LiteralFloat:
		return Float(expr.Value), nil
	case *ast.LiteralNone:
		return None, nil
	case *ast.LiteralString:
		return e.evalString(ctx, expr)
	case *ast.NameRef:
		if v, ok := e.scope.Lookup(expr.Name); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.UnknownName(expr.Name, expr.Span))
	case *ast.LiteralArray:
		return e.evalArray(ctx, expr)
	case *ast.LiteralPair:
		left, err := e.Eval(ctx, expr.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.Eval(ctx, expr.Right)
		if err != nil {
			return nil, err
		}
		return NewPair(left, right), nil
	case *ast.LiteralMap:
		return e.evalMap(ctx, expr)
	case *ast.LiteralObject:
		return e.evalObject(ctx, expr)
	case *ast.LiteralStruct:
		return e.evalStruct(ctx, expr)
	case *ast.IfExpr:
		return e.evalIf(ctx, expr)
	case *ast.UnaryExpr:
		return e.evalUnary(ctx, expr)
	case *ast.BinaryExpr:
		return e.evalBinary(ctx, expr)
	case *ast.IndexExpr:
		return e.evalIndex(ctx, expr)
	case *ast.AccessExpr:
		return e.evalAccess(ctx, expr)
	case *ast.CallExpr:
		return e.evalCall(ctx, expr)
	default:
		return nil, NewError(diagnostics.New("unsupported expression").WithLabel(expr.Pos(), ""))
	}
}

func (e *Evaluator) evalArray(ctx context.Context, expr *ast.LiteralArray) (Value, error) {
	if len(expr.Elements) == 0 {
		return Array{ty: types.Array{Element: types.Union}}, nil
	}
	elements := make([]Value, len(expr.Elements))
	var elemType types.Type
	for i, el := range expr.Elements {
		v, err := e.Eval(ctx, el)
		if err != nil {
			return nil, err
		}
		elements[i] = v
		if i == 0 {
			elemType = v.Type()
			continue
		}
		common, ok := types.CommonType(elemType, v.Type())
		if !ok {
			return nil, NewError(diagnostics.NoCommonType(elemType, v.Type(), el.Pos()))
		}
		elemType = common
	}
	for i, v := range elements {
		coerced, err := Coerce(v, elemType, expr.Elements[i].Pos())
		if err != nil {
			return nil, err
		}
		elements[i] = coerced
	}
	return NewArray(elemType, elements), nil
}

func (e *Evaluator) evalMap(ctx context.Context, expr *ast.LiteralMap) (Value, error) {
	if len(expr.Items) == 0 {
		return NewMap(types.Union, types.Union, nil), nil
	}
	entries := make([]MapEntry, 0, len(expr.Items))
	var keyType, valueType types.Type
	for i, item := range expr.Items {
		key, err := e.Eval(ctx, item.Key)
		if err != nil {
			return nil, err
		}
		value, err := e.Eval(ctx, item.Value)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			keyType, valueType = key.Type(), value.Type()
		} else {
			common, ok := types.CommonType(keyType, key.Type())
			if !ok {
				return nil, NewError(diagnostics.NoCommonType(keyType, key.Type(), item.Key.Pos()))
			}
			keyType = common
			common, ok = types.CommonType(valueType, value.Type())
			if !ok {
				return nil, NewError(diagnostics.NoCommonType(valueType, value.Type(), item.Value.Pos()))
			}
			valueType = common
		}
		entries = append(entries, MapEntry{Key: key, Value: value})
	}
	for i := range entries {
		key, err := Coerce(entries[i].Key, keyType, expr.Items[i].Key.Pos())
		if err != nil {
			return nil, err
		}
		value, err := Coerce(entries[i].Value, valueType, expr.Items[i].Value.Pos())
		if err != nil {
			return nil, err
		}
		entries[i] = MapEntry{Key: key, Value: value}
	}
	return NewMap(keyType, valueType, entries), nil
}

func (e *Evaluator) evalObject(ctx context.Context, expr *ast.LiteralObject) (Value, error) {
	names := make([]string, 0, len(expr.Items))
	members := make(map[string]Value, len(expr.Items))
	for _, item := range expr.Items {
		v, err := e.Eval(ctx, item.Value)
		if err != nil {
			return nil, err
		}
		if _, exists := members[item.Name.Name]; !exists {
			names = append(names, item.Name.Name)
		}
		members[item.Name.Name] = v
	}
	return NewObject(names, members), nil
}

func (e *Evaluator) evalStruct(ctx context.Context, expr *ast.LiteralStruct) (Value, error) {
	stub, ok := e.doc.Struct(expr.Name.Name)
	if !ok || stub.Type == nil {
		return nil, NewError(diagnostics.UnknownType(expr.Name.Name, expr.Name.Span))
	}

	members := make(map[string]Value, len(stub.Type.Members))
	for _, item := range expr.Items {
		declared, ok := stub.Type.Member(item.Name.Name)
		if !ok {
			return nil, NewError(diagnostics.NotAStructMember(stub.Name, item.Name.Name, item.Name.Span))
		}
		v, err := e.Eval(ctx, item.Value)
		if err != nil {
			return nil, err
		}
		coerced, err := Coerce(v, declared, item.Value.Pos())
		if err != nil {
			return nil, err
		}
		members[item.Name.Name] = coerced
	}

	var missing []string
	for _, m := range stub.Type.Members {
		if _, ok := members[m.Name]; ok {
			continue
		}
		if m.Type.IsOptional() {
			members[m.Name] = NoneOf(m.Type)
			continue
		}
		missing = append(missing, m.Name)
	}
	if len(missing) > 0 {
		return nil, NewError(diagnostics.MissingStructMembers(stub.Name, missing, expr.Span))
	}
	return NewStruct(stub.Type, members), nil
}

func (e *Evaluator) evalIf(ctx context.Context, expr *ast.IfExpr) (Value, error) {
	cond, err := e.Eval(ctx, expr.Cond)
	if err != nil {
		return nil, err
	}
	b, ok := cond.(Boolean)
	if !ok {
		return nil, NewError(diagnostics.TypeMismatch(types.Boolean, cond.Type(), expr.Cond.Pos()))
	}

	taken, untaken := expr.True, expr.False
	if !bool(b) {
		taken, untaken = expr.False, expr.True
	}
	v, err := e.Eval(ctx, taken)
	if err != nil {
		return nil, err
	}

	// The untaken branch is never evaluated, but its type still shapes
	// the result: a type-only walk runs in a context that collects but
	// does not emit diagnostics.
	untakenType := e.doc.TypeOf(untaken, e.scope.Resolver())
	if common, ok := types.CommonType(v.Type(), untakenType); ok {
		return Coerce(v, common, taken.Pos())
	}
	return v, nil
}

func (e *Evaluator) evalUnary(ctx context.Context, expr *ast.UnaryExpr) (Value, error) {
	v, err := e.Eval(ctx, expr.Operand)
	if err != nil {
		return nil, err
	}
	switch expr.Op {
	case ast.UnaryNot:
		b, ok := v.(Boolean)
		if !ok {
			return nil, NewError(diagnostics.TypeMismatch(types.Boolean, v.Type(), expr.Operand.Pos()))
		}
		return Boolean(!b), nil
	case ast.UnaryNeg:
		switch v := v.(type) {
		case Int:
			if int64(v) == math.MinInt64 {
				return nil, NewError(diagnostics.NumericOverflow(expr.Span))
			}
			return -v, nil
		case Float:
			return -v, nil
		}
		return nil, NewError(diagnostics.New(fmt.Sprintf("cannot negate type `%s`", v.Type())).
			WithLabel(expr.Operand.Pos(), ""))
	default:
		switch v.(type) {
		case Int, Float:
			return v, nil
		}
		return nil, NewError(diagnostics.New(fmt.Sprintf("cannot apply unary `+` to type `%s`", v.Type())).
			WithLabel(expr.Operand.Pos(), ""))
	}
}

func (e *Evaluator) evalBinary(ctx context.Context, expr *ast.BinaryExpr) (Value, error) {
	switch expr.Op {
	case ast.OpAnd, ast.OpOr:
		return e.evalLogical(ctx, expr)
	case ast.OpEq:
		left, right, err := e.evalOperands(ctx, expr)
		if err != nil {
			return nil, err
		}
		return Boolean(ValuesEqual(left, right)), nil
	case ast.OpNe:
		left, right, err := e.evalOperands(ctx, expr)
		if err != nil {
			return nil, err
		}
		return Boolean(!ValuesEqual(left, right)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return e.evalComparison(ctx, expr)
	case ast.OpAdd:
		return e.evalAddition(ctx, expr)
	default:
		return e.evalArithmetic(ctx, expr)
	}
}

func (e *Evaluator) evalOperands(ctx context.Context, expr *ast.BinaryExpr) (Value, Value, error) {
	left, err := e.Eval(ctx, expr.Left)
	if err != nil {
		return nil, nil, err
	}
	right, err := e.Eval(ctx, expr.Right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// evalLogical short-circuits `&&` and `||`; the skipped operand is
// still typed via a type-only walk.
func (e *Evaluator) evalLogical(ctx context.Context, expr *ast.BinaryExpr) (Value, error) {
	left, err := e.Eval(ctx, expr.Left)
	if err != nil {
		return nil, err
	}
	lb, ok := left.(Boolean)
	if !ok {
		return nil, NewError(diagnostics.TypeMismatch(types.Boolean, left.Type(), expr.Left.Pos()))
	}

	if (expr.Op == ast.OpAnd && !bool(lb)) || (expr.Op == ast.OpOr && bool(lb)) {
		e.doc.TypeOf(expr.Right, e.scope.Resolver())
		return lb, nil
	}

	right, err := e.Eval(ctx, expr.Right)
	if err != nil {
		return nil, err
	}
	rb, ok := right.(Boolean)
	if !ok {
		return nil, NewError(diagnostics.TypeMismatch(types.Boolean, right.Type(), expr.Right.Pos()))
	}
	return rb, nil
}

func (e *Evaluator) evalComparison(ctx context.Context, expr *ast.BinaryExpr) (Value, error) {
	left, right, err := e.evalOperands(ctx, expr)
	if err != nil {
		return nil, err
	}

	var cmp int
	switch l := left.(type) {
	case Boolean:
		r, ok := right.(Boolean)
		if !ok {
			return nil, comparisonMismatch(left, right, expr)
		}
		cmp = boolCompare(bool(l), bool(r))
	case Int:
		switch r := right.(type) {
		case Int:
			cmp = numCompare(float64(l), float64(r))
		case Float:
			cmp = numCompare(float64(l), float64(r))
		default:
			return nil, comparisonMismatch(left, right, expr)
		}
	case Float:
		switch r := right.(type) {
		case Int:
			cmp = numCompare(float64(l), float64(r))
		case Float:
			cmp = numCompare(float64(l), float64(r))
		default:
			return nil, comparisonMismatch(left, right, expr)
		}
	case String:
		r, ok := right.(String)
		if !ok {
			return nil, comparisonMismatch(left, right, expr)
		}
		cmp = stringCompare(string(l), string(r))
	default:
		return nil, NewError(diagnostics.New(
			fmt.Sprintf("type `%s` does not support ordered comparison", left.Type())).
			WithLabel(expr.Left.Pos(), ""))
	}

	switch expr.Op {
	case ast.OpLt:
		return Boolean(cmp < 0), nil
	case ast.OpLe:
		return Boolean(cmp <= 0), nil
	case ast.OpGt:
		return Boolean(cmp > 0), nil
	default:
		return Boolean(cmp >= 0), nil
	}
}

func (e *Evaluator) evalAddition(ctx context.Context, expr *ast.BinaryExpr) (Value, error) {
	left, right, err := e.evalOperands(ctx, expr)
	if err != nil {
		return nil, err
	}

	// Addition with a String operand concatenates the raw representation
	// of the other side, which must not be Boolean. A None on either
	// side propagates so the containing placeholder elides.
	if isStringValue(left) || isStringValue(right) {
		if IsNone(left) || IsNone(right) {
			if e.placeholderDepth > 0 {
				return None, nil
			}
			return nil, NewError(diagnostics.New("cannot concatenate an optional value").
				WithLabel(expr.Span, ""))
		}
		for _, side := range []struct {
			v    Value
			span ast.Span
		}{{left, expr.Left.Pos()}, {right, expr.Right.Pos()}} {
			switch side.v.(type) {
			case Boolean:
				return nil, NewError(diagnostics.New("operator `+` cannot be applied to type `Boolean`").
					WithLabel(side.span, ""))
			case String, File, Directory, Int, Float:
			default:
				return nil, NewError(diagnostics.New(
					fmt.Sprintf("operator `+` cannot be applied to type `%s`", side.v.Type())).
					WithLabel(side.span, ""))
			}
		}
		return String(Raw(left) + Raw(right)), nil
	}

	return e.arith(left, right, expr)
}

func (e *Evaluator) evalArithmetic(ctx context.Context, expr *ast.BinaryExpr) (Value, error) {
	left, right, err := e.evalOperands(ctx, expr)
	if err != nil {
		return nil, err
	}
	return e.arith(left, right, expr)
}

func (e *Evaluator) arith(left, right Value, expr *ast.BinaryExpr) (Value, error) {
	if IsNone(left) || IsNone(right) {
		if e.placeholderDepth > 0 {
			return None, nil
		}
	}
	li, lInt := left.(Int)
	ri, rInt := right.(Int)

	if lInt && rInt {
		return e.intArith(int64(li), int64(ri), expr)
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok {
		return nil, arithMismatch(expr.Op, left, expr.Left.Pos())
	}
	if !rok {
		return nil, arithMismatch(expr.Op, right, expr.Right.Pos())
	}

	switch expr.Op {
	case ast.OpAdd:
		return Float(lf + rf), nil
	case ast.OpSub:
		return Float(lf - rf), nil
	case ast.OpMul:
		return Float(lf * rf), nil
	case ast.OpDiv:
		return Float(lf / rf), nil
	case ast.OpMod:
		return Float(math.Mod(lf, rf)), nil
	case ast.OpExp:
		return Float(math.Pow(lf, rf)), nil
	default:
		return nil, arithMismatch(expr.Op, left, expr.Span)
	}
}

func (e *Evaluator) intArith(l, r int64, expr *ast.BinaryExpr) (Value, error) {
	switch expr.Op {
	case ast.OpAdd:
		sum := l + r
		if (sum > l) != (r > 0) {
			return nil, NewError(diagnostics.NumericOverflow(expr.Span))
		}
		return Int(sum), nil
	case ast.OpSub:
		diff := l - r
		if (diff < l) != (r > 0) {
			return nil, NewError(diagnostics.NumericOverflow(expr.Span))
		}
		return Int(diff), nil
	case ast.OpMul:
		if l != 0 && r != 0 {
			product := l * r
			if product/r != l {
				return nil, NewError(diagnostics.NumericOverflow(expr.Span))
			}
			return Int(product), nil
		}
		return Int(0), nil
	case ast.OpDiv:
		if r == 0 {
			return nil, NewError(diagnostics.DivisionByZero(expr.Span))
		}
		if l == math.MinInt64 && r == -1 {
			return nil, NewError(diagnostics.NumericOverflow(expr.Span))
		}
		return Int(l / r), nil
	case ast.OpMod:
		if r == 0 {
			return nil, NewError(diagnostics.DivisionByZero(expr.Span))
		}
		return Int(l % r), nil
	case ast.OpExp:
		return intPow(l, r, expr.Span)
	default:
		return nil, arithMismatch(expr.Op, Int(l), expr.Span)
	}
}

// intPow computes checked integer exponentiation. A negative exponent
// is out of range; an exponent beyond 32 bits overflows.
func intPow(base, exp int64, span ast.Span) (Value, error) {
	if exp < 0 {
		return nil, NewError(diagnostics.ExponentNotInRange(span))
	}
	if exp > math.MaxUint32 {
		return nil, NewError(diagnostics.NumericOverflow(span))
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		if base != 0 && result != 0 {
			next := result * base
			if next/base != result {
				return nil, NewError(diagnostics.NumericOverflow(span))
			}
			result = next
		} else {
			result = 0
		}
	}
	return Int(result), nil
}

func (e *Evaluator) evalIndex(ctx context.Context, expr *ast.IndexExpr) (Value, error) {
	target, err := e.Eval(ctx, expr.Target)
	if err != nil {
		return nil, err
	}
	index, err := e.Eval(ctx, expr.Index)
	if err != nil {
		return nil, err
	}

	switch target := target.(type) {
	case Array:
		i, ok := index.(Int)
		if !ok {
			return nil, NewError(diagnostics.TypeMismatch(types.Integer, index.Type(), expr.Index.Pos()))
		}
		if i < 0 || int(i) >= len(target.Elements) {
			return nil, NewError(diagnostics.ArrayIndexOutOfRange(int64(i), len(target.Elements), expr.Index.Pos()))
		}
		return target.Elements[i], nil
	case Map:
		key, err := Coerce(index, target.ty.Key, expr.Index.Pos())
		if err != nil {
			return nil, err
		}
		if v, ok := target.Get(key); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.MapKeyNotFound(expr.Index.Pos()))
	default:
		return nil, NewError(diagnostics.CannotIndex(target.Type(), expr.Target.Pos()))
	}
}

func (e *Evaluator) evalAccess(ctx context.Context, expr *ast.AccessExpr) (Value, error) {
	target, err := e.Eval(ctx, expr.Target)
	if err != nil {
		return nil, err
	}
	name := expr.Member.Name

	switch target := target.(type) {
	case Pair:
		switch name {
		case "left":
			return target.Left, nil
		case "right":
			return target.Right, nil
		}
		return nil, NewError(diagnostics.NotAPairAccessor(name, expr.Member.Span))
	case Struct:
		if v, ok := target.Member(name); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.NotAStructMember(target.ty.Name, name, expr.Member.Span))
	case Object:
		if v, ok := target.Member(name); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.NotAnObjectMember(name, expr.Member.Span))
	case CallOutputs:
		if v, ok := target.Output(name); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.UnknownCallOutput(target.ty.Name, name, expr.Member.Span))
	case TaskInfo:
		if v, ok := target.Member(name); ok {
			return v, nil
		}
		return nil, NewError(diagnostics.NotATaskMember(name, expr.Member.Span))
	case NoneValue:
		if e.placeholderDepth > 0 {
			return None, nil
		}
		return nil, NewError(diagnostics.CannotAccess(target.Type(), expr.Target.Pos()))
	default:
		return nil, NewError(diagnostics.CannotAccess(target.Type(), expr.Target.Pos()))
	}
}

func isStringValue(v Value) bool {
	_, ok := v.(String)
	return ok
}

func toFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Int:
		return float64(v), true
	case Float:
		return float64(v), true
	default:
		return 0, false
	}
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func numCompare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func comparisonMismatch(left, right Value, expr *ast.BinaryExpr) error {
	return NewError(diagnostics.New(
		fmt.Sprintf("cannot compare type `%s` to type `%s`", left.Type(), right.Type())).
		WithLabel(expr.Right.Pos(), ""))
}

func arithMismatch(op ast.BinaryOp, v Value, span ast.Span) error {
	return NewError(diagnostics.New(
		fmt.Sprintf("operator `%s` cannot be applied to type `%s`", op, v.Type())).
		WithLabel(span, ""))
}
