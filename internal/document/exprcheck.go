package document

import (
	"fmt"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/scope"
	"github.com/funvibe/wdlx/internal/stdlib"
	"github.com/funvibe/wdlx/internal/types"
)

// NameResolver resolves a name to its type during expression checking.
type NameResolver func(name string) (types.Type, bool)

// exprChecker computes the type of every expression form, emitting
// diagnostics without executing anything. The value evaluator follows
// the same rules.
type exprChecker struct {
	a       *analyzer
	resolve NameResolver
	// placeholder is true while checking inside a string placeholder,
	// where optional operands are permitted because None poisons the
	// placeholder instead of failing.
	placeholder bool
}

func (a *analyzer) checkExpr(e ast.Expr, s scope.Ref) types.Type {
	c := &exprChecker{a: a, resolve: scopeResolver(s)}
	return c.check(e)
}

func scopeResolver(s scope.Ref) NameResolver {
	return func(name string) (types.Type, bool) {
		n, ok := s.Lookup(name)
		if !ok {
			return nil, false
		}
		return n.Type, true
	}
}

// TypeOf computes an expression's type against a name resolver without
// recording diagnostics on the document. The evaluator uses this for
// the type-only walk of untaken if-expression branches.
func (d *Document) TypeOf(e ast.Expr, resolve NameResolver) types.Type {
	clone := *d
	clone.Diagnostics = nil
	a := &analyzer{doc: &clone, astDoc: d.astDoc, version: d.Version, lib: stdlib.Default()}
	c := &exprChecker{a: a, resolve: resolve}
	return c.check(e)
}

func (c *exprChecker) diag(d *diagnostics.Diagnostic) {
	c.a.doc.diag(d)
}

func (c *exprChecker) check(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.LiteralBool:
		return types.Boolean
	case *ast.LiteralInt:
		return types.Integer
	case *ast.LiteralFloat:
		return types.Float
	case *ast.LiteralNone:
		return types.None
	case *ast.LiteralString:
		for _, part := range e.Parts {
			if p, ok := part.(*ast.Placeholder); ok {
				c.checkPlaceholder(p)
			}
		}
		return types.String
	case *ast.NameRef:
		if t, ok := c.resolve(e.Name); ok {
			return t
		}
		c.diag(diagnostics.UnknownName(e.Name, e.Span))
		return types.Union
	case *ast.LiteralArray:
		return c.checkArray(e)
	case *ast.LiteralPair:
		return types.Pair{Left: c.check(e.Left), Right: c.check(e.Right)}
	case *ast.LiteralMap:
		return c.checkMap(e)
	case *ast.LiteralObject:
		for _, item := range e.Items {
			c.check(item.Value)
		}
		return types.Object
	case *ast.LiteralStruct:
		return c.checkStruct(e)
	case *ast.IfExpr:
		return c.checkIf(e)
	case *ast.UnaryExpr:
		return c.checkUnary(e)
	case *ast.BinaryExpr:
		return c.checkBinary(e)
	case *ast.IndexExpr:
		return c.checkIndex(e)
	case *ast.AccessExpr:
		return c.checkAccess(e)
	case *ast.CallExpr:
		return c.checkCall(e)
	default:
		return types.Union
	}
}

func (c *exprChecker) checkArray(e *ast.LiteralArray) types.Type {
	if len(e.Elements) == 0 {
		return types.Array{Element: types.Union}
	}
	elem := c.check(e.Elements[0])
	for _, el := range e.Elements[1:] {
		t := c.check(el)
		common, ok := types.CommonType(elem, t)
		if !ok {
			c.diag(diagnostics.NoCommonType(elem, t, el.Pos()))
			elem = types.Union
			continue
		}
		elem = common
	}
	return types.Array{Element: elem, NonEmpty: true}
}

func (c *exprChecker) checkMap(e *ast.LiteralMap) types.Type {
	if len(e.Items) == 0 {
		return types.Map{Key: types.Union, Value: types.Union}
	}
	var key, value types.Type
	for i, item := range e.Items {
		k := c.check(item.Key)
		if _, ok := k.(types.Primitive); !ok && !types.IsUnion(k) && !types.IsNone(k) {
			c.diag(diagnostics.New("map keys must be primitive values").
				WithLabel(item.Key.Pos(), fmt.Sprintf("this is type `%s`", k)))
			k = types.Union
		}
		v := c.check(item.Value)
		if i == 0 {
			key, value = k, v
			continue
		}
		if common, ok := types.CommonType(key, k); ok {
			key = common
		} else {
			c.diag(diagnostics.NoCommonType(key, k, item.Key.Pos()))
			key = types.Union
		}
		if common, ok := types.CommonType(value, v); ok {
			value = common
		} else {
			c.diag(diagnostics.NoCommonType(value, v, item.Value.Pos()))
			value = types.Union
		}
	}
	return types.Map{Key: key, Value: value}
}

func (c *exprChecker) checkStruct(e *ast.LiteralStruct) types.Type {
	stub, ok := c.a.doc.Struct(e.Name.Name)
	if !ok {
		c.diag(diagnostics.UnknownType(e.Name.Name, e.Name.Span))
		for _, item := range e.Items {
			c.check(item.Value)
		}
		return types.Union
	}
	if stub.Namespace != "" {
		if ns, ok := c.a.doc.Namespace(stub.Namespace); ok {
			ns.Used = true
		}
	}
	if stub.Type == nil {
		return types.Union
	}

	supplied := make(map[string]bool, len(e.Items))
	for _, item := range e.Items {
		t := c.check(item.Value)
		member, ok := stub.Type.Member(item.Name.Name)
		if !ok {
			c.diag(diagnostics.NotAStructMember(stub.Name, item.Name.Name, item.Name.Span))
			continue
		}
		supplied[item.Name.Name] = true
		if !types.Coercible(t, member) {
			c.diag(diagnostics.CannotCoerce(t, member, item.Value.Pos()))
		}
	}

	var missing []string
	for _, member := range stub.Type.Members {
		if !supplied[member.Name] && !member.Type.IsOptional() {
			missing = append(missing, member.Name)
		}
	}
	if len(missing) > 0 {
		c.diag(diagnostics.MissingStructMembers(stub.Name, missing, e.Span))
	}
	return stub.Type
}

func (c *exprChecker) checkIf(e *ast.IfExpr) types.Type {
	cond := c.check(e.Cond)
	if !types.Coercible(cond, types.Boolean) {
		c.diag(diagnostics.TypeMismatch(types.Boolean, cond, e.Cond.Pos()))
	}
	trueType := c.check(e.True)
	falseType := c.check(e.False)
	common, ok := types.CommonType(trueType, falseType)
	if !ok {
		c.diag(diagnostics.NoCommonType(trueType, falseType, e.Span))
		return types.Union
	}
	return common
}

func (c *exprChecker) checkUnary(e *ast.UnaryExpr) types.Type {
	t := c.check(e.Operand)
	switch e.Op {
	case ast.UnaryNot:
		if !types.Coercible(t, types.Boolean) {
			c.diag(diagnostics.TypeMismatch(types.Boolean, t, e.Operand.Pos()))
			return types.Union
		}
		return types.Boolean
	default:
		if p, ok := t.(types.Primitive); ok && !p.Optional {
			switch p.Kind {
			case types.IntegerKind, types.FloatKind:
				return p
			}
		}
		if types.IsUnion(t) {
			return types.Union
		}
		c.diag(diagnostics.New(fmt.Sprintf("cannot negate type `%s`", t)).
			WithLabel(e.Operand.Pos(), fmt.Sprintf("this is type `%s`", t)))
		return types.Union
	}
}

func (c *exprChecker) checkBinary(e *ast.BinaryExpr) types.Type {
	switch e.Op {
	case ast.OpOr, ast.OpAnd:
		for _, operand := range []ast.Expr{e.Left, e.Right} {
			if t := c.check(operand); !types.Coercible(t, types.Boolean) {
				c.diag(diagnostics.TypeMismatch(types.Boolean, t, operand.Pos()))
			}
		}
		return types.Boolean
	case ast.OpEq, ast.OpNe:
		left, right := c.check(e.Left), c.check(e.Right)
		// Comparison against None or Union is always well-typed.
		if _, ok := types.CommonType(left, right); !ok {
			c.diag(diagnostics.New(fmt.Sprintf("cannot compare type `%s` to type `%s`", left, right)).
				WithLabel(e.Right.Pos(), fmt.Sprintf("this is type `%s`", right)).
				WithLabel(e.Left.Pos(), fmt.Sprintf("this is type `%s`", left)))
		}
		return types.Boolean
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		left, right := c.check(e.Left), c.check(e.Right)
		if !ordered(left) {
			c.diag(cannotCompareOrder(left, e.Left.Pos()))
		} else if !ordered(right) {
			c.diag(cannotCompareOrder(right, e.Right.Pos()))
		} else if !comparablePair(left, right) {
			c.diag(diagnostics.New(fmt.Sprintf("cannot compare type `%s` to type `%s`", left, right)).
				WithLabel(e.Right.Pos(), fmt.Sprintf("this is type `%s`", right)))
		}
		return types.Boolean
	case ast.OpExp:
		if !c.a.version.AtLeast(ast.V1_2) {
			c.diag(diagnostics.New("exponentiation requires WDL version 1.2 or later").WithLabel(e.Span, ""))
		}
		return c.numericOp(e)
	case ast.OpAdd:
		return c.checkAddition(e)
	default:
		return c.numericOp(e)
	}
}

// numericOp types subtraction, multiplication, division, modulo, and
// exponentiation: Int with Int is Int, any Float operand makes Float.
func (c *exprChecker) numericOp(e *ast.BinaryExpr) types.Type {
	left, right := c.check(e.Left), c.check(e.Right)
	lk, lok := numericKind(left, c.placeholder)
	rk, rok := numericKind(right, c.placeholder)
	if !lok {
		c.diag(operandMismatch(e.Op, left, e.Left.Pos()))
		return types.Union
	}
	if !rok {
		c.diag(operandMismatch(e.Op, right, e.Right.Pos()))
		return types.Union
	}
	if lk == types.FloatKind || rk == types.FloatKind {
		return types.Float
	}
	return types.Integer
}

func (c *exprChecker) checkAddition(e *ast.BinaryExpr) types.Type {
	left, right := c.check(e.Left), c.check(e.Right)

	// Addition with a String operand concatenates; the other side must
	// be a non-Boolean primitive. Optional operands are allowed only in
	// placeholder contexts, where None propagates and elides the
	// placeholder.
	if stringLike(left) || stringLike(right) {
		for _, side := range []struct {
			t    types.Type
			span ast.Span
		}{{left, e.Left.Pos()}, {right, e.Right.Pos()}} {
			p, ok := side.t.(types.Primitive)
			if !ok {
				if !types.IsUnion(side.t) && !(c.placeholder && types.IsNone(side.t)) {
					c.diag(operandMismatch(e.Op, side.t, side.span))
					return types.Union
				}
				continue
			}
			if p.Kind == types.BooleanKind {
				c.diag(operandMismatch(e.Op, side.t, side.span))
				return types.Union
			}
			if p.Optional && !c.placeholder {
				c.diag(operandMismatch(e.Op, side.t, side.span))
				return types.Union
			}
		}
		result := types.String
		if c.placeholder && (left.IsOptional() || right.IsOptional()) {
			return types.Optional(types.String)
		}
		return result
	}

	return c.numericOp(e)
}

func (c *exprChecker) checkIndex(e *ast.IndexExpr) types.Type {
	target := c.check(e.Target)
	index := c.check(e.Index)
	switch t := target.(type) {
	case types.Array:
		if t.Optional {
			c.diag(diagnostics.CannotIndex(target, e.Target.Pos()))
			return types.Union
		}
		if !types.Coercible(index, types.Integer) {
			c.diag(diagnostics.TypeMismatch(types.Integer, index, e.Index.Pos()))
		}
		return t.Element
	case types.Map:
		if t.Optional {
			c.diag(diagnostics.CannotIndex(target, e.Target.Pos()))
			return types.Union
		}
		if !types.Coercible(index, t.Key) {
			c.diag(diagnostics.TypeMismatch(t.Key, index, e.Index.Pos()))
		}
		return t.Value
	case types.UnionType:
		return types.Union
	default:
		c.diag(diagnostics.CannotIndex(target, e.Target.Pos()))
		return types.Union
	}
}

func (c *exprChecker) checkAccess(e *ast.AccessExpr) types.Type {
	target := c.check(e.Target)
	name := e.Member.Name
	switch t := target.(type) {
	case types.Pair:
		switch name {
		case "left":
			return t.Left
		case "right":
			return t.Right
		}
		c.diag(diagnostics.NotAPairAccessor(name, e.Member.Span))
		return types.Union
	case *types.Struct:
		if member, ok := t.Member(name); ok {
			return member
		}
		c.diag(diagnostics.NotAStructMember(t.Name, name, e.Member.Span))
		return types.Union
	case types.ObjectType:
		// Object members are dynamic; missing members fail at runtime.
		return types.Union
	case *types.Call:
		if out, ok := t.Output(name); ok {
			return out
		}
		c.diag(diagnostics.UnknownCallOutput(t.Name, name, e.Member.Span))
		return types.Union
	case types.TaskType:
		if member, ok := taskVarMember(name); ok {
			return member
		}
		c.diag(diagnostics.NotATaskMember(name, e.Member.Span))
		return types.Union
	case types.UnionType:
		return types.Union
	default:
		c.diag(diagnostics.CannotAccess(target, e.Target.Pos()))
		return types.Union
	}
}

func (c *exprChecker) checkCall(e *ast.CallExpr) types.Type {
	fn, ok := c.a.lib.Function(e.Target.Name)
	if !ok {
		for _, arg := range e.Args {
			c.check(arg)
		}
		c.diag(diagnostics.UnknownFunction(e.Target.Name, e.Target.Span))
		return types.Union
	}

	args := make([]types.Type, len(e.Args))
	for i, arg := range e.Args {
		args[i] = c.check(arg)
	}

	// Version gating still attempts to bind so the result type stays
	// accurate for error recovery.
	if !c.a.version.AtLeast(fn.MinVersion) {
		c.diag(diagnostics.UnsupportedFunction(fn.Name, fn.MinVersion.String(), c.a.version.String(), e.Target.Span))
	}

	binding, bindErr := fn.Bind(args)
	if bindErr == nil {
		return binding.Return
	}
	switch bindErr.Kind {
	case stdlib.BindTooFew:
		c.diag(diagnostics.TooFewArguments(fn.Name, bindErr.Min, len(args), e.Span))
	case stdlib.BindTooMany:
		c.diag(diagnostics.TooManyArguments(fn.Name, bindErr.Max, len(args), e.Span))
	case stdlib.BindAmbiguous:
		c.diag(diagnostics.AmbiguousArgument(fn.Name, bindErr.First, bindErr.Second, e.Span))
	default:
		span := e.Span
		if bindErr.ArgIndex < len(e.Args) {
			span = e.Args[bindErr.ArgIndex].Pos()
		}
		actual := types.Type(types.Union)
		if bindErr.ArgIndex < len(args) {
			actual = args[bindErr.ArgIndex]
		}
		c.diag(diagnostics.ArgumentTypeMismatch(fn.Name, "`"+bindErr.Expected+"`", actual, span))
	}
	return types.Union
}

// checkPlaceholder types a string or command placeholder together with
// its options.
func (c *exprChecker) checkPlaceholder(p *ast.Placeholder) {
	inner := &exprChecker{a: c.a, resolve: c.resolve, placeholder: true}
	t := inner.check(p.Expr)

	for _, opt := range p.Options {
		switch opt := opt.(type) {
		case *ast.SepOption:
			arr, ok := t.(types.Array)
			if types.IsUnion(t) {
				continue
			}
			if !ok || arr.Optional {
				c.diag(diagnostics.InvalidPlaceholderOption("sep", t, p.Expr.Pos()))
				continue
			}
			if elem, ok := arr.Element.(types.Primitive); !ok || elem.Optional {
				if !types.IsUnion(arr.Element) {
					c.diag(diagnostics.InvalidPlaceholderOption("sep", t, p.Expr.Pos()))
				}
			}
			return
		case *ast.TrueFalseOption:
			if !types.Coercible(t, types.Optional(types.Boolean)) {
				c.diag(diagnostics.InvalidPlaceholderOption("true/false", t, p.Expr.Pos()))
			}
			return
		case *ast.DefaultOption:
			inner.check(opt.Value)
			// The default substitutes for None; the operand keeps its own
			// placeholder coercion rules below.
		}
	}

	if !placeholderCoercible(t) {
		c.diag(diagnostics.CannotCoerce(t, types.String, p.Expr.Pos()))
	}
}

// placeholderCoercible reports whether a type may appear in a bare
// placeholder: any primitive (optional included, since None elides the
// placeholder), None, or Union.
func placeholderCoercible(t types.Type) bool {
	switch t.(type) {
	case types.Primitive, types.NoneType, types.UnionType:
		return true
	default:
		return false
	}
}

func taskVarMember(name string) (types.Type, bool) {
	switch name {
	case "name", "id", "container":
		return types.String, true
	case "cpu":
		return types.Float, true
	case "memory", "attempt":
		return types.Integer, true
	case "gpu", "fpga":
		return types.Array{Element: types.String}, true
	case "disks":
		return types.Map{Key: types.String, Value: types.Integer}, true
	case "end_time", "return_code":
		return types.Optional(types.Integer), true
	case "meta", "parameter_meta", "ext":
		return types.Object, true
	default:
		return nil, false
	}
}

func numericKind(t types.Type, allowOptional bool) (types.PrimitiveKind, bool) {
	if types.IsUnion(t) {
		return types.IntegerKind, true
	}
	p, ok := t.(types.Primitive)
	if !ok || (p.Optional && !allowOptional) {
		return 0, false
	}
	switch p.Kind {
	case types.IntegerKind, types.FloatKind:
		return p.Kind, true
	}
	return 0, false
}

func stringLike(t types.Type) bool {
	p, ok := t.(types.Primitive)
	return ok && p.Kind == types.StringKind
}

func ordered(t types.Type) bool {
	if types.IsUnion(t) || types.IsNone(t) {
		return true
	}
	p, ok := t.(types.Primitive)
	if !ok {
		return false
	}
	switch p.Kind {
	case types.BooleanKind, types.IntegerKind, types.FloatKind, types.StringKind:
		return true
	}
	return false
}

func comparablePair(left, right types.Type) bool {
	_, ok := types.CommonType(left, right)
	return ok
}

func cannotCompareOrder(t types.Type, span ast.Span) *diagnostics.Diagnostic {
	return diagnostics.New(fmt.Sprintf("type `%s` does not support ordered comparison", t)).
		WithLabel(span, fmt.Sprintf("this is type `%s`", t))
}

func operandMismatch(op ast.BinaryOp, t types.Type, span ast.Span) *diagnostics.Diagnostic {
	return diagnostics.New(fmt.Sprintf("operator `%s` cannot be applied to type `%s`", op, t)).
		WithLabel(span, fmt.Sprintf("this is type `%s`", t))
}
