package eval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/document"
	"github.com/funvibe/wdlx/internal/types"
)

var nextOffset int

func sp() ast.Span {
	nextOffset += 10
	return ast.Span{Start: nextOffset, End: nextOffset + 5}
}

func id(name string) ast.Ident   { return ast.Ident{Name: name, Span: sp()} }
func intLit(v int64) ast.Expr    { return &ast.LiteralInt{Value: v, Span: sp()} }
func floatLit(v float64) ast.Expr { return &ast.LiteralFloat{Value: v, Span: sp()} }
func boolLit(v bool) ast.Expr    { return &ast.LiteralBool{Value: v, Span: sp()} }
func noneLit() ast.Expr          { return &ast.LiteralNone{Span: sp()} }
func ref(name string) ast.Expr   { return &ast.NameRef{Name: name, Span: sp()} }

func strLit(text string) ast.Expr {
	return &ast.LiteralString{Parts: []ast.StringPart{&ast.StringText{Value: text, Span: sp()}}, Span: sp()}
}

func binary(op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	return &ast.BinaryExpr{Op: op, Left: left, Right: right, Span: sp()}
}

func array(elements ...ast.Expr) ast.Expr {
	return &ast.LiteralArray{Elements: elements, Span: sp()}
}

func call(name string, args ...ast.Expr) ast.Expr {
	return &ast.CallExpr{Target: id(name), Args: args, Span: sp()}
}

func placeholderString(p *ast.Placeholder, before, after string) ast.Expr {
	return &ast.LiteralString{
		Parts: []ast.StringPart{
			&ast.StringText{Value: before, Span: sp()},
			p,
			&ast.StringText{Value: after, Span: sp()},
		},
		Span: sp(),
	}
}

// emptyDoc analyzes an empty 1.2 document for evaluator context.
func emptyDoc(t *testing.T) *document.Document {
	t.Helper()
	g := document.NewGraph(func(uri string) (*ast.Document, error) {
		return &ast.Document{
			URI:         uri,
			VersionText: "1.2",
			VersionSpan: sp(),
			Span:        ast.Span{Start: 0, End: 1000000},
		}, nil
	})
	doc, err := g.Analyze("mem://wdl/empty.wdl")
	require.NoError(t, err)
	return doc
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	return NewEvaluator(emptyDoc(t), NewScope(nil), &IO{TempDir: t.TempDir()})
}

func evalExpr(t *testing.T, e *Evaluator, expr ast.Expr) Value {
	t.Helper()
	v, err := e.Eval(context.Background(), expr)
	require.NoError(t, err)
	return v
}

func TestArithmetic(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name string
		expr ast.Expr
		want string
	}{
		{"int addition", binary(ast.OpAdd, intLit(1), intLit(2)), "3"},
		{"mixed addition", binary(ast.OpAdd, intLit(1), floatLit(2.0)), "3"},
		{"string concat", binary(ast.OpAdd, strLit("a"), intLit(1)), `"a1"`},
		{"subtraction", binary(ast.OpSub, intLit(5), intLit(3)), "2"},
		{"multiplication", binary(ast.OpMul, intLit(4), intLit(3)), "12"},
		{"integer division", binary(ast.OpDiv, intLit(7), intLit(2)), "3"},
		{"modulo", binary(ast.OpMod, intLit(7), intLit(2)), "1"},
		{"exponent", binary(ast.OpExp, intLit(2), intLit(10)), "1024"},
		{"float division", binary(ast.OpDiv, floatLit(7), floatLit(2)), "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evalExpr(t, e, tt.expr)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestArithmeticTypes(t *testing.T) {
	e := newTestEvaluator(t)

	v := evalExpr(t, e, binary(ast.OpAdd, intLit(1), intLit(2)))
	assert.Equal(t, "Int", v.Type().String())

	v = evalExpr(t, e, binary(ast.OpAdd, intLit(1), floatLit(2.0)))
	assert.Equal(t, "Float", v.Type().String())

	v = evalExpr(t, e, binary(ast.OpAdd, strLit("a"), intLit(1)))
	assert.Equal(t, "String", v.Type().String())
}

func TestBooleanAdditionFails(t *testing.T) {
	e := newTestEvaluator(t)
	_, err := e.Eval(context.Background(), binary(ast.OpAdd, boolLit(true), intLit(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be applied to type `Boolean`")
}

func TestArithmeticFailures(t *testing.T) {
	e := newTestEvaluator(t)

	_, err := e.Eval(context.Background(), binary(ast.OpDiv, intLit(1), intLit(0)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divide by zero")

	_, err = e.Eval(context.Background(), binary(ast.OpAdd, intLit(9223372036854775807), intLit(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflowed")

	_, err = e.Eval(context.Background(), binary(ast.OpExp, intLit(2), intLit(-1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exponent is out of range")

	_, err = e.Eval(context.Background(), binary(ast.OpExp, intLit(2), intLit(128)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflowed")
}

func TestComparison(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		expr ast.Expr
		want bool
	}{
		{binary(ast.OpEq, intLit(1), intLit(1)), true},
		{binary(ast.OpEq, intLit(1), floatLit(1.0)), true},
		{binary(ast.OpNe, strLit("a"), strLit("b")), true},
		{binary(ast.OpLt, intLit(1), intLit(2)), true},
		{binary(ast.OpGe, floatLit(2.5), intLit(2)), true},
		{binary(ast.OpLt, strLit("a"), strLit("b")), true},
		{binary(ast.OpEq, noneLit(), noneLit()), true},
		{binary(ast.OpEq, noneLit(), intLit(1)), false},
	}
	for _, tt := range tests {
		v := evalExpr(t, e, tt.expr)
		assert.Equal(t, Boolean(tt.want), v)
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	e := newTestEvaluator(t)

	// The right side would fail if evaluated; short-circuiting only
	// types it.
	poison := binary(ast.OpEq, binary(ast.OpDiv, intLit(1), intLit(0)), intLit(1))
	v := evalExpr(t, e, binary(ast.OpAnd, boolLit(false), poison))
	assert.Equal(t, Boolean(false), v)

	v = evalExpr(t, e, binary(ast.OpOr, boolLit(true), poison))
	assert.Equal(t, Boolean(true), v)

	// Without short-circuiting the failure surfaces.
	_, err := e.Eval(context.Background(), binary(ast.OpAnd, boolLit(true), poison))
	require.Error(t, err)
}

func TestIfExpression(t *testing.T) {
	e := newTestEvaluator(t)

	v := evalExpr(t, e, &ast.IfExpr{Cond: boolLit(true), True: intLit(1), False: intLit(2), Span: sp()})
	assert.Equal(t, "1", v.String())

	// The unchosen arm still shapes the result type: Int meets Float at
	// Float.
	v = evalExpr(t, e, &ast.IfExpr{Cond: boolLit(true), True: intLit(1), False: floatLit(2.5), Span: sp()})
	assert.Equal(t, "Float", v.Type().String())

	// The untaken branch is not evaluated.
	poison := binary(ast.OpDiv, intLit(1), intLit(0))
	v = evalExpr(t, e, &ast.IfExpr{Cond: boolLit(false), True: poison, False: intLit(7), Span: sp()})
	assert.Equal(t, "7", v.String())
}

func TestIndexing(t *testing.T) {
	e := newTestEvaluator(t)

	v := evalExpr(t, e, &ast.IndexExpr{Target: array(intLit(10), intLit(20)), Index: intLit(1), Span: sp()})
	assert.Equal(t, "20", v.String())

	_, err := e.Eval(context.Background(), &ast.IndexExpr{Target: array(intLit(10)), Index: intLit(5), Span: sp()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	m := &ast.LiteralMap{
		Items: []*ast.MapItem{
			{Key: strLit("a"), Value: intLit(1), Span: sp()},
		},
		Span: sp(),
	}
	v, err = e.Eval(context.Background(), &ast.IndexExpr{Target: m, Index: strLit("a"), Span: sp()})
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())

	_, err = e.Eval(context.Background(), &ast.IndexExpr{Target: m, Index: strLit("missing"), Span: sp()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain an entry")
}

func TestPairAccess(t *testing.T) {
	e := newTestEvaluator(t)
	pair := &ast.LiteralPair{Left: intLit(1), Right: strLit("x"), Span: sp()}
	v := evalExpr(t, e, &ast.AccessExpr{Target: pair, Member: id("left"), Span: sp()})
	assert.Equal(t, "1", v.String())
	v = evalExpr(t, e, &ast.AccessExpr{Target: pair, Member: id("right"), Span: sp()})
	assert.Equal(t, `"x"`, v.String())
}

func TestPlaceholderInterpolation(t *testing.T) {
	e := newTestEvaluator(t)
	e.scope.Insert("name", String("bob"))
	e.scope.Insert("missing", None)

	// A bound placeholder interpolates its raw value.
	v := evalExpr(t, e, placeholderString(
		&ast.Placeholder{Expr: ref("name"), Span: sp()}, "echo ", ""))
	assert.Equal(t, String("echo bob"), v)

	// A None placeholder elides to the empty string.
	v = evalExpr(t, e, placeholderString(
		&ast.Placeholder{Expr: ref("missing"), Span: sp()}, "echo ", "!"))
	assert.Equal(t, String("echo !"), v)

	// None inside placeholder arithmetic poisons the whole placeholder.
	v = evalExpr(t, e, placeholderString(
		&ast.Placeholder{Expr: binary(ast.OpAdd, strLit("hi "), ref("missing")), Span: sp()}, "[", "]"))
	assert.Equal(t, String("[]"), v)
}

func TestPlaceholderRoundTrip(t *testing.T) {
	e := newTestEvaluator(t)
	// A placeholder over a plain string literal expands to exactly that
	// string.
	v := evalExpr(t, e, placeholderString(
		&ast.Placeholder{Expr: strLit("verbatim"), Span: sp()}, "", ""))
	assert.Equal(t, String("verbatim"), v)
}

func TestPlaceholderOptions(t *testing.T) {
	e := newTestEvaluator(t)
	e.scope.Insert("xs", NewArray(types.String, []Value{String("a"), String("b"), String("c")}))
	e.scope.Insert("flag", Boolean(true))
	e.scope.Insert("missing", None)

	v := evalExpr(t, e, placeholderString(&ast.Placeholder{
		Expr:    ref("xs"),
		Options: []ast.PlaceholderOption{&ast.SepOption{Separator: ",", Span: sp()}},
		Span:    sp(),
	}, "", ""))
	assert.Equal(t, String("a,b,c"), v)

	v = evalExpr(t, e, placeholderString(&ast.Placeholder{
		Expr:    ref("flag"),
		Options: []ast.PlaceholderOption{&ast.TrueFalseOption{True: "yes", False: "no", Span: sp()}},
		Span:    sp(),
	}, "", ""))
	assert.Equal(t, String("yes"), v)

	v = evalExpr(t, e, placeholderString(&ast.Placeholder{
		Expr:    ref("missing"),
		Options: []ast.PlaceholderOption{&ast.DefaultOption{Value: strLit("fallback"), Span: sp()}},
		Span:    sp(),
	}, "", ""))
	assert.Equal(t, String("fallback"), v)
}

func TestStructLiteralEvaluation(t *testing.T) {
	// Struct literals need a document that defines the struct.
	g := document.NewGraph(func(uri string) (*ast.Document, error) {
		return &ast.Document{
			URI:         uri,
			VersionText: "1.2",
			VersionSpan: sp(),
			Structs: []*ast.StructDefinition{{
				Name: id("Person"),
				Members: []*ast.Decl{
					{Type: &ast.TypeRef{Name: "String", Span: sp()}, Name: id("name"), Span: sp()},
					{Type: &ast.TypeRef{Name: "Int", Optional: true, Span: sp()}, Name: id("age"), Span: sp()},
				},
				Span: sp(),
			}},
			Span: ast.Span{Start: 0, End: 1000000},
		}, nil
	})
	doc, err := g.Analyze("mem://wdl/person.wdl")
	require.NoError(t, err)

	e := NewEvaluator(doc, NewScope(nil), &IO{})
	v, err := e.Eval(context.Background(), &ast.LiteralStruct{
		Name: id("Person"),
		Items: []*ast.ObjectItem{
			{Name: id("name"), Value: strLit("ada"), Span: sp()},
		},
		Span: sp(),
	})
	require.NoError(t, err)
	s, ok := v.(Struct)
	require.True(t, ok)

	name, _ := s.Member("name")
	assert.Equal(t, String("ada"), name)
	age, _ := s.Member("age")
	assert.True(t, IsNone(age), "optional members default to None")

	// Omitting a required member fails with the member named.
	_, err = e.Eval(context.Background(), &ast.LiteralStruct{
		Name:  id("Person"),
		Items: []*ast.ObjectItem{{Name: id("age"), Value: intLit(1), Span: sp()}},
		Span:  sp(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required member `name`")
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo\nbar\n\nbaz\r\n"), 0o644))

	e := newTestEvaluator(t)
	v := evalExpr(t, e, call("read_lines", strLit(path)))
	arr, ok := v.(Array)
	require.True(t, ok)

	var lines []string
	for _, el := range arr.Elements {
		lines = append(lines, string(el.(String)))
	}
	assert.Equal(t, []string{"foo", "bar", "", "baz"}, lines)
}

func TestWriteAndReadBack(t *testing.T) {
	e := newTestEvaluator(t)

	v := evalExpr(t, e, call("write_lines", array(strLit("x"), strLit("y"))))
	file, ok := v.(File)
	require.True(t, ok)

	data, err := os.ReadFile(string(file))
	require.NoError(t, err)
	assert.Equal(t, "x\ny\n", string(data))
}

func TestCollectionFunctions(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name string
		expr ast.Expr
		want string
	}{
		{"length", call("length", array(intLit(1), intLit(2))), "2"},
		{"range", call("range", intLit(3)), "[0, 1, 2]"},
		{"flatten", call("flatten", array(array(intLit(1)), array(intLit(2), intLit(3)))), "[1, 2, 3]"},
		{"select_first", call("select_first", array(noneLit(), intLit(5))), "5"},
		{"select_all", call("select_all", array(noneLit(), intLit(5), noneLit())), "[5]"},
		{"defined none", call("defined", noneLit()), "false"},
		{"defined value", call("defined", intLit(1)), "true"},
		{"sub", call("sub", strLit("aaa"), strLit("a"), strLit("b")), `"bbb"`},
		{"basename", call("basename", strLit("/a/b/c.txt")), `"c.txt"`},
		{"basename suffix", call("basename", strLit("/a/b/c.txt"), strLit(".txt")), `"c"`},
		{"floor", call("floor", floatLit(2.7)), "2"},
		{"min", call("min", intLit(3), intLit(5)), "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evalExpr(t, e, tt.expr)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestUnsupportedFunctionVersion(t *testing.T) {
	// find() requires 1.2; a 1.0 document rejects the call at runtime.
	g := document.NewGraph(func(uri string) (*ast.Document, error) {
		return &ast.Document{
			URI:         uri,
			VersionText: "1.0",
			VersionSpan: sp(),
			Span:        ast.Span{Start: 0, End: 1000000},
		}, nil
	})
	doc, err := g.Analyze("mem://wdl/old.wdl")
	require.NoError(t, err)

	e := NewEvaluator(doc, NewScope(nil), &IO{})
	_, err = e.Eval(context.Background(), call("find", strLit("abc"), strLit("b")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires WDL version 1.2")
}

func TestStripCommonWhitespace(t *testing.T) {
	command := "\n    echo hello\n      indented\n    done\n"
	stripped := StripCommonWhitespace(command)
	assert.Equal(t, "echo hello\n  indented\ndone", stripped)
}

func TestCoerceValues(t *testing.T) {
	span := sp()

	v, err := Coerce(Int(1), types.Float, span)
	require.NoError(t, err)
	assert.Equal(t, Float(1), v)

	v, err = Coerce(String("/tmp/x"), types.File, span)
	require.NoError(t, err)
	assert.Equal(t, File("/tmp/x"), v)

	_, err = Coerce(None, types.Integer, span)
	require.Error(t, err)

	v, err = Coerce(None, types.Optional(types.Integer), span)
	require.NoError(t, err)
	assert.True(t, IsNone(v))

	arr := NewArray(types.Integer, []Value{Int(1), Int(2)})
	v, err = Coerce(arr, types.Array{Element: types.Float}, span)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", v.String())
	assert.Equal(t, "Array[Float]+", v.Type().String())

	if !strings.Contains(v.Type().String(), "Float") {
		t.Errorf("array coercion should convert the element type")
	}
}
