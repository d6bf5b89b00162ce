package stdlib

import (
	"testing"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/types"
)

func bind(t *testing.T, name string, args ...types.Type) (Binding, *BindError) {
	t.Helper()
	fn, ok := Default().Function(name)
	if !ok {
		t.Fatalf("function %q not found", name)
	}
	return fn.Bind(args)
}

func TestBindExactOverloadWins(t *testing.T) {
	// min(Int, Int) must select the Int overload even though both
	// arguments also coerce to Float.
	binding, err := bind(t, "min", types.Integer, types.Integer)
	if err != nil {
		t.Fatalf("Bind: %+v", err)
	}
	if binding.Index != 0 || binding.Return.String() != "Int" {
		t.Errorf("binding = %+v, want the Int overload", binding)
	}

	binding, err = bind(t, "min", types.Integer, types.Float)
	if err != nil {
		t.Fatalf("Bind: %+v", err)
	}
	if binding.Return.String() != "Float" {
		t.Errorf("mixed operands should return Float, got %s", binding.Return)
	}
}

func TestBindGenericReturn(t *testing.T) {
	tests := []struct {
		name string
		args []types.Type
		want string
	}{
		{"length", []types.Type{types.Array{Element: types.String}}, "Int"},
		{"flatten", []types.Type{types.Array{Element: types.Array{Element: types.Integer}}}, "Array[Int]"},
		{"zip", []types.Type{
			types.Array{Element: types.Integer},
			types.Array{Element: types.String},
		}, "Array[Pair[Int, String]]"},
		{"select_first", []types.Type{types.Array{Element: types.Optional(types.Integer), NonEmpty: true}}, "Int"},
		{"select_all", []types.Type{types.Array{Element: types.Optional(types.File)}}, "Array[File]"},
		{"as_map", []types.Type{
			types.Array{Element: types.Pair{Left: types.String, Right: types.Integer}},
		}, "Map[String, Int]"},
		{"keys", []types.Type{types.Map{Key: types.String, Value: types.Float}}, "Array[String]"},
		{"values", []types.Type{types.Map{Key: types.String, Value: types.Float}}, "Array[Float]"},
		{"read_lines", []types.Type{types.File}, "Array[String]"},
		{"unzip", []types.Type{
			types.Array{Element: types.Pair{Left: types.Integer, Right: types.String}},
		}, "Pair[Array[Int], Array[String]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binding, err := bind(t, tt.name, tt.args...)
			if err != nil {
				t.Fatalf("Bind: %+v", err)
			}
			if binding.Return.String() != tt.want {
				t.Errorf("return = %s, want %s", binding.Return, tt.want)
			}
		})
	}
}

func TestBindErrors(t *testing.T) {
	if _, err := bind(t, "sub", types.String); err == nil || err.Kind != BindTooFew {
		t.Errorf("sub with one argument: err = %+v, want too-few", err)
	}
	if _, err := bind(t, "sub", types.String, types.String, types.String, types.String); err == nil || err.Kind != BindTooMany {
		t.Errorf("sub with four arguments: err = %+v, want too-many", err)
	}
	if _, err := bind(t, "range", types.String); err == nil || err.Kind != BindMismatch {
		t.Errorf("range(String): err = %+v, want mismatch", err)
	}
	if _, err := bind(t, "sep", types.String, types.Array{Element: types.Object}); err == nil || err.Kind != BindMismatch {
		t.Errorf("sep over non-primitive elements: err = %+v, want mismatch", err)
	}
}

func TestBindUnionRecovers(t *testing.T) {
	// Union arguments bind so error recovery keeps producing types.
	binding, err := bind(t, "read_lines", types.Union)
	if err != nil {
		t.Fatalf("Bind: %+v", err)
	}
	if binding.Return.String() != "Array[String]" {
		t.Errorf("return = %s", binding.Return)
	}
}

func TestMinimumVersions(t *testing.T) {
	tests := []struct {
		name string
		want ast.Version
	}{
		{"read_lines", ast.V1_0},
		{"sep", ast.V1_1},
		{"min", ast.V1_1},
		{"unzip", ast.V1_1},
		{"find", ast.V1_2},
		{"matches", ast.V1_2},
		{"values", ast.V1_2},
		{"contains_key", ast.V1_2},
		{"join_paths", ast.V1_2},
		{"chunk", ast.V1_2},
	}
	for _, tt := range tests {
		fn, ok := Default().Function(tt.name)
		if !ok {
			t.Fatalf("function %q not found", tt.name)
		}
		if fn.MinVersion != tt.want {
			t.Errorf("%s minimum version = %s, want %s", tt.name, fn.MinVersion, tt.want)
		}
	}
}
