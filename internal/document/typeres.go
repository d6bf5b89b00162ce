package document

import (
	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/types"
)

// resolveType converts a type annotation into a semantic type. Unknown
// names resolve to Union with a diagnostic so analysis continues. The
// rename map translates struct names for annotations that came from an
// imported document.
func (a *analyzer) resolveType(ref *ast.TypeRef, rename map[string]string) types.Type {
	if ref == nil {
		return types.Union
	}
	switch ref.Name {
	case "Boolean":
		return types.Primitive{Kind: types.BooleanKind, Optional: ref.Optional}
	case "Int":
		return types.Primitive{Kind: types.IntegerKind, Optional: ref.Optional}
	case "Float":
		return types.Primitive{Kind: types.FloatKind, Optional: ref.Optional}
	case "String":
		return types.Primitive{Kind: types.StringKind, Optional: ref.Optional}
	case "File":
		return types.Primitive{Kind: types.FileKind, Optional: ref.Optional}
	case "Directory":
		if !a.version.AtLeast(ast.V1_2) {
			a.doc.diag(diagnostics.UnknownType(ref.Name, ref.Span))
			return types.Union
		}
		return types.Primitive{Kind: types.DirectoryKind, Optional: ref.Optional}
	case "Array":
		if len(ref.Params) != 1 {
			a.doc.diag(diagnostics.UnknownType(ref.String(), ref.Span))
			return types.Union
		}
		return types.Array{
			Element:  a.resolveType(ref.Params[0], rename),
			NonEmpty: ref.NonEmpty,
			Optional: ref.Optional,
		}
	case "Pair":
		if len(ref.Params) != 2 {
			a.doc.diag(diagnostics.UnknownType(ref.String(), ref.Span))
			return types.Union
		}
		return types.Pair{
			Left:     a.resolveType(ref.Params[0], rename),
			Right:    a.resolveType(ref.Params[1], rename),
			Optional: ref.Optional,
		}
	case "Map":
		if len(ref.Params) != 2 {
			a.doc.diag(diagnostics.UnknownType(ref.String(), ref.Span))
			return types.Union
		}
		key := a.resolveType(ref.Params[0], rename)
		if _, ok := key.(types.Primitive); !ok && !types.IsUnion(key) {
			a.doc.diag(diagnostics.New("map keys must be primitive types").
				WithLabel(ref.Params[0].Span, "this cannot be used as a map key"))
			key = types.Union
		}
		return types.Map{
			Key:      key,
			Value:    a.resolveType(ref.Params[1], rename),
			Optional: ref.Optional,
		}
	case "Object":
		return types.ObjectType{Optional: ref.Optional}
	default:
		name := ref.Name
		if rename != nil {
			if renamed, ok := rename[name]; ok {
				name = renamed
			}
		}
		stub, ok := a.doc.Struct(name)
		if !ok {
			a.doc.diag(diagnostics.UnknownType(ref.Name, ref.Span))
			return types.Union
		}
		if stub.Namespace != "" {
			if ns, ok := a.doc.Namespace(stub.Namespace); ok {
				ns.Used = true
			}
		}
		if stub.Type == nil {
			// The struct participates in a type cycle already reported.
			return types.Union
		}
		if ref.Optional {
			return stub.Type.WithOptional(true)
		}
		return stub.Type
	}
}
