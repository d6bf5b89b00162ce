package scope

import (
	"testing"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/types"
)

func TestLookupShadowing(t *testing.T) {
	arena := NewArena()
	root := arena.Alloc(-1, ast.Span{Start: 0, End: 100})
	root.Insert("x", Name{Span: ast.Span{Start: 5, End: 6}, Type: types.Integer})
	root.Insert("y", Name{Span: ast.Span{Start: 10, End: 11}, Type: types.String})

	inner := arena.Alloc(root.Index(), ast.Span{Start: 20, End: 80})
	inner.Insert("x", Name{Span: ast.Span{Start: 25, End: 26}, Type: types.Float})

	if n, ok := inner.Lookup("x"); !ok || n.Type.String() != "Float" {
		t.Errorf("inner lookup of x = %v, want the shadowing Float binding", n.Type)
	}
	if n, ok := inner.Lookup("y"); !ok || n.Type.String() != "String" {
		t.Errorf("inner lookup of y should reach the parent binding, got %v", n.Type)
	}
	if _, ok := root.Ref.Lookup("z"); ok {
		t.Errorf("lookup of an unbound name should fail")
	}
	if n, ok := root.Ref.Lookup("x"); !ok || n.Type.String() != "Int" {
		t.Errorf("root lookup of x = %v, want Int", n.Type)
	}
}

func TestInsertConflict(t *testing.T) {
	arena := NewArena()
	root := arena.Alloc(-1, ast.Span{Start: 0, End: 10})
	if !root.Insert("x", Name{Type: types.Integer}) {
		t.Fatalf("first insert should succeed")
	}
	if root.Insert("x", Name{Type: types.Float}) {
		t.Errorf("second insert of the same name should fail")
	}
	if n, _ := root.Local("x"); n.Type.String() != "Int" {
		t.Errorf("the first binding should win, got %v", n.Type)
	}
}

func TestFindByPosition(t *testing.T) {
	arena := NewArena()
	root := arena.Alloc(-1, ast.Span{Start: 0, End: 100})
	// Allocated out of span order to exercise the sort.
	late := arena.Alloc(root.Index(), ast.Span{Start: 60, End: 90})
	early := arena.Alloc(root.Index(), ast.Span{Start: 10, End: 40})
	nested := arena.Alloc(early.Index(), ast.Span{Start: 20, End: 30})

	remap := arena.SortByStart()

	tests := []struct {
		offset int
		want   int
	}{
		{5, remap[root.Index()]},
		{15, remap[early.Index()]},
		{25, remap[nested.Index()]},
		{35, remap[early.Index()]},
		{50, remap[root.Index()]},
		{70, remap[late.Index()]},
		{95, remap[root.Index()]},
	}
	for _, tt := range tests {
		ref, ok := arena.FindByPosition(tt.offset)
		if !ok {
			t.Fatalf("FindByPosition(%d) found nothing", tt.offset)
		}
		if ref.Index() != tt.want {
			t.Errorf("FindByPosition(%d) = scope %d, want %d", tt.offset, ref.Index(), tt.want)
		}
	}

	if _, ok := arena.FindByPosition(200); ok {
		t.Errorf("an offset outside every scope should find nothing")
	}
}

func TestSortRewritesParents(t *testing.T) {
	arena := NewArena()
	root := arena.Alloc(-1, ast.Span{Start: 0, End: 100})
	child := arena.Alloc(root.Index(), ast.Span{Start: 50, End: 90})
	childFirst := arena.Alloc(root.Index(), ast.Span{Start: 10, End: 40})

	root.Insert("a", Name{Type: types.Integer})

	remap := arena.SortByStart()

	for _, mut := range []Mut{child, childFirst} {
		ref := arena.Scope(remap[mut.Index()])
		parent, ok := ref.Parent()
		if !ok {
			t.Fatalf("child scope lost its parent after sorting")
		}
		if parent.Index() != remap[root.Index()] {
			t.Errorf("parent index = %d, want %d", parent.Index(), remap[root.Index()])
		}
		if _, ok := ref.Lookup("a"); !ok {
			t.Errorf("lookup through the rewritten parent failed")
		}
	}
}
