package trie

import "testing"

func TestEmptyTrie(t *testing.T) {
	empty := New()
	if len(empty.Inputs()) != 0 {
		t.Errorf("a new trie should have no inputs")
	}
}

func TestUnmappedInputs(t *testing.T) {
	tr := New()
	index, err := tr.Insert(FileKind, "/foo/bar/baz", "/base")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	inputs := tr.Inputs()
	if len(inputs) != 1 {
		t.Fatalf("input count = %d, want 1", len(inputs))
	}
	if inputs[index].Path != "/foo/bar/baz" {
		t.Errorf("path = %q", inputs[index].Path)
	}
	if inputs[index].GuestPath != "" {
		t.Errorf("guest path should be empty without a guest dir")
	}
}

func TestGuestPaths(t *testing.T) {
	tr := NewWithGuestDir("/inputs/")
	inserts := []struct {
		kind ContentKind
		path string
	}{
		{DirectoryKind, "/"},
		{FileKind, "/foo/bar/foo.txt"},
		{FileKind, "/foo/bar/bar.txt"},
		{FileKind, "/foo/baz/foo.txt"},
		{FileKind, "/foo/baz/bar.txt"},
		{FileKind, "/bar/foo/foo.txt"},
		{FileKind, "/bar/foo/bar.txt"},
		{DirectoryKind, "/baz"},
		{FileKind, "https://example.com/"},
		{FileKind, "https://example.com/foo/bar/foo.txt"},
		{FileKind, "https://example.com/foo/bar/bar.txt"},
		{FileKind, "https://example.com/foo/baz/foo.txt"},
		{FileKind, "https://example.com/foo/baz/bar.txt"},
		{FileKind, "https://example.com/bar/foo/foo.txt"},
		{FileKind, "https://example.com/bar/foo/bar.txt"},
		{FileKind, "https://foo.com/bar"},
		{FileKind, "foo.txt"},
	}
	for _, in := range inserts {
		if _, err := tr.Insert(in.kind, in.path, "/base"); err != nil {
			t.Fatalf("Insert(%s): %v", in.path, err)
		}
	}

	// The guest file name matches the host name (or `.root` for a
	// root), and paths with the same parent share a guest parent id.
	want := [][2]string{
		{"/", "/inputs/0/.root"},
		{"/foo/bar/foo.txt", "/inputs/3/foo.txt"},
		{"/foo/bar/bar.txt", "/inputs/3/bar.txt"},
		{"/foo/baz/foo.txt", "/inputs/6/foo.txt"},
		{"/foo/baz/bar.txt", "/inputs/6/bar.txt"},
		{"/bar/foo/foo.txt", "/inputs/10/foo.txt"},
		{"/bar/foo/bar.txt", "/inputs/10/bar.txt"},
		{"/baz", "/inputs/1/baz"},
		{"https://example.com/", "/inputs/15/.root"},
		{"https://example.com/foo/bar/foo.txt", "/inputs/18/foo.txt"},
		{"https://example.com/foo/bar/bar.txt", "/inputs/18/bar.txt"},
		{"https://example.com/foo/baz/foo.txt", "/inputs/21/foo.txt"},
		{"https://example.com/foo/baz/bar.txt", "/inputs/21/bar.txt"},
		{"https://example.com/bar/foo/foo.txt", "/inputs/25/foo.txt"},
		{"https://example.com/bar/foo/bar.txt", "/inputs/25/bar.txt"},
		{"https://foo.com/bar", "/inputs/28/bar"},
		{"/base/foo.txt", "/inputs/30/foo.txt"},
	}

	inputs := tr.Inputs()
	if len(inputs) != len(want) {
		t.Fatalf("input count = %d, want %d", len(inputs), len(want))
	}
	for i, w := range want {
		if inputs[i].Path != w[0] || inputs[i].GuestPath != w[1] {
			t.Errorf("input %d = (%q, %q), want (%q, %q)", i, inputs[i].Path, inputs[i].GuestPath, w[0], w[1])
		}
	}
}

func TestStability(t *testing.T) {
	tr := NewWithGuestDir("/inputs/")
	first, err := tr.Insert(FileKind, "/a/b/c.txt", "/base")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	second, err := tr.Insert(FileKind, "/a/b/c.txt", "/base")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if first != second {
		t.Errorf("inserting the same path twice should return the same index")
	}
	sibling, err := tr.Insert(FileKind, "/a/b/d.txt", "/base")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	inputs := tr.Inputs()
	parent := func(guest string) string {
		i := len(guest) - 1
		for guest[i] != '/' {
			i--
		}
		return guest[:i]
	}
	if parent(inputs[first].GuestPath) != parent(inputs[sibling].GuestPath) {
		t.Errorf("siblings should share a guest parent directory")
	}
}

func TestGuestPassthrough(t *testing.T) {
	tr := NewWithGuestDir("/inputs/")
	index, err := tr.Insert(FileKind, "/inputs/3/foo.txt", "/base")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if index != -1 {
		t.Errorf("a path already below the guest dir should pass through")
	}
}

func TestCleansDotSegments(t *testing.T) {
	tr := New()
	if _, err := tr.Insert(FileKind, "/a/../b", "/base"); err == nil {
		// filepath.Clean removes the dot segments before insertion, so
		// this is accepted; only unresolvable segments fail.
		inputs := tr.Inputs()
		if len(inputs) != 1 || inputs[0].Path != "/b" {
			t.Errorf("cleaned path = %v", inputs)
		}
	}
}
