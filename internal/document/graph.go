package document

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"

	"github.com/funvibe/wdlx/internal/ast"
)

// Source loads and parses the document at a URI.
type Source func(uri string) (*ast.Document, error)

// ErrImportCycle is returned when analyzing a document that is already
// being analyzed further up the import chain.
var ErrImportCycle = errors.New("document is part of an import cycle")

// Graph analyzes a multi-document import graph, caching analyzed
// documents by URI and detecting import cycles.
type Graph struct {
	source   Source
	docs     map[string]*Document
	visiting map[string]bool
	// cycleEdges records importer/imported pairs that closed a cycle so
	// both participants diagnose it.
	cycleEdges map[[2]string]bool
}

// NewGraph creates a document graph over the given source.
func NewGraph(source Source) *Graph {
	return &Graph{
		source:     source,
		docs:       make(map[string]*Document),
		visiting:   make(map[string]bool),
		cycleEdges: make(map[[2]string]bool),
	}
}

// Analyze loads, analyzes, and caches the document at the given URI
// along with every transitive import.
func (g *Graph) Analyze(uri string) (*Document, error) {
	if doc, ok := g.docs[uri]; ok {
		return doc, nil
	}
	if g.visiting[uri] {
		return nil, ErrImportCycle
	}

	astDoc, err := g.source(uri)
	if err != nil {
		return nil, fmt.Errorf("loading document `%s`: %w", uri, err)
	}

	g.visiting[uri] = true
	doc := analyze(g, uri, astDoc)
	delete(g.visiting, uri)
	g.docs[uri] = doc
	return doc, nil
}

// Document returns a previously analyzed document.
func (g *Graph) Document(uri string) (*Document, bool) {
	doc, ok := g.docs[uri]
	return doc, ok
}

// URIs returns the analyzed document URIs in sorted order.
func (g *Graph) URIs() []string {
	uris := make([]string, 0, len(g.docs))
	for uri := range g.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func (g *Graph) markCycle(importer, imported string) {
	g.cycleEdges[[2]string{importer, imported}] = true
	g.cycleEdges[[2]string{imported, importer}] = true
}

func (g *Graph) inCycle(importer, imported string) bool {
	return g.cycleEdges[[2]string{importer, imported}]
}

// ResolveURI resolves a relative import against the importer's URI per
// RFC 3986. Plain paths resolve by joining against the importer's
// directory.
func ResolveURI(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err == nil && refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err == nil && baseURL.IsAbs() {
		resolved, err := baseURL.Parse(ref)
		if err == nil {
			return resolved.String()
		}
	}
	if path.IsAbs(ref) {
		return path.Clean(ref)
	}
	return path.Clean(path.Join(path.Dir(base), ref))
}

// namespaceFromURI derives the default namespace for an import: the
// final path segment with its extension removed. The second result is
// false when the stem is not a valid WDL identifier.
func namespaceFromURI(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	p := uri
	if err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	stem := path.Base(p)
	if ext := path.Ext(stem); ext != "" {
		stem = stem[:len(stem)-len(ext)]
	}
	if !validIdentifier(stem) {
		return "", false
	}
	return stem, true
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' && i > 0, r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
