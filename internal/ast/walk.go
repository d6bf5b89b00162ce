package ast

// WalkExpr visits every sub-expression of e in source order, including
// expressions nested inside string placeholders and placeholder options.
// Returning false from visit skips the node's children.
func WalkExpr(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch e := e.(type) {
	case *LiteralString:
		for _, part := range e.Parts {
			if p, ok := part.(*Placeholder); ok {
				walkPlaceholder(p, visit)
			}
		}
	case *LiteralArray:
		for _, el := range e.Elements {
			WalkExpr(el, visit)
		}
	case *LiteralPair:
		WalkExpr(e.Left, visit)
		WalkExpr(e.Right, visit)
	case *LiteralMap:
		for _, item := range e.Items {
			WalkExpr(item.Key, visit)
			WalkExpr(item.Value, visit)
		}
	case *LiteralObject:
		for _, item := range e.Items {
			WalkExpr(item.Value, visit)
		}
	case *LiteralStruct:
		for _, item := range e.Items {
			WalkExpr(item.Value, visit)
		}
	case *IfExpr:
		WalkExpr(e.Cond, visit)
		WalkExpr(e.True, visit)
		WalkExpr(e.False, visit)
	case *UnaryExpr:
		WalkExpr(e.Operand, visit)
	case *BinaryExpr:
		WalkExpr(e.Left, visit)
		WalkExpr(e.Right, visit)
	case *IndexExpr:
		WalkExpr(e.Target, visit)
		WalkExpr(e.Index, visit)
	case *AccessExpr:
		WalkExpr(e.Target, visit)
	case *CallExpr:
		for _, arg := range e.Args {
			WalkExpr(arg, visit)
		}
	}
}

func walkPlaceholder(p *Placeholder, visit func(Expr) bool) {
	WalkExpr(p.Expr, visit)
	for _, opt := range p.Options {
		if d, ok := opt.(*DefaultOption); ok {
			WalkExpr(d.Value, visit)
		}
	}
}

// NameRefs collects every name reference within an expression.
func NameRefs(e Expr) []*NameRef {
	var refs []*NameRef
	WalkExpr(e, func(e Expr) bool {
		if r, ok := e.(*NameRef); ok {
			refs = append(refs, r)
		}
		return true
	})
	return refs
}

// PlaceholderRefs collects name references from every placeholder in a
// command section.
func PlaceholderRefs(s *CommandSection) []*NameRef {
	var refs []*NameRef
	for _, part := range s.Parts {
		if p, ok := part.(*Placeholder); ok {
			walkPlaceholder(p, func(e Expr) bool {
				if r, ok := e.(*NameRef); ok {
					refs = append(refs, r)
				}
				return true
			})
		}
	}
	return refs
}
