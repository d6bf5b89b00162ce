package ast

import (
	"encoding/json"
	"fmt"
)

// DecodeDocument decodes the JSON syntax-tree interchange form produced by
// the companion parser. Polymorphic nodes are encoded as an envelope with a
// `kind` discriminator.
func DecodeDocument(data []byte) (*Document, error) {
	var raw struct {
		URI         string            `json:"uri"`
		VersionText string            `json:"version"`
		VersionSpan Span              `json:"versionSpan"`
		Imports     []json.RawMessage `json:"imports"`
		Structs     []json.RawMessage `json:"structs"`
		Tasks       []json.RawMessage `json:"tasks"`
		Workflows   []json.RawMessage `json:"workflows"`
		Span        Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	doc := &Document{
		URI:         raw.URI,
		VersionText: raw.VersionText,
		VersionSpan: raw.VersionSpan,
		Span:        raw.Span,
	}
	for _, m := range raw.Imports {
		var imp ImportStatement
		if err := json.Unmarshal(m, &imp); err != nil {
			return nil, fmt.Errorf("decoding import: %w", err)
		}
		doc.Imports = append(doc.Imports, &imp)
	}
	for _, m := range raw.Structs {
		s, err := decodeStruct(m)
		if err != nil {
			return nil, err
		}
		doc.Structs = append(doc.Structs, s)
	}
	for _, m := range raw.Tasks {
		t, err := decodeTask(m)
		if err != nil {
			return nil, err
		}
		doc.Tasks = append(doc.Tasks, t)
	}
	for _, m := range raw.Workflows {
		w, err := decodeWorkflow(m)
		if err != nil {
			return nil, err
		}
		doc.Workflows = append(doc.Workflows, w)
	}
	return doc, nil
}

func decodeStruct(data json.RawMessage) (*StructDefinition, error) {
	var raw struct {
		Name    Ident             `json:"name"`
		Members []json.RawMessage `json:"members"`
		Span    Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding struct: %w", err)
	}
	s := &StructDefinition{Name: raw.Name, Span: raw.Span}
	for _, m := range raw.Members {
		d, err := decodeDecl(m)
		if err != nil {
			return nil, err
		}
		s.Members = append(s.Members, d)
	}
	return s, nil
}

func decodeDecl(data json.RawMessage) (*Decl, error) {
	var raw struct {
		Type    *TypeRef        `json:"type"`
		Name    Ident           `json:"declName"`
		Expr    json.RawMessage `json:"expr"`
		Env     bool            `json:"env"`
		Excepts []string        `json:"excepts"`
		Span    Span            `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding decl: %w", err)
	}
	d := &Decl{Type: raw.Type, Name: raw.Name, Env: raw.Env, Excepts: raw.Excepts, Span: raw.Span}
	if len(raw.Expr) > 0 {
		e, err := DecodeExpr(raw.Expr)
		if err != nil {
			return nil, err
		}
		d.Expr = e
	}
	return d, nil
}

func decodeDecls(raws []json.RawMessage) ([]*Decl, error) {
	var decls []*Decl
	for _, m := range raws {
		d, err := decodeDecl(m)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func decodeSectionItems(raws []json.RawMessage) ([]*SectionItem, error) {
	var items []*SectionItem
	for _, m := range raws {
		var raw struct {
			Name Ident           `json:"name"`
			Expr json.RawMessage `json:"expr"`
			Span Span            `json:"span"`
		}
		if err := json.Unmarshal(m, &raw); err != nil {
			return nil, fmt.Errorf("decoding section item: %w", err)
		}
		e, err := DecodeExpr(raw.Expr)
		if err != nil {
			return nil, err
		}
		items = append(items, &SectionItem{Name: raw.Name, Expr: e, Span: raw.Span})
	}
	return items, nil
}

func decodeTask(data json.RawMessage) (*TaskDefinition, error) {
	var raw struct {
		Name          Ident             `json:"taskName"`
		Inputs        []json.RawMessage `json:"inputs"`
		Decls         []json.RawMessage `json:"decls"`
		Outputs       []json.RawMessage `json:"outputs"`
		Command       json.RawMessage   `json:"command"`
		Runtime       json.RawMessage   `json:"runtime"`
		Requirements  json.RawMessage   `json:"requirements"`
		Hints         json.RawMessage   `json:"hints"`
		Meta          json.RawMessage   `json:"meta"`
		ParameterMeta json.RawMessage   `json:"parameterMeta"`
		Span          Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	task := &TaskDefinition{Name: raw.Name, Span: raw.Span}
	var err error
	if task.Inputs, err = decodeDecls(raw.Inputs); err != nil {
		return nil, err
	}
	if task.Decls, err = decodeDecls(raw.Decls); err != nil {
		return nil, err
	}
	if task.Outputs, err = decodeDecls(raw.Outputs); err != nil {
		return nil, err
	}
	if len(raw.Command) > 0 {
		if task.Command, err = decodeCommand(raw.Command); err != nil {
			return nil, err
		}
	}
	if len(raw.Runtime) > 0 {
		items, span, err := decodeItemSection(raw.Runtime)
		if err != nil {
			return nil, err
		}
		task.Runtime = &RuntimeSection{Items: items, Span: span}
	}
	if len(raw.Requirements) > 0 {
		items, span, err := decodeItemSection(raw.Requirements)
		if err != nil {
			return nil, err
		}
		task.Requirements = &RequirementsSection{Items: items, Span: span}
	}
	if len(raw.Hints) > 0 {
		items, span, err := decodeItemSection(raw.Hints)
		if err != nil {
			return nil, err
		}
		task.Hints = &HintsSection{Items: items, Span: span}
	}
	if len(raw.Meta) > 0 {
		items, span, err := decodeItemSection(raw.Meta)
		if err != nil {
			return nil, err
		}
		task.Meta = &MetaSection{Items: items, Span: span}
	}
	if len(raw.ParameterMeta) > 0 {
		items, span, err := decodeItemSection(raw.ParameterMeta)
		if err != nil {
			return nil, err
		}
		task.ParameterMeta = &MetaSection{Items: items, Span: span}
	}
	return task, nil
}

func decodeItemSection(data json.RawMessage) ([]*SectionItem, Span, error) {
	var raw struct {
		Items []json.RawMessage `json:"items"`
		Span  Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Span{}, fmt.Errorf("decoding section: %w", err)
	}
	items, err := decodeSectionItems(raw.Items)
	return items, raw.Span, err
}

func decodeCommand(data json.RawMessage) (*CommandSection, error) {
	var raw struct {
		Parts   []json.RawMessage `json:"parts"`
		Heredoc bool              `json:"heredoc"`
		Span    Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding command: %w", err)
	}
	section := &CommandSection{Heredoc: raw.Heredoc, Span: raw.Span}
	for _, m := range raw.Parts {
		kind, err := kindOf(m)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "text":
			var t CommandText
			if err := json.Unmarshal(m, &t); err != nil {
				return nil, err
			}
			section.Parts = append(section.Parts, &t)
		case "placeholder":
			p, err := decodePlaceholder(m)
			if err != nil {
				return nil, err
			}
			section.Parts = append(section.Parts, p)
		default:
			return nil, fmt.Errorf("unknown command part kind %q", kind)
		}
	}
	return section, nil
}

func decodeWorkflow(data json.RawMessage) (*WorkflowDefinition, error) {
	var raw struct {
		Name              Ident             `json:"workflowName"`
		Inputs            []json.RawMessage `json:"inputs"`
		Outputs           []json.RawMessage `json:"outputs"`
		Statements        []json.RawMessage `json:"statements"`
		Meta              json.RawMessage   `json:"meta"`
		ParameterMeta     json.RawMessage   `json:"parameterMeta"`
		AllowNestedInputs bool              `json:"allowNestedInputs"`
		Span              Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	w := &WorkflowDefinition{Name: raw.Name, AllowNestedInputs: raw.AllowNestedInputs, Span: raw.Span}
	var err error
	if w.Inputs, err = decodeDecls(raw.Inputs); err != nil {
		return nil, err
	}
	if w.Outputs, err = decodeDecls(raw.Outputs); err != nil {
		return nil, err
	}
	if w.Statements, err = decodeStatements(raw.Statements); err != nil {
		return nil, err
	}
	if len(raw.Meta) > 0 {
		items, span, err := decodeItemSection(raw.Meta)
		if err != nil {
			return nil, err
		}
		w.Meta = &MetaSection{Items: items, Span: span}
	}
	if len(raw.ParameterMeta) > 0 {
		items, span, err := decodeItemSection(raw.ParameterMeta)
		if err != nil {
			return nil, err
		}
		w.ParameterMeta = &MetaSection{Items: items, Span: span}
	}
	return w, nil
}

func decodeStatements(raws []json.RawMessage) ([]WorkflowStatement, error) {
	var stmts []WorkflowStatement
	for _, m := range raws {
		kind, err := kindOf(m)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "decl":
			d, err := decodeDecl(m)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, d)
		case "call":
			var raw struct {
				Target []Ident           `json:"target"`
				Alias  *Ident            `json:"alias"`
				Afters []Ident           `json:"afters"`
				Inputs []json.RawMessage `json:"callInputs"`
				Span   Span              `json:"span"`
			}
			if err := json.Unmarshal(m, &raw); err != nil {
				return nil, fmt.Errorf("decoding call: %w", err)
			}
			call := &CallStatement{Target: raw.Target, Alias: raw.Alias, Afters: raw.Afters, Span: raw.Span}
			for _, im := range raw.Inputs {
				var inRaw struct {
					Name Ident           `json:"name"`
					Expr json.RawMessage `json:"expr"`
					Span Span            `json:"span"`
				}
				if err := json.Unmarshal(im, &inRaw); err != nil {
					return nil, fmt.Errorf("decoding call input: %w", err)
				}
				input := &CallInput{Name: inRaw.Name, Span: inRaw.Span}
				if len(inRaw.Expr) > 0 {
					if input.Expr, err = DecodeExpr(inRaw.Expr); err != nil {
						return nil, err
					}
				}
				call.Inputs = append(call.Inputs, input)
			}
			stmts = append(stmts, call)
		case "scatter":
			var raw struct {
				Variable   Ident             `json:"variable"`
				Expr       json.RawMessage   `json:"expr"`
				Statements []json.RawMessage `json:"statements"`
				Span       Span              `json:"span"`
			}
			if err := json.Unmarshal(m, &raw); err != nil {
				return nil, fmt.Errorf("decoding scatter: %w", err)
			}
			expr, err := DecodeExpr(raw.Expr)
			if err != nil {
				return nil, err
			}
			body, err := decodeStatements(raw.Statements)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, &ScatterStatement{Variable: raw.Variable, Expr: expr, Statements: body, Span: raw.Span})
		case "if":
			var raw struct {
				Expr       json.RawMessage   `json:"expr"`
				Statements []json.RawMessage `json:"statements"`
				Span       Span              `json:"span"`
			}
			if err := json.Unmarshal(m, &raw); err != nil {
				return nil, fmt.Errorf("decoding conditional: %w", err)
			}
			expr, err := DecodeExpr(raw.Expr)
			if err != nil {
				return nil, err
			}
			body, err := decodeStatements(raw.Statements)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, &ConditionalStatement{Expr: expr, Statements: body, Span: raw.Span})
		default:
			return nil, fmt.Errorf("unknown workflow statement kind %q", kind)
		}
	}
	return stmts, nil
}

func kindOf(data json.RawMessage) (string, error) {
	var envelope struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("decoding node envelope: %w", err)
	}
	return envelope.Kind, nil
}

// DecodeExpr decodes a single expression envelope.
func DecodeExpr(data json.RawMessage) (Expr, error) {
	kind, err := kindOf(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "bool":
		var e LiteralBool
		return &e, json.Unmarshal(data, &e)
	case "int":
		var e LiteralInt
		return &e, json.Unmarshal(data, &e)
	case "float":
		var e LiteralFloat
		return &e, json.Unmarshal(data, &e)
	case "none":
		var e LiteralNone
		return &e, json.Unmarshal(data, &e)
	case "name":
		var e NameRef
		return &e, json.Unmarshal(data, &e)
	case "string":
		return decodeString(data)
	case "array":
		var raw struct {
			Elements []json.RawMessage `json:"elements"`
			Span     Span              `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		e := &LiteralArray{Span: raw.Span}
		for _, m := range raw.Elements {
			el, err := DecodeExpr(m)
			if err != nil {
				return nil, err
			}
			e.Elements = append(e.Elements, el)
		}
		return e, nil
	case "pair":
		var raw struct {
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
			Span  Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		left, err := DecodeExpr(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := DecodeExpr(raw.Right)
		if err != nil {
			return nil, err
		}
		return &LiteralPair{Left: left, Right: right, Span: raw.Span}, nil
	case "map":
		var raw struct {
			Items []struct {
				Key   json.RawMessage `json:"key"`
				Value json.RawMessage `json:"value"`
				Span  Span            `json:"span"`
			} `json:"items"`
			Span Span `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		e := &LiteralMap{Span: raw.Span}
		for _, item := range raw.Items {
			k, err := DecodeExpr(item.Key)
			if err != nil {
				return nil, err
			}
			v, err := DecodeExpr(item.Value)
			if err != nil {
				return nil, err
			}
			e.Items = append(e.Items, &MapItem{Key: k, Value: v, Span: item.Span})
		}
		return e, nil
	case "object", "struct":
		var raw struct {
			Name  Ident `json:"structName"`
			Items []struct {
				Name  Ident           `json:"name"`
				Value json.RawMessage `json:"value"`
				Span  Span            `json:"span"`
			} `json:"items"`
			Span Span `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		var items []*ObjectItem
		for _, item := range raw.Items {
			v, err := DecodeExpr(item.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, &ObjectItem{Name: item.Name, Value: v, Span: item.Span})
		}
		if kind == "object" {
			return &LiteralObject{Items: items, Span: raw.Span}, nil
		}
		return &LiteralStruct{Name: raw.Name, Items: items, Span: raw.Span}, nil
	case "if":
		var raw struct {
			Cond  json.RawMessage `json:"cond"`
			True  json.RawMessage `json:"trueExpr"`
			False json.RawMessage `json:"falseExpr"`
			Span  Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		cond, err := DecodeExpr(raw.Cond)
		if err != nil {
			return nil, err
		}
		trueExpr, err := DecodeExpr(raw.True)
		if err != nil {
			return nil, err
		}
		falseExpr, err := DecodeExpr(raw.False)
		if err != nil {
			return nil, err
		}
		return &IfExpr{Cond: cond, True: trueExpr, False: falseExpr, Span: raw.Span}, nil
	case "unary":
		var raw struct {
			Op      UnaryOp         `json:"op"`
			Operand json.RawMessage `json:"operand"`
			Span    Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		operand, err := DecodeExpr(raw.Operand)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: raw.Op, Operand: operand, Span: raw.Span}, nil
	case "binary":
		var raw struct {
			Op    BinaryOp        `json:"op"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
			Span  Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		left, err := DecodeExpr(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := DecodeExpr(raw.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: raw.Op, Left: left, Right: right, Span: raw.Span}, nil
	case "index":
		var raw struct {
			Target json.RawMessage `json:"target"`
			Index  json.RawMessage `json:"index"`
			Span   Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		target, err := DecodeExpr(raw.Target)
		if err != nil {
			return nil, err
		}
		index, err := DecodeExpr(raw.Index)
		if err != nil {
			return nil, err
		}
		return &IndexExpr{Target: target, Index: index, Span: raw.Span}, nil
	case "access":
		var raw struct {
			Target json.RawMessage `json:"target"`
			Member Ident           `json:"member"`
			Span   Span            `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		target, err := DecodeExpr(raw.Target)
		if err != nil {
			return nil, err
		}
		return &AccessExpr{Target: target, Member: raw.Member, Span: raw.Span}, nil
	case "apply":
		var raw struct {
			Target Ident             `json:"callTarget"`
			Args   []json.RawMessage `json:"args"`
			Span   Span              `json:"span"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		e := &CallExpr{Target: raw.Target, Span: raw.Span}
		for _, m := range raw.Args {
			arg, err := DecodeExpr(m)
			if err != nil {
				return nil, err
			}
			e.Args = append(e.Args, arg)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", kind)
	}
}

func decodeString(data json.RawMessage) (*LiteralString, error) {
	var raw struct {
		Parts []json.RawMessage `json:"parts"`
		Span  Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	s := &LiteralString{Span: raw.Span}
	for _, m := range raw.Parts {
		kind, err := kindOf(m)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "text":
			var t StringText
			if err := json.Unmarshal(m, &t); err != nil {
				return nil, err
			}
			s.Parts = append(s.Parts, &t)
		case "placeholder":
			p, err := decodePlaceholder(m)
			if err != nil {
				return nil, err
			}
			s.Parts = append(s.Parts, p)
		default:
			return nil, fmt.Errorf("unknown string part kind %q", kind)
		}
	}
	return s, nil
}

func decodePlaceholder(data json.RawMessage) (*Placeholder, error) {
	var raw struct {
		Expr    json.RawMessage   `json:"expr"`
		Options []json.RawMessage `json:"options"`
		Span    Span              `json:"span"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	expr, err := DecodeExpr(raw.Expr)
	if err != nil {
		return nil, err
	}
	p := &Placeholder{Expr: expr, Span: raw.Span}
	for _, m := range raw.Options {
		kind, err := kindOf(m)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "sep":
			var o SepOption
			if err := json.Unmarshal(m, &o); err != nil {
				return nil, err
			}
			p.Options = append(p.Options, &o)
		case "default":
			var raw struct {
				Value json.RawMessage `json:"value"`
				Span  Span            `json:"span"`
			}
			if err := json.Unmarshal(m, &raw); err != nil {
				return nil, err
			}
			value, err := DecodeExpr(raw.Value)
			if err != nil {
				return nil, err
			}
			p.Options = append(p.Options, &DefaultOption{Value: value, Span: raw.Span})
		case "truefalse":
			var o TrueFalseOption
			if err := json.Unmarshal(m, &o); err != nil {
				return nil, err
			}
			p.Options = append(p.Options, &o)
		default:
			return nil, fmt.Errorf("unknown placeholder option kind %q", kind)
		}
	}
	return p, nil
}
