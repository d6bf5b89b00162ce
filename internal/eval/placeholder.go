package eval

import (
	"bytes"
	"context"
	"strings"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/types"
)

func (e *Evaluator) evalString(ctx context.Context, expr *ast.LiteralString) (Value, error) {
	var buf bytes.Buffer
	for _, part := range expr.Parts {
		switch part := part.(type) {
		case *ast.StringText:
			buf.WriteString(part.Value)
		case *ast.Placeholder:
			if err := e.expandPlaceholder(ctx, part, &buf); err != nil {
				return nil, err
			}
		}
	}
	return String(buf.String()), nil
}

// EvalCommand assembles a task command string from text parts and
// expanded placeholders. Heredoc commands strip the common leading
// whitespace of their lines.
func (e *Evaluator) EvalCommand(ctx context.Context, section *ast.CommandSection) (string, error) {
	var buf bytes.Buffer
	for _, part := range section.Parts {
		switch part := part.(type) {
		case *ast.CommandText:
			buf.WriteString(part.Value)
		case *ast.Placeholder:
			if err := e.expandPlaceholder(ctx, part, &buf); err != nil {
				return "", err
			}
		}
	}
	command := buf.String()
	if section.Heredoc {
		command = StripCommonWhitespace(command)
	}
	return command, nil
}

// expandPlaceholder writes a placeholder's expansion into the buffer.
// On an error, if any sub-expression evaluated to None while the
// placeholder was active, the buffer is truncated to the placeholder's
// start and the error is suppressed in favor of the empty expansion.
func (e *Evaluator) expandPlaceholder(ctx context.Context, p *ast.Placeholder, buf *bytes.Buffer) error {
	start := buf.Len()
	saved := e.sawNone
	e.placeholderDepth++
	e.sawNone = false

	err := e.expandInto(ctx, p, buf)
	if err != nil && e.sawNone {
		buf.Truncate(start)
		err = nil
	}

	e.placeholderDepth--
	e.sawNone = saved
	return err
}

func (e *Evaluator) expandInto(ctx context.Context, p *ast.Placeholder, buf *bytes.Buffer) error {
	v, err := e.Eval(ctx, p.Expr)
	if err != nil {
		return err
	}

	for _, opt := range p.Options {
		switch opt := opt.(type) {
		case *ast.SepOption:
			if IsNone(v) {
				return nil
			}
			arr, ok := v.(Array)
			if !ok {
				return NewError(diagnostics.InvalidPlaceholderOption("sep", v.Type(), p.Expr.Pos()))
			}
			for i, el := range arr.Elements {
				if i > 0 {
					buf.WriteString(opt.Separator)
				}
				buf.WriteString(e.rawMapped(el))
			}
			return nil
		case *ast.TrueFalseOption:
			if IsNone(v) {
				return nil
			}
			b, ok := v.(Boolean)
			if !ok {
				return NewError(diagnostics.InvalidPlaceholderOption("true/false", v.Type(), p.Expr.Pos()))
			}
			if bool(b) {
				buf.WriteString(opt.True)
			} else {
				buf.WriteString(opt.False)
			}
			return nil
		case *ast.DefaultOption:
			if IsNone(v) {
				d, err := e.Eval(ctx, opt.Value)
				if err != nil {
					return err
				}
				buf.WriteString(e.rawMapped(d))
				return nil
			}
		}
	}

	// A placeholder that evaluates to None elides to the empty string.
	if IsNone(v) {
		return nil
	}
	switch v.(type) {
	case Boolean, Int, Float, String, File, Directory:
		buf.WriteString(e.rawMapped(v))
		return nil
	default:
		return NewError(diagnostics.CannotCoerce(v.Type(), types.String, p.Expr.Pos()))
	}
}

// rawMapped renders a value for interpolation, rewriting file and
// directory paths into the guest namespace when a mapper is active.
func (e *Evaluator) rawMapped(v Value) string {
	if e.mapper != nil {
		switch v := v.(type) {
		case File:
			if guest, ok := e.mapper(string(v)); ok {
				return guest
			}
		case Directory:
			if guest, ok := e.mapper(string(v)); ok {
				return guest
			}
		}
	}
	return Raw(v)
}

// StripCommonWhitespace removes the common leading whitespace of every
// non-blank line, the heredoc command form.
func StripCommonWhitespace(s string) string {
	lines := strings.Split(s, "\n")

	common := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if common < 0 || indent < common {
			common = indent
		}
	}
	if common <= 0 {
		return strings.TrimPrefix(strings.TrimSuffix(s, "\n"), "\n")
	}

	for i, line := range lines {
		if len(line) >= common && strings.TrimLeft(line[:common], " \t") == "" {
			lines[i] = line[common:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimPrefix(out, "\n")
	return strings.TrimSuffix(out, "\n")
}
