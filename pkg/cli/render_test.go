package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/funvibe/wdlx/internal/ast"
	"github.com/funvibe/wdlx/internal/diagnostics"
)

func TestRenderDiagnostics(t *testing.T) {
	diags := []*diagnostics.Diagnostic{
		diagnostics.UnknownName("x", ast.Span{Start: 42, End: 43}),
		diagnostics.UnusedImport("lib", ast.Span{Start: 7, End: 10}),
	}

	var buf bytes.Buffer
	RenderDiagnostics(&buf, "mem://wdl/a.wdl", diags)
	out := buf.String()

	if !strings.Contains(out, "error: unknown name `x`") {
		t.Errorf("output missing the error line: %q", out)
	}
	if !strings.Contains(out, "warning: unused import namespace `lib`") {
		t.Errorf("output missing the warning line: %q", out)
	}
	if !strings.Contains(out, "mem://wdl/a.wdl:42") {
		t.Errorf("output missing the location: %q", out)
	}
	if !strings.Contains(out, "[UnusedImport]") {
		t.Errorf("output missing the rule id: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("a non-terminal writer should not receive color codes")
	}
}
