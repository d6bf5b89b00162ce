package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/wdlx/internal/diagnostics"
	"github.com/funvibe/wdlx/internal/types"
)

func implStdout(c *callCtx) (Value, error) {
	if c.e.io == nil || c.e.io.StdoutPath == "" {
		return nil, c.failf("stdout is only available when evaluating task outputs")
	}
	return File(c.e.io.StdoutPath), nil
}

func implStderr(c *callCtx) (Value, error) {
	if c.e.io == nil || c.e.io.StderrPath == "" {
		return nil, c.failf("stderr is only available when evaluating task outputs")
	}
	return File(c.e.io.StderrPath), nil
}

func (c *callCtx) readFile(index int) ([]byte, error) {
	if c.e.io == nil {
		return nil, c.failf("file access is not available in this context")
	}
	data, err := c.e.io.Read(c.ctx, argString(c.args[index]))
	if err != nil {
		return nil, c.fail(err)
	}
	return data, nil
}

func (c *callCtx) writeFile(pattern string, data []byte) (Value, error) {
	if c.e.io == nil {
		return nil, c.failf("file access is not available in this context")
	}
	p, err := c.e.io.Write(pattern, data)
	if err != nil {
		return nil, c.fail(err)
	}
	return File(p), nil
}

// splitLines splits file content into lines, dropping each line's
// trailing carriage return and the final empty line produced by a
// trailing newline.
func splitLines(data []byte) []string {
	s := string(data)
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func implReadLines(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	lines := splitLines(data)
	out := make([]Value, len(lines))
	for i, line := range lines {
		out[i] = String(line)
	}
	return NewArray(types.String, out), nil
}

func implReadString(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSuffix(string(data), "\n")
	return String(strings.TrimSuffix(s, "\r")), nil
}

func implReadInt(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil, c.failf("file does not contain an integer: %v", err)
	}
	return Int(n), nil
}

func implReadFloat(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return nil, c.failf("file does not contain a float: %v", err)
	}
	return Float(f), nil
}

func implReadBoolean(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	}
	return nil, c.failf("file does not contain `true` or `false`")
}

func implReadJSON(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, c.failf("file does not contain valid JSON: %v", err)
	}
	return jsonToValue(raw)
}

func jsonToValue(raw any) (Value, error) {
	switch raw := raw.(type) {
	case nil:
		return None, nil
	case bool:
		return Boolean(raw), nil
	case string:
		return String(raw), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := raw.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON number `%s`", raw)
		}
		return Float(f), nil
	case []any:
		out := make([]Value, len(raw))
		var elemType types.Type = types.Union
		for i, el := range raw {
			v, err := jsonToValue(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
			if i == 0 {
				elemType = v.Type()
			} else if common, ok := types.CommonType(elemType, v.Type()); ok {
				elemType = common
			} else {
				elemType = types.Union
			}
		}
		return NewArray(elemType, out), nil
	case map[string]any:
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		members := make(map[string]Value, len(raw))
		for _, name := range names {
			v, err := jsonToValue(raw[name])
			if err != nil {
				return nil, err
			}
			members[name] = v
		}
		return NewObject(names, members), nil
	default:
		return nil, fmt.Errorf("unsupported JSON value")
	}
}

func implReadMap(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	var entries []MapEntry
	seen := make(map[string]bool)
	for _, line := range splitLines(data) {
		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			return nil, c.failf("line does not contain exactly two tab-delimited columns")
		}
		if seen[cols[0]] {
			return nil, c.failf("duplicate key `%s`", cols[0])
		}
		seen[cols[0]] = true
		entries = append(entries, MapEntry{Key: String(cols[0]), Value: String(cols[1])})
	}
	return NewMap(types.String, types.String, entries), nil
}

func implReadTSV(c *callCtx) (Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	lines := splitLines(data)

	// The one-argument overload returns the raw rows.
	if c.binding.Index == 0 {
		rows := make([]Value, len(lines))
		for i, line := range lines {
			cols := strings.Split(line, "\t")
			out := make([]Value, len(cols))
			for j, col := range cols {
				out[j] = String(col)
			}
			rows[i] = NewArray(types.String, out)
		}
		return NewArray(types.Array{Element: types.String}, rows), nil
	}

	var header []string
	rows := lines
	if bool(c.args[1].(Boolean)) {
		if len(lines) == 0 {
			return nil, c.failf("file is empty but a header row was expected")
		}
		header = strings.Split(lines[0], "\t")
		rows = lines[1:]
	}
	if len(c.args) == 3 {
		names := argArray(c.args[2])
		header = make([]string, len(names.Elements))
		for i, n := range names.Elements {
			header[i] = Raw(n)
		}
	}
	if header == nil {
		return nil, c.failf("field names are required when the file has no header row")
	}

	out := make([]Value, len(rows))
	for i, line := range rows {
		cols := strings.Split(line, "\t")
		if len(cols) != len(header) {
			return nil, c.failf("row has %d columns but %d were expected", len(cols), len(header))
		}
		members := make(map[string]Value, len(cols))
		for j, col := range cols {
			members[header[j]] = String(col)
		}
		out[i] = NewObject(append([]string(nil), header...), members)
	}
	return NewArray(types.Object, out), nil
}

func implReadObject(c *callCtx) (Value, error) {
	objects, err := readObjects(c)
	if err != nil {
		return nil, err
	}
	if len(objects) != 1 {
		return nil, c.failf("file must contain exactly one object")
	}
	return objects[0], nil
}

func implReadObjects(c *callCtx) (Value, error) {
	objects, err := readObjects(c)
	if err != nil {
		return nil, err
	}
	return NewArray(types.Object, objects), nil
}

func readObjects(c *callCtx) ([]Value, error) {
	data, err := c.readFile(0)
	if err != nil {
		return nil, err
	}
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, c.failf("file is missing an object header row")
	}
	header := strings.Split(lines[0], "\t")
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if seen[name] {
			return nil, c.failf("duplicate object member `%s`", name)
		}
		seen[name] = true
	}

	var objects []Value
	for _, line := range lines[1:] {
		cols := strings.Split(line, "\t")
		if len(cols) != len(header) {
			return nil, c.failf("row has %d columns but %d were expected", len(cols), len(header))
		}
		members := make(map[string]Value, len(cols))
		for i, col := range cols {
			members[header[i]] = String(col)
		}
		objects = append(objects, NewObject(append([]string(nil), header...), members))
	}
	return objects, nil
}

func implWriteLines(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	var buf bytes.Buffer
	for _, el := range arr.Elements {
		buf.WriteString(Raw(el))
		buf.WriteByte('\n')
	}
	return c.writeFile("lines*.txt", buf.Bytes())
}

func implWriteTSV(c *callCtx) (Value, error) {
	var buf bytes.Buffer
	if c.binding.Index == 1 {
		if bool(c.args[1].(Boolean)) {
			names := argArray(c.args[2])
			cols := make([]string, len(names.Elements))
			for i, n := range names.Elements {
				cols[i] = Raw(n)
			}
			buf.WriteString(strings.Join(cols, "\t"))
			buf.WriteByte('\n')
		}
	}
	for _, row := range argArray(c.args[0]).Elements {
		cols := argArray(row)
		parts := make([]string, len(cols.Elements))
		for i, col := range cols.Elements {
			s := Raw(col)
			if strings.ContainsRune(s, '\t') {
				return nil, c.failf("a value contains a tab character")
			}
			parts[i] = s
		}
		buf.WriteString(strings.Join(parts, "\t"))
		buf.WriteByte('\n')
	}
	return c.writeFile("tsv*.tsv", buf.Bytes())
}

func implWriteMap(c *callCtx) (Value, error) {
	m := c.args[0].(Map)
	var buf bytes.Buffer
	for _, e := range m.Entries {
		fmt.Fprintf(&buf, "%s\t%s\n", Raw(e.Key), Raw(e.Value))
	}
	return c.writeFile("map*.tsv", buf.Bytes())
}

func implWriteJSON(c *callCtx) (Value, error) {
	raw, err := valueToJSON(c.args[0])
	if err != nil {
		return nil, c.fail(err)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, c.fail(err)
	}
	return c.writeFile("json*.json", data)
}

func valueToJSON(v Value) (any, error) {
	switch v := v.(type) {
	case NoneValue:
		return nil, nil
	case Boolean:
		return bool(v), nil
	case Int:
		return int64(v), nil
	case Float:
		return float64(v), nil
	case String:
		return string(v), nil
	case File:
		return string(v), nil
	case Directory:
		return string(v), nil
	case Array:
		out := make([]any, len(v.Elements))
		for i, el := range v.Elements {
			raw, err := valueToJSON(el)
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	case Map:
		out := make(map[string]any, len(v.Entries))
		for _, e := range v.Entries {
			raw, err := valueToJSON(e.Value)
			if err != nil {
				return nil, err
			}
			out[Raw(e.Key)] = raw
		}
		return out, nil
	case Object:
		out := make(map[string]any, len(v.names))
		for _, name := range v.names {
			raw, err := valueToJSON(v.members[name])
			if err != nil {
				return nil, err
			}
			out[name] = raw
		}
		return out, nil
	case Struct:
		out := make(map[string]any, len(v.members))
		for name, member := range v.members {
			raw, err := valueToJSON(member)
			if err != nil {
				return nil, err
			}
			out[name] = raw
		}
		return out, nil
	default:
		return nil, fmt.Errorf("type `%s` cannot be serialized to JSON", v.Type())
	}
}

func implWriteObject(c *callCtx) (Value, error) {
	obj, err := asObjectValue(c.args[0])
	if err != nil {
		return nil, c.fail(err)
	}
	var buf bytes.Buffer
	writeObjectRows(&buf, []Object{obj})
	return c.writeFile("object*.tsv", buf.Bytes())
}

func implWriteObjects(c *callCtx) (Value, error) {
	arr := argArray(c.args[0])
	objects := make([]Object, len(arr.Elements))
	for i, el := range arr.Elements {
		obj, err := asObjectValue(el)
		if err != nil {
			return nil, c.fail(err)
		}
		if i > 0 && !sameNames(objects[0], obj) {
			return nil, c.failf("all objects must have identical member names")
		}
		objects[i] = obj
	}
	var buf bytes.Buffer
	writeObjectRows(&buf, objects)
	return c.writeFile("objects*.tsv", buf.Bytes())
}

func asObjectValue(v Value) (Object, error) {
	switch v := v.(type) {
	case Object:
		return v, nil
	case Struct:
		names := make([]string, 0, len(v.ty.Members))
		members := make(map[string]Value, len(v.ty.Members))
		for _, m := range v.ty.Members {
			names = append(names, m.Name)
			members[m.Name] = v.members[m.Name]
		}
		return NewObject(names, members), nil
	default:
		return Object{}, fmt.Errorf("type `%s` cannot be written as an object", v.Type())
	}
}

func sameNames(a, b Object) bool {
	if len(a.names) != len(b.names) {
		return false
	}
	for i, name := range a.names {
		if b.names[i] != name {
			return false
		}
	}
	return true
}

func writeObjectRows(buf *bytes.Buffer, objects []Object) {
	if len(objects) == 0 {
		return
	}
	buf.WriteString(strings.Join(objects[0].names, "\t"))
	buf.WriteByte('\n')
	for _, obj := range objects {
		cols := make([]string, len(obj.names))
		for i, name := range obj.names {
			cols[i] = Raw(obj.members[name])
		}
		buf.WriteString(strings.Join(cols, "\t"))
		buf.WriteByte('\n')
	}
}

func implGlob(c *callCtx) (Value, error) {
	if c.e.io == nil {
		return nil, c.failf("file access is not available in this context")
	}
	pattern := argString(c.args[0])
	matches, err := filepath.Glob(filepath.Join(c.e.io.WorkDir, pattern))
	if err != nil {
		return nil, NewError(diagnostics.InvalidGlob(err, c.expr.Args[0].Pos()))
	}
	sort.Strings(matches)
	out := make([]Value, len(matches))
	for i, m := range matches {
		out[i] = File(m)
	}
	return NewArray(types.File, out), nil
}

// storageUnits maps size() unit suffixes to divisors.
var storageUnits = map[string]float64{
	"B":   1,
	"K":   1e3,
	"KB":  1e3,
	"M":   1e6,
	"MB":  1e6,
	"G":   1e9,
	"GB":  1e9,
	"T":   1e12,
	"TB":  1e12,
	"Ki":  1 << 10,
	"KiB": 1 << 10,
	"Mi":  1 << 20,
	"MiB": 1 << 20,
	"Gi":  1 << 30,
	"GiB": 1 << 30,
	"Ti":  1 << 40,
	"TiB": 1 << 40,
}

func implSize(c *callCtx) (Value, error) {
	divisor := 1.0
	if len(c.args) == 2 {
		unit := argString(c.args[1])
		d, ok := storageUnits[unit]
		if !ok {
			return nil, NewError(diagnostics.InvalidStorageUnit(unit, c.expr.Args[1].Pos()))
		}
		divisor = d
	}
	total, err := c.sizeOf(c.args[0])
	if err != nil {
		return nil, err
	}
	return Float(total / divisor), nil
}

// sizeOf sums the content size of every file and directory embedded in
// a value; non-path primitives contribute nothing.
func (c *callCtx) sizeOf(v Value) (float64, error) {
	switch v := v.(type) {
	case File:
		return c.pathSize(string(v))
	case Directory:
		return c.pathSize(string(v))
	case Array:
		var total float64
		for _, el := range v.Elements {
			n, err := c.sizeOf(el)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case Pair:
		left, err := c.sizeOf(v.Left)
		if err != nil {
			return 0, err
		}
		right, err := c.sizeOf(v.Right)
		if err != nil {
			return 0, err
		}
		return left + right, nil
	case Map:
		var total float64
		for _, e := range v.Entries {
			n, err := c.sizeOf(e.Value)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case Object:
		var total float64
		for _, name := range v.names {
			n, err := c.sizeOf(v.members[name])
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case Struct:
		var total float64
		for _, member := range v.members {
			n, err := c.sizeOf(member)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	default:
		return 0, nil
	}
}

func (c *callCtx) pathSize(p string) (float64, error) {
	if c.e.io == nil {
		return 0, c.failf("file access is not available in this context")
	}
	n, err := c.e.io.Size(c.ctx, p)
	if err != nil {
		return 0, c.fail(err)
	}
	return float64(n), nil
}

func implBasename(c *callCtx) (Value, error) {
	base := path.Base(strings.ReplaceAll(argString(c.args[0]), "\\", "/"))
	if len(c.args) == 2 {
		base = strings.TrimSuffix(base, argString(c.args[1]))
	}
	return String(base), nil
}

func implJoinPaths(c *callCtx) (Value, error) {
	join := func(base string, parts []string) (Value, error) {
		joined := base
		for _, part := range parts {
			if path.IsAbs(part) || filepath.IsAbs(part) {
				return nil, c.failf("path component `%s` must be relative", part)
			}
			joined = path.Join(joined, part)
		}
		return File(joined), nil
	}

	switch c.binding.Index {
	case 0:
		return join(argString(c.args[0]), []string{argString(c.args[1])})
	case 1:
		arr := argArray(c.args[1])
		parts := make([]string, len(arr.Elements))
		for i, el := range arr.Elements {
			parts[i] = Raw(el)
		}
		return join(argString(c.args[0]), parts)
	default:
		arr := argArray(c.args[0])
		if len(arr.Elements) == 0 {
			return nil, c.failf("array must not be empty")
		}
		parts := make([]string, len(arr.Elements)-1)
		for i, el := range arr.Elements[1:] {
			parts[i] = Raw(el)
		}
		return join(Raw(arr.Elements[0]), parts)
	}
}
