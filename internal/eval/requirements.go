package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/wdlx/internal/backend"
)

// convertRequirements translates evaluated requirement values into the
// backend's representation.
func convertRequirements(items map[string]Value) (*backend.Requirements, error) {
	req := &backend.Requirements{}
	for name, v := range items {
		switch name {
		case "container", "docker":
			switch v := v.(type) {
			case Array:
				for _, el := range v.Elements {
					req.Container = append(req.Container, Raw(el))
				}
			default:
				req.Container = []string{Raw(v)}
			}
		case "cpu":
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("requirement `cpu` must be numeric")
			}
			req.CPU = f
		case "memory":
			bytes, err := parseMemory(v)
			if err != nil {
				return nil, err
			}
			req.Memory = bytes
		case "disks":
			switch v := v.(type) {
			case Array:
				for _, el := range v.Elements {
					req.Disks = append(req.Disks, Raw(el))
				}
			default:
				req.Disks = []string{Raw(v)}
			}
		case "gpu":
			if b, ok := v.(Boolean); ok {
				req.GPU = bool(b)
			}
		case "fpga":
			if b, ok := v.(Boolean); ok {
				req.FPGA = bool(b)
			}
		case "max_retries", "maxRetries":
			if n, ok := v.(Int); ok {
				req.MaxRetries = int(n)
			}
		case "return_codes", "returnCodes":
			switch v := v.(type) {
			case Int:
				req.ReturnCodes = []int{int(v)}
			case String:
				if string(v) == "*" {
					req.AcceptAllReturnCodes = true
				} else {
					return nil, fmt.Errorf("requirement `return_codes` string must be `*`")
				}
			case Array:
				for _, el := range v.Elements {
					if n, ok := el.(Int); ok {
						req.ReturnCodes = append(req.ReturnCodes, int(n))
					}
				}
			}
		}
	}
	return req, nil
}

// convertHints flattens evaluated hints to strings for the backend.
func convertHints(items map[string]Value) backend.Hints {
	hints := make(backend.Hints, len(items))
	for name, v := range items {
		hints[name] = Raw(v)
	}
	return hints
}

// parseMemory accepts an Int byte count or a String with a storage unit
// suffix such as "2 GiB".
func parseMemory(v Value) (int64, error) {
	switch v := v.(type) {
	case Int:
		return int64(v), nil
	case String:
		s := strings.TrimSpace(string(v))
		split := len(s)
		for split > 0 && !isDigit(s[split-1]) {
			split--
		}
		number := strings.TrimSpace(s[:split])
		unit := strings.TrimSpace(s[split:])
		n, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid memory value `%s`", s)
		}
		multiplier := 1.0
		if unit != "" {
			m, ok := storageUnits[unit]
			if !ok {
				return 0, fmt.Errorf("invalid storage unit `%s`", unit)
			}
			multiplier = m
		}
		return int64(n * multiplier), nil
	default:
		return 0, fmt.Errorf("requirement `memory` must be an Int or String")
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// splitRuntimeItems separates a pre-1.2 runtime section's entries into
// requirements and hints by recognized name.
func splitRuntimeItems(items map[string]Value) (requirements, hints map[string]Value) {
	requirements = make(map[string]Value)
	hints = make(map[string]Value)
	for name, v := range items {
		switch name {
		case "container", "docker", "cpu", "memory", "disks", "gpu", "fpga",
			"max_retries", "maxRetries", "return_codes", "returnCodes":
			requirements[name] = v
		default:
			hints[name] = v
		}
	}
	return requirements, hints
}
