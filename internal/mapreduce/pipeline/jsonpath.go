// Package pipeline turns an input document into an ordered list of work
// items: JSONPath-subset extraction, filter-expression evaluation,
// multi-key stable sort, distinct-by-key dedup, and offset/limit.
//
// No direct teacher analog (the teacher has no data pipeline of its
// own); grounded on original_source/src/cook/input/standard_input.rs for
// the overall extract/filter/sort/limit shape and
// original_source/src/cli/expression_builder.rs for the filter/sort
// expression surface syntax, structured as a small recursive-descent
// parser in the teacher's house style of short, single-purpose parsing
// functions (see pkg/config/config_expansion.go).
package pipeline

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// pathOp is one step of a parsed JSONPath expression: either a field
// access (".name") or a wildcard expansion ("[*]").
type pathOp struct {
	field    string
	wildcard bool
}

// parseJSONPath parses the supported subset: a leading "$", then any
// number of ".field" and "[*]" segments (e.g. "$.items[*].name").
func parseJSONPath(path string) ([]pathOp, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("%w: json_path must start with '$': %q", mrerrors.ErrConfiguration, path)
	}
	rest := path[1:]

	var ops []pathOp
	for len(rest) > 0 {
		switch {
		case rest[0] == '.':
			rest = rest[1:]
			i := 0
			for i < len(rest) && isIdentChar(rest[i]) {
				i++
			}
			if i == 0 {
				return nil, fmt.Errorf("%w: expected field name after '.' in json_path %q", mrerrors.ErrConfiguration, path)
			}
			ops = append(ops, pathOp{field: rest[:i]})
			rest = rest[i:]
		case strings.HasPrefix(rest, "[*]"):
			ops = append(ops, pathOp{wildcard: true})
			rest = rest[3:]
		default:
			return nil, fmt.Errorf("%w: unsupported json_path segment at %q", mrerrors.ErrConfiguration, rest)
		}
	}
	return ops, nil
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// extractJSONPath applies ops to root and returns the resulting list.
// Field access on a non-object, or wildcard expansion of a non-array,
// drops that branch rather than erroring, mirroring the "best effort"
// extraction standard_input.rs uses for heterogeneous documents.
func extractJSONPath(root any, ops []pathOp) []any {
	current := []any{root}
	for _, op := range ops {
		var next []any
		for _, v := range current {
			if op.wildcard {
				if arr, ok := v.([]any); ok {
					next = append(next, arr...)
				}
				continue
			}
			if m, ok := v.(map[string]any); ok {
				if val, ok := m[op.field]; ok {
					next = append(next, val)
				}
			}
		}
		current = next
	}
	return current
}

// lookupFieldPath resolves a dotted field path ("user.name") against
// item, used by both the filter and sort stages. Returns (value, true)
// when every segment resolved, or (nil, false) when the path is absent
// or traverses a non-object.
func lookupFieldPath(item any, path string) (any, bool) {
	cur := item
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
