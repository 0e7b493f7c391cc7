// Package variables implements ${name} / $name template expansion and
// the capture patterns (regex, JSON path, line index) used to populate
// step outputs back into the binding set.
//
// Grounded on
// original_source/src/cook/workflow/pure/variable_expansion.rs: braced
// ${name} forms are expanded first via direct string replacement (more
// specific), then bare $name forms via a manual word-boundary scan so
// "$name_with_suffix" never matches "$name". The design note in
// spec.md §9 calls for a precompiled regexp scanner for the bare form
// instead of the original's per-character walk; braced expansion stays
// a direct replace either way since it has an unambiguous terminator.
package variables

import (
	"fmt"
	"regexp"
	"strings"
)

// bareVarPattern matches a leading '$' followed by an identifier. The
// identifier match is greedy, so it always runs to the word boundary
// and "$name_with_suffix" is looked up whole, never as "$name".
var bareVarPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

var bracedVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Bindings is a nested set of variable values. Leaves are typically
// strings, but any JSON-shaped value works since nested paths
// (${item.user.name}) navigate through map[string]any.
type Bindings map[string]any

// Resolve looks up a dotted path ("item.user.name") against b and
// stringifies the leaf. ok is false if any segment is absent or
// traverses a non-object.
func (b Bindings) Resolve(path string) (string, bool) {
	segments := strings.Split(path, ".")
	var cur any = map[string]any(b)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		v, ok := m[seg]
		if !ok {
			return "", false
		}
		cur = v
	}
	return stringify(cur), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Expand interpolates every ${name} and $name reference in template
// against b. Braced references expand first since they're unambiguous;
// unknown variables are left as literal text rather than erroring
// (spec §4.6: "never fails"). Expansion is pure and idempotent as long
// as the resolved values themselves contain no template syntax.
func Expand(template string, b Bindings) string {
	expanded := bracedVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := b.Resolve(name); ok {
			return v
		}
		return match
	})
	return expandBare(expanded, b)
}

// expandBare replaces $name forms. Bare references are flat (spec
// §4.6 — nested paths require the braced form); bareVarPattern only
// captures identifier characters, so a '.' never appears in a bare
// match's name to begin with.
func expandBare(template string, b Bindings) string {
	return bareVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1:]
		if v, ok := b.Resolve(name); ok {
			return v
		}
		return match
	})
}

// ExtractReferences returns every distinct variable name referenced by
// template across both forms, for dry-run variable-preview analysis.
func ExtractReferences(template string) []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}
	for _, m := range bracedVarPattern.FindAllStringSubmatch(template, -1) {
		add(m[1])
	}
	for _, m := range bareVarPattern.FindAllStringSubmatch(template, -1) {
		add(m[1])
	}
	return refs
}
