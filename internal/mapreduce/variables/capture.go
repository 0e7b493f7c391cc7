package variables

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// CaptureKind selects how a step's capture value is derived from its
// raw output (spec §4.6 "Capture patterns").
type CaptureKind string

const (
	CaptureRegex    CaptureKind = "regex"
	CaptureJSONPath CaptureKind = "json_path"
	CaptureLine     CaptureKind = "line"
)

// CaptureSpec is one step's capture directive.
type CaptureSpec struct {
	Kind    CaptureKind
	Pattern string // regex pattern, or dotted JSON path
	Line    int    // 0-indexed line number, for CaptureLine
}

// Capture derives the value a step's capture directive produces from
// its raw output.
func Capture(output string, spec CaptureSpec) (string, error) {
	switch spec.Kind {
	case CaptureRegex:
		return captureRegex(output, spec.Pattern)
	case CaptureJSONPath:
		return captureJSONPath(output, spec.Pattern)
	case CaptureLine:
		return captureLine(output, spec.Line)
	default:
		return "", fmt.Errorf("%w: unknown capture kind %q", mrerrors.ErrConfiguration, spec.Kind)
	}
}

// captureRegex requires exactly one capture group and stores its first
// match.
func captureRegex(output, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: compile capture regex %q: %s", mrerrors.ErrConfiguration, pattern, err)
	}
	if re.NumSubexp() != 1 {
		return "", fmt.Errorf("%w: capture regex %q must have exactly one group", mrerrors.ErrConfiguration, pattern)
	}
	m := re.FindStringSubmatch(output)
	if m == nil {
		return "", nil
	}
	return m[1], nil
}

// captureJSONPath navigates a dotted path ("result.data.name") into
// output (parsed as JSON) and stringifies the leaf.
func captureJSONPath(output, path string) (string, error) {
	var root any
	if err := json.Unmarshal([]byte(output), &root); err != nil {
		return "", fmt.Errorf("%w: capture output is not valid JSON: %s", mrerrors.ErrConfiguration, err)
	}
	cur := root
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return "", fmt.Errorf("%w: capture json_path %q does not resolve against output", mrerrors.ErrConfiguration, path)
			}
			v, ok := m[seg]
			if !ok {
				return "", fmt.Errorf("%w: capture json_path %q does not resolve against output", mrerrors.ErrConfiguration, path)
			}
			cur = v
		}
	}
	return stringify(cur), nil
}

// captureLine returns the 0-indexed line of output verbatim.
func captureLine(output string, index int) (string, error) {
	lines := strings.Split(output, "\n")
	if index < 0 || index >= len(lines) {
		return "", fmt.Errorf("%w: capture line index %d out of range (%d lines)", mrerrors.ErrConfiguration, index, len(lines))
	}
	return lines[index], nil
}
