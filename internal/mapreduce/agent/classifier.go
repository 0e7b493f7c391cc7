// Package agent runs one work item's command sequence — shell and
// claude steps — inside its assigned worktree, interpolating variables
// before each command and capturing output, commits, and modified files
// into an AgentResult.
//
// Grounded on original_source/src/abstractions/claude.rs for the opaque
// Claude-CLI abstraction (an interface with one real subprocess
// implementation and one fake for tests) and
// original_source/src/cook/retry.rs for the transient-error substring
// classifier. Command execution itself follows the teacher's
// subprocess.Runner injection (internal/mapreduce/subprocess), the same
// shape as pkg/tools/file_writer.go's exec.CommandContext /
// stdout-stderr-capture / ctx.Err() style.
package agent

import "strings"

// transientPatterns is the exact substring list from retry.rs's
// is_transient_error, carried verbatim (spec §4.7).
var transientPatterns = []string{
	"rate limit",
	"timeout",
	"connection refused",
	"temporary failure",
	"network",
	"503",
	"429",
	"could not connect",
	"broken pipe",
}

// IsTransient reports whether stderr matches one of the known
// transient-failure substrings, case-insensitively.
func IsTransient(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
