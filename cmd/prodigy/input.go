package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// resolveMapInput turns a workflow's map.input field into the raw
// document the pipeline parses. input is one of three forms: a path to
// an existing file, a "shell:<command>" directive whose stdout becomes
// the document, or a literal JSON string.
//
// There's no single source in the corpus for this exact three-way
// resolution (see DESIGN.md); it follows the same auto-detection shape
// original_source/src/cook/input/standard_input.rs uses for picking a
// data format, applied here to picking a data source instead.
func resolveMapInput(ctx context.Context, runner subprocess.Runner, repoPath, input string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(input, "shell:"); ok {
		res, err := subprocess.Shell(ctx, runner, repoPath, nil, strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("run map.input shell command: %w", err)
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("%w: map.input shell command failed (exit %d): %s", mrerrors.ErrConfiguration, res.ExitCode, res.Stderr)
		}
		return []byte(res.Stdout), nil
	}

	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}

	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed), nil
	}

	return nil, fmt.Errorf("%w: map.input %q is neither a readable file, a shell: directive, nor a literal JSON document", mrerrors.ErrConfiguration, input)
}
