package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
)

// ClaudeResult is the outcome of one Claude CLI invocation.
type ClaudeResult struct {
	Output   string
	Stderr   string
	Success  bool
	Duration time.Duration
}

// ClaudeClient is the opaque LLM-CLI abstraction: one real subprocess
// implementation, one fake for tests (ClaudeFake), mirroring
// original_source/src/abstractions/claude.rs's ClaudeClient trait.
type ClaudeClient interface {
	Execute(ctx context.Context, dir string, prompt string) (ClaudeResult, error)
}

// RealClaudeClient shells out to the `claude` CLI via an injected
// subprocess.Runner.
type RealClaudeClient struct {
	runner subprocess.Runner
}

// NewRealClaudeClient builds a RealClaudeClient bound to runner.
func NewRealClaudeClient(runner subprocess.Runner) RealClaudeClient {
	return RealClaudeClient{runner: runner}
}

// Execute runs `claude -p <prompt>` inside dir.
func (c RealClaudeClient) Execute(ctx context.Context, dir string, prompt string) (ClaudeResult, error) {
	res, err := c.runner.Run(ctx, dir, nil, "claude", "-p", prompt)
	if err != nil {
		return ClaudeResult{}, fmt.Errorf("execute claude command: %w", err)
	}
	return ClaudeResult{
		Output:   res.Stdout,
		Stderr:   res.Stderr,
		Success:  res.ExitCode == 0,
		Duration: res.Duration,
	}, nil
}

// ClaudeFake is a scriptable ClaudeClient for tests, mirroring
// original_source/src/abstractions/claude.rs's MockClaudeClient:
// a queue of canned responses consumed in order, falling back to the
// Default response once exhausted.
type ClaudeFake struct {
	Responses []ClaudeResult
	Prompts   []string
	Default   ClaudeResult
}

// Execute returns the next queued response, or Default once the queue
// is drained.
func (f *ClaudeFake) Execute(_ context.Context, _ string, prompt string) (ClaudeResult, error) {
	f.Prompts = append(f.Prompts, prompt)
	if len(f.Responses) == 0 {
		return f.Default, nil
	}
	next := f.Responses[0]
	f.Responses = f.Responses[1:]
	return next, nil
}
