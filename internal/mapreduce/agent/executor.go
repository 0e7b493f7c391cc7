package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// StepKind distinguishes the two command types a workflow step may be
// (spec §4.7).
type StepKind string

const (
	StepShell  StepKind = "shell"
	StepClaude StepKind = "claude"
)

// Step is one command in an agent's per-item sequence, as declared in
// the workflow YAML (already parsed; Command/Prompt text may still
// contain ${...}/$... references resolved at execution time).
type Step struct {
	Kind      StepKind
	Command   string // shell command, or claude prompt
	Timeout   time.Duration
	CaptureAs string // bindings key to store the capture result under, if any
	Capture   *variables.CaptureSpec
	OnFailure *Step
}

// Executor runs a work item's step sequence inside its worktree.
type Executor struct {
	runner subprocess.Runner
	claude ClaudeClient
}

// NewExecutor builds an Executor.
func NewExecutor(runner subprocess.Runner, claude ClaudeClient) *Executor {
	return &Executor{runner: runner, claude: claude}
}

// Run executes steps sequentially inside dir, interpolating bindings
// before each command. It returns the terminal AgentResult plus the
// bindings accumulated along the way, so the caller (the agent pool)
// can fold captured values back into the coordinator's variable state.
func (e *Executor) Run(ctx context.Context, item model.WorkItem, dir string, steps []Step, bindings variables.Bindings) (model.AgentResult, variables.Bindings, error) {
	start := time.Now()
	bindings = cloneBindings(bindings)
	result := model.AgentResult{ItemID: item.ID, WorktreePath: dir}
	var lastOutput string

	startCommit, _ := gitRevParseHead(ctx, e.runner, dir)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Status = model.AgentCancelled
			result.Error = err.Error()
			result.Duration = time.Since(start)
			return result, bindings, nil
		}

		outcome, runErr := e.runStep(ctx, dir, step, bindings)
		if runErr != nil {
			result.Duration = time.Since(start)
			return result, bindings, fmt.Errorf("run step %d: %w", i, runErr)
		}

		bindings["shell.output"] = outcome.output
		bindings["shell.exit_code"] = fmt.Sprintf("%d", outcome.exitCode)
		bindings["shell.stderr"] = outcome.stderr
		lastOutput = outcome.output

		if step.CaptureAs != "" && step.Capture != nil {
			captured, err := variables.Capture(outcome.output, *step.Capture)
			if err != nil {
				result.Status = model.AgentFailed
				result.Error = err.Error()
				result.Duration = time.Since(start)
				return result, bindings, nil
			}
			bindings[step.CaptureAs] = captured
		}

		if outcome.succeeded {
			continue
		}

		// Non-zero exit / non-success status: on_failure is a recovery
		// command. If it too fails, the step (and the item) fails; if it
		// succeeds, its output supersedes the original failure and
		// execution continues to the next step (spec §4.7 design
		// decision, documented in DESIGN.md's agent entry).
		if step.OnFailure != nil {
			recovery, recErr := e.runStep(ctx, dir, *step.OnFailure, bindings)
			if recErr != nil {
				result.Duration = time.Since(start)
				return result, bindings, fmt.Errorf("run on_failure for step %d: %w", i, recErr)
			}
			if recovery.succeeded {
				bindings["shell.output"] = recovery.output
				bindings["shell.exit_code"] = fmt.Sprintf("%d", recovery.exitCode)
				bindings["shell.stderr"] = recovery.stderr
				lastOutput = recovery.output
				continue
			}
			result.Status = model.AgentFailed
			result.Error = fmt.Sprintf("step %d failed (%s), on_failure also failed (%s)", i, outcome.stderr, recovery.stderr)
			result.Duration = time.Since(start)
			return result, bindings, nil
		}

		result.Status = model.AgentFailed
		result.Error = outcome.stderr
		result.Duration = time.Since(start)
		return result, bindings, nil
	}

	commits, err := gitCommitsSince(ctx, e.runner, dir, startCommit)
	if err == nil {
		result.Commits = commits
	}
	files, err := gitFilesChangedSince(ctx, e.runner, dir, startCommit)
	if err == nil {
		result.FilesModified = files
	}

	result.Status = model.AgentSuccess
	result.Output = lastOutput
	result.Duration = time.Since(start)
	return result, bindings, nil
}

type stepOutcome struct {
	output    string
	stderr    string
	exitCode  int
	succeeded bool
}

func (e *Executor) runStep(ctx context.Context, dir string, step Step, bindings variables.Bindings) (stepOutcome, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	switch step.Kind {
	case StepShell:
		command := variables.Expand(step.Command, bindings)
		res, err := subprocess.Shell(runCtx, e.runner, dir, nil, command)
		if err != nil {
			if runCtx.Err() != nil {
				return stepOutcome{}, fmt.Errorf("%w: %s", mrerrors.ErrTimeout, err)
			}
			return stepOutcome{}, err
		}
		return stepOutcome{output: res.Stdout, stderr: res.Stderr, exitCode: res.ExitCode, succeeded: res.ExitCode == 0}, nil
	case StepClaude:
		prompt := variables.Expand(step.Command, bindings)
		res, err := e.claude.Execute(runCtx, dir, prompt)
		if err != nil {
			if runCtx.Err() != nil {
				return stepOutcome{}, fmt.Errorf("%w: %s", mrerrors.ErrTimeout, err)
			}
			return stepOutcome{}, err
		}
		exitCode := 0
		if !res.Success {
			exitCode = 1
		}
		return stepOutcome{output: res.Output, stderr: res.Stderr, exitCode: exitCode, succeeded: res.Success}, nil
	default:
		return stepOutcome{}, fmt.Errorf("%w: unknown step kind %q", mrerrors.ErrConfiguration, step.Kind)
	}
}

func cloneBindings(b variables.Bindings) variables.Bindings {
	out := make(variables.Bindings, len(b)+3)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// gitRevParseHead records the worktree's commit before any step runs,
// so commits/files-modified can be scoped to this item's own work
// rather than the whole worktree history. Best-effort: an empty string
// (e.g. an unborn branch) just means the range below falls back to all
// of HEAD's ancestry.
func gitRevParseHead(ctx context.Context, runner subprocess.Runner, dir string) (string, error) {
	res, err := runner.Run(ctx, dir, nil, "git", "rev-parse", "HEAD")
	if err != nil || res.ExitCode != 0 {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func gitCommitsSince(ctx context.Context, runner subprocess.Runner, dir, since string) ([]string, error) {
	rangeArg := "HEAD"
	if since != "" {
		rangeArg = since + "..HEAD"
	}
	res, err := runner.Run(ctx, dir, nil, "git", "log", "--format=%H", rangeArg)
	if err != nil || res.ExitCode != 0 {
		return nil, err
	}
	var commits []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			commits = append(commits, line)
		}
	}
	return commits, nil
}

func gitFilesChangedSince(ctx context.Context, runner subprocess.Runner, dir, since string) ([]string, error) {
	if since == "" {
		return nil, nil
	}
	res, err := runner.Run(ctx, dir, nil, "git", "diff", "--name-only", since, "HEAD")
	if err != nil || res.ExitCode != 0 {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
