package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
)

func TestIsTransientMatchesKnownPatterns(t *testing.T) {
	assert.True(t, IsTransient("Error: rate limit exceeded"))
	assert.True(t, IsTransient("HTTP 503 Service Unavailable"))
	assert.True(t, IsTransient("connection REFUSED"))
	assert.False(t, IsTransient("syntax error: unexpected token"))
}

func TestExecutorRunSucceedsAndCapturesOutput(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	runner.On("sh -c", func(call subprocess.Call) (subprocess.Result, error) {
		return subprocess.Result{ExitCode: 0, Stdout: "hello world\n"}, nil
	})

	exec := NewExecutor(runner, &ClaudeFake{})
	steps := []Step{{Kind: StepShell, Command: "echo hello"}}

	result, bindings, err := exec.Run(context.Background(), model.WorkItem{ID: "item-1"}, "/work", steps, variables.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, model.AgentSuccess, result.Status)
	assert.Equal(t, "hello world\n", bindings["shell.output"])
}

func TestExecutorCapturesViaRegex(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	runner.On("sh -c", func(subprocess.Call) (subprocess.Result, error) {
		return subprocess.Result{ExitCode: 0, Stdout: "version: 9.9.9\n"}, nil
	})

	exec := NewExecutor(runner, &ClaudeFake{})
	steps := []Step{{
		Kind:      StepShell,
		Command:   "print-version",
		CaptureAs: "app_version",
		Capture:   &variables.CaptureSpec{Kind: variables.CaptureRegex, Pattern: `version: (\S+)`},
	}}

	_, bindings, err := exec.Run(context.Background(), model.WorkItem{ID: "item-1"}, "/work", steps, variables.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "9.9.9", bindings["app_version"])
}

func TestExecutorOnFailureRecoverySucceeds(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	calls := 0
	runner.On("sh -c", func(call subprocess.Call) (subprocess.Result, error) {
		calls++
		if calls == 1 {
			return subprocess.Result{ExitCode: 1, Stderr: "boom"}, nil
		}
		return subprocess.Result{ExitCode: 0, Stdout: "recovered"}, nil
	})

	exec := NewExecutor(runner, &ClaudeFake{})
	steps := []Step{{
		Kind:      StepShell,
		Command:   "might-fail",
		OnFailure: &Step{Kind: StepShell, Command: "recover"},
	}}

	result, bindings, err := exec.Run(context.Background(), model.WorkItem{ID: "item-1"}, "/work", steps, variables.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, model.AgentSuccess, result.Status)
	assert.Equal(t, "recovered", bindings["shell.output"])
}

func TestExecutorFailsWithoutOnFailure(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	runner.On("sh -c", func(subprocess.Call) (subprocess.Result, error) {
		return subprocess.Result{ExitCode: 1, Stderr: "nope"}, nil
	})

	exec := NewExecutor(runner, &ClaudeFake{})
	steps := []Step{{Kind: StepShell, Command: "fail-cmd"}}

	result, _, err := exec.Run(context.Background(), model.WorkItem{ID: "item-1"}, "/work", steps, variables.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, model.AgentFailed, result.Status)
	assert.Equal(t, "nope", result.Error)
}

func TestExecutorClaudeStepUsesClaudeClient(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	fake := &ClaudeFake{Responses: []ClaudeResult{{Output: "done", Success: true}}}
	exec := NewExecutor(runner, fake)

	steps := []Step{{Kind: StepClaude, Command: "fix the bug in ${item.id}"}}
	bindings := variables.Bindings{"item": map[string]any{"id": "42"}}

	result, _, err := exec.Run(context.Background(), model.WorkItem{ID: "item-1"}, "/work", steps, bindings)
	require.NoError(t, err)
	assert.Equal(t, model.AgentSuccess, result.Status)
	require.Len(t, fake.Prompts, 1)
	assert.Equal(t, "fix the bug in 42", fake.Prompts[0])
}

func TestExecutorRespectsCancellation(t *testing.T) {
	runner := subprocess.NewFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(runner, &ClaudeFake{})
	steps := []Step{{Kind: StepShell, Command: "echo hi"}}

	result, _, err := exec.Run(ctx, model.WorkItem{ID: "item-1"}, "/work", steps, variables.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, model.AgentCancelled, result.Status)
}
