package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/checkpoint"
	"github.com/kadirpekel/prodigy/internal/mapreduce/dlq"
	"github.com/kadirpekel/prodigy/internal/mapreduce/event"
	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
	"github.com/kadirpekel/prodigy/internal/mapreduce/resume"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/worktree"
)

func newHarness(t *testing.T) (storage.Layout, *subprocess.FakeRunner) {
	t.Helper()
	layout := storage.NewLayout(t.TempDir(), "repo")
	runner := subprocess.NewFakeRunner()
	return layout, runner
}

func TestCoordinatorRunsFullHappyPath(t *testing.T) {
	layout, runner := newHarness(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	events, err := event.NewWriter(layout, "job-1", now)
	require.NoError(t, err)
	defer events.Close()

	deps := Dependencies{
		Checkpoints: checkpoint.NewStore(layout),
		Events:      events,
		Worktrees:   worktree.NewManager(runner, layout, clock),
		DLQ:         dlq.NewStore(layout, "job-1"),
		Executor:    agent.NewExecutor(runner, &agent.ClaudeFake{}),
		Runner:      runner,
		Now:         clock,
		Confirm:     func(string) bool { return true },
	}

	cfg := Config{
		SessionID:      "job-1",
		WorkflowID:     "wf-1",
		WorkflowPath:   "workflow.yaml",
		WorkflowHash:   "abc123",
		RepoPath:       "/repo",
		OriginalBranch: "main",
		MaxParallel:    2,
		RetryBudget:    2,
		AutoAccept:     true,
	}

	spec := WorkflowSpec{
		Setup: []Command{{Name: "install", Shell: "echo installing"}},
		MapInputData: []byte(`[{"id":"1","name":"alpha"},{"id":"2","name":"bravo"}]`),
		MapPipeline:  pipeline.Config{},
		AgentSteps:   []agent.Step{{Kind: agent.StepShell, Command: "echo working on ${item.name}"}},
		Reduce:       []Command{{Name: "summarize", Shell: "echo done"}},
	}

	co := New(cfg, deps, spec)
	cp, err := co.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, cp.Metadata.Phase)
	assert.Equal(t, 2, cp.Metadata.TotalWorkItems)
	assert.Equal(t, 2, cp.Metadata.CompletedItems)
	assert.Len(t, cp.WorkItemState.CompletedItems, 2)
	assert.Empty(t, cp.WorkItemState.PendingItems)
	assert.Empty(t, cp.WorkItemState.FailedItems)

	loaded, err := deps.Checkpoints.Load("job-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, loaded.Metadata.Phase)
}

func TestCoordinatorDeadLettersPersistentFailures(t *testing.T) {
	layout, runner := newHarness(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runner.On("sh -c", func(call subprocess.Call) (subprocess.Result, error) {
		return subprocess.Result{ExitCode: 1, Stderr: "boom"}, nil
	})

	events, err := event.NewWriter(layout, "job-2", now)
	require.NoError(t, err)
	defer events.Close()

	dlqStore := dlq.NewStore(layout, "job-2")
	deps := Dependencies{
		Checkpoints: checkpoint.NewStore(layout),
		Events:      events,
		Worktrees:   worktree.NewManager(runner, layout, clock),
		DLQ:         dlqStore,
		Executor:    agent.NewExecutor(runner, &agent.ClaudeFake{}),
		Runner:      runner,
		Now:         clock,
		Confirm:     func(string) bool { return true },
	}

	cfg := Config{
		SessionID:      "job-2",
		WorkflowID:     "wf-2",
		WorkflowPath:   "workflow.yaml",
		WorkflowHash:   "abc123",
		RepoPath:       "/repo",
		OriginalBranch: "main",
		MaxParallel:    1,
		RetryBudget:    1,
		AutoAccept:     true,
	}

	spec := WorkflowSpec{
		MapInputData: []byte(`[{"id":"only"}]`),
		MapPipeline:  pipeline.Config{},
		AgentSteps:   []agent.Step{{Kind: agent.StepShell, Command: "will fail"}},
	}

	co := New(cfg, deps, spec)
	cp, err := co.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, cp.Metadata.Phase)
	assert.Len(t, cp.WorkItemState.FailedItems, 1)
	assert.Equal(t, 1, cp.Metadata.DLQCount)
	assert.Equal(t, 1, cp.WorkItemState.FailedItems["only"].Attempts)

	item, err := dlqStore.Get("only")
	require.NoError(t, err)
	assert.Equal(t, "only", item.WorkItem.ID)
}

func TestCoordinatorPausesOnCancellation(t *testing.T) {
	layout, runner := newHarness(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())

	blockingSteps := []agent.Step{{Kind: agent.StepShell, Command: "echo slow"}}
	runner.On("sh -c", func(call subprocess.Call) (subprocess.Result, error) {
		cancel()
		return subprocess.Result{ExitCode: 0, Stdout: "ok"}, nil
	})

	events, err := event.NewWriter(layout, "job-3", now)
	require.NoError(t, err)
	defer events.Close()

	deps := Dependencies{
		Checkpoints: checkpoint.NewStore(layout),
		Events:      events,
		Worktrees:   worktree.NewManager(runner, layout, clock),
		DLQ:         dlq.NewStore(layout, "job-3"),
		Executor:    agent.NewExecutor(runner, &agent.ClaudeFake{}),
		Runner:      runner,
		Now:         clock,
	}

	cfg := Config{
		SessionID:      "job-3",
		WorkflowID:     "wf-3",
		WorkflowPath:   "workflow.yaml",
		WorkflowHash:   "abc123",
		RepoPath:       "/repo",
		OriginalBranch: "main",
		MaxParallel:    1,
		RetryBudget:    3,
	}

	spec := WorkflowSpec{
		MapInputData: []byte(`[{"id":"a"},{"id":"b"},{"id":"c"}]`),
		MapPipeline:  pipeline.Config{},
		AgentSteps:   blockingSteps,
	}

	co := New(cfg, deps, spec)
	cp, err := co.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.PhasePaused, cp.Metadata.Phase)
}

func TestCoordinatorResumeCompletesFromPausedCheckpoint(t *testing.T) {
	layout, runner := newHarness(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	events, err := event.NewWriter(layout, "job-4", now)
	require.NoError(t, err)
	defer events.Close()

	deps := Dependencies{
		Checkpoints: checkpoint.NewStore(layout),
		Events:      events,
		Worktrees:   worktree.NewManager(runner, layout, clock),
		DLQ:         dlq.NewStore(layout, "job-4"),
		Executor:    agent.NewExecutor(runner, &agent.ClaudeFake{}),
		Runner:      runner,
		Now:         clock,
		Confirm:     func(string) bool { return true },
	}

	cfg := Config{
		SessionID:      "job-4",
		WorkflowID:     "wf-4",
		WorkflowPath:   "workflow.yaml",
		WorkflowHash:   "abc123",
		RepoPath:       "/repo",
		OriginalBranch: "main",
		MaxParallel:    1,
		RetryBudget:    2,
		AutoAccept:     true,
	}

	spec := WorkflowSpec{
		MapInputData: []byte(`[{"id":"a"},{"id":"b"}]`),
		MapPipeline:  pipeline.Config{},
		AgentSteps:   []agent.Step{{Kind: agent.StepShell, Command: "echo working"}},
		Reduce:       []Command{{Name: "summarize", Shell: "echo done"}},
	}

	co := New(cfg, deps, spec)

	cp := model.Checkpoint{
		JobID:        "job-4",
		WorkflowPath: "workflow.yaml",
		Metadata: model.Metadata{
			TotalWorkItems: 2,
			Phase:          model.PhasePaused,
		},
		WorkItemState: model.WorkItemState{
			PendingItems:    []model.WorkItem{{ID: "a"}},
			InProgressItems: map[string]string{"b": "stale-agent"},
			FailedItems:     map[string]model.FailedItem{},
			CompletedItems:  map[string]model.AgentResult{},
		},
		ExecutionState: model.ExecutionState{
			CurrentPhase: model.PhasePaused,
			StartedAt:    now,
		},
	}
	plan := resume.Plan{
		Checkpoint:          cp,
		PendingItems:        []model.WorkItem{{ID: "a"}},
		OrphanedWithoutData: []string{"b"},
	}

	result, err := co.Resume(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, result.Metadata.Phase)
	assert.Len(t, result.WorkItemState.CompletedItems, 2)
	assert.Empty(t, result.WorkItemState.PendingItems)
}
