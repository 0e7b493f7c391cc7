package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/checkpoint"
	"github.com/kadirpekel/prodigy/internal/mapreduce/coordinator"
	"github.com/kadirpekel/prodigy/internal/mapreduce/dlq"
	"github.com/kadirpekel/prodigy/internal/mapreduce/event"
	"github.com/kadirpekel/prodigy/internal/mapreduce/observability"
	"github.com/kadirpekel/prodigy/internal/mapreduce/session"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/worktree"
	"github.com/kadirpekel/prodigy/internal/workflow"
)

// RunCmd is `prodigy run <workflow.yml> [-y]`.
type RunCmd struct {
	Workflow string `arg:"" help:"Path to the workflow YAML file."`
	Repo     string `help:"Repository path the workflow operates on." default:"."`
	Yes      bool   `short:"y" help:"Skip the merge confirmation prompt."`
}

func (r *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f, err := workflow.Load(r.Workflow)
	if err != nil {
		return err
	}

	runner := subprocess.NewExecRunner()
	inputData, err := resolveMapInput(ctx, runner, r.Repo, f.Map.Input)
	if err != nil {
		return err
	}
	spec, err := f.ToCoordinatorSpec(inputData)
	if err != nil {
		return err
	}

	workflowText, err := os.ReadFile(r.Workflow)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}
	workflowHash := checkpoint.HashWorkflowText(workflowText)

	sessionID := uuid.NewString()
	workflowID := f.Name
	originalBranch, err := currentBranch(ctx, runner, r.Repo)
	if err != nil {
		return err
	}

	layout, err := newLayout(r.Repo)
	if err != nil {
		return err
	}

	metrics, err := newMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	deps, cleanup, err := buildDependencies(layout, sessionID, runner, r.Yes, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.Save(storage.Root(), session.Record{
		SessionID:      sessionID,
		WorkflowID:     workflowID,
		WorkflowPath:   r.Workflow,
		RepoPath:       r.Repo,
		OriginalBranch: originalBranch,
		CreatedAt:      time.Now(),
	}); err != nil {
		return fmt.Errorf("save session record: %w", err)
	}

	cfg := coordinatorConfig(sessionID, workflowID, r.Workflow, workflowHash, r.Repo, originalBranch, f.Map.MaxParallel, f.Map.AgentTimeoutSecs, r.Yes)
	co := coordinator.New(cfg, deps, spec)

	fmt.Printf("session %s started\n", sessionID)
	cp, runErr := co.Run(ctx)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "job paused: resume with `prodigy resume %s`\n", sessionID)
		return runErr
	}

	fmt.Printf("job %s completed: %d/%d items\n", sessionID, cp.Metadata.CompletedItems, cp.Metadata.TotalWorkItems)
	return nil
}

// coordinatorConfig builds the per-job Config shared by run and resume.
func coordinatorConfig(sessionID, workflowID, workflowPath, workflowHash, repoPath, originalBranch string, maxParallel, agentTimeoutSecs int, autoAccept bool) coordinator.Config {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return coordinator.Config{
		SessionID:        sessionID,
		WorkflowID:       workflowID,
		WorkflowPath:     workflowPath,
		WorkflowHash:     workflowHash,
		RepoPath:         repoPath,
		OriginalBranch:   originalBranch,
		MaxParallel:      maxParallel,
		AgentTimeout:     time.Duration(agentTimeoutSecs) * time.Second,
		RetryBudget:      3,
		CheckpointEveryN: 1,
		AutoAccept:       autoAccept || os.Getenv("PRODIGY_AUTOMATION") == "true",
	}
}

// newLayout resolves the storage layout for repoPath, honoring
// PRODIGY_HOME.
func newLayout(repoPath string) (storage.Layout, error) {
	repo, err := storage.RepoName(repoPath)
	if err != nil {
		return storage.Layout{}, fmt.Errorf("resolve repo name: %w", err)
	}
	return storage.NewLayout(storage.Root(), repo), nil
}

// buildDependencies wires every collaborator a Coordinator needs for one
// job, grounded on cmd/hector/main.go's pattern of assembling concrete
// components in main rather than behind a DI container.
func buildDependencies(layout storage.Layout, sessionID string, runner subprocess.Runner, autoAccept bool, metrics *observability.Metrics) (coordinator.Dependencies, func(), error) {
	writer, err := event.NewWriter(layout, sessionID, time.Now())
	if err != nil {
		return coordinator.Dependencies{}, nil, fmt.Errorf("open event writer: %w", err)
	}

	claude := agent.NewRealClaudeClient(runner)
	executor := agent.NewExecutor(runner, claude)

	confirm := func(prompt string) bool {
		if autoAccept || os.Getenv("PRODIGY_AUTOMATION") == "true" {
			return true
		}
		fmt.Printf("%s [y/N] ", prompt)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}

	deps := coordinator.Dependencies{
		Checkpoints: checkpoint.NewStore(layout),
		Events:      writer,
		Worktrees:   worktree.NewManager(runner, layout, time.Now),
		DLQ:         dlq.NewStore(layout, sessionID),
		Executor:    executor,
		Runner:      runner,
		Now:         time.Now,
		Confirm:     confirm,
		Metrics:     metrics,
	}
	return deps, func() { _ = writer.Close() }, nil
}

func currentBranch(ctx context.Context, runner subprocess.Runner, repoPath string) (string, error) {
	res, err := runner.Run(ctx, repoPath, nil, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("resolve current branch: %s", res.Stderr)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// newMetrics builds an observability.Metrics from the PRODIGY_METRICS
// env var, nil (a no-op receiver) when unset.
func newMetrics() (*observability.Metrics, error) {
	enabled := os.Getenv("PRODIGY_METRICS") == "true"
	return observability.NewMetrics(observability.Config{Enabled: enabled})
}
