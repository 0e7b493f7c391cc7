package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kadirpekel/prodigy/internal/mapreduce/checkpoint"
	"github.com/kadirpekel/prodigy/internal/mapreduce/coordinator"
	"github.com/kadirpekel/prodigy/internal/mapreduce/resume"
	"github.com/kadirpekel/prodigy/internal/mapreduce/session"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/workflow"
)

// ResumeCmd is `prodigy resume <session_id>`.
type ResumeCmd struct {
	SessionID string `arg:"" help:"Session id printed by the interrupted run."`
	Yes       bool   `short:"y" help:"Skip the merge confirmation prompt."`
}

func (r *ResumeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := storage.Root()
	rec, err := session.Load(root, r.SessionID)
	if err != nil {
		return err
	}

	f, err := workflow.Load(rec.WorkflowPath)
	if err != nil {
		return err
	}

	runner := subprocess.NewExecRunner()
	inputData, err := resolveMapInput(ctx, runner, rec.RepoPath, f.Map.Input)
	if err != nil {
		return err
	}
	spec, err := f.ToCoordinatorSpec(inputData)
	if err != nil {
		return err
	}

	layout, err := newLayout(rec.RepoPath)
	if err != nil {
		return err
	}
	store := checkpoint.NewStore(layout)

	hashNow := func(workflowPath string) (string, error) {
		text, err := os.ReadFile(workflowPath)
		if err != nil {
			return "", err
		}
		return checkpoint.HashWorkflowText(text), nil
	}
	plan, err := resume.Build(ctx, store, r.SessionID, rec.WorkflowID, hashNow, resume.CaptureEnv(), func() int { return 3 })
	if err != nil {
		return err
	}
	for _, drift := range plan.EnvDrifts {
		fmt.Fprintf(os.Stderr, "warning: environment changed since checkpoint: %s\n", drift.Name)
	}

	metrics, err := newMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	deps, cleanup, err := buildDependencies(layout, r.SessionID, runner, r.Yes, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := coordinatorConfig(r.SessionID, rec.WorkflowID, rec.WorkflowPath, plan.Checkpoint.WorkflowHash, rec.RepoPath, rec.OriginalBranch, f.Map.MaxParallel, f.Map.AgentTimeoutSecs, r.Yes)
	co := coordinator.New(cfg, deps, spec)

	fmt.Printf("resuming session %s from phase %s\n", r.SessionID, plan.Checkpoint.Metadata.Phase)
	cp, runErr := co.Resume(ctx, plan)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "job paused again: resume with `prodigy resume %s`\n", r.SessionID)
		return runErr
	}

	fmt.Printf("job %s completed: %d/%d items\n", r.SessionID, cp.Metadata.CompletedItems, cp.Metadata.TotalWorkItems)
	return nil
}
