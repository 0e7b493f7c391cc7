package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/dlq"
	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
	"github.com/kadirpekel/prodigy/internal/mapreduce/session"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
	"github.com/kadirpekel/prodigy/internal/workflow"
)

// DlqCmd groups the two `prodigy dlq` subcommands.
type DlqCmd struct {
	List      DlqListCmd      `cmd:"" help:"List dead-lettered items for a job."`
	Reprocess DlqReprocessCmd `cmd:"" help:"Re-run dead-lettered items through the agent pool."`
}

// DlqListCmd is `prodigy dlq list <job_id>`.
type DlqListCmd struct {
	JobID  string `arg:"" help:"Job id the DLQ items belong to."`
	Repo   string `help:"Repository path." default:"."`
	Filter string `help:"Filter expression, same grammar as map.filter (e.g. attempts >= 2)."`
}

func (d *DlqListCmd) Run(cli *CLI) error {
	items, err := filteredDLQItems(d.Repo, d.JobID, d.Filter)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no dead-lettered items")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%s\tattempts=%d\tlast_error=%q\tlast_attempt=%s\n",
			item.WorkItem.ID, len(item.Attempts), lastError(item), item.LastAttemptAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

// DlqReprocessCmd is `prodigy dlq reprocess <job_id> [--filter EXPR]`.
type DlqReprocessCmd struct {
	JobID  string `arg:"" help:"Job id the DLQ items belong to."`
	Repo   string `help:"Repository path." default:"."`
	Filter string `help:"Filter expression selecting which items to reprocess."`
}

func (d *DlqReprocessCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	items, err := filteredDLQItems(d.Repo, d.JobID, d.Filter)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no matching dead-lettered items")
		return nil
	}

	rec, err := session.Load(storage.Root(), d.JobID)
	if err != nil {
		return fmt.Errorf("look up workflow for job %q: %w", d.JobID, err)
	}
	f, err := workflow.Load(rec.WorkflowPath)
	if err != nil {
		return err
	}
	spec, err := f.ToCoordinatorSpec(nil)
	if err != nil {
		return err
	}

	layout, err := newLayout(d.Repo)
	if err != nil {
		return err
	}
	store := dlq.NewStore(layout, d.JobID)
	runner := subprocess.NewExecRunner()
	claude := agent.NewRealClaudeClient(runner)
	executor := agent.NewExecutor(runner, claude)

	succeeded, failed := 0, 0
	for _, item := range items {
		result, _, runErr := executor.Run(ctx, item.WorkItem, d.Repo, spec.AgentSteps, variables.Bindings{})
		if runErr != nil || result.Status != model.AgentSuccess {
			failed++
			continue
		}
		succeeded++
		if err := store.Remove(item.WorkItem.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: reprocessed %s but failed to remove DLQ record: %s\n", item.WorkItem.ID, err)
		}
	}

	fmt.Printf("reprocessed %d item(s): %d succeeded, %d still failing\n", len(items), succeeded, failed)
	return nil
}

func filteredDLQItems(repoPath, jobID, filterExpr string) ([]model.DLQItem, error) {
	layout, err := newLayout(repoPath)
	if err != nil {
		return nil, err
	}
	store := dlq.NewStore(layout, jobID)
	all, err := store.List()
	if err != nil {
		return nil, err
	}
	if filterExpr == "" {
		return all, nil
	}
	f, err := pipeline.ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	var out []model.DLQItem
	for _, item := range all {
		if f.Match(dlqFilterView(item)) {
			out = append(out, item)
		}
	}
	return out, nil
}

// dlqFilterView projects a DLQItem into the plain map pipeline.Filter
// evaluates dotted field paths against.
func dlqFilterView(item model.DLQItem) map[string]any {
	raw, _ := json.Marshal(item.WorkItem.Data)
	var data any
	_ = json.Unmarshal(raw, &data)
	return map[string]any{
		"id":       item.WorkItem.ID,
		"attempts": len(item.Attempts),
		"error":    lastError(item),
		"item":     data,
	}
}

func lastError(item model.DLQItem) string {
	if len(item.Attempts) == 0 {
		return ""
	}
	return item.Attempts[len(item.Attempts)-1].Error
}
