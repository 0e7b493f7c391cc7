// Package coordinator sequences one job through the linear phase
// machine spec §4.9 describes: Created → SetupRunning → MapRunning →
// ReduceRunning → MergeRunning → Completed, with branches to Paused and
// Failed. It owns the one in-memory model.Checkpoint for the job and is
// the single writer of the checkpoint file and the event log, wiring
// together every other package built so far (pipeline, variables,
// worktree, agent, pool, checkpoint, dlq, event).
//
// Grounded on the teacher's pkg/runner/runner.go top-level sequencing
// (session lookup → find agent → run → deferred cleanup, generalized
// here to phase lookup → run phase → persist → next phase) and on
// original_source/src/cook/execution/progress_tracker.rs for the
// checkpoint-on-every-transition bookkeeping.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/checkpoint"
	"github.com/kadirpekel/prodigy/internal/mapreduce/dlq"
	"github.com/kadirpekel/prodigy/internal/mapreduce/event"
	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/observability"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pool"
	"github.com/kadirpekel/prodigy/internal/mapreduce/resume"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
	"github.com/kadirpekel/prodigy/internal/mapreduce/worktree"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Command is one setup/reduce step: a shell command run in the parent
// worktree, with an optional capture into the job's variable bindings.
type Command struct {
	Name      string
	Shell     string
	CaptureAs string
	Capture   *variables.CaptureSpec
}

// WorkflowSpec is the fully-resolved workflow a Coordinator executes —
// the output of internal/workflow's YAML loader, or hand-built by a
// caller (tests, dry-run preview).
type WorkflowSpec struct {
	Setup []Command

	MapInputData []byte
	MapPipeline  pipeline.Config
	AgentSteps   []agent.Step

	Reduce []Command
	Merge  []worktree.MergeStep
}

// Config holds the per-job knobs that aren't part of the workflow's own
// shape.
type Config struct {
	SessionID      string
	WorkflowID     string
	WorkflowPath   string
	WorkflowHash   string
	RepoPath       string
	OriginalBranch string

	MaxParallel  int
	AgentTimeout time.Duration
	RetryBudget  int

	CheckpointEveryN int           // write a map-phase checkpoint every N completions
	CheckpointEveryT time.Duration // ...or every T elapsed, whichever comes first

	AutoAccept bool // skip the merge-phase confirmation prompt
}

// Dependencies are the collaborators a Coordinator drives. Events, DLQ
// and Metrics may be nil (their writes are then skipped), Now defaults
// to time.Now, and Confirm defaults to always-accept when nil and
// AutoAccept is also unset (tests rarely want to block on stdin); the
// rest are required.
type Dependencies struct {
	Checkpoints *checkpoint.Store
	Events      *event.Writer
	Worktrees   *worktree.Manager
	DLQ         *dlq.Store
	Executor    *agent.Executor
	Runner      subprocess.Runner
	Now         func() time.Time
	Confirm     func(prompt string) bool

	// Metrics is a nil-safe Prometheus sink (see observability.Metrics);
	// a nil value disables recording rather than requiring a guard at
	// every call site.
	Metrics *observability.Metrics
}

// Coordinator runs one job's full phase sequence.
type Coordinator struct {
	cfg  Config
	deps Dependencies
	spec WorkflowSpec

	now func() time.Time
}

// New builds a Coordinator.
func New(cfg Config, deps Dependencies, spec WorkflowSpec) *Coordinator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{cfg: cfg, deps: deps, spec: spec, now: now}
}

// stepHelpers builds the save/emit/transition closures both Run and
// Resume drive the phase machine with, bound to one cp/version pair so
// either entry point can assemble its own starting state and still
// share runTail.
func (c *Coordinator) stepHelpers(cp *model.Checkpoint, version *uint64) (
	save func() error,
	emit func(model.EventType, string, string, map[string]any),
	transition func(model.Phase) error,
) {
	save = func() error {
		start := c.now()
		saved, err := c.deps.Checkpoints.Save(c.cfg.SessionID, c.cfg.WorkflowID, *cp, *version)
		if err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		*cp = saved
		*version = cp.Version
		c.deps.Metrics.RecordCheckpointWrite(c.now().Sub(start))
		return nil
	}

	emit = func(eventType model.EventType, agentID, itemID string, data map[string]any) {
		if c.deps.Events == nil {
			return
		}
		_ = c.deps.Events.Emit(c.cfg.SessionID, eventType, agentID, itemID, data, c.now())
	}

	transition = func(phase model.Phase) error {
		phaseStartedAt := cp.ExecutionState.LastCheckpointAt
		if phaseStartedAt.IsZero() {
			phaseStartedAt = cp.ExecutionState.StartedAt
		}
		cp.Metadata.Phase = phase
		cp.ExecutionState.CurrentPhase = phase
		cp.ExecutionState.LastCheckpointAt = c.now()
		cp.ExecutionState.Iteration++
		if err := save(); err != nil {
			return err
		}
		c.deps.Metrics.RecordPhaseDuration(string(phase), c.now().Sub(phaseStartedAt))
		emit(model.EventPhaseStarted, "", "", map[string]any{"phase": string(phase)})
		return nil
	}

	return save, emit, transition
}

// Run drives the job from Created to a terminal phase (Completed,
// Paused, or Failed), persisting a checkpoint at every transition. The
// returned Checkpoint reflects the final state whether or not err is
// nil: a cancellation (err wraps context.Canceled) leaves the job
// Paused with its map-phase progress intact for a later resume.
func (c *Coordinator) Run(ctx context.Context) (model.Checkpoint, error) {
	cp := model.Checkpoint{
		JobID:        c.cfg.SessionID,
		WorkflowHash: c.cfg.WorkflowHash,
		WorkflowPath: c.cfg.WorkflowPath,
		Metadata:     model.Metadata{Phase: model.PhaseCreated},
		WorkItemState: model.WorkItemState{
			InProgressItems: map[string]string{},
			CompletedItems:  map[string]model.AgentResult{},
			FailedItems:     map[string]model.FailedItem{},
		},
		AgentState: model.AgentState{
			ActiveAgents:     map[string]model.AgentContext{},
			AgentAssignments: map[string][]string{},
		},
		VariableState: map[string]any{},
		ExecutionState: model.ExecutionState{
			CurrentPhase: model.PhaseCreated,
			StartedAt:    c.now(),
		},
	}
	var version uint64
	save, emit, transition := c.stepHelpers(&cp, &version)

	bindings := variables.Bindings{}
	c.deps.Metrics.RecordJobStarted(c.cfg.WorkflowID)
	emit(model.EventJobStarted, "", "", nil)

	if err := transition(model.PhaseSetup); err != nil {
		return cp, err
	}
	parent, err := c.deps.Worktrees.CreateParent(ctx, c.cfg.SessionID, c.cfg.RepoPath, c.cfg.OriginalBranch)
	if err != nil {
		return c.fail(&cp, version, fmt.Errorf("create parent worktree: %w", err))
	}
	steps, err := c.runCommands(ctx, parent.Path, c.spec.Setup, bindings)
	if err != nil {
		return c.fail(&cp, version, fmt.Errorf("setup phase: %w", err))
	}
	cp.CompletedSteps = append(cp.CompletedSteps, steps...)
	if err := commitAll(ctx, c.deps.Runner, parent.Path, "prodigy: setup"); err != nil {
		return c.fail(&cp, version, fmt.Errorf("commit setup output: %w", err))
	}
	saveVariableState(&cp, bindings)
	if err := save(); err != nil {
		return cp, err
	}

	if err := transition(model.PhaseMap); err != nil {
		return cp, err
	}
	p, err := pipeline.Compile(c.spec.MapPipeline)
	if err != nil {
		return c.fail(&cp, version, fmt.Errorf("compile pipeline: %w", err))
	}
	items, err := p.Run(c.spec.MapInputData)
	if err != nil {
		return c.fail(&cp, version, fmt.Errorf("run pipeline: %w", err))
	}
	cp.WorkItemState.PendingItems = items
	cp.Metadata.TotalWorkItems = len(items)
	if err := save(); err != nil {
		return cp, err
	}

	outcomes, mapErr := c.runMap(ctx, &cp, save, emit, bindings, items)
	c.applyOutcomes(&cp, outcomes)
	if err := save(); err != nil {
		return cp, err
	}
	if mapErr != nil {
		cp.Metadata.Phase = model.PhasePaused
		cp.ExecutionState.CurrentPhase = model.PhasePaused
		_ = save()
		return cp, fmt.Errorf("map phase: %w", mapErr)
	}

	return c.runTail(ctx, &cp, &version, parent, save, emit, transition, bindings)
}

// runTail drives Reduce, Merge, and the terminal Complete transition —
// the portion of the phase sequence shared by a fresh Run and a Resume
// that re-entered at or before the Map phase. cp/version are pointers
// to the caller's own locals, the same ones save/emit/transition close
// over, so every mutation here is visible to the caller's final return.
func (c *Coordinator) runTail(
	ctx context.Context,
	cp *model.Checkpoint,
	version *uint64,
	parent model.WorktreeSession,
	save func() error,
	emit func(model.EventType, string, string, map[string]any),
	transition func(model.Phase) error,
	bindings variables.Bindings,
) (model.Checkpoint, error) {
	if err := transition(model.PhaseReduce); err != nil {
		return *cp, err
	}
	bindings["map"] = mapAggregates(*cp)
	steps, err := c.runCommands(ctx, parent.Path, c.spec.Reduce, bindings)
	if err != nil {
		return c.fail(cp, *version, fmt.Errorf("reduce phase: %w", err))
	}
	cp.CompletedSteps = append(cp.CompletedSteps, steps...)
	saveVariableState(cp, bindings)
	if err := save(); err != nil {
		return *cp, err
	}

	if err := transition(model.PhaseMerge); err != nil {
		return *cp, err
	}
	if !c.cfg.AutoAccept && c.deps.Confirm != nil {
		if !c.deps.Confirm(fmt.Sprintf("merge %s into %s?", parent.Branch, c.cfg.OriginalBranch)) {
			cp.Metadata.Phase = model.PhasePaused
			cp.ExecutionState.CurrentPhase = model.PhasePaused
			_ = save()
			return *cp, fmt.Errorf("%w: merge not confirmed", mrerrors.ErrCancelled)
		}
	}
	if err := c.deps.Worktrees.MergeSession(ctx, parent, c.cfg.RepoPath, c.cfg.OriginalBranch, c.spec.Merge); err != nil {
		return c.fail(cp, *version, fmt.Errorf("merge session: %w", err))
	}
	if err := c.deps.Worktrees.RemoveSession(ctx, c.cfg.SessionID, false); err != nil {
		emit(model.EventPhaseCompleted, "", "", map[string]any{"phase": "merge", "cleanup_error": err.Error()})
	}

	cp.Metadata.Phase = model.PhaseComplete
	cp.ExecutionState.CurrentPhase = model.PhaseComplete
	if err := save(); err != nil {
		return *cp, err
	}
	c.deps.Metrics.RecordJobCompleted(c.cfg.WorkflowID, "completed", c.now().Sub(cp.ExecutionState.StartedAt))
	emit(model.EventJobCompleted, "", "", nil)
	return *cp, nil
}

// Resume re-enters execution from a resume.Plan built against this
// job's latest checkpoint. Interruption at or after the Map phase is
// the supported case: Resume rehydrates the parent worktree (which
// must still exist on disk from the interrupted run — Resume never
// recreates it) and re-runs Map against the plan's pending set, which
// is empty-safe if the interrupted job had already finished mapping,
// so the same call also correctly carries a job interrupted mid-Reduce
// or at the Merge confirmation prompt through to completion. A job
// interrupted during Setup is out of scope: Setup is the one phase
// that creates the parent worktree in the first place, so there is
// nothing yet to rehydrate (see DESIGN.md).
func (c *Coordinator) Resume(ctx context.Context, plan resume.Plan) (model.Checkpoint, error) {
	cp := plan.Checkpoint
	if cp.Metadata.Phase == model.PhaseComplete {
		return cp, nil
	}
	version := cp.Version
	save, emit, transition := c.stepHelpers(&cp, &version)

	parent, ok := c.deps.Worktrees.Get(c.cfg.SessionID)
	if !ok {
		parent = model.WorktreeSession{
			Name:      c.cfg.SessionID,
			Branch:    worktree.ParentBranchName(c.cfg.SessionID),
			Path:      c.deps.Worktrees.ParentWorktreePath(c.cfg.SessionID),
			CreatedAt: c.now(),
		}
		if err := c.deps.Worktrees.Rehydrate(parent); err != nil {
			return cp, fmt.Errorf("rehydrate parent worktree: %w", err)
		}
	}

	bindings := variables.Bindings(plan.VariableState)
	if bindings == nil {
		bindings = variables.Bindings{}
	}

	items := append([]model.WorkItem(nil), plan.PendingItems...)
	if len(plan.OrphanedWithoutData) > 0 {
		if reconstructed, err := c.reconstructOrphaned(plan.OrphanedWithoutData); err == nil {
			items = append(items, reconstructed...)
		} else {
			emit(model.EventPhaseStarted, "", "", map[string]any{"resume_warning": err.Error()})
		}
	}

	if err := transition(model.PhaseMap); err != nil {
		return cp, err
	}
	for _, id := range plan.SkipItemIDs {
		delete(cp.WorkItemState.FailedItems, id)
	}
	cp.WorkItemState.InProgressItems = map[string]string{}
	for _, it := range items {
		delete(cp.WorkItemState.FailedItems, it.ID)
	}
	cp.WorkItemState.PendingItems = items
	if err := save(); err != nil {
		return cp, err
	}

	outcomes, mapErr := c.runMap(ctx, &cp, save, emit, bindings, items)
	c.applyOutcomes(&cp, outcomes)
	if err := save(); err != nil {
		return cp, err
	}
	if mapErr != nil {
		cp.Metadata.Phase = model.PhasePaused
		cp.ExecutionState.CurrentPhase = model.PhasePaused
		_ = save()
		return cp, fmt.Errorf("map phase: %w", mapErr)
	}

	return c.runTail(ctx, &cp, &version, parent, save, emit, transition, bindings)
}

// reconstructOrphaned recomputes the map phase's full item set from the
// workflow's own input and pipeline, and returns the subset matching
// ids — the data an orphaned in-progress item's checkpoint record never
// carried (see resume.Plan.OrphanedWithoutData).
func (c *Coordinator) reconstructOrphaned(ids []string) ([]model.WorkItem, error) {
	p, err := pipeline.Compile(c.spec.MapPipeline)
	if err != nil {
		return nil, fmt.Errorf("compile pipeline: %w", err)
	}
	all, err := p.Run(c.spec.MapInputData)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	lookup := make(map[string]model.WorkItem, len(all))
	for _, it := range all {
		lookup[it.ID] = it
	}
	out := make([]model.WorkItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := lookup[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (c *Coordinator) fail(cp *model.Checkpoint, version uint64, cause error) (model.Checkpoint, error) {
	cp.Metadata.Phase = model.PhaseFailed
	cp.ExecutionState.CurrentPhase = model.PhaseFailed
	if saved, err := c.deps.Checkpoints.Save(c.cfg.SessionID, c.cfg.WorkflowID, *cp, version); err == nil {
		*cp = saved
	}
	c.deps.Metrics.RecordJobCompleted(c.cfg.WorkflowID, "failed", c.now().Sub(cp.ExecutionState.StartedAt))
	return *cp, cause
}

// runCommands executes cmds sequentially in dir, expanding bindings
// before each and folding any capture back into bindings, returning one
// StepRecord per command for resume's already-run-steps skip list.
func (c *Coordinator) runCommands(ctx context.Context, dir string, cmds []Command, bindings variables.Bindings) ([]model.StepRecord, error) {
	records := make([]model.StepRecord, 0, len(cmds))
	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		command := variables.Expand(cmd.Shell, bindings)
		res, err := subprocess.Shell(ctx, c.deps.Runner, dir, nil, command)
		rec := model.StepRecord{Name: cmd.Name, Index: i, FinishedAt: c.now()}
		if err != nil {
			records = append(records, rec)
			return records, fmt.Errorf("command %q: %w", cmd.Name, err)
		}
		if res.ExitCode != 0 {
			records = append(records, rec)
			return records, fmt.Errorf("command %q exited %d: %s", cmd.Name, res.ExitCode, res.Stderr)
		}
		rec.Succeeded = true
		records = append(records, rec)

		bindings["shell.output"] = res.Stdout
		if cmd.CaptureAs != "" && cmd.Capture != nil {
			captured, err := variables.Capture(res.Stdout, *cmd.Capture)
			if err != nil {
				return records, fmt.Errorf("capture for %q: %w", cmd.Name, err)
			}
			bindings[cmd.CaptureAs] = captured
		}
	}
	return records, nil
}

// runMap builds and drives the agent pool for the map phase. It returns
// the pool's outcomes plus any error from cancellation; a non-nil error
// here always means ctx was cancelled (the pool itself retries and
// dead-letters everything else internally).
func (c *Coordinator) runMap(
	ctx context.Context,
	cp *model.Checkpoint,
	save func() error,
	emit func(model.EventType, string, string, map[string]any),
	jobBindings variables.Bindings,
	items []model.WorkItem,
) ([]pool.Outcome, error) {
	var completions int
	lastCheckpoint := c.now()

	maybeCheckpoint := func() {
		completions++
		due := false
		if c.cfg.CheckpointEveryN > 0 && completions%c.cfg.CheckpointEveryN == 0 {
			due = true
		}
		if c.cfg.CheckpointEveryT > 0 && c.now().Sub(lastCheckpoint) >= c.cfg.CheckpointEveryT {
			due = true
		}
		if !due {
			return
		}
		lastCheckpoint = c.now()
		if err := save(); err == nil {
			emit(model.EventCheckpointCreated, "", "", map[string]any{"completions": float64(completions)})
		}
	}

	hooks := pool.Hooks{
		OnDispatch: func(item model.WorkItem, agentID string, attempt int) {
			cp.WorkItemState.PendingItems = removeItem(cp.WorkItemState.PendingItems, item.ID)
			cp.WorkItemState.InProgressItems[item.ID] = agentID
			cp.Metadata.TotalAgentsSpawned++
			c.deps.Metrics.RecordAgentDispatch(attempt)
			emit(model.EventAgentStarted, agentID, item.ID, map[string]any{"attempt": float64(attempt)})
		},
		OnComplete: func(item model.WorkItem, result model.AgentResult) {
			switch result.Status {
			case model.AgentSuccess:
				c.deps.Metrics.RecordAgentComplete("succeeded", result.Duration)
				emit(model.EventAgentSucceeded, cp.WorkItemState.InProgressItems[item.ID], item.ID, nil)
			case model.AgentTimeout:
				c.deps.Metrics.RecordAgentComplete("timeout", result.Duration)
				emit(model.EventAgentTimeout, cp.WorkItemState.InProgressItems[item.ID], item.ID, map[string]any{"error": result.Error})
			default:
				c.deps.Metrics.RecordAgentComplete("failed", result.Duration)
				emit(model.EventAgentFailed, cp.WorkItemState.InProgressItems[item.ID], item.ID, map[string]any{"error": result.Error})
			}
			maybeCheckpoint()
		},
		OnRetryScheduled: func(item model.WorkItem, attempt int, delay time.Duration, reason string) {
			c.deps.Metrics.RecordRetryScheduled(reason)
			emit(model.EventRetry, "", item.ID, map[string]any{"attempt": float64(attempt), "delay_seconds": delay.Seconds(), "reason": reason})
		},
		OnDeadLettered: func(item model.WorkItem, result model.AgentResult) {
			if c.deps.DLQ != nil {
				_ = c.deps.DLQ.Enqueue(item, model.DLQAttempt{
					Error:     result.Error,
					AgentID:   cp.WorkItemState.InProgressItems[item.ID],
					Timestamp: c.now(),
				}, c.now())
			}
			cp.Metadata.DLQCount++
			c.deps.Metrics.RecordDeadLettered()
			c.deps.Metrics.SetDLQSize(cp.Metadata.DLQCount)
			emit(model.EventDlqEnqueued, "", item.ID, map[string]any{"error": result.Error})
		},
	}

	poolCfg := pool.Config{
		MaxParallel:  c.cfg.MaxParallel,
		AgentTimeout: c.cfg.AgentTimeout,
		RetryBudget:  c.cfg.RetryBudget,
		Now:          c.now,
	}
	runner := pool.AgentRunnerFunc(func(ctx context.Context, item model.WorkItem) (model.AgentResult, error) {
		return c.runMapItem(ctx, item, jobBindings)
	})
	pl := pool.New(poolCfg, runner, hooks)
	return pl.Run(ctx, items)
}

// runMapItem creates a child worktree for item, runs the agent steps
// inside it, best-effort merges successful work back into the parent
// session branch, and tears the child worktree down — leaving it intact
// only when the merge itself conflicts, for manual resolution.
func (c *Coordinator) runMapItem(ctx context.Context, item model.WorkItem, jobBindings variables.Bindings) (model.AgentResult, error) {
	session, ok := c.deps.Worktrees.Get(c.cfg.SessionID)
	if !ok {
		return model.AgentResult{}, fmt.Errorf("%w: parent worktree session %q not found", mrerrors.ErrConfiguration, c.cfg.SessionID)
	}

	child, err := c.deps.Worktrees.CreateChild(ctx, session, item.ID)
	if err != nil {
		return model.AgentResult{}, fmt.Errorf("create child worktree: %w", err)
	}

	itemBindings := cloneJobBindings(jobBindings)
	var itemData any
	if len(item.Data) > 0 {
		_ = json.Unmarshal(item.Data, &itemData)
	}
	itemBindings["item"] = itemData

	result, _, runErr := c.deps.Executor.Run(ctx, item, child.Path, c.spec.AgentSteps, itemBindings)
	if runErr != nil {
		_ = c.deps.Worktrees.RemoveSession(ctx, child.Name, true)
		return model.AgentResult{}, runErr
	}

	if result.Status != model.AgentSuccess {
		_ = c.deps.Worktrees.RemoveSession(ctx, child.Name, true)
		return result, nil
	}

	if err := c.deps.Worktrees.MergeSession(ctx, child, session.Path, session.Branch, nil); err != nil {
		if errors.Is(err, mrerrors.ErrMergeConflict) {
			result.Status = model.AgentFailed
			result.Error = fmt.Sprintf("merge conflict: %s", err.Error())
			return result, nil
		}
		_ = c.deps.Worktrees.RemoveSession(ctx, child.Name, true)
		result.Status = model.AgentFailed
		result.Error = fmt.Sprintf("merge failed: %s", err.Error())
		return result, nil
	}
	if err := c.deps.Worktrees.RemoveSession(ctx, child.Name, false); err != nil {
		result.Error = fmt.Sprintf("warning: child worktree cleanup failed: %s", err.Error())
	}
	return result, nil
}

// applyOutcomes folds the pool's terminal dispositions back into cp's
// disjoint work-item buckets, the one place this happens (hooks only
// track interim progress for checkpoint cadence and events).
func (c *Coordinator) applyOutcomes(cp *model.Checkpoint, outcomes []pool.Outcome) {
	for _, o := range outcomes {
		delete(cp.WorkItemState.InProgressItems, o.Item.ID)
		switch o.Kind {
		case pool.OutcomeCompleted:
			cp.WorkItemState.CompletedItems[o.Item.ID] = o.Result
			cp.Metadata.CompletedItems++
			delete(cp.WorkItemState.FailedItems, o.Item.ID)
		case pool.OutcomeDeadLettered:
			cp.WorkItemState.FailedItems[o.Item.ID] = model.FailedItem{
				Item:     o.Item,
				Attempts: o.Attempts,
				LastErr:  o.Result.Error,
			}
		case pool.OutcomeRequeued:
			cp.WorkItemState.PendingItems = append(cp.WorkItemState.PendingItems, o.Item)
		}
	}
}

func removeItem(items []model.WorkItem, id string) []model.WorkItem {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func saveVariableState(cp *model.Checkpoint, bindings variables.Bindings) {
	if cp.VariableState == nil {
		cp.VariableState = map[string]any{}
	}
	for k, v := range bindings {
		cp.VariableState[k] = v
	}
}

func mapAggregates(cp model.Checkpoint) map[string]any {
	total := cp.Metadata.TotalWorkItems
	successful := cp.Metadata.CompletedItems
	failed := len(cp.WorkItemState.FailedItems)
	completed := successful + failed
	successRate := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}
	return map[string]any{
		"total":        float64(total),
		"successful":   float64(successful),
		"failed":       float64(failed),
		"completed":    float64(completed),
		"success_rate": successRate,
	}
}

func cloneJobBindings(b variables.Bindings) variables.Bindings {
	out := make(variables.Bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

func commitAll(ctx context.Context, runner subprocess.Runner, dir, message string) error {
	if _, err := runner.Run(ctx, dir, nil, "git", "add", "-A"); err != nil {
		return err
	}
	res, err := runner.Run(ctx, dir, nil, "git", "commit", "-m", message, "--allow-empty")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git commit failed: %s", res.Stderr)
	}
	return nil
}

