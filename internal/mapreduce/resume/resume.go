// Package resume rebuilds a pending-item set from the latest checkpoint
// of an interrupted job so the coordinator can re-enter execution
// without redoing already-completed work.
//
// Grounded on original_source/src/cook/execution/mapreduce/state/recovery.rs
// (recover_from_checkpoint / calculate_pending_items), generalized from
// "reconstruct work items from a total count" to "reconstruct them from
// the checkpoint's own Pending/InProgress/Failed buckets", since this
// module's checkpoint already carries full WorkItem values rather than
// just a count.
package resume

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mapreduce/checkpoint"
	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// EnvSnapshot is the subset of process environment variables captured at
// job start, keyed by name. Prefixes in ignoredPrefixes (and a handful
// of exact names) are excluded from drift comparisons (spec §4.10).
type EnvSnapshot map[string]string

var ignoredPrefixes = []string{"PRODIGY_", "_", "RUST_"}
var ignoredExact = map[string]bool{"TMP": true, "TEMP": true}

func ignoredVar(name string) bool {
	if ignoredExact[name] {
		return true
	}
	for _, p := range ignoredPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// CaptureEnv snapshots the current process environment, dropping
// variables resume never needs to compare (noise that differs across
// every invocation of the same shell).
func CaptureEnv() EnvSnapshot {
	snap := EnvSnapshot{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || ignoredVar(name) {
			continue
		}
		snap[name] = value
	}
	return snap
}

// EnvDrift describes one environment variable that differs between the
// snapshot taken at job start and the current process.
type EnvDrift struct {
	Name     string
	Was      string // "" if unset at snapshot time
	Now      string // "" if unset now
	WasUnset bool
	NowUnset bool
}

// Diff compares snap (captured when the job started) against current,
// ignoring every name ignoredVar excludes on either side.
func (snap EnvSnapshot) Diff(current EnvSnapshot) []EnvDrift {
	seen := map[string]bool{}
	var drifts []EnvDrift
	for name, was := range snap {
		seen[name] = true
		if ignoredVar(name) {
			continue
		}
		now, ok := current[name]
		if !ok {
			drifts = append(drifts, EnvDrift{Name: name, Was: was, NowUnset: true})
			continue
		}
		if now != was {
			drifts = append(drifts, EnvDrift{Name: name, Was: was, Now: now})
		}
	}
	for name, now := range current {
		if seen[name] || ignoredVar(name) {
			continue
		}
		drifts = append(drifts, EnvDrift{Name: name, Now: now, WasUnset: true})
	}
	return drifts
}

// Plan is what a resume computes before the coordinator re-enters
// execution: the pending set to re-dispatch, the phase to resume into,
// and the variable state to restore.
type Plan struct {
	Checkpoint    model.Checkpoint
	ResumePhase   model.Phase
	PendingItems  []model.WorkItem
	SkipItemIDs   []string // already-completed, authoritative results kept as-is
	VariableState map[string]any
	EnvDrifts     []EnvDrift

	// OrphanedWithoutData holds IDs of items that were InProgress when
	// the job was interrupted but left no FailedItem record, so the
	// checkpoint alone doesn't carry their original WorkItem.Data (the
	// checkpoint tracks in-progress work by agent id, not by item
	// body). The coordinator's resume path re-derives these from the
	// workflow's own MapInputData/pipeline run before dispatch; Build
	// only surfaces which IDs need that treatment.
	OrphanedWithoutData []string
}

// WorkflowHasher reports the current hash of the workflow text resume
// should compare against the checkpoint's recorded WorkflowHash. The
// coordinator's caller supplies this (usually sha256 over the YAML
// bytes at WorkflowPath) so this package never touches the filesystem
// directly for anything but environment capture.
type WorkflowHasher func(workflowPath string) (string, error)

// RetryBudget reports the retry budget (attempts before dead-letter)
// in force for a job, so resume can decide whether a Failed item is
// still eligible for another attempt.
type RetryBudget func() int

// Build loads the latest checkpoint for sessionID/workflowID and builds
// a resume Plan, refusing when the workflow text has changed since the
// checkpoint was written (spec §4.10 step 2). Resuming an already
// Completed job returns a Plan with an empty pending set and no error
// (idempotent resume).
func Build(ctx context.Context, store *checkpoint.Store, sessionID, workflowID string, hashNow WorkflowHasher, startEnv EnvSnapshot, retryBudget RetryBudget) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	cp, err := store.Load(sessionID, workflowID)
	if err != nil {
		return Plan{}, fmt.Errorf("load checkpoint: %w", err)
	}

	if hashNow != nil && cp.WorkflowPath != "" {
		currentHash, err := hashNow(cp.WorkflowPath)
		if err != nil {
			return Plan{}, fmt.Errorf("hash current workflow: %w", err)
		}
		if currentHash != cp.WorkflowHash {
			return Plan{}, fmt.Errorf("%w: workflow at %q no longer matches the checkpoint", mrerrors.ErrWorkflowChanged, cp.WorkflowPath)
		}
	}

	var drifts []EnvDrift
	if startEnv != nil {
		drifts = startEnv.Diff(CaptureEnv())
	}

	plan := Plan{
		Checkpoint:    cp,
		ResumePhase:   cp.ExecutionState.CurrentPhase,
		VariableState: cloneVariableState(cp.VariableState),
		EnvDrifts:     drifts,
	}

	if cp.Metadata.Phase.IsTerminal() && cp.Metadata.Phase == model.PhaseComplete {
		return plan, nil // idempotent: nothing pending, nothing to do
	}

	budget := 0
	if retryBudget != nil {
		budget = retryBudget()
	}
	plan.PendingItems, plan.SkipItemIDs, plan.OrphanedWithoutData = pendingSet(cp, budget)
	return plan, nil
}

// pendingSet computes spec §4.10 step 4: Pending ∪ orphaned InProgress
// ∪ under-budget Failed. Completed items are the skip set and are never
// re-dispatched; their AgentResult stays authoritative.
func pendingSet(cp model.Checkpoint, retryBudget int) (pending []model.WorkItem, skip, orphaned []string) {
	pending = append(pending, cp.WorkItemState.PendingItems...)

	for itemID := range cp.WorkItemState.InProgressItems {
		if failed, ok := cp.WorkItemState.FailedItems[itemID]; ok {
			pending = append(pending, failed.Item)
			continue
		}
		orphaned = append(orphaned, itemID)
	}

	for _, failed := range cp.WorkItemState.FailedItems {
		if retryBudget <= 0 || failed.Attempts < retryBudget {
			alreadyQueued := false
			for _, p := range pending {
				if p.ID == failed.Item.ID {
					alreadyQueued = true
					break
				}
			}
			if !alreadyQueued {
				pending = append(pending, failed.Item)
			}
		}
	}

	for id := range cp.WorkItemState.CompletedItems {
		skip = append(skip, id)
	}
	return pending, skip, orphaned
}

func cloneVariableState(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
