// Package validate implements structural validation of a checkpoint
// with error accumulation: every violation is collected and returned
// together, never just the first (spec §4.11, §8 invariant 4).
//
// Grounded on original_source/src/cook/execution/mapreduce/checkpoint/pure/validation.rs,
// translated from a Result-accumulating pure function into a slice of
// typed Go errors.
package validate

import (
	"fmt"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
)

// WorkItemCountMismatch is returned when the sum of per-state item
// counts does not equal metadata.total_work_items.
type WorkItemCountMismatch struct {
	Expected int
	Actual   int
}

func (e WorkItemCountMismatch) Error() string {
	return fmt.Sprintf("work item count mismatch: expected %d, actual %d", e.Expected, e.Actual)
}

// OrphanedAgentAssignment is returned when agent_assignments names an
// agent id absent from active_agents.
type OrphanedAgentAssignment struct {
	AgentID string
}

func (e OrphanedAgentAssignment) Error() string {
	return fmt.Sprintf("orphaned agent assignment: agent %q has no active agent record", e.AgentID)
}

// DuplicateWorkItemID is returned when the same item id appears more
// than once across all state buckets.
type DuplicateWorkItemID struct {
	ID string
}

func (e DuplicateWorkItemID) Error() string {
	return fmt.Sprintf("duplicate work item id: %q", e.ID)
}

// WorkItemInMultipleStates is returned when an item id appears in more
// than one of the four disjoint state sets.
type WorkItemInMultipleStates struct {
	ItemID string
}

func (e WorkItemInMultipleStates) Error() string {
	return fmt.Sprintf("work item %q present in multiple states", e.ItemID)
}

// InvalidPhaseState is returned when metadata.phase disagrees with
// execution_state.current_phase, or metadata.completed_items disagrees
// with the actual completed-item count.
type InvalidPhaseState struct {
	Phase  model.Phase
	Reason string
}

func (e InvalidPhaseState) Error() string {
	return fmt.Sprintf("invalid phase state (phase=%s): %s", e.Phase, e.Reason)
}

// IntegrityHashMismatch is returned when a checkpoint is explicitly
// re-verified (rather than just loaded) and its hash no longer matches.
type IntegrityHashMismatch struct {
	Expected string
	Actual   string
}

func (e IntegrityHashMismatch) Error() string {
	return fmt.Sprintf("integrity hash mismatch: expected %s, actual %s", e.Expected, e.Actual)
}

// Checkpoint runs every structural check against cp and returns all
// violations found, in a stable order, rather than stopping at the
// first. An empty slice means cp is structurally sound.
func Checkpoint(cp model.Checkpoint) []error {
	var violations []error

	seen := make(map[string]int, cp.WorkItemState.TotalTrackedItems())
	countItem := func(id string) {
		seen[id]++
	}

	for _, item := range cp.WorkItemState.PendingItems {
		countItem(item.ID)
	}
	for id := range cp.WorkItemState.InProgressItems {
		countItem(id)
	}
	for id := range cp.WorkItemState.CompletedItems {
		countItem(id)
	}
	for id := range cp.WorkItemState.FailedItems {
		countItem(id)
	}

	for id, count := range seen {
		if count > 1 {
			violations = append(violations, WorkItemInMultipleStates{ItemID: id})
		}
	}

	// Duplicate ids within PendingItems specifically (the only bucket
	// that's a slice rather than a map, so it's the only one that can
	// name the same id twice on its own).
	pendingSeen := make(map[string]bool, len(cp.WorkItemState.PendingItems))
	for _, item := range cp.WorkItemState.PendingItems {
		if pendingSeen[item.ID] {
			violations = append(violations, DuplicateWorkItemID{ID: item.ID})
		}
		pendingSeen[item.ID] = true
	}

	if cp.Metadata.TotalWorkItems > 0 {
		actual := cp.WorkItemState.TotalTrackedItems()
		if actual != cp.Metadata.TotalWorkItems {
			violations = append(violations, WorkItemCountMismatch{
				Expected: cp.Metadata.TotalWorkItems,
				Actual:   actual,
			})
		}
	}

	for agentID := range cp.AgentState.AgentAssignments {
		if _, ok := cp.AgentState.ActiveAgents[agentID]; !ok {
			violations = append(violations, OrphanedAgentAssignment{AgentID: agentID})
		}
	}

	if cp.Metadata.Phase != "" && cp.ExecutionState.CurrentPhase != "" && cp.Metadata.Phase != cp.ExecutionState.CurrentPhase {
		violations = append(violations, InvalidPhaseState{
			Phase:  cp.Metadata.Phase,
			Reason: fmt.Sprintf("metadata.phase=%s but execution_state.current_phase=%s", cp.Metadata.Phase, cp.ExecutionState.CurrentPhase),
		})
	}

	if cp.Metadata.CompletedItems != len(cp.WorkItemState.CompletedItems) {
		violations = append(violations, InvalidPhaseState{
			Phase:  cp.Metadata.Phase,
			Reason: fmt.Sprintf("metadata.completed_items=%d but actual completed count=%d", cp.Metadata.CompletedItems, len(cp.WorkItemState.CompletedItems)),
		})
	}

	return violations
}

// ReverifyIntegrity re-derives cp's integrity hash and compares it to
// the stored value, returning an IntegrityHashMismatch if they differ.
// Separate from Checkpoint because re-hashing is only done on explicit
// request (e.g. a `prodigy dlq` or debugging command), not on every
// structural validation pass.
func ReverifyIntegrity(cp model.Checkpoint, recompute func(model.Checkpoint) (string, error)) error {
	expected := cp.IntegrityHash
	actual, err := recompute(cp)
	if err != nil {
		return err
	}
	if expected != actual {
		return IntegrityHashMismatch{Expected: expected, Actual: actual}
	}
	return nil
}
