package model

import "time"

// Phase is the coordinator's current position in the linear state
// machine described in the phase-coordinator design.
type Phase string

const (
	PhaseCreated  Phase = "created"
	PhaseSetup    Phase = "setup_running"
	PhaseMap      Phase = "map_running"
	PhaseReduce   Phase = "reduce_running"
	PhaseMerge    Phase = "merge_running"
	PhaseComplete Phase = "completed"
	PhasePaused   Phase = "paused"
	PhaseFailed   Phase = "failed"
)

// IsTerminal reports whether the phase machine has nothing left to do
// without explicit operator action (resume, etc).
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseComplete, PhaseFailed:
		return true
	}
	return false
}

// Checkpoint is the durable, versioned snapshot of a job's full state.
// It is the unit the checkpoint store reads and writes; JobState is an
// alias kept for readability at call sites that think in terms of "the
// job's state" rather than "the file on disk".
type Checkpoint struct {
	JobID          string `json:"job_id"`
	WorkflowHash   string `json:"workflow_hash"`
	WorkflowPath   string `json:"workflow_path"`
	Version        uint64 `json:"version"`
	IntegrityHash  string `json:"integrity_hash"`

	Metadata       Metadata       `json:"metadata"`
	WorkItemState  WorkItemState  `json:"work_item_state"`
	AgentState     AgentState     `json:"agent_state"`
	ExecutionState ExecutionState `json:"execution_state"`
	VariableState  map[string]any `json:"variable_state,omitempty"`
	CompletedSteps []StepRecord   `json:"completed_steps,omitempty"`
}

// JobState is Checkpoint under the name the spec uses when talking
// about in-memory state rather than the on-disk snapshot of it.
type JobState = Checkpoint

// Metadata carries the checkpoint's summary counters, kept distinct from
// the derived per-state slices so invariant checks have something
// independent to compare against (§8 invariant 1).
type Metadata struct {
	TotalWorkItems     int   `json:"total_work_items"`
	CompletedItems     int   `json:"completed_items"`
	TotalAgentsSpawned int   `json:"total_agents_spawned"`
	DLQCount           int   `json:"dlq_count"`
	Phase              Phase `json:"phase"`
}

// WorkItemState partitions every work item into exactly one of four
// disjoint sets.
type WorkItemState struct {
	PendingItems    []WorkItem          `json:"pending_items"`
	InProgressItems map[string]string   `json:"in_progress_items"` // item id -> agent id
	CompletedItems  map[string]AgentResult `json:"completed_items"` // item id -> result
	FailedItems     map[string]FailedItem  `json:"failed_items"`    // item id -> failure record
}

// FailedItem is a work item whose most recent attempt failed but whose
// retry budget is not yet exhausted (or is, pending DLQ enqueue).
type FailedItem struct {
	Item     WorkItem `json:"item"`
	Attempts int      `json:"attempts"`
	LastErr  string   `json:"last_error"`
}

// AgentState tracks which agents are live and what each was assigned.
type AgentState struct {
	ActiveAgents      map[string]AgentContext `json:"active_agents"`       // agent id -> context
	AgentAssignments  map[string][]string     `json:"agent_assignments"`   // agent id -> item ids
}

// AgentContext is the minimal context needed to recognize an
// in-progress agent on resume: when it started and which worktree it
// owns.
type AgentContext struct {
	AgentID       string    `json:"agent_id"`
	StartedAt     time.Time `json:"started_at"`
	WorktreeName  string    `json:"worktree_name"`
}

// ExecutionState is the phase-coordinator's own bookkeeping.
type ExecutionState struct {
	CurrentPhase     Phase     `json:"current_phase"`
	StartedAt        time.Time `json:"started_at"`
	LastCheckpointAt time.Time `json:"last_checkpoint_at"`
	Iteration        int       `json:"iteration"`
}

// StepRecord is a per-step success record for the setup/reduce/merge
// command sequences, so resume can skip steps already run.
type StepRecord struct {
	Name       string    `json:"name"`
	Index      int       `json:"index"`
	Succeeded  bool      `json:"succeeded"`
	FinishedAt time.Time `json:"finished_at"`
}

// TotalTrackedItems sums the four disjoint state buckets, the left-hand
// side of invariant 1 in the testable-properties section.
func (w WorkItemState) TotalTrackedItems() int {
	return len(w.PendingItems) + len(w.InProgressItems) + len(w.CompletedItems) + len(w.FailedItems)
}
