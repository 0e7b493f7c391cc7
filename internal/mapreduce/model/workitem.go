// Package model holds the data types shared across every MapReduce
// component: work items, agent results, job/checkpoint state, DLQ
// records, event records, and worktree sessions. Keeping them in one
// leaf package (grounded on the teacher's checkpoint.State /
// checkpoint.AgentStateSnapshot split of "identity" vs "snapshot" data)
// lets the checkpoint, DLQ, event, pool, and coordinator packages share
// a vocabulary without importing each other.
package model

import (
	"encoding/json"
	"time"
)

// WorkItemStatus is the disjoint state a WorkItem occupies.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemFailed     WorkItemStatus = "failed"
)

// WorkItem is a unit of map-phase parallelism produced by the data
// pipeline. Data is the raw JSON payload addressable via ${item....}
// paths; it is opaque to everything except the variable engine.
type WorkItem struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`

	Status WorkItemStatus `json:"status"`

	// Populated depending on Status.
	AgentID   string     `json:"agent_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`

	Result *AgentResult `json:"result,omitempty"`

	Attempts int    `json:"attempts"`
	LastErr  string `json:"last_error,omitempty"`
}

// Clone returns a deep-enough copy for safe concurrent hand-off: the
// JSON payload is immutable once set, so only the mutable status fields
// need copying.
func (w WorkItem) Clone() WorkItem {
	clone := w
	if w.StartedAt != nil {
		t := *w.StartedAt
		clone.StartedAt = &t
	}
	if w.Result != nil {
		r := *w.Result
		clone.Result = &r
	}
	return clone
}

// AgentResultStatus is the terminal outcome of one agent run.
type AgentResultStatus string

const (
	AgentSuccess   AgentResultStatus = "success"
	AgentFailed    AgentResultStatus = "failed"
	AgentTimeout   AgentResultStatus = "timeout"
	AgentCancelled AgentResultStatus = "cancelled"
)

// AgentResult is the outcome of one agent execution against one work
// item.
type AgentResult struct {
	ItemID string            `json:"item_id"`
	Status AgentResultStatus `json:"status"`
	Error  string            `json:"error,omitempty"`

	Output  string   `json:"output,omitempty"`
	Commits []string `json:"commits,omitempty"`

	Duration time.Duration `json:"duration"`

	WorktreePath  string   `json:"worktree_path,omitempty"`
	BranchName    string   `json:"branch_name,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
}

// IsTerminalSuccess reports whether r represents a successfully
// completed attempt, with no further retry possible or needed.
func (r AgentResult) IsTerminalSuccess() bool {
	return r.Status == AgentSuccess
}
