package model

import "time"

// WorktreeSession describes one live (or recently removed) git worktree.
// Sessions form a two-level tree: one parent per job, N agent children
// per parent, represented flat with a ParentSession back-reference
// rather than a strong ownership cycle (spec §9 design note).
type WorktreeSession struct {
	Name          string    `json:"name"`
	Branch        string    `json:"branch"`
	Path          string    `json:"path"`
	CreatedAt     time.Time `json:"created_at"`
	ParentSession string    `json:"parent_session,omitempty"`
	CleanedUp     bool      `json:"cleaned_up"`
}

// IsParent reports whether this session has no parent of its own, i.e.
// it is the one session-scoped worktree a job's Setup/Reduce/Merge
// phases run inside.
func (s WorktreeSession) IsParent() bool {
	return s.ParentSession == ""
}
