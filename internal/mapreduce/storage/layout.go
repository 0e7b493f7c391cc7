// Package storage centralizes the on-disk layout under
// ${PRODIGY_HOME:-~/.prodigy}, so the event, checkpoint, DLQ, and
// worktree packages never hand-roll a path.
package storage

import (
	"os"
	"path/filepath"
)

// Root resolves the storage root: PRODIGY_HOME if set, otherwise
// ~/.prodigy.
func Root() string {
	if home := os.Getenv("PRODIGY_HOME"); home != "" {
		return home
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".prodigy"
	}
	return filepath.Join(homeDir, ".prodigy")
}

// RepoName returns the basename of the canonicalized project path, used
// as the repo-scoped path segment for events and the DLQ.
func RepoName(projectPath string) (string, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Project path may not exist yet in tests; fall back to the
		// absolute form rather than failing the whole lookup.
		resolved = abs
	}
	return filepath.Base(resolved), nil
}

// Layout is a Root bound to one repo, so call sites don't repeat
// filepath.Join(root, "events", repo, ...) everywhere.
type Layout struct {
	root string
	repo string
}

// NewLayout builds a Layout from an explicit root (PRODIGY_HOME override
// or Root()) and repo name.
func NewLayout(root, repo string) Layout {
	return Layout{root: root, repo: repo}
}

// EventsDir is <root>/events/<repo>/<job_id>/.
func (l Layout) EventsDir(jobID string) string {
	return filepath.Join(l.root, "events", l.repo, jobID)
}

// CheckpointsDir is <root>/state/<session_id>/checkpoints/.
func (l Layout) CheckpointsDir(sessionID string) string {
	return filepath.Join(l.root, "state", sessionID, "checkpoints")
}

// CheckpointFile is <root>/state/<session_id>/checkpoints/<workflow_id>.checkpoint.json.
func (l Layout) CheckpointFile(sessionID, workflowID string) string {
	return filepath.Join(l.CheckpointsDir(sessionID), workflowID+".checkpoint.json")
}

// SessionFile is <root>/sessions/<session_id>.json.
func (l Layout) SessionFile(sessionID string) string {
	return filepath.Join(l.root, "sessions", sessionID+".json")
}

// DLQItemsDir is <root>/dlq/<repo>/<job_id>/items/.
func (l Layout) DLQItemsDir(jobID string) string {
	return filepath.Join(l.root, "dlq", l.repo, jobID, "items")
}

// WorktreesDir is <root>/worktrees/<repo>/<session_id>/.
func (l Layout) WorktreesDir(sessionID string) string {
	return filepath.Join(l.root, "worktrees", l.repo, sessionID)
}

// EnsureDir creates dir (and parents) if it doesn't already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
