// Package worktree creates, tracks, and removes the git worktrees that
// isolate a job's parent phase (Setup/Reduce/Merge) from its per-agent
// map-phase work.
//
// Grounded on original_source/src/cook/git_ops.rs for the
// create/merge/remove command sequences and merge-conflict detection,
// and on the teacher's pkg/runtime subprocess-runner injection pattern
// (an interface plus a fake, no global singleton) and
// pkg/component/manager.go's mutex-guarded in-memory registry style.
package worktree

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Manager owns the in-memory registry of live worktree sessions for one
// job, plus the git operations that create and retire them.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]model.WorktreeSession

	runner subprocess.Runner
	layout storage.Layout
	now    func() time.Time
}

// NewManager builds a Manager. now defaults to time.Now when nil.
func NewManager(runner subprocess.Runner, layout storage.Layout, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[string]model.WorktreeSession),
		runner:   runner,
		layout:   layout,
		now:      now,
	}
}

func parentBranch(sessionID string) string { return "prodigy-session-" + sessionID }
func childBranch(sessionID, agentID string) string {
	return fmt.Sprintf("prodigy-agent-%s-%s", sessionID, agentID)
}

// ParentBranchName exposes the parent-session branch naming scheme to
// callers that need to rehydrate a session without creating it (a
// resumed job's worktree already exists on disk from the interrupted
// run).
func ParentBranchName(sessionID string) string { return parentBranch(sessionID) }

// Rehydrate registers a worktree session the caller knows already
// exists on disk (from a prior, interrupted process) without shelling
// out to git, so a resumed job can address it through the same registry
// CreateParent/CreateChild use.
func (m *Manager) Rehydrate(session model.WorktreeSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.Name]; exists {
		return fmt.Errorf("%w: worktree session %q already live", mrerrors.ErrConfiguration, session.Name)
	}
	m.sessions[session.Name] = session
	return nil
}

// CreateParent creates the one session-scoped worktree a job's
// Setup/Reduce/Merge phases run inside, branched from originalBranch.
func (m *Manager) CreateParent(ctx context.Context, sessionID, repoPath, originalBranch string) (model.WorktreeSession, error) {
	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return model.WorktreeSession{}, fmt.Errorf("%w: worktree session %q already live", mrerrors.ErrConfiguration, sessionID)
	}
	m.mu.Unlock()

	branch := parentBranch(sessionID)
	path := m.layout.WorktreesDir(sessionID)

	res, err := m.runner.Run(ctx, repoPath, nil, "git", "worktree", "add", path, "-b", branch, originalBranch)
	if err != nil {
		return model.WorktreeSession{}, fmt.Errorf("create parent worktree: %w", err)
	}
	if res.ExitCode != 0 {
		return model.WorktreeSession{}, fmt.Errorf("%w: git worktree add failed: %s", mrerrors.ErrConfiguration, res.Stderr)
	}

	session := model.WorktreeSession{
		Name:      sessionID,
		Branch:    branch,
		Path:      path,
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()
	return session, nil
}

// CreateChild creates one agent's worktree, branched from the parent's
// branch, at the parent worktree's path plus "-<agentID>": a sibling
// of the parent worktree's directory, not nested inside it. The parent
// must be a currently live session.
func (m *Manager) CreateChild(ctx context.Context, parent model.WorktreeSession, agentID string) (model.WorktreeSession, error) {
	m.mu.Lock()
	live, ok := m.sessions[parent.Name]
	if !ok || live.CleanedUp {
		m.mu.Unlock()
		return model.WorktreeSession{}, fmt.Errorf("%w: parent session %q is not live", mrerrors.ErrConfiguration, parent.Name)
	}
	childName := parent.Name + "-" + agentID
	if _, exists := m.sessions[childName]; exists {
		m.mu.Unlock()
		return model.WorktreeSession{}, fmt.Errorf("%w: worktree session %q already live", mrerrors.ErrConfiguration, childName)
	}
	m.mu.Unlock()

	branch := childBranch(parent.Name, agentID)
	path := live.Path + "-" + agentID

	res, err := m.runner.Run(ctx, live.Path, nil, "git", "worktree", "add", path, "-b", branch, live.Branch)
	if err != nil {
		return model.WorktreeSession{}, fmt.Errorf("create child worktree: %w", err)
	}
	if res.ExitCode != 0 {
		return model.WorktreeSession{}, fmt.Errorf("%w: git worktree add failed: %s", mrerrors.ErrConfiguration, res.Stderr)
	}

	session := model.WorktreeSession{
		Name:          childName,
		Branch:        branch,
		Path:          path,
		CreatedAt:     m.now(),
		ParentSession: parent.Name,
	}
	m.mu.Lock()
	m.sessions[childName] = session
	m.mu.Unlock()
	return session, nil
}

// MergeStep is one command of a user-defined merge workflow, run with
// merge-scope variables already interpolated by the caller (the
// variable engine owns template expansion; this package only executes).
type MergeStep struct {
	Command string
}

// MergeSession merges session's branch into targetBranch, which lives
// in the worktree at targetDir (the parent worktree's directory for a
// child session, or the original repo for the parent session merging
// up). If workflow is non-empty, those commands run instead of a plain
// git merge — the caller is responsible for interpolating
// ${merge.worktree}/${merge.source_branch}/${merge.target_branch}/${merge.session_id}
// into each Command before calling.
//
// On conflict the worktree is left untouched and the error wraps
// mrerrors.ErrMergeConflict with the conflicting file list.
func (m *Manager) MergeSession(ctx context.Context, session model.WorktreeSession, targetDir, targetBranch string, workflow []MergeStep) error {
	if len(workflow) > 0 {
		for _, step := range workflow {
			res, err := subprocess.Shell(ctx, m.runner, targetDir, nil, step.Command)
			if err != nil {
				return fmt.Errorf("run merge workflow step: %w", err)
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("%w: merge workflow step failed (exit %d): %s", mrerrors.ErrConfiguration, res.ExitCode, res.Stderr)
			}
		}
		return nil
	}

	res, err := m.runner.Run(ctx, targetDir, nil, "git", "merge", "--no-edit", session.Branch)
	if err != nil {
		return fmt.Errorf("git merge: %w", err)
	}
	if res.ExitCode == 0 {
		return nil
	}

	files, statusErr := m.conflictedFiles(ctx, targetDir)
	if statusErr != nil {
		return fmt.Errorf("%w: merge failed and conflict detection errored: %s", mrerrors.ErrMergeConflict, statusErr)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: git merge failed: %s", mrerrors.ErrConfiguration, res.Stderr)
	}
	return fmt.Errorf("%w: %s", mrerrors.ErrMergeConflict, strings.Join(files, ", "))
}

func (m *Manager) conflictedFiles(ctx context.Context, dir string) ([]string, error) {
	res, err := m.runner.Run(ctx, dir, nil, "git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// RemoveSession removes the worktree directory and deletes its branch.
// Removing a parent session requires every child of it to already be
// marked cleaned up.
func (m *Manager) RemoveSession(ctx context.Context, name string, force bool) error {
	m.mu.Lock()
	session, ok := m.sessions[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: worktree session %q", mrerrors.ErrNotFound, name)
	}
	if session.IsParent() {
		for _, other := range m.sessions {
			if other.ParentSession == name && !other.CleanedUp {
				m.mu.Unlock()
				return fmt.Errorf("%w: session %q has a live child %q", mrerrors.ErrConfiguration, name, other.Name)
			}
		}
	}
	m.mu.Unlock()

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, session.Path)

	repoRoot := session.Path
	if !session.IsParent() {
		if parent, ok := m.Get(session.ParentSession); ok {
			repoRoot = parent.Path
		}
	}

	res, err := m.runner.Run(ctx, repoRoot, nil, "git", args...)
	if err != nil {
		return fmt.Errorf("git worktree remove: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: git worktree remove failed: %s", mrerrors.ErrConfiguration, res.Stderr)
	}

	if res, err := m.runner.Run(ctx, repoRoot, nil, "git", "branch", "-D", session.Branch); err != nil {
		return fmt.Errorf("git branch -D: %w", err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("%w: git branch -D failed: %s", mrerrors.ErrConfiguration, res.Stderr)
	}

	m.mu.Lock()
	session.CleanedUp = true
	m.sessions[name] = session
	m.mu.Unlock()
	return nil
}

// ParentWorktreePath returns the on-disk path a parent session for
// sessionID would live at, without requiring the session to be live —
// used by resume to rehydrate a session whose worktree directory
// survived a process restart.
func (m *Manager) ParentWorktreePath(sessionID string) string {
	return m.layout.WorktreesDir(sessionID)
}

// Get returns the registered session by name.
func (m *Manager) Get(name string) (model.WorktreeSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// List returns every registered session, sorted by name, for inspection
// and tests.
func (m *Manager) List() []model.WorktreeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WorktreeSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
