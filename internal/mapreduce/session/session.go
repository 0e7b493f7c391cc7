// Package session persists the small, fixed record a bare session id
// resolves to: which workflow file and repo it belongs to. The
// checkpoint store keys everything by (session_id, workflow_id), but
// `prodigy resume <session_id>` only has the session id to go on, so
// something has to remember the rest of what Run was invoked with.
//
// Grounded on the checkpoint package's own Save/Load split and
// storage.Layout.SessionFile, the one layout path spec.md §6 defines
// that nothing else in this module writes.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Record is what `run` writes at job start and `resume` reads back.
type Record struct {
	SessionID      string    `json:"session_id"`
	WorkflowID     string    `json:"workflow_id"`
	WorkflowPath   string    `json:"workflow_path"`
	RepoPath       string    `json:"repo_path"`
	OriginalBranch string    `json:"original_branch"`
	CreatedAt      time.Time `json:"created_at"`
}

// Save atomically writes rec to <root>/sessions/<session_id>.json.
func Save(root string, rec Record) error {
	layout := storage.NewLayout(root, "")
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := storage.AtomicWriteFile(layout.SessionFile(rec.SessionID), data, 0o644); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}

// Load reads the session record for sessionID.
func Load(root, sessionID string) (Record, error) {
	layout := storage.NewLayout(root, "")
	path := layout.SessionFile(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: session %q: %s", mrerrors.ErrNotFound, sessionID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: session %q record is corrupt: %s", mrerrors.ErrCorrupted, sessionID, err)
	}
	return rec, nil
}
