package checkpoint

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

func validCheckpoint() model.Checkpoint {
	return model.Checkpoint{
		JobID:        "job-1",
		WorkflowPath: "workflow.yml",
		Metadata: model.Metadata{
			TotalWorkItems: 1,
			Phase:          model.PhaseMap,
		},
		WorkItemState: model.WorkItemState{
			PendingItems: []model.WorkItem{{ID: "item-1"}},
		},
		ExecutionState: model.ExecutionState{
			CurrentPhase: model.PhaseMap,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	saved, err := store.Save("session-1", "workflow-1", validCheckpoint(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.Version)
	assert.NotEmpty(t, saved.IntegrityHash)

	loaded, err := store.Load("session-1", "workflow-1")
	require.NoError(t, err)
	assert.Equal(t, saved.IntegrityHash, loaded.IntegrityHash)
	assert.Equal(t, saved.Version, loaded.Version)
}

func TestSaveRejectsStructurallyInvalidCheckpoint(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	bad := validCheckpoint()
	bad.Metadata.TotalWorkItems = 99

	_, err := store.Save("session-1", "workflow-1", bad, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, mrerrors.ErrConfiguration)
}

func TestSaveDetectsVersionMismatch(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	_, err := store.Save("session-1", "workflow-1", validCheckpoint(), 0)
	require.NoError(t, err)

	// Caller still thinks it's at version 0, but a save already bumped
	// it to 1 — this must refuse rather than clobber.
	_, err = store.Save("session-1", "workflow-1", validCheckpoint(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, mrerrors.ErrVersionMismatch)
}

func TestLoadDetectsCorruption(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	saved, err := store.Save("session-1", "workflow-1", validCheckpoint(), 0)
	require.NoError(t, err)

	// Tamper with the on-disk file without updating the hash.
	path := layout.CheckpointFile("session-1", "workflow-1")
	tampered := saved
	tampered.Metadata.CompletedItems = 1000
	data, err := json.MarshalIndent(tampered, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Load("session-1", "workflow-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, mrerrors.ErrCorrupted)
}

func TestLoadNotFound(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	_, err := store.Load("no-such-session", "workflow-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mrerrors.ErrNotFound))
}

func TestListAndDelete(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout)

	_, err := store.Save("session-1", "workflow-a", validCheckpoint(), 0)
	require.NoError(t, err)
	_, err = store.Save("session-1", "workflow-b", validCheckpoint(), 0)
	require.NoError(t, err)

	ids, err := store.List("session-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow-a", "workflow-b"}, ids)

	require.NoError(t, store.Delete("session-1", "workflow-a"))
	ids, err = store.List("session-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow-b"}, ids)
}

func TestIntegrityHashStableAcrossSerialization(t *testing.T) {
	// §8 invariant 5: integrity_hash(save(x)) == integrity_hash(x)
	cp := validCheckpoint()
	h1, err := CanonicalHash(cp)
	require.NoError(t, err)
	data, err := json.Marshal(cp)
	require.NoError(t, err)
	var decoded model.Checkpoint
	require.NoError(t, json.Unmarshal(data, &decoded))
	h2, err := CanonicalHash(decoded)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
