// Package checkpoint persists versioned, hashed JobState snapshots
// keyed by (session_id, workflow_id), enabling resume.
//
// Grounded on the teacher's pkg/checkpoint package: the same
// Phase-style enums on the state type (here, model.Checkpoint lives in
// the model package so other components can reference it without
// importing checkpoint). The teacher's With* builders and its
// Serialize/Deserialize split are not carried over: Save and Load
// marshal model.Checkpoint with encoding/json directly. Adapted from session-state
// storage (pkg/checkpoint/storage.go) to the spec's file-based,
// write-temp-fsync-rename atomic layout.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mapreduce/validate"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Store reads and writes checkpoint files under a Layout.
type Store struct {
	layout storage.Layout
}

// NewStore builds a Store bound to layout.
func NewStore(layout storage.Layout) *Store {
	return &Store{layout: layout}
}

// Save validates cp, bumps its version, recomputes its integrity hash,
// and atomically writes it to
// <storage>/state/<session_id>/checkpoints/<workflow_id>.checkpoint.json.
//
// currentVersion is the version the caller last observed (0 for a new
// checkpoint); if the file on disk has moved past it, Save fails with
// ErrVersionMismatch rather than silently clobbering a concurrent
// writer's progress.
func (s *Store) Save(sessionID, workflowID string, cp model.Checkpoint, currentVersion uint64) (model.Checkpoint, error) {
	if violations := validate.Checkpoint(cp); len(violations) > 0 {
		return model.Checkpoint{}, fmt.Errorf("%w: %s", mrerrors.ErrConfiguration, joinViolations(violations))
	}

	path := s.layout.CheckpointFile(sessionID, workflowID)
	if existing, err := s.readRaw(path); err == nil {
		if existing.Version != currentVersion {
			return model.Checkpoint{}, fmt.Errorf("%w: on-disk version %d, expected %d", mrerrors.ErrVersionMismatch, existing.Version, currentVersion)
		}
	} else if !errors.Is(err, mrerrors.ErrNotFound) {
		return model.Checkpoint{}, err
	}

	cp.Version = currentVersion + 1
	hash, err := CanonicalHash(cp)
	if err != nil {
		return model.Checkpoint{}, err
	}
	cp.IntegrityHash = hash

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := storage.AtomicWriteFile(path, data, 0o644); err != nil {
		return model.Checkpoint{}, fmt.Errorf("write checkpoint: %w", err)
	}
	return cp, nil
}

// Load reads the checkpoint for (sessionID, workflowID) and verifies its
// integrity hash still matches its contents.
func (s *Store) Load(sessionID, workflowID string) (model.Checkpoint, error) {
	path := s.layout.CheckpointFile(sessionID, workflowID)
	cp, err := s.readRaw(path)
	if err != nil {
		return model.Checkpoint{}, err
	}

	expected := cp.IntegrityHash
	actual, err := CanonicalHash(cp)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if expected != actual {
		return model.Checkpoint{}, fmt.Errorf("%w: expected %s, actual %s", mrerrors.ErrCorrupted, expected, actual)
	}
	return cp, nil
}

func (s *Store) readRaw(path string) (model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, fmt.Errorf("%w: %s", mrerrors.ErrNotFound, path)
		}
		return model.Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// List returns the workflow ids with a checkpoint under sessionID.
func (s *Store) List(sessionID string) ([]string, error) {
	dir := s.layout.CheckpointsDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var ids []string
	const suffix = ".checkpoint.json"
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), suffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the checkpoint file for (sessionID, workflowID).
func (s *Store) Delete(sessionID, workflowID string) error {
	path := s.layout.CheckpointFile(sessionID, workflowID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", mrerrors.ErrNotFound, path)
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func joinViolations(violations []error) string {
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}
