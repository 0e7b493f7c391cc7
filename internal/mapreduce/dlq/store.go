// Package dlq implements the dead-letter queue: one JSON file per failed
// work item under <storage>/dlq/<repo>/<job_id>/items/<item_id>.json,
// guarded by an exclusive advisory file lock for read-modify-write
// re-enqueue.
//
// Grounded on the teacher's pkg/checkpoint/storage.go read-modify-write
// pattern (get, mutate, persist), adapted from session-state storage to
// per-item files, and on the merge-append resolution of the §9 open
// question: re-failing the same item id appends a new attempt record
// rather than overwriting history.
package dlq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Store manages DLQ items for one job.
type Store struct {
	layout storage.Layout
	jobID  string
}

// NewStore binds a Store to layout and jobID.
func NewStore(layout storage.Layout, jobID string) *Store {
	return &Store{layout: layout, jobID: jobID}
}

func (s *Store) itemPath(itemID string) string {
	return filepath.Join(s.layout.DLQItemsDir(s.jobID), itemID+".json")
}

// Enqueue records a failed attempt for item. If the item has no DLQ
// file yet, one is created (first_attempt_at = now). If it already
// exists, the new attempt is appended under an exclusive advisory lock
// so concurrent agents failing the same item never race a
// read-modify-write.
func (s *Store) Enqueue(item model.WorkItem, attempt model.DLQAttempt, now time.Time) error {
	dir := s.layout.DLQItemsDir(s.jobID)
	if err := storage.EnsureDir(dir); err != nil {
		return fmt.Errorf("create dlq items dir: %w", err)
	}

	path := s.itemPath(item.ID)
	unlock, err := lockFile(path)
	if err != nil {
		return fmt.Errorf("lock dlq item: %w", err)
	}
	defer unlock()

	existing, err := readItem(path)
	switch {
	case err == nil:
		existing.Attempts = append(existing.Attempts, attempt)
		existing.LastAttemptAt = now
		existing.WorkItem = item
		return writeItem(path, existing)
	case os.IsNotExist(err):
		fresh := model.DLQItem{
			WorkItem:       item,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
			Attempts:       []model.DLQAttempt{attempt},
		}
		return writeItem(path, fresh)
	default:
		return err
	}
}

// Get loads one DLQ item by id.
func (s *Store) Get(itemID string) (model.DLQItem, error) {
	path := s.itemPath(itemID)
	item, err := readItem(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.DLQItem{}, fmt.Errorf("%w: dlq item %s", mrerrors.ErrNotFound, itemID)
		}
		return model.DLQItem{}, err
	}
	return item, nil
}

// List returns every DLQ item for the job, sorted by item id.
func (s *Store) List() ([]model.DLQItem, error) {
	return s.Filter(model.DLQFilter{})
}

// Filter returns the DLQ items matching f, streamed from disk and
// filtered one at a time rather than loading then discarding, so a
// large DLQ doesn't require holding every item in memory at once before
// filtering.
func (s *Store) Filter(f model.DLQFilter) ([]model.DLQItem, error) {
	dir := s.layout.DLQItemsDir(s.jobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dlq items: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var matched []model.DLQItem
	for _, name := range names {
		item, err := readItem(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if f.Matches(item) {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

// Remove deletes a DLQ item's file, used once reprocessing has
// re-dispatched it successfully.
func (s *Store) Remove(itemID string) error {
	path := s.itemPath(itemID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: dlq item %s", mrerrors.ErrNotFound, itemID)
		}
		return fmt.Errorf("remove dlq item: %w", err)
	}
	return nil
}

func readItem(path string) (model.DLQItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DLQItem{}, err
	}
	var item model.DLQItem
	if err := json.Unmarshal(data, &item); err != nil {
		return model.DLQItem{}, fmt.Errorf("unmarshal dlq item: %w", err)
	}
	return item, nil
}

func writeItem(path string, item model.DLQItem) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq item: %w", err)
	}
	return storage.AtomicWriteFile(path, data, 0o644)
}
