// Package event implements the append-only JSONL event log: one
// append-mode file per second-resolution writer start time under
// <storage>/events/<repo>/<job_id>/events-<timestamp>.jsonl, readable by
// concurrently tailing or merging every file in the directory.
//
// Grounded on the teacher's pkg/context/checkpoint.go mutex-guarded
// JSON-file pattern, generalized from "one struct, rewritten whole" to
// "one record, appended", and on the retention/archival semantics of
// the source's cook/execution/events/retention.rs.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
)

// Writer appends Event records to one JSONL file. Safe for concurrent
// use from multiple goroutines within the owning process; multiple
// *processes* each get their own Writer (and their own file unless
// opened within the same second), and readers merge.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewWriter opens (creating if needed) an append-mode event file for
// jobID under layout's events directory, named with the current time to
// the second. Writers opened within the same second get the same name
// and append to one shared file.
func NewWriter(layout storage.Layout, jobID string, now time.Time) (*Writer, error) {
	dir := layout.EventsDir(jobID)
	if err := storage.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}

	name := fmt.Sprintf("events-%s.jsonl", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &Writer{file: f, path: path}, nil
}

// Path returns the file this writer appends to.
func (w *Writer) Path() string { return w.path }

// Append serializes and appends one event record, terminated with a
// newline, under the writer's mutex so concurrent Append calls from
// goroutines in this process never interleave partial lines.
func (w *Writer) Append(ev model.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync event log: %w", err)
	}
	return w.file.Close()
}

// Emit is a convenience constructor + append: build an Event with the
// common envelope filled in and append it in one call, the shape most
// coordinator/pool call sites want.
func (w *Writer) Emit(jobID string, eventType model.EventType, agentID, itemID string, data map[string]any, now time.Time) error {
	return w.Append(model.Event{
		Timestamp:     now,
		EventType:     eventType,
		JobID:         jobID,
		CorrelationID: jobID,
		AgentID:       agentID,
		ItemID:        itemID,
		Data:          data,
	})
}
