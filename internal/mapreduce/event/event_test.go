package event

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
)

func testLayout(t *testing.T) storage.Layout {
	t.Helper()
	return storage.NewLayout(t.TempDir(), "repo")
}

func TestWriterAppendAndRead(t *testing.T) {
	layout := testLayout(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	w, err := NewWriter(layout, "job-1", now)
	require.NoError(t, err)

	require.NoError(t, w.Emit("job-1", model.EventJobStarted, "", "", nil, now))
	require.NoError(t, w.Emit("job-1", model.EventAgentStarted, "agent-1", "item-1", map[string]any{"x": 1.0}, now.Add(time.Second)))
	require.NoError(t, w.Close())

	events, err := ReadFile(w.Path())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, model.EventJobStarted, events[0].EventType)
	require.Equal(t, "agent-1", events[1].AgentID)
}

func TestMergeDirOrdersByTimestamp(t *testing.T) {
	layout := testLayout(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w1, err := NewWriter(layout, "job-1", base)
	require.NoError(t, err)
	require.NoError(t, w1.Emit("job-1", model.EventJobStarted, "", "", nil, base.Add(2*time.Second)))
	require.NoError(t, w1.Close())

	w2, err := NewWriter(layout, "job-1", base.Add(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w2.Emit("job-1", model.EventAgentStarted, "a1", "i1", nil, base.Add(time.Second)))
	require.NoError(t, w2.Close())

	events, err := MergeDir(layout.EventsDir("job-1"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].Timestamp.Before(events[1].Timestamp))
	require.Equal(t, model.EventAgentStarted, events[0].EventType)
}

func TestRetentionMaxEventsEvictsOldest(t *testing.T) {
	layout := testLayout(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w, err := NewWriter(layout, "job-1", base)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Emit("job-1", model.EventAgentProgress, "", "", nil, base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, w.Close())

	maxEvents := 2
	retained, evicted, err := Apply(w.Path(), RetentionPolicy{MaxEvents: &maxEvents}, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, retained)
	require.Equal(t, 3, evicted)

	events, err := ReadFile(w.Path())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, base.Add(3*time.Second), events[0].Timestamp)
	require.Equal(t, base.Add(4*time.Second), events[1].Timestamp)
}

func TestRetentionArchivesEvictedEvents(t *testing.T) {
	layout := testLayout(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w, err := NewWriter(layout, "job-1", base)
	require.NoError(t, err)
	require.NoError(t, w.Emit("job-1", model.EventAgentProgress, "", "", nil, base))
	require.NoError(t, w.Close())

	archivePath := filepath.Join(layout.EventsDir("job-1"), "archive.jsonl")
	maxEvents := 0
	_, evicted, err := Apply(w.Path(), RetentionPolicy{
		MaxEvents:        &maxEvents,
		ArchiveOldEvents: true,
		ArchivePath:      archivePath,
	}, base)
	require.NoError(t, err)
	require.Equal(t, 1, evicted)

	archived, err := ReadFile(archivePath)
	require.NoError(t, err)
	require.Len(t, archived, 1)
}
