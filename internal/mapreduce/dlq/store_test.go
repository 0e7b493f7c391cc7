package dlq

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

func TestEnqueueCreatesNewItem(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	item := model.WorkItem{ID: "item-1"}
	attempt := model.DLQAttempt{Error: "boom", AgentID: "agent-1", Timestamp: now}

	require.NoError(t, store.Enqueue(item, attempt, now))

	got, err := store.Get("item-1")
	require.NoError(t, err)
	assert.Equal(t, now, got.FirstAttemptAt)
	assert.Len(t, got.Attempts, 1)
	assert.Equal(t, "boom", got.Attempts[0].Error)
}

func TestEnqueueMergesAppendsOnRefail(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	item := model.WorkItem{ID: "item-1"}

	require.NoError(t, store.Enqueue(item, model.DLQAttempt{Error: "first", Timestamp: t1}, t1))
	require.NoError(t, store.Enqueue(item, model.DLQAttempt{Error: "second", Timestamp: t2}, t2))

	got, err := store.Get("item-1")
	require.NoError(t, err)
	assert.Equal(t, t1, got.FirstAttemptAt)
	assert.Equal(t, t2, got.LastAttemptAt)
	require.Len(t, got.Attempts, 2)
	assert.Equal(t, "first", got.Attempts[0].Error)
	assert.Equal(t, "second", got.Attempts[1].Error)
}

func TestGetNotFound(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	_, err := store.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mrerrors.ErrNotFound))
}

func TestListSortedByID(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	now := time.Now()
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "b"}, model.DLQAttempt{Error: "x"}, now))
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "a"}, model.DLQAttempt{Error: "y"}, now))

	items, err := store.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].WorkItem.ID)
	assert.Equal(t, "b", items[1].WorkItem.ID)
}

func TestFilterByErrorSubstringAndMinAttempts(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	now := time.Now()
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "a"}, model.DLQAttempt{Error: "rate limit exceeded"}, now))
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "b"}, model.DLQAttempt{Error: "syntax error"}, now))
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "b"}, model.DLQAttempt{Error: "syntax error again"}, now.Add(time.Minute)))

	rateLimited, err := store.Filter(model.DLQFilter{ErrorSubstring: "RATE LIMIT"})
	require.NoError(t, err)
	require.Len(t, rateLimited, 1)
	assert.Equal(t, "a", rateLimited[0].WorkItem.ID)

	multiAttempt, err := store.Filter(model.DLQFilter{MinAttempts: 2})
	require.NoError(t, err)
	require.Len(t, multiAttempt, 1)
	assert.Equal(t, "b", multiAttempt[0].WorkItem.ID)
}

func TestRemoveDeletesItem(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	now := time.Now()
	require.NoError(t, store.Enqueue(model.WorkItem{ID: "a"}, model.DLQAttempt{Error: "x"}, now))
	require.NoError(t, store.Remove("a"))

	_, err := store.Get("a")
	assert.True(t, errors.Is(err, mrerrors.ErrNotFound))

	err = store.Remove("a")
	assert.True(t, errors.Is(err, mrerrors.ErrNotFound))
}

func TestListEmptyDLQReturnsNilNoError(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "repo")
	store := NewStore(layout, "job-1")

	items, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}
