package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseinmoussa/jml-tasks/internal/fileutil"
	"github.com/hseinmoussa/jml-tasks/internal/lock"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
)

func newSession(t *testing.T, id string) *taskgraph.Session {
	t.Helper()
	s, err := taskgraph.NewSession(taskgraph.SessionStart{
		EmployeeLabel: "Jane Doe",
		ProcessType:   taskgraph.ProcessJoiner,
		StartDate:     time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC),
		Tasks: []taskgraph.Task{
			{ID: "1", Title: "Contract", Category: taskgraph.CategoryDocumentation},
			{ID: "2", Title: "AD account", Category: taskgraph.CategorySystemAccess},
			{ID: "3", Title: "Laptop", Category: taskgraph.CategoryEquipment},
		},
	}, taskgraph.WithSessionID(id))
	require.NoError(t, err)
	return s
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestCreateLoad_RoundTrip(t *testing.T) {
	st := New(t.TempDir())
	sess := newSession(t, "s1")
	require.NoError(t, sess.AddDependency("2", "1"))

	require.NoError(t, st.Create(sess))

	got, err := st.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, sess.Tasks(), got.Tasks())
	assert.Equal(t, "Jane Doe", got.EmployeeLabel())
	assert.True(t, got.StartDate().Equal(sess.StartDate()))
	assert.True(t, got.WouldCreateCycle("1", "2"))
}

func TestCreate_RefusesReusedID(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Create(newSession(t, "s1")))

	err := st.Create(newSession(t, "s1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestLoad_NotFound(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Load("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_CorruptSnapshotWithCycle(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	sess := newSession(t, "s1")
	require.NoError(t, st.Create(sess))

	snap := sess.Snapshot()
	snap.Tasks[0].DependsOn = []string{"2"}
	snap.Tasks[1].DependsOn = []string{"1"}
	require.NoError(t, fileutil.WriteJSON(st.snapshotPath("s1"), snap))

	_, err := st.Load("s1")
	assert.ErrorIs(t, err, taskgraph.ErrCycle)
}

func TestUpdate_SavesAndJournals(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Create(newSession(t, "s1")))

	err := st.Update(ctx(t), "s1", "dep add", func(s *taskgraph.Session) error {
		if err := s.AddDependency("3", "2"); err != nil {
			return err
		}
		return s.SetSelected("1", false)
	})
	require.NoError(t, err)

	got, err := st.Load("s1")
	require.NoError(t, err)
	task3, _ := got.Task("3")
	assert.Equal(t, []string{"2"}, task3.DependsOn)
	assert.True(t, task3.IsConfigured)

	events, err := st.ReadJournal("s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, taskgraph.OpAddDependency, events[0].Op)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, taskgraph.OpDeselect, events[1].Op)
}

func TestUpdate_FailureWritesNothing(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Create(newSession(t, "s1")))
	require.NoError(t, st.Update(ctx(t), "s1", "dep add", func(s *taskgraph.Session) error {
		return s.AddDependency("2", "1")
	}))

	err := st.Update(ctx(t), "s1", "dep add", func(s *taskgraph.Session) error {
		if err := s.UpdateTask("3", taskgraph.Patch{}); err != nil {
			return err
		}
		return s.AddDependency("1", "2")
	})
	require.ErrorIs(t, err, taskgraph.ErrCycle)

	got, _ := st.Load("s1")
	task3, _ := got.Task("3")
	assert.False(t, task3.IsConfigured, "partial changes of a failed command must not persist")

	events, _ := st.ReadJournal("s1")
	assert.Len(t, events, 1)
}

func TestUpdate_WaitsForLock(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Create(newSession(t, "s1")))

	held, err := st.Lock(ctx(t), "s1", "session show")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = st.Update(short, "s1", "task set", func(*taskgraph.Session) error { return nil })
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, held.Release())
	require.NoError(t, st.Update(ctx(t), "s1", "task set", func(*taskgraph.Session) error { return nil }))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	first := newSession(t, "b-first")
	require.NoError(t, first.UpdateTask("1", taskgraph.Patch{}))
	require.NoError(t, st.Create(first))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, st.Create(newSession(t, "a-second")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions", "junk.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions", "b-first.lock"), []byte("{}"), 0644))

	got, err := st.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-first", got[0].ID)
	assert.Equal(t, taskgraph.Progress{Configured: 1, Total: 3}, got[0].Progress)
	assert.Equal(t, "a-second", got[1].ID)
}

func TestList_EmptyStore(t *testing.T) {
	got, err := New(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJournal_SkipsMalformedLines(t *testing.T) {
	st := New(t.TempDir())
	ev := taskgraph.Event{SessionID: "s1", Op: taskgraph.OpOpen, At: time.Now().UTC()}
	require.NoError(t, st.AppendJournal("s1", ev))
	require.NoError(t, lock.Append(st.journalPath("s1"), []byte("not json\n\n")))
	require.NoError(t, st.AppendJournal("s1", taskgraph.Event{SessionID: "s1", Op: taskgraph.OpCancel}))

	events, err := st.ReadJournal("s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, taskgraph.OpOpen, events[0].Op)
	assert.Equal(t, taskgraph.OpCancel, events[1].Op)

	none, err := st.ReadJournal("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppendJournal_NoEventsNoFile(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.AppendJournal("s1"))
	_, err := os.Stat(st.journalPath("s1"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
