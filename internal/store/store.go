// Package store persists configuration sessions between CLI invocations.
//
// Layout under the base directory:
//
//	sessions/<id>.json   snapshot, replaced atomically after every change
//	sessions/<id>.lock   held while a command loads, mutates and saves
//	journal/<id>.jsonl   one line per applied gateway operation
//	results/<id>.<fmt>   confirmed output, written by the handoff package
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/fileutil"
	"github.com/hseinmoussa/jml-tasks/internal/lock"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
)

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("session not found")

// lockPoll is how often a contended session lock is retried.
const lockPoll = 100 * time.Millisecond

// Store reads and writes sessions under a base directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. Directories are created on demand.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) sessionsDir() string { return filepath.Join(s.dir, "sessions") }
func (s *Store) journalDir() string  { return filepath.Join(s.dir, "journal") }

// ResultsDir is where confirmed results are written.
func (s *Store) ResultsDir() string { return filepath.Join(s.dir, "results") }

func (s *Store) snapshotPath(id string) string {
	return filepath.Join(s.sessionsDir(), id+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.sessionsDir(), id+".lock")
}

func (s *Store) journalPath(id string) string {
	return filepath.Join(s.journalDir(), id+".jsonl")
}

// TempDirs lists the directories atomic writes leave temp files in.
func (s *Store) TempDirs() []string {
	return []string{s.dir, s.sessionsDir(), s.ResultsDir()}
}

// Create persists a new session. It fails if the id was ever used before.
func (s *Store) Create(sess *taskgraph.Session) error {
	err := fileutil.CreateJSON(s.snapshotPath(sess.ID()), sess.Snapshot())
	if errors.Is(err, fileutil.ErrExists) {
		return fmt.Errorf("session %s already exists", sess.ID())
	}
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID(), err)
	}
	return nil
}

// Save replaces the stored snapshot of sess.
func (s *Store) Save(sess *taskgraph.Session) error {
	if err := fileutil.WriteJSON(s.snapshotPath(sess.ID()), sess.Snapshot()); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID(), err)
	}
	return nil
}

// Load restores a session from its snapshot. opts are applied on top of the
// stored state (id policy, dangling policy, observer).
func (s *Store) Load(id string, opts ...taskgraph.Option) (*taskgraph.Session, error) {
	snap, err := s.readSnapshot(s.snapshotPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return taskgraph.Restore(snap, opts...)
}

func (s *Store) readSnapshot(path string) (taskgraph.Snapshot, error) {
	var snap taskgraph.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse session file %s: %w", path, err)
	}
	return snap, nil
}

// Lock takes the per-session lock, waiting until ctx is done if another
// command holds it. owner is recorded in the lockfile for diagnostics.
func (s *Store) Lock(ctx context.Context, id, owner string) (*lock.Lock, error) {
	l, err := lock.AcquireWait(ctx, s.lockPath(id), owner, lockPoll)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	return l, nil
}

// Update runs fn against the stored session under the session lock. If fn
// succeeds the session is saved and every mutation it applied is appended
// to the journal. If fn fails nothing is written.
func (s *Store) Update(ctx context.Context, id, owner string, fn func(*taskgraph.Session) error, opts ...taskgraph.Option) error {
	l, err := s.Lock(ctx, id, owner)
	if err != nil {
		return err
	}
	defer l.Release()

	var events []taskgraph.Event
	opts = append(opts, taskgraph.WithObserver(func(ev taskgraph.Event) {
		events = append(events, ev)
	}))

	sess, err := s.Load(id, opts...)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		return err
	}
	if err := s.Save(sess); err != nil {
		return err
	}
	if err := s.AppendJournal(id, events...); err != nil {
		// the snapshot is already the source of truth
		log.Printf("WARN: journal for session %s: %v", id, err)
	}
	return nil
}

// Summary is one row of List.
type Summary struct {
	ID            string
	EmployeeLabel string
	ProcessType   taskgraph.ProcessType
	StartDate     time.Time
	CreatedAt     time.Time
	Closed        bool
	Progress      taskgraph.Progress
}

// List summarizes every stored session, oldest first. Unreadable snapshots
// are logged and skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp.") {
			continue
		}
		snap, err := s.readSnapshot(filepath.Join(s.sessionsDir(), name))
		if err != nil {
			log.Printf("WARN: skipping session file %s: %v", name, err)
			continue
		}
		sum := Summary{
			ID:            snap.ID,
			EmployeeLabel: snap.EmployeeLabel,
			ProcessType:   snap.ProcessType,
			StartDate:     snap.StartDate,
			CreatedAt:     snap.CreatedAt,
			Closed:        snap.Closed,
		}
		for _, t := range snap.Tasks {
			if !t.IsSelected {
				continue
			}
			sum.Progress.Total++
			if t.IsConfigured {
				sum.Progress.Configured++
			}
		}
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
