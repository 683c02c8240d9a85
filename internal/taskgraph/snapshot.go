package taskgraph

import (
	"fmt"
	"time"
)

// Snapshot is the serializable state of a session, used to carry a session
// across process boundaries.
type Snapshot struct {
	ID            string      `json:"id"`
	EmployeeLabel string      `json:"employee_label"`
	ProcessType   ProcessType `json:"process_type"`
	StartDate     time.Time   `json:"start_date"`
	CreatedAt     time.Time   `json:"created_at"`
	Closed        bool        `json:"closed,omitempty"`
	Tasks         []Task      `json:"tasks"`
}

// Snapshot captures the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:            s.id,
		EmployeeLabel: s.employeeLabel,
		ProcessType:   s.processType,
		StartDate:     s.startDate,
		CreatedAt:     s.createdAt,
		Closed:        s.closed,
		Tasks:         make([]Task, 0, len(s.tasks)),
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t.clone())
	}
	return snap
}

// Restore rebuilds a session from a snapshot. Task codes, selection and
// configured flags are taken as stored; ids and edges are re-validated so a
// corrupted snapshot cannot smuggle in a cycle.
func Restore(snap Snapshot, opts ...Option) (*Session, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("restore session: missing id")
	}
	s := newSession(append(opts, WithSessionID(snap.ID)))
	s.employeeLabel = snap.EmployeeLabel
	s.processType = snap.ProcessType
	s.startDate = snap.StartDate
	s.createdAt = snap.CreatedAt
	s.closed = snap.Closed

	tasks := make([]Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		tasks = append(tasks, t.clone())
	}
	if err := s.load(tasks); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", snap.ID, err)
	}
	return s, nil
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }
