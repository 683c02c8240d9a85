package taskgraph

import (
	"math"
	"strings"
	"time"
)

// CategoryCount is one row of the category breakdown.
type CategoryCount struct {
	Category Category
	Count    int
}

// CategoryCounts counts selected tasks per category.
func (s *Session) CategoryCounts() map[Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Category]int)
	for _, t := range s.tasks {
		if t.IsSelected {
			counts[t.Category]++
		}
	}
	return counts
}

// CategoryBreakdown returns the non-zero category counts in display order.
func (s *Session) CategoryBreakdown() []CategoryCount {
	counts := s.CategoryCounts()
	var out []CategoryCount
	for _, c := range Categories {
		if n := counts[c]; n > 0 {
			out = append(out, CategoryCount{Category: c, Count: n})
		}
	}
	return out
}

// Progress is the share of selected tasks that have been configured.
type Progress struct {
	Configured int
	Total      int
}

// Ratio returns Configured/Total, or 0 when there are no selected tasks.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Configured) / float64(p.Total)
}

// Percent returns the ratio as a rounded percentage.
func (p Progress) Percent() int {
	return int(math.Round(p.Ratio() * 100))
}

// Progress computes configuration progress over selected tasks.
func (s *Session) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p Progress
	for _, t := range s.tasks {
		if !t.IsSelected {
			continue
		}
		p.Total++
		if t.IsConfigured {
			p.Configured++
		}
	}
	return p
}

// IsBlocked reports the blocking policy of t: it waits for its dependencies
// when BlockedUntilComplete is set and it has at least one. Completion of
// the dependencies is tracked elsewhere.
func IsBlocked(t Task) bool {
	return t.BlockedUntilComplete && len(t.DependsOn) > 0
}

// DueDate returns the date a task falls due for this session's start date.
func (s *Session) DueDate(t Task) time.Time {
	return t.Offset.Apply(s.startDate)
}

// Candidate is one entry of the dependency picker for a task.
type Candidate struct {
	Task     Task
	Current  bool   // already a dependency
	Disabled bool   // adding it would close a cycle
	Reason   string // why it is disabled
}

// DependencyCandidates lists every other task as a possible dependency of
// id, with the ones that would close a cycle marked disabled. Deselected
// tasks are listed too; they remain valid targets.
func (s *Session) DependencyCandidates(id string) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.index[id]
	if !ok {
		return nil, unknownTask(id)
	}

	g := newGraph(s.tasks)
	out := make([]Candidate, 0, len(s.tasks)-1)
	for _, other := range s.tasks {
		if other.ID == id {
			continue
		}
		c := Candidate{Task: other.clone(), Current: t.dependsOn(other.ID)}
		if path := g.cycleWith(id, other.ID); path != nil {
			c.Disabled = true
			c.Reason = "would create cycle " + strings.Join(path, " -> ")
		}
		out = append(out, c)
	}
	return out, nil
}

// Filter narrows the task list the way the overlay's filter bar does.
type Filter struct {
	Category          Category
	Query             string // matched against title, task code and instructions
	OnlyUnconfigured  bool
	OnlyBlocked       bool
	IncludeDeselected bool
}

// Filter returns copies of the tasks matching f in insertion order.
func (s *Session) Filter(f Filter) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []Task
	for _, t := range s.tasks {
		if !t.IsSelected && !f.IncludeDeselected {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.OnlyUnconfigured && t.IsConfigured {
			continue
		}
		if f.OnlyBlocked && !IsBlocked(*t) {
			continue
		}
		if q != "" && !matchesQuery(t, q) {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

func matchesQuery(t *Task, q string) bool {
	for _, field := range []string{t.Title, t.TaskCode, t.Instructions} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
