package taskgraph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DanglingPolicy decides what Confirm does with dependency references that
// point at deselected tasks.
type DanglingPolicy string

const (
	// DanglingKeep emits the references verbatim.
	DanglingKeep DanglingPolicy = "keep"
	// DanglingPrune drops references to deselected tasks from the emitted
	// copies. Session state is not modified.
	DanglingPrune DanglingPolicy = "prune"
)

// ParseDanglingPolicy parses "keep" or "prune".
func ParseDanglingPolicy(s string) (DanglingPolicy, error) {
	switch DanglingPolicy(s) {
	case DanglingKeep, DanglingPrune:
		return DanglingPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown dangling dependency policy %q (want keep or prune)", s)
	}
}

// SessionStart is the inbound data used to open a configuration session.
type SessionStart struct {
	EmployeeLabel string
	ProcessType   ProcessType
	StartDate     time.Time
	Tasks         []Task
	// Deselected lists task ids that start out excluded from the output.
	// Every other task starts selected.
	Deselected []string
}

// Session is one task-configuration pass: the task records, their
// dependency edges and the gateway through which they change. All methods
// are safe for concurrent use; a cycle check and the edge insertion it
// guards run under the same write lock.
type Session struct {
	mu sync.RWMutex

	id            string
	employeeLabel string
	processType   ProcessType
	startDate     time.Time
	createdAt     time.Time

	tasks []*Task
	index map[string]*Task

	lenient  bool
	dangling DanglingPolicy
	defaults FieldDefaults
	observer func(Event)
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithLenientIDs makes gateway operations silently ignore unknown task ids
// instead of returning ErrUnknownTask.
func WithLenientIDs() Option {
	return func(s *Session) { s.lenient = true }
}

// WithDanglingPolicy sets the policy applied by Confirm.
func WithDanglingPolicy(p DanglingPolicy) Option {
	return func(s *Session) { s.dangling = p }
}

// WithFieldDefaults overrides the defaults applied to inbound tasks.
func WithFieldDefaults(d FieldDefaults) Option {
	return func(s *Session) { s.defaults = d }
}

// WithObserver registers fn to be called after every applied mutation.
// fn runs outside the session lock and may read from the session.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) { s.observer = fn }
}

func newSession(opts []Option) *Session {
	s := &Session{
		dangling: DanglingKeep,
		defaults: DefaultFieldDefaults(),
		index:    make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s
}

// NewSession opens a configuration session over the inbound task batch.
// Tasks are copied, enum defaults are applied, every task not listed in
// start.Deselected is selected and task codes are assigned. Pre-existing
// dependency edges must reference tasks in the batch and must be acyclic.
func NewSession(start SessionStart, opts ...Option) (*Session, error) {
	s := newSession(opts)
	s.employeeLabel = start.EmployeeLabel
	s.processType = start.ProcessType
	s.startDate = start.StartDate
	s.createdAt = time.Now().UTC()

	deselected := make(map[string]bool, len(start.Deselected))
	for _, id := range start.Deselected {
		deselected[id] = true
	}

	tasks := make([]Task, 0, len(start.Tasks))
	for _, in := range start.Tasks {
		t := in.clone()
		applyDefaults(&t, s.defaults)
		t.IsSelected = !deselected[t.ID]
		t.IsConfigured = false
		t.DependsOn = dedupe(t.DependsOn)
		tasks = append(tasks, t)
	}
	AssignTaskCodes(tasks)

	if err := s.load(tasks); err != nil {
		return nil, err
	}
	return s, nil
}

// load installs tasks into an empty session and validates ids, task codes
// and edges.
func (s *Session) load(tasks []Task) error {
	codes := make(map[Category]map[string]string)
	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			return fmt.Errorf("task %d: missing required field 'id'", i+1)
		}
		if _, exists := s.index[t.ID]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateTask, t.ID)
		}
		if t.TaskCode != "" {
			if codes[t.Category] == nil {
				codes[t.Category] = make(map[string]string)
			}
			if prev, taken := codes[t.Category][t.TaskCode]; taken {
				return fmt.Errorf("%w %s in %s: tasks %q and %q", ErrDuplicateTaskCode, t.TaskCode, t.Category, prev, t.ID)
			}
			codes[t.Category][t.TaskCode] = t.ID
		}
		s.tasks = append(s.tasks, &t)
		s.index[t.ID] = &t
	}
	for _, t := range s.tasks {
		for _, d := range t.DependsOn {
			if _, ok := s.index[d]; !ok {
				return fmt.Errorf("task %s depends on %w", t.ID, unknownTask(d))
			}
		}
	}
	return newGraph(s.tasks).acyclic()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// EmployeeLabel returns the label of the employee the session is for.
func (s *Session) EmployeeLabel() string { return s.employeeLabel }

// ProcessType returns the HR process of the session.
func (s *Session) ProcessType() ProcessType { return s.processType }

// StartDate returns the employee start date the offsets are relative to.
func (s *Session) StartDate() time.Time { return s.startDate }

// Closed reports whether Confirm or Cancel has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Task returns a copy of the task with the given id.
func (s *Session) Task(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.index[id]
	if !ok {
		return Task{}, unknownTask(id)
	}
	return t.clone(), nil
}

// Tasks returns copies of all tasks in insertion order.
func (s *Session) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	return out
}

// Selected returns copies of the selected tasks in insertion order.
func (s *Session) Selected() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLocked()
}

func (s *Session) selectedLocked() []Task {
	var out []Task
	for _, t := range s.tasks {
		if t.IsSelected {
			out = append(out, t.clone())
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Graph queries
// ---------------------------------------------------------------------------

// WouldCreateCycle reports whether making taskID depend on candidateID would
// close a cycle, i.e. candidateID already depends on taskID directly or
// transitively. A task always cycles with itself.
func (s *Session) WouldCreateCycle(taskID, candidateID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newGraph(s.tasks).cycleWith(taskID, candidateID) != nil
}

// DependentsOf returns every task, selected or not, whose dependency list
// contains taskID.
func (s *Session) DependentsOf(taskID string) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(newGraph(s.tasks).dependents(taskID))
}

// TransitiveDependents returns the ids of every task held up, directly or
// indirectly, by taskID.
func (s *Session) TransitiveDependents(taskID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newGraph(s.tasks).transitiveDependents(taskID)
}

// Acyclic checks the full dependency graph from scratch. It returns a
// *CycleError if the stored edges contain a cycle.
func (s *Session) Acyclic() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newGraph(s.tasks).acyclic()
}

// ExecutionOrder returns the selected task ids ordered so that every task
// comes after the tasks it depends on. Edges to deselected tasks are
// ignored.
func (s *Session) ExecutionOrder() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := newGraph(s.tasks)
	order, ok := g.topoOrder(func(id string) bool { return g.selected[id] })
	if !ok {
		return nil, &CycleError{Path: g.findCycle()}
	}
	return order, nil
}

func (s *Session) lookupLocked(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.index[id]; ok {
			out = append(out, t.clone())
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Mutation gateway
// ---------------------------------------------------------------------------

// resolveLocked looks up id for a mutation. With lenient ids an unknown id
// yields (nil, nil) so the caller can no-op.
func (s *Session) resolveLocked(id string) (*Task, error) {
	if s.closed {
		return nil, ErrClosed
	}
	t, ok := s.index[id]
	if !ok {
		if s.lenient {
			return nil, nil
		}
		return nil, unknownTask(id)
	}
	return t, nil
}

// UpdateTask merges patch into the task and marks it configured, even if
// nothing actually changed. A patch that replaces DependsOn is validated
// here: every entry must exist and none may close a cycle. On error the
// task is left untouched.
func (s *Session) UpdateTask(id string, patch Patch) error {
	ev, err := s.updateTask(id, patch)
	if err == nil {
		s.emit(ev)
	}
	return err
}

func (s *Session) updateTask(id string, patch Patch) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolveLocked(id)
	if t == nil || err != nil {
		return nil, err
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var deps []string
	if patch.DependsOn != nil {
		deps, err = s.checkDependenciesLocked(t.ID, patch.DependsOn)
		if err != nil {
			return nil, err
		}
	}

	patch.apply(t)
	if patch.DependsOn != nil {
		t.DependsOn = deps
	}
	t.IsConfigured = true

	return &Event{Op: OpUpdate, TaskIDs: []string{t.ID}, Fields: patch.Fields()}, nil
}

// checkDependenciesLocked validates a replacement dependency list for id.
// The stored edges of id itself never matter: any walk that would expand
// them has already reached id.
func (s *Session) checkDependenciesLocked(id string, deps []string) ([]string, error) {
	deps = dedupe(deps)
	g := newGraph(s.tasks)
	for _, d := range deps {
		if _, ok := s.index[d]; !ok {
			return nil, unknownTask(d)
		}
		if path := g.cycleWith(id, d); path != nil {
			return nil, &CycleError{TaskID: id, DependencyID: d, Path: path}
		}
	}
	if deps == nil {
		deps = []string{}
	}
	return deps, nil
}

// AddDependency makes id depend on depID. It fails with a *CycleError and
// leaves the session untouched if the edge would close a cycle. Adding an
// edge that already exists is a no-op apart from marking the task
// configured.
func (s *Session) AddDependency(id, depID string) error {
	ev, err := s.addDependency(id, depID)
	if err == nil {
		s.emit(ev)
	}
	return err
}

func (s *Session) addDependency(id, depID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolveLocked(id)
	if t == nil || err != nil {
		return nil, err
	}
	if _, ok := s.index[depID]; !ok {
		if s.lenient {
			return nil, nil
		}
		return nil, unknownTask(depID)
	}
	if path := newGraph(s.tasks).cycleWith(id, depID); path != nil {
		return nil, &CycleError{TaskID: id, DependencyID: depID, Path: path}
	}

	if !t.dependsOn(depID) {
		t.DependsOn = append(t.DependsOn, depID)
	}
	t.IsConfigured = true

	return &Event{Op: OpAddDependency, TaskIDs: []string{id}, DependencyID: depID}, nil
}

// RemoveDependency drops depID from id's dependency list if present. It
// cannot fail for a known task and always marks the task configured, even
// when the edge did not exist.
func (s *Session) RemoveDependency(id, depID string) error {
	ev, err := s.removeDependency(id, depID)
	if err == nil {
		s.emit(ev)
	}
	return err
}

func (s *Session) removeDependency(id, depID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolveLocked(id)
	if t == nil || err != nil {
		return nil, err
	}

	kept := t.DependsOn[:0:0]
	for _, d := range t.DependsOn {
		if d != depID {
			kept = append(kept, d)
		}
	}
	t.DependsOn = kept
	t.IsConfigured = true

	return &Event{Op: OpRemoveDependency, TaskIDs: []string{id}, DependencyID: depID}, nil
}

// BulkUpdate applies the same patch to every listed task. Dependency lists
// cannot be bulk edited. All ids are resolved before anything changes, so
// an unknown id (in strict mode) leaves the session untouched.
func (s *Session) BulkUpdate(ids []string, patch Patch) error {
	ev, err := s.bulkUpdate(ids, patch)
	if err == nil {
		s.emit(ev)
	}
	return err
}

func (s *Session) bulkUpdate(ids []string, patch Patch) (*Event, error) {
	if patch.DependsOn != nil {
		return nil, ErrBulkDependencies
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []*Task
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		t, err := s.resolveLocked(id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			targets = append(targets, t)
		}
	}
	if s.closed {
		return nil, ErrClosed
	}

	applied := make([]string, 0, len(targets))
	for _, t := range targets {
		patch.apply(t)
		t.IsConfigured = true
		applied = append(applied, t.ID)
	}
	if len(applied) == 0 {
		return nil, nil
	}
	return &Event{Op: OpBulkUpdate, TaskIDs: applied, Fields: patch.Fields()}, nil
}

// SetSelected includes or excludes a task from the final output. Selection
// is not a configuration change: the configured flag is left alone and no
// dependency list is edited, so references to a deselected task remain.
func (s *Session) SetSelected(id string, selected bool) error {
	ev, err := s.setSelected(id, selected)
	if err == nil {
		s.emit(ev)
	}
	return err
}

func (s *Session) setSelected(id string, selected bool) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolveLocked(id)
	if t == nil || err != nil {
		return nil, err
	}
	t.IsSelected = selected

	op := OpSelect
	if !selected {
		op = OpDeselect
	}
	return &Event{Op: op, TaskIDs: []string{id}}, nil
}

func (s *Session) emit(ev *Event) {
	if ev == nil || s.observer == nil {
		return
	}
	ev.SessionID = s.id
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.observer(*ev)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// FinalTask is a selected task as handed back to the wizard on confirm.
type FinalTask struct {
	Task    `yaml:",inline"`
	Blocked bool      `yaml:"blocked"  json:"blocked"`
	DueDate time.Time `yaml:"due_date" json:"due_date"`
}

// Result is the outbound payload produced by Confirm.
type Result struct {
	SessionID     string      `yaml:"session_id"     json:"session_id"`
	EmployeeLabel string      `yaml:"employee_label" json:"employee_label"`
	ProcessType   ProcessType `yaml:"process_type"   json:"process_type"`
	StartDate     time.Time   `yaml:"start_date"     json:"start_date"`
	ConfirmedAt   time.Time   `yaml:"confirmed_at"   json:"confirmed_at"`
	Tasks         []FinalTask `yaml:"tasks"          json:"tasks"`
}

// Confirm audits the graph, closes the session and returns the selected
// tasks with their final values. Dependency references to deselected tasks
// are handled according to the session's DanglingPolicy.
func (s *Session) Confirm() (Result, error) {
	res, err := s.confirm()
	if err != nil {
		return Result{}, err
	}
	ids := make([]string, 0, len(res.Tasks))
	for _, t := range res.Tasks {
		ids = append(ids, t.ID)
	}
	s.emit(&Event{Op: OpConfirm, TaskIDs: ids, At: res.ConfirmedAt})
	return res, nil
}

func (s *Session) confirm() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrClosed
	}
	if err := newGraph(s.tasks).acyclic(); err != nil {
		return Result{}, fmt.Errorf("confirm session %s: %w", s.id, err)
	}

	res := Result{
		SessionID:     s.id,
		EmployeeLabel: s.employeeLabel,
		ProcessType:   s.processType,
		StartDate:     s.startDate,
		ConfirmedAt:   time.Now().UTC(),
	}
	for _, t := range s.selectedLocked() {
		if s.dangling == DanglingPrune {
			t.DependsOn = s.pruneDeselectedLocked(t.DependsOn)
		}
		res.Tasks = append(res.Tasks, FinalTask{
			Task:    t,
			Blocked: IsBlocked(t),
			DueDate: t.Offset.Apply(s.startDate),
		})
	}

	s.closed = true
	return res, nil
}

func (s *Session) pruneDeselectedLocked(deps []string) []string {
	var kept []string
	for _, d := range deps {
		if t, ok := s.index[d]; ok && t.IsSelected {
			kept = append(kept, d)
		}
	}
	return kept
}

// Cancel discards the session. Nothing is returned to the caller.
// Cancelling a closed session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	wasOpen := !s.closed
	s.closed = true
	s.mu.Unlock()

	if wasOpen {
		s.emit(&Event{Op: OpCancel})
	}
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
