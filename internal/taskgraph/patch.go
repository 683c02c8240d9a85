package taskgraph

import (
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/timing"
)

// Patch is a partial task update. Nil fields are left unchanged. A non-nil
// DependsOn replaces the whole dependency list; use an empty slice to clear
// it. TaskCode, ID, Category and selection are not patchable.
type Patch struct {
	Title                *string
	AssignmentType       *AssignmentType
	AssignedRole         *string
	AssigneeEmail        *string
	Offset               *timing.Offset
	Priority             *Priority
	Instructions         *string
	NotifyEmail          *bool
	NotifyTeams          *bool
	NotifyOnComplete     *bool
	BlockedUntilComplete *bool
	DependsOn            []string
}

// Fields returns the names of the fields the patch sets, in a fixed order.
func (p Patch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.AssignmentType != nil, "assignment_type")
	add(p.AssignedRole != nil, "assigned_role")
	add(p.AssigneeEmail != nil, "assignee_email")
	add(p.Offset != nil, "offset")
	add(p.Priority != nil, "priority")
	add(p.Instructions != nil, "instructions")
	add(p.NotifyEmail != nil, "notify_email")
	add(p.NotifyTeams != nil, "notify_teams")
	add(p.NotifyOnComplete != nil, "notify_on_complete")
	add(p.BlockedUntilComplete != nil, "blocked_until_complete")
	add(p.DependsOn != nil, "depends_on")
	return out
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

func (p Patch) validate() error {
	if p.Title != nil && *p.Title == "" {
		return invalidPatch("title cannot be empty")
	}
	if p.AssignmentType != nil && !p.AssignmentType.IsValid() {
		return invalidPatch("unknown assignment type %q", *p.AssignmentType)
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return invalidPatch("unknown priority %q", *p.Priority)
	}
	if p.Offset != nil {
		if err := p.Offset.Validate(); err != nil {
			return invalidPatch("%v", err)
		}
	}
	return nil
}

// apply copies every set field except DependsOn onto t.
func (p Patch) apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.AssignmentType != nil {
		t.AssignmentType = *p.AssignmentType
	}
	if p.AssignedRole != nil {
		t.AssignedRole = *p.AssignedRole
	}
	if p.AssigneeEmail != nil {
		t.AssigneeEmail = *p.AssigneeEmail
	}
	if p.Offset != nil {
		t.Offset = *p.Offset
		if t.Offset.Anchor == "" {
			t.Offset = timing.OnStart()
		}
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Instructions != nil {
		t.Instructions = *p.Instructions
	}
	if p.NotifyEmail != nil {
		t.NotifyEmail = *p.NotifyEmail
	}
	if p.NotifyTeams != nil {
		t.NotifyTeams = *p.NotifyTeams
	}
	if p.NotifyOnComplete != nil {
		t.NotifyOnComplete = *p.NotifyOnComplete
	}
	if p.BlockedUntilComplete != nil {
		t.BlockedUntilComplete = *p.BlockedUntilComplete
	}
}

// Operation names recorded in Events. OpOpen is never emitted by a Session;
// it marks creation in persisted journals.
const (
	OpOpen             = "open"
	OpUpdate           = "update"
	OpBulkUpdate       = "bulk_update"
	OpAddDependency    = "add_dependency"
	OpRemoveDependency = "remove_dependency"
	OpSelect           = "select"
	OpDeselect         = "deselect"
	OpConfirm          = "confirm"
	OpCancel           = "cancel"
)

// Event describes one mutation applied through the gateway.
type Event struct {
	SessionID    string    `json:"session_id"`
	Op           string    `json:"op"`
	TaskIDs      []string  `json:"task_ids"`
	DependencyID string    `json:"dependency_id,omitempty"`
	Fields       []string  `json:"fields,omitempty"`
	At           time.Time `json:"at"`
}
