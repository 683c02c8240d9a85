package taskgraph

import (
	"fmt"
	"strings"

	"github.com/hseinmoussa/jml-tasks/internal/timing"
)

// Category groups tasks by the kind of onboarding/offboarding work.
type Category string

const (
	CategoryDocumentation Category = "Documentation"
	CategorySystemAccess  Category = "System Access"
	CategoryEquipment     Category = "Equipment"
	CategoryTraining      Category = "Training"
	CategoryOrientation   Category = "Orientation"
	CategoryCompliance    Category = "Compliance"
	CategoryGeneral       Category = "General"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryDocumentation,
	CategorySystemAccess,
	CategoryEquipment,
	CategoryTraining,
	CategoryOrientation,
	CategoryCompliance,
	CategoryGeneral,
}

// ParseCategory matches s case-insensitively against the known categories.
// Dashes and underscores are accepted in place of spaces ("system-access").
func ParseCategory(s string) (Category, bool) {
	norm := strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s))
	for _, c := range Categories {
		if strings.EqualFold(norm, string(c)) {
			return c, true
		}
	}
	return "", false
}

// SourceType records which wizard selection generated a task.
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceSystem   SourceType = "system"
	SourceAsset    SourceType = "asset"
	SourceTraining SourceType = "training"
	SourceManual   SourceType = "manual"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// ParsePriority matches s case-insensitively against the known priorities.
func ParsePriority(s string) (Priority, error) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q (want Low, Medium, High or Urgent)", s)
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// AssignmentType says whether a task is assigned to a role or a named user.
type AssignmentType string

const (
	AssignRole AssignmentType = "role"
	AssignUser AssignmentType = "user"
)

// IsValid reports whether a is a known assignment type.
func (a AssignmentType) IsValid() bool {
	return a == AssignRole || a == AssignUser
}

// ProcessType is the HR process a session belongs to.
type ProcessType string

const (
	ProcessJoiner ProcessType = "joiner"
	ProcessMover  ProcessType = "mover"
	ProcessLeaver ProcessType = "leaver"
)

// IsValid reports whether p is a known process type.
func (p ProcessType) IsValid() bool {
	switch p {
	case ProcessJoiner, ProcessMover, ProcessLeaver:
		return true
	default:
		return false
	}
}

// Task is one unit of onboarding/offboarding work inside a session.
type Task struct {
	ID                   string         `yaml:"id"                               json:"id"`
	Title                string         `yaml:"title"                            json:"title"`
	TaskCode             string         `yaml:"task_code,omitempty"              json:"task_code,omitempty"`
	Category             Category       `yaml:"category"                         json:"category"`
	SourceType           SourceType     `yaml:"source_type,omitempty"            json:"source_type,omitempty"`
	SourceID             string         `yaml:"source_id,omitempty"              json:"source_id,omitempty"`
	DependsOn            []string       `yaml:"depends_on,omitempty"             json:"depends_on,omitempty"`
	BlockedUntilComplete bool           `yaml:"blocked_until_complete,omitempty" json:"blocked_until_complete"`
	IsSelected           bool           `yaml:"selected"                         json:"selected"`
	IsConfigured         bool           `yaml:"configured"                       json:"configured"`
	AssignmentType       AssignmentType `yaml:"assignment_type"                  json:"assignment_type"`
	AssignedRole         string         `yaml:"assigned_role,omitempty"          json:"assigned_role,omitempty"`
	AssigneeEmail        string         `yaml:"assignee_email,omitempty"         json:"assignee_email,omitempty"`
	Offset               timing.Offset  `yaml:"offset"                           json:"offset"`
	Priority             Priority       `yaml:"priority"                         json:"priority"`
	Instructions         string         `yaml:"instructions,omitempty"           json:"instructions,omitempty"`
	NotifyEmail          bool           `yaml:"notify_email"                     json:"notify_email"`
	NotifyTeams          bool           `yaml:"notify_teams"                     json:"notify_teams"`
	NotifyOnComplete     bool           `yaml:"notify_on_complete"               json:"notify_on_complete"`
}

// clone returns a deep copy so callers never alias session state.
func (t Task) clone() Task {
	if t.DependsOn != nil {
		t.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return t
}

// dependsOn reports whether id is in the task's dependency list.
func (t *Task) dependsOn(id string) bool {
	for _, d := range t.DependsOn {
		if d == id {
			return true
		}
	}
	return false
}

// FieldDefaults are applied to inbound tasks whose enum fields are unset.
type FieldDefaults struct {
	AssignmentType   AssignmentType `yaml:"assignment_type"`
	AssignedRole     string         `yaml:"assigned_role"`
	Priority         Priority       `yaml:"priority"`
	Offset           timing.Offset  `yaml:"offset"`
	NotifyEmail      bool           `yaml:"notify_email"`
	NotifyTeams      bool           `yaml:"notify_teams"`
	NotifyOnComplete bool           `yaml:"notify_on_complete"`
}

// DefaultFieldDefaults returns the built-in defaults: role-based assignment,
// Medium priority, due on the start date, email and completion notices on,
// Teams off.
func DefaultFieldDefaults() FieldDefaults {
	return FieldDefaults{
		AssignmentType:   AssignRole,
		Priority:         PriorityMedium,
		Offset:           timing.OnStart(),
		NotifyEmail:      true,
		NotifyOnComplete: true,
	}
}

// applyDefaults fills enum fields the caller left empty. Boolean fields are
// taken as given since false is a meaningful value.
func applyDefaults(t *Task, d FieldDefaults) {
	if c, ok := ParseCategory(string(t.Category)); ok {
		t.Category = c
	} else {
		t.Category = CategoryGeneral
	}
	if t.AssignmentType == "" {
		t.AssignmentType = d.AssignmentType
	}
	if t.AssignmentType == AssignRole && t.AssignedRole == "" {
		t.AssignedRole = d.AssignedRole
	}
	if t.Priority == "" {
		t.Priority = d.Priority
	}
	if t.Offset.Anchor == "" {
		t.Offset = d.Offset
	}
}
