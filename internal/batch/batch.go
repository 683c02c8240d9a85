// Package batch reads inbound task batches and writes confirmed results.
package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/hseinmoussa/jml-tasks/internal/timing"
)

var taskIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// IsValidID reports whether id is usable as a task id: 1-64 characters of
// letters, digits, dot, dash or underscore.
func IsValidID(id string) bool {
	return len(id) > 0 && len(id) <= 64 && taskIDRe.MatchString(id)
}

// Entry is one inbound task as written in a batch file. Notification flags
// and selection are pointers so an absent key picks up the catalog default.
type Entry struct {
	ID                   string         `yaml:"id"                     validate:"required,taskid"`
	Title                string         `yaml:"title"                  validate:"required,max=255"`
	TaskCode             string         `yaml:"task_code"              validate:"omitempty,max=16"`
	Category             string         `yaml:"category"               validate:"required,category"`
	SourceType           string         `yaml:"source_type"            validate:"omitempty,oneof=document system asset training manual"`
	SourceID             string         `yaml:"source_id"`
	DependsOn            []string       `yaml:"depends_on"             validate:"dive,required"`
	BlockedUntilComplete bool           `yaml:"blocked_until_complete"`
	Selected             *bool          `yaml:"selected"`
	AssignmentType       string         `yaml:"assignment_type"        validate:"omitempty,oneof=role user"`
	AssignedRole         string         `yaml:"assigned_role"`
	AssigneeEmail        string         `yaml:"assignee_email"         validate:"omitempty,email"`
	Offset               *timing.Offset `yaml:"offset"`
	Priority             string         `yaml:"priority"               validate:"omitempty,priority"`
	Instructions         string         `yaml:"instructions"`
	NotifyEmail          *bool          `yaml:"notify_email"`
	NotifyTeams          *bool          `yaml:"notify_teams"`
	NotifyOnComplete     *bool          `yaml:"notify_on_complete"`

	Source string `yaml:"-"`
}

// header is the optional mapping form of a batch file: session metadata
// plus a task list.
type header struct {
	Employee string  `yaml:"employee"`
	Process  string  `yaml:"process" validate:"omitempty,oneof=joiner mover leaver"`
	Start    string  `yaml:"start"`
	Tasks    []Entry `yaml:"tasks"`
}

// Batch is a parsed and validated batch file. Employee, Process and Start
// are only set when the file carries a header.
type Batch struct {
	Employee string
	Process  string
	Start    string
	Entries  []Entry
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("taskid", func(fl validator.FieldLevel) bool {
		return IsValidID(fl.Field().String())
	})
	_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := taskgraph.ParseCategory(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, err := taskgraph.ParsePriority(fl.Field().String())
		return err == nil
	})
}

// validateStruct runs the struct tags and flattens validator errors into
// one readable message.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if _, rest, found := strings.Cut(field, "."); found {
			field = rest
		}
		if e.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("missing required field '%s'", field))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("field '%s' fails '%s' (value: '%v')", field, e.Tag(), e.Value()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// LoadFile reads and parses a batch file.
func LoadFile(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read %s: %w", path, err)
	}
	b, err := Parse(data, path)
	if err != nil {
		return Batch{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return b, nil
}

// Parse splits data on "---" separators. Each document is a single task,
// a list of tasks, or a header mapping with a tasks key; at most one header
// is allowed. Every entry is validated and ids must be unique across the
// whole file.
func Parse(data []byte, source string) (Batch, error) {
	var b Batch
	sawHeader := false
	docs := splitYAMLDocs(data)

	for i, doc := range docs {
		doc = bytes.TrimSpace(doc)
		if len(doc) == 0 {
			continue
		}
		docSource := source
		if len(docs) > 1 {
			docSource = fmt.Sprintf("%s#doc%d", source, i+1)
		}

		var node yaml.Node
		if err := yaml.Unmarshal(doc, &node); err != nil {
			return Batch{}, fmt.Errorf("document %d: %w", i+1, err)
		}
		if len(node.Content) == 0 {
			continue
		}
		root := node.Content[0]

		var entries []Entry
		switch {
		case root.Kind == yaml.SequenceNode:
			if err := root.Decode(&entries); err != nil {
				return Batch{}, fmt.Errorf("document %d: %w", i+1, err)
			}
		case root.Kind == yaml.MappingNode && hasKey(root, "tasks"):
			if sawHeader {
				return Batch{}, fmt.Errorf("document %d: more than one header document", i+1)
			}
			sawHeader = true
			var h header
			if err := root.Decode(&h); err != nil {
				return Batch{}, fmt.Errorf("document %d: %w", i+1, err)
			}
			if err := validateStruct(h); err != nil {
				return Batch{}, fmt.Errorf("document %d header: %w", i+1, err)
			}
			b.Employee, b.Process, b.Start = h.Employee, h.Process, h.Start
			entries = h.Tasks
		case root.Kind == yaml.MappingNode:
			var e Entry
			if err := root.Decode(&e); err != nil {
				return Batch{}, fmt.Errorf("document %d: %w", i+1, err)
			}
			entries = []Entry{e}
		default:
			return Batch{}, fmt.Errorf("document %d: expected a task, a task list or a header", i+1)
		}

		for j := range entries {
			e := &entries[j]
			e.Source = docSource
			if err := validateStruct(e); err != nil {
				return Batch{}, fmt.Errorf("Task '%s' (%s): %w", label(e.ID), docSource, err)
			}
		}
		b.Entries = append(b.Entries, entries...)
	}

	seen := make(map[string]string, len(b.Entries))
	for _, e := range b.Entries {
		if prev, ok := seen[e.ID]; ok {
			return Batch{}, fmt.Errorf("%w '%s' found in %s and %s", taskgraph.ErrDuplicateTask, e.ID, prev, e.Source)
		}
		seen[e.ID] = e.Source
	}
	if err := checkTaskCodes(b.Entries); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// checkTaskCodes rejects preset task codes used twice within one category.
func checkTaskCodes(entries []Entry) error {
	type key struct {
		category taskgraph.Category
		code     string
	}
	seen := make(map[key]string)
	for _, e := range entries {
		if e.TaskCode == "" {
			continue
		}
		cat, _ := taskgraph.ParseCategory(e.Category)
		k := key{cat, e.TaskCode}
		if prev, ok := seen[k]; ok {
			return fmt.Errorf("%w %s in %s: tasks '%s' and '%s'", taskgraph.ErrDuplicateTaskCode, e.TaskCode, cat, prev, e.ID)
		}
		seen[k] = e.ID
	}
	return nil
}

func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

func label(id string) string {
	if strings.TrimSpace(id) == "" {
		return "<unknown>"
	}
	return id
}

// splitYAMLDocs splits raw YAML bytes on "---" document separators.
func splitYAMLDocs(data []byte) [][]byte {
	sep := regexp.MustCompile(`(?m)^---\s*$`)
	parts := sep.Split(string(data), -1)

	docs := make([][]byte, 0, len(parts))
	for _, p := range parts {
		docs = append(docs, []byte(p))
	}
	return docs
}

// SessionStart converts the batch into the input of a configuration
// session. Unset notification flags take the values in d; entries marked
// selected: false start deselected.
func (b Batch) SessionStart(d taskgraph.FieldDefaults) taskgraph.SessionStart {
	var start taskgraph.SessionStart
	for _, e := range b.Entries {
		t := taskgraph.Task{
			ID:                   e.ID,
			Title:                e.Title,
			TaskCode:             e.TaskCode,
			SourceType:           taskgraph.SourceType(e.SourceType),
			SourceID:             e.SourceID,
			DependsOn:            append([]string(nil), e.DependsOn...),
			BlockedUntilComplete: e.BlockedUntilComplete,
			AssignmentType:       taskgraph.AssignmentType(e.AssignmentType),
			AssignedRole:         e.AssignedRole,
			AssigneeEmail:        e.AssigneeEmail,
			Instructions:         e.Instructions,
			NotifyEmail:          boolOr(e.NotifyEmail, d.NotifyEmail),
			NotifyTeams:          boolOr(e.NotifyTeams, d.NotifyTeams),
			NotifyOnComplete:     boolOr(e.NotifyOnComplete, d.NotifyOnComplete),
		}
		if c, ok := taskgraph.ParseCategory(e.Category); ok {
			t.Category = c
		}
		if p, err := taskgraph.ParsePriority(e.Priority); err == nil {
			t.Priority = p
		}
		if e.Offset != nil {
			t.Offset = *e.Offset
		}
		if e.Selected != nil && !*e.Selected {
			start.Deselected = append(start.Deselected, e.ID)
		}
		start.Tasks = append(start.Tasks, t)
	}
	return start
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Encode renders a confirmed result as "yaml" or "json".
func Encode(res taskgraph.Result, format string) ([]byte, error) {
	switch format {
	case "yaml", "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return buf.Bytes(), nil
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
