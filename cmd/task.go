package cmd

import (
	"fmt"
	"strings"

	"github.com/hseinmoussa/jml-tasks/internal/catalog"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/hseinmoussa/jml-tasks/internal/timing"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Edit task fields and selection",
}

// fieldFlags are the editable task fields shared by "task set" and
// "task bulk". Only flags the user actually passed end up in the patch.
type fieldFlags struct {
	title        string
	priority     string
	role         string
	assignee     string
	offset       string
	instructions string
	email        bool
	teams        bool
	onComplete   bool
	blocked      bool
	depends      []string
}

func (f *fieldFlags) register(fs *pflag.FlagSet, withDepends bool) {
	fs.StringVar(&f.title, "title", "", "task title")
	fs.StringVar(&f.priority, "priority", "", "Low, Medium, High or Urgent")
	fs.StringVar(&f.role, "role", "", "assign to a role")
	fs.StringVar(&f.assignee, "assignee", "", "assign to a named user by email")
	fs.StringVar(&f.offset, "offset", "", `due offset, e.g. "3 days before", "+1w", "on start"`)
	fs.StringVar(&f.instructions, "instructions", "", "free-text instructions")
	fs.BoolVar(&f.email, "email", false, "notify by email")
	fs.BoolVar(&f.teams, "teams", false, "notify in Teams")
	fs.BoolVar(&f.onComplete, "on-complete", false, "notify when the task completes")
	fs.BoolVar(&f.blocked, "blocked", false, "block the task until its dependencies complete")
	if withDepends {
		fs.StringSliceVar(&f.depends, "depends", nil, `replace the dependency list (comma-separated, "" clears it)`)
	}
}

// patch builds a Patch from the flags that were set on cmd.
func (f *fieldFlags) patch(cmd *cobra.Command) (taskgraph.Patch, error) {
	var p taskgraph.Patch
	fs := cmd.Flags()

	if fs.Changed("title") {
		p.Title = &f.title
	}
	if fs.Changed("priority") {
		prio, err := taskgraph.ParsePriority(f.priority)
		if err != nil {
			return p, err
		}
		p.Priority = &prio
	}
	if fs.Changed("role") && fs.Changed("assignee") {
		return p, fmt.Errorf("--role and --assignee are mutually exclusive")
	}
	if fs.Changed("role") {
		at := taskgraph.AssignRole
		p.AssignmentType = &at
		p.AssignedRole = &f.role
	}
	if fs.Changed("assignee") {
		at := taskgraph.AssignUser
		p.AssignmentType = &at
		p.AssigneeEmail = &f.assignee
	}
	if fs.Changed("offset") {
		off, err := timing.Parse(f.offset)
		if err != nil {
			return p, err
		}
		p.Offset = &off
	}
	if fs.Changed("instructions") {
		p.Instructions = &f.instructions
	}
	if fs.Changed("email") {
		p.NotifyEmail = &f.email
	}
	if fs.Changed("teams") {
		p.NotifyTeams = &f.teams
	}
	if fs.Changed("on-complete") {
		p.NotifyOnComplete = &f.onComplete
	}
	if fs.Changed("blocked") {
		p.BlockedUntilComplete = &f.blocked
	}
	if fs.Changed("depends") {
		p.DependsOn = []string{}
		for _, d := range f.depends {
			if d = strings.TrimSpace(d); d != "" {
				p.DependsOn = append(p.DependsOn, d)
			}
		}
	}
	return p, nil
}

// warnUnknownRole prints a warning when a role is not in the catalog. Roles
// outside the catalog are still accepted.
func warnUnknownRole(p *printer, patch taskgraph.Patch) {
	if patch.AssignedRole == nil {
		return
	}
	cat, err := catalog.Load()
	if err != nil || cat.HasRole(*patch.AssignedRole) {
		return
	}
	p.warn("role %q is not in the catalog", *patch.AssignedRole)
}

// ── task set ────────────────────────────────────────────────────────────

var taskSetCmd = &cobra.Command{
	Use:   "set [session-id] [task-id]",
	Short: "Update fields of one task and mark it configured",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskSet,
}

var setFields fieldFlags

func runTaskSet(cmd *cobra.Command, args []string) error {
	sid, tid := args[0], args[1]
	patch, err := setFields.patch(cmd)
	if err != nil {
		return err
	}

	cfg, err := mutate(cmd, sid, "task set", func(s *taskgraph.Session) error {
		return s.UpdateTask(tid, patch)
	})
	if err != nil {
		return err
	}

	p := newPrinter(cfg.Color)
	warnUnknownRole(p, patch)
	if patch.IsEmpty() {
		p.ok("Marked task '%s' configured", tid)
		return nil
	}
	p.ok("Updated task '%s': %s", tid, strings.Join(patch.Fields(), ", "))
	return nil
}

// ── task bulk ───────────────────────────────────────────────────────────

var taskBulkCmd = &cobra.Command{
	Use:   "bulk [session-id]",
	Short: "Apply the same field values to several tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskBulk,
}

var (
	bulkFields fieldFlags
	bulkIDs    []string
)

func runTaskBulk(cmd *cobra.Command, args []string) error {
	sid := args[0]
	patch, err := bulkFields.patch(cmd)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return fmt.Errorf("no fields given; pass at least one field flag")
	}

	var applied []string
	cfg, err := mutate(cmd, sid, "task bulk", func(s *taskgraph.Session) error {
		if err := s.BulkUpdate(bulkIDs, patch); err != nil {
			return err
		}
		applied = knownIDs(s, bulkIDs)
		return nil
	})
	if err != nil {
		return err
	}

	p := newPrinter(cfg.Color)
	if len(applied) == 0 {
		p.warn("no listed task is in session %s; nothing updated", sid)
		return nil
	}
	warnUnknownRole(p, patch)
	p.ok("Updated %d tasks: %s", len(applied), strings.Join(patch.Fields(), ", "))
	return nil
}

// knownIDs returns the distinct ids that name a task in s, in input order.
// With lenient ids BulkUpdate skips the others.
func knownIDs(s *taskgraph.Session, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.Task(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// ── task select / deselect ──────────────────────────────────────────────

var taskSelectCmd = &cobra.Command{
	Use:   "select [session-id] [task-id]",
	Short: "Include a task in the confirmed output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskSelect(cmd, args, true)
	},
}

var taskDeselectCmd = &cobra.Command{
	Use:   "deselect [session-id] [task-id]",
	Short: "Exclude a task from the confirmed output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskSelect(cmd, args, false)
	},
}

func runTaskSelect(cmd *cobra.Command, args []string, selected bool) error {
	sid, tid := args[0], args[1]
	var dependents []taskgraph.Task

	owner := "task select"
	if !selected {
		owner = "task deselect"
	}
	cfg, err := mutate(cmd, sid, owner, func(s *taskgraph.Session) error {
		if err := s.SetSelected(tid, selected); err != nil {
			return err
		}
		if !selected {
			dependents = s.DependentsOf(tid)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p := newPrinter(cfg.Color)
	if selected {
		p.ok("Selected task '%s'", tid)
		return nil
	}
	p.ok("Deselected task '%s'", tid)
	for _, d := range dependents {
		if d.IsSelected {
			p.warn("task %s still depends on %s", d.ID, tid)
		}
	}
	return nil
}

func init() {
	setFields.register(taskSetCmd.Flags(), true)
	bulkFields.register(taskBulkCmd.Flags(), false)
	taskBulkCmd.Flags().StringSliceVar(&bulkIDs, "ids", nil, "comma-separated task ids (required)")
	_ = taskBulkCmd.MarkFlagRequired("ids")

	taskCmd.AddCommand(taskSetCmd)
	taskCmd.AddCommand(taskBulkCmd)
	taskCmd.AddCommand(taskSelectCmd)
	taskCmd.AddCommand(taskDeselectCmd)
}
