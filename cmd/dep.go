package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

// ── dep add / rm ────────────────────────────────────────────────────────

var depAddCmd = &cobra.Command{
	Use:   "add [session-id] [task-id] [depends-on-id]",
	Short: "Make a task depend on another; refused if it would create a cycle",
	Args:  cobra.ExactArgs(3),
	RunE:  runDepAdd,
}

func runDepAdd(cmd *cobra.Command, args []string) error {
	sid, tid, depID := args[0], args[1], args[2]
	cfg, err := mutate(cmd, sid, "dep add", func(s *taskgraph.Session) error {
		return s.AddDependency(tid, depID)
	})

	var cycle *taskgraph.CycleError
	if errors.As(err, &cycle) {
		newPrinter(cfg.Color).fail("%v", cycle)
		return &exitError{code: 2}
	}
	if err != nil {
		return err
	}
	newPrinter(cfg.Color).ok("Task '%s' now depends on '%s'", tid, depID)
	return nil
}

var depRmCmd = &cobra.Command{
	Use:     "rm [session-id] [task-id] [depends-on-id]",
	Aliases: []string{"remove"},
	Short:   "Remove a dependency edge",
	Args:    cobra.ExactArgs(3),
	RunE:    runDepRm,
}

func runDepRm(cmd *cobra.Command, args []string) error {
	sid, tid, depID := args[0], args[1], args[2]
	cfg, err := mutate(cmd, sid, "dep rm", func(s *taskgraph.Session) error {
		return s.RemoveDependency(tid, depID)
	})
	if err != nil {
		return err
	}
	newPrinter(cfg.Color).ok("Task '%s' no longer depends on '%s'", tid, depID)
	return nil
}

// ── dep check ───────────────────────────────────────────────────────────

var depCheckCmd = &cobra.Command{
	Use:   "check [session-id] [task-id] [depends-on-id]",
	Short: "Report whether adding a dependency would create a cycle",
	Long: "Report whether adding a dependency would create a cycle. Exits 0 when the edge " +
		"can be added and 2 when it would close a cycle.",
	Args: cobra.ExactArgs(3),
	RunE: runDepCheck,
}

func runDepCheck(cmd *cobra.Command, args []string) error {
	sid, tid, depID := args[0], args[1], args[2]
	sess, cfg, err := load(cmd, sid)
	if err != nil {
		return err
	}
	for _, id := range []string{tid, depID} {
		if _, err := sess.Task(id); err != nil {
			return err
		}
	}
	p := newPrinter(cfg.Color)

	if !sess.WouldCreateCycle(tid, depID) {
		p.ok("'%s' can depend on '%s'", tid, depID)
		return nil
	}
	if tid == depID {
		p.fail("a task cannot depend on itself")
		return &exitError{code: 2}
	}

	reason := "would create a cycle"
	if cands, err := sess.DependencyCandidates(tid); err == nil {
		for _, c := range cands {
			if c.Task.ID == depID && c.Reason != "" {
				reason = c.Reason
			}
		}
	}
	p.fail("'%s' cannot depend on '%s': %s", tid, depID, reason)
	return &exitError{code: 2}
}

// ── dep candidates ──────────────────────────────────────────────────────

var depCandidatesCmd = &cobra.Command{
	Use:   "candidates [session-id] [task-id]",
	Short: "List the tasks a task may depend on",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepCandidates,
}

func runDepCandidates(cmd *cobra.Command, args []string) error {
	sid, tid := args[0], args[1]
	sess, cfg, err := load(cmd, sid)
	if err != nil {
		return err
	}
	cands, err := sess.DependencyCandidates(tid)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		fmt.Println("No other tasks in this session.")
		return nil
	}
	newPrinter(cfg.Color).candidates(cands)
	return nil
}

// ── dep dependents ──────────────────────────────────────────────────────

var depDependentsCmd = &cobra.Command{
	Use:   "dependents [session-id] [task-id]",
	Short: "List the tasks waiting on a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepDependents,
}

func runDepDependents(cmd *cobra.Command, args []string) error {
	sid, tid := args[0], args[1]
	sess, cfg, err := load(cmd, sid)
	if err != nil {
		return err
	}
	if _, err := sess.Task(tid); err != nil {
		return err
	}

	direct := sess.DependentsOf(tid)
	if len(direct) == 0 {
		fmt.Printf("No task depends on '%s'.\n", tid)
		return nil
	}

	rows := make([][]string, 0, len(direct))
	for _, t := range direct {
		rows = append(rows, []string{t.ID, t.TaskCode, truncate(t.Title, 40), taskState(t)})
	}
	p := newPrinter(cfg.Color)
	p.table([]string{"ID", "CODE", "TITLE", "STATE"}, rows, nil)

	all := sess.TransitiveDependents(tid)
	if len(all) > len(direct) {
		p.printf("\nIndirectly waiting: %s\n", strings.Join(indirectOnly(all, direct), ", "))
	}
	return nil
}

func indirectOnly(all []string, direct []taskgraph.Task) []string {
	seen := make(map[string]bool, len(direct))
	for _, t := range direct {
		seen[t.ID] = true
	}
	var out []string
	for _, id := range all {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func init() {
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRmCmd)
	depCmd.AddCommand(depCheckCmd)
	depCmd.AddCommand(depCandidatesCmd)
	depCmd.AddCommand(depDependentsCmd)
}
