package cmd

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/batch"
	"github.com/hseinmoussa/jml-tasks/internal/catalog"
	"github.com/hseinmoussa/jml-tasks/internal/handoff"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/hseinmoussa/jml-tasks/internal/timing"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open, inspect and close configuration sessions",
}

// ── session open ────────────────────────────────────────────────────────

var sessionOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a configuration session over a batch file",
	Args:  cobra.NoArgs,
	RunE:  runSessionOpen,
}

var (
	openBatch    string
	openEmployee string
	openProcess  string
	openStart    string
	openID       string
)

func runSessionOpen(cmd *cobra.Command, args []string) error {
	b, err := batch.LoadFile(openBatch)
	if err != nil {
		return err
	}

	// Flags win over the batch header.
	employee := firstNonEmpty(openEmployee, b.Employee)
	process := taskgraph.ProcessType(strings.ToLower(firstNonEmpty(openProcess, b.Process)))
	startText := firstNonEmpty(openStart, b.Start)

	if employee == "" {
		return fmt.Errorf("employee is required (--employee or 'employee' in the batch header)")
	}
	if !process.IsValid() {
		return fmt.Errorf("invalid process %q (want joiner, mover or leaver)", process)
	}
	if startText == "" {
		return fmt.Errorf("start date is required (--start or 'start' in the batch header)")
	}
	startDate, err := timing.ParseDate(startText)
	if err != nil {
		return err
	}

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, taskgraph.WithFieldDefaults(cat.Defaults))
	if openID != "" {
		if !batch.IsValidID(openID) {
			return fmt.Errorf("invalid session id %q: use letters, digits, '.', '_' or '-'", openID)
		}
		opts = append(opts, taskgraph.WithSessionID(openID))
	}

	start := b.SessionStart(cat.Defaults)
	start.EmployeeLabel = employee
	start.ProcessType = process
	start.StartDate = startDate

	sess, err := taskgraph.NewSession(start, opts...)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	if err := st.Create(sess); err != nil {
		return err
	}

	tasks := sess.Tasks()
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	ev := taskgraph.Event{SessionID: sess.ID(), Op: taskgraph.OpOpen, TaskIDs: ids, At: sess.CreatedAt()}
	if err := st.AppendJournal(sess.ID(), ev); err != nil {
		log.Printf("WARN: journal for session %s: %v", sess.ID(), err)
	}

	p := newPrinter(cfg.Color)
	for _, t := range tasks {
		if t.AssignmentType == taskgraph.AssignRole && t.AssignedRole != "" && !cat.HasRole(t.AssignedRole) {
			p.warn("task %s: role %q is not in the catalog", t.ID, t.AssignedRole)
		}
	}
	p.ok("Opened session %s with %d tasks", sess.ID(), len(tasks))
	fmt.Println(sess.ID())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ── session list ────────────────────────────────────────────────────────

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	sums, err := st.List()
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		status := "open"
		if s.Closed {
			status = "closed"
		}
		rows = append(rows, []string{
			s.ID,
			truncate(s.EmployeeLabel, 30),
			string(s.ProcessType),
			s.StartDate.Format("2006-01-02"),
			fmt.Sprintf("%d/%d", s.Progress.Configured, s.Progress.Total),
			status,
			s.CreatedAt.Local().Format(time.DateTime),
		})
	}
	newPrinter(cfg.Color).table(
		[]string{"ID", "EMPLOYEE", "PROCESS", "START", "CONFIGURED", "STATUS", "CREATED"},
		rows, nil)
	return nil
}

// ── session show ────────────────────────────────────────────────────────

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's progress and tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var (
	showCategory     string
	showSearch       string
	showBlocked      bool
	showUnconfigured bool
	showAll          bool
	showOrder        string
)

func runSessionShow(cmd *cobra.Command, args []string) error {
	sess, cfg, err := load(cmd, args[0])
	if err != nil {
		return err
	}

	f := taskgraph.Filter{
		Query:             showSearch,
		OnlyBlocked:       showBlocked,
		OnlyUnconfigured:  showUnconfigured,
		IncludeDeselected: showAll,
	}
	if showCategory != "" {
		c, ok := taskgraph.ParseCategory(showCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", showCategory)
		}
		f.Category = c
	}
	tasks := sess.Filter(f)

	switch showOrder {
	case "", "insertion":
	case "topo":
		order, err := sess.ExecutionOrder()
		if err != nil {
			return err
		}
		tasks = orderTasks(tasks, order)
	default:
		return fmt.Errorf("unknown order %q (want insertion or topo)", showOrder)
	}

	p := newPrinter(cfg.Color)
	p.sessionHeader(sess)
	if len(tasks) == 0 {
		fmt.Println("No tasks match.")
		return nil
	}
	p.taskTable(sess, tasks)
	return nil
}

// orderTasks sorts tasks by their position in order. Tasks missing from
// order (deselected ones) keep their relative order at the end.
func orderTasks(tasks []taskgraph.Task, order []string) []taskgraph.Task {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	out := make([]taskgraph.Task, 0, len(tasks))
	var rest []taskgraph.Task
	for _, id := range order {
		for _, t := range tasks {
			if t.ID == id {
				out = append(out, t)
				break
			}
		}
	}
	for _, t := range tasks {
		if _, ok := pos[t.ID]; !ok {
			rest = append(rest, t)
		}
	}
	return append(out, rest...)
}

// ── session confirm ─────────────────────────────────────────────────────

var sessionConfirmCmd = &cobra.Command{
	Use:   "confirm [session-id]",
	Short: "Confirm a session and hand off the selected tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionConfirm,
}

var confirmOut string

func runSessionConfirm(cmd *cobra.Command, args []string) error {
	sid := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	h := handoff.New(&cfg)
	path := confirmOut
	if path == "" {
		st, err := openStore()
		if err != nil {
			return err
		}
		path = h.ResultPath(st.ResultsDir(), sid)
	}

	var (
		res       taskgraph.Result
		delivered handoff.Delivery
	)
	_, err = mutate(cmd, sid, "session confirm", func(s *taskgraph.Session) error {
		var err error
		if res, err = s.Confirm(); err != nil {
			return err
		}
		// the session is only saved as closed once the result is on disk
		delivered, err = h.Deliver(cmd.Context(), res, path)
		return err
	})
	if err != nil {
		return err
	}

	p := newPrinter(cfg.Color)
	p.ok("Confirmed session %s: %d tasks written to %s", sid, len(res.Tasks), delivered.Path)
	switch {
	case delivered.Posted:
		p.ok("Handed off to %s", cfg.HandoffURL)
	case cfg.HandoffURL != "":
		p.warn("Handoff to %s failed; the result file is kept", cfg.HandoffURL)
	}
	return nil
}

// ── session cancel ──────────────────────────────────────────────────────

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel [session-id]",
	Short: "Discard a session without producing a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCancel,
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	sid := args[0]
	wasClosed := false
	_, err := mutate(cmd, sid, "session cancel", func(s *taskgraph.Session) error {
		wasClosed = s.Closed()
		s.Cancel()
		return nil
	})
	if err != nil {
		return err
	}
	if wasClosed {
		fmt.Printf("Session '%s' is already closed\n", sid)
		return nil
	}
	fmt.Printf("Cancelled session '%s'\n", sid)
	return nil
}

// ── session history ─────────────────────────────────────────────────────

var sessionHistoryCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print the journal of operations applied to a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionHistory,
}

func runSessionHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	events, err := st.ReadJournal(args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No history recorded.")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.At.Local().Format(time.DateTime),
			ev.Op,
			truncate(strings.Join(ev.TaskIDs, ","), 40),
			ev.DependencyID,
			strings.Join(ev.Fields, ","),
		})
	}
	newPrinter(cfg.Color).table([]string{"AT", "OP", "TASKS", "DEPENDENCY", "FIELDS"}, rows, nil)
	return nil
}

func init() {
	openFlags := sessionOpenCmd.Flags()
	openFlags.StringVar(&openBatch, "batch", "", "batch file with the inbound tasks (required)")
	openFlags.StringVar(&openEmployee, "employee", "", "employee display label")
	openFlags.StringVar(&openProcess, "process", "", "joiner, mover or leaver")
	openFlags.StringVar(&openStart, "start", "", "start date (YYYY-MM-DD)")
	openFlags.StringVar(&openID, "id", "", "session id (default: generated)")
	_ = sessionOpenCmd.MarkFlagRequired("batch")

	showFlags := sessionShowCmd.Flags()
	showFlags.StringVar(&showCategory, "category", "", "only tasks in this category")
	showFlags.StringVar(&showSearch, "search", "", "match title, task code or instructions")
	showFlags.BoolVar(&showBlocked, "blocked", false, "only tasks blocked until their dependencies complete")
	showFlags.BoolVar(&showUnconfigured, "unconfigured", false, "only tasks not yet configured")
	showFlags.BoolVar(&showAll, "all", false, "include deselected tasks")
	showFlags.StringVar(&showOrder, "order", "", "insertion (default) or topo")

	sessionConfirmCmd.Flags().StringVar(&confirmOut, "out", "", "write the result here instead of the results directory")

	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionConfirmCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
}
