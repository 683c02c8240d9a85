package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
)

var (
	colorAccent  = lipgloss.Color("205")
	colorSubtle  = lipgloss.Color("241")
	colorSuccess = lipgloss.Color("42")
	colorWarning = lipgloss.Color("214")
	colorError   = lipgloss.Color("160")

	styleHeader  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleSubtle  = lipgloss.NewStyle().Foreground(colorSubtle)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// printer writes command output, styled only when color is enabled and
// stdout is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(colorEnabled bool) *printer {
	return &printer{
		w:     os.Stdout,
		color: colorEnabled && isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// table prints rows under headers with columns padded to the widest cell.
// Padding is computed on the plain text so styling never skews alignment.
func (p *printer) table(headers []string, rows [][]string, styleRow func(i int) *lipgloss.Style) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = p.style(styleHeader, pad(h, widths[i]))
	}
	p.printf("%s\n", strings.TrimRight(strings.Join(cells, "  "), " "))
	for i, w := range widths {
		cells[i] = p.style(styleSubtle, strings.Repeat("─", w))
	}
	p.printf("%s\n", strings.Join(cells, "  "))

	for r, row := range rows {
		line := make([]string, len(headers))
		for i := range headers {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			line[i] = pad(val, widths[i])
		}
		text := strings.TrimRight(strings.Join(line, "  "), " ")
		if styleRow != nil {
			if s := styleRow(r); s != nil {
				text = p.style(*s, text)
			}
		}
		p.printf("%s\n", text)
	}
}

// pad right-fills s to w terminal cells.
func pad(s string, w int) string {
	if gap := w - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// truncate shortens s to at most n terminal cells, ending in "...".
func truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "...")
}

// ── session views ───────────────────────────────────────────────────────

// progressBar renders a fixed-width bar for p.
func progressBar(p taskgraph.Progress, width int) string {
	filled := int(p.Ratio() * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (p *printer) sessionHeader(sess *taskgraph.Session) {
	status := p.style(styleSuccess, "open")
	if sess.Closed() {
		status = p.style(styleSubtle, "closed")
	}
	p.printf("%s  %s\n", p.style(styleHeader, "Session "+sess.ID()), status)
	p.printf("Employee: %s (%s), start %s\n",
		sess.EmployeeLabel(), sess.ProcessType(), sess.StartDate().Format("2006-01-02"))

	prog := sess.Progress()
	p.printf("Configured: %s %d/%d (%d%%)\n",
		progressBar(prog, 20), prog.Configured, prog.Total, prog.Percent())

	var parts []string
	for _, c := range sess.CategoryBreakdown() {
		parts = append(parts, fmt.Sprintf("%s %d", c.Category, c.Count))
	}
	if len(parts) > 0 {
		p.printf("Categories: %s\n", strings.Join(parts, " · "))
	}
	p.printf("\n")
}

func (p *printer) taskTable(sess *taskgraph.Session, tasks []taskgraph.Task) {
	headers := []string{"ID", "CODE", "TITLE", "PRIORITY", "ASSIGNEE", "DUE", "DEPENDS ON", "STATE"}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		assignee := t.AssignedRole
		if t.AssignmentType == taskgraph.AssignUser {
			assignee = t.AssigneeEmail
		}
		rows = append(rows, []string{
			t.ID,
			t.TaskCode,
			truncate(t.Title, 40),
			string(t.Priority),
			assignee,
			sess.DueDate(t).Format("2006-01-02") + " (" + t.Offset.String() + ")",
			strings.Join(t.DependsOn, ","),
			taskState(t),
		})
	}
	p.table(headers, rows, func(i int) *lipgloss.Style {
		switch {
		case !tasks[i].IsSelected:
			return &styleSubtle
		case taskgraph.IsBlocked(tasks[i]):
			return &styleWarning
		}
		return nil
	})
}

func taskState(t taskgraph.Task) string {
	var flags []string
	if !t.IsSelected {
		flags = append(flags, "deselected")
	}
	if t.IsConfigured {
		flags = append(flags, "configured")
	}
	if taskgraph.IsBlocked(t) {
		flags = append(flags, "blocked")
	}
	return strings.Join(flags, ",")
}

func (p *printer) candidates(cands []taskgraph.Candidate) {
	headers := []string{"ID", "CODE", "TITLE", "STATUS"}
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		status := "available"
		switch {
		case c.Current:
			status = "current dependency"
		case c.Disabled:
			status = c.Reason
		}
		if !c.Task.IsSelected {
			status += " (deselected)"
		}
		rows = append(rows, []string{c.Task.ID, c.Task.TaskCode, truncate(c.Task.Title, 40), status})
	}
	p.table(headers, rows, func(i int) *lipgloss.Style {
		switch {
		case cands[i].Disabled:
			return &styleSubtle
		case cands[i].Current:
			return &styleSuccess
		}
		return nil
	})
}

func (p *printer) warn(format string, args ...any) {
	p.printf("%s %s\n", p.style(styleWarning, "!"), fmt.Sprintf(format, args...))
}

func (p *printer) fail(format string, args ...any) {
	p.printf("%s %s\n", p.style(styleError, "✗"), fmt.Sprintf(format, args...))
}

func (p *printer) ok(format string, args ...any) {
	p.printf("%s %s\n", p.style(styleSuccess, "✓"), fmt.Sprintf(format, args...))
}
