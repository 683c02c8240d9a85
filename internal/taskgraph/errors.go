package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is wrapped by every *CycleError.
	ErrCycle = errors.New("dependency cycle")
	// ErrUnknownTask is returned when an operation names a task id that is
	// not part of the session.
	ErrUnknownTask = errors.New("unknown task")
	// ErrDuplicateTask is returned when a batch carries the same id twice.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrDuplicateTaskCode is returned when two tasks of one category carry
	// the same task code.
	ErrDuplicateTaskCode = errors.New("duplicate task code")
	// ErrBulkDependencies is returned when a bulk patch tries to change
	// dependency lists.
	ErrBulkDependencies = errors.New("bulk updates cannot change dependencies")
	// ErrInvalidPatch is returned when a patch carries an invalid value.
	ErrInvalidPatch = errors.New("invalid task update")
	// ErrClosed is returned by every mutation after Confirm or Cancel.
	ErrClosed = errors.New("session is closed")
)

// CycleError reports a rejected or detected dependency cycle. When the
// error comes from an edge insertion, TaskID and DependencyID name the
// rejected edge. Path is one witness cycle, first and last element equal.
type CycleError struct {
	TaskID       string
	DependencyID string
	Path         []string
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.DependencyID != "" && e.TaskID == e.DependencyID:
		return fmt.Sprintf("task %s cannot depend on itself", e.TaskID)
	case e.DependencyID != "":
		msg := fmt.Sprintf("task %s cannot depend on %s: would create a dependency cycle", e.TaskID, e.DependencyID)
		if len(e.Path) > 0 {
			msg += ": " + strings.Join(e.Path, " -> ")
		}
		return msg
	case len(e.Path) > 0:
		return "dependency cycle: " + strings.Join(e.Path, " -> ")
	default:
		return ErrCycle.Error()
	}
}

func (e *CycleError) Unwrap() error { return ErrCycle }

func unknownTask(id string) error {
	return fmt.Errorf("%w: %q", ErrUnknownTask, id)
}

func invalidPatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPatch, fmt.Sprintf(format, args...))
}
