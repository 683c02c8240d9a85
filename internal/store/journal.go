package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/hseinmoussa/jml-tasks/internal/lock"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
)

// maxJournalLine bounds a single journal entry. Bulk patches with long
// instructions can exceed bufio's 64KB default.
const maxJournalLine = 1 << 20

// AppendJournal appends events to the session's journal as JSON lines.
// The file is locked for the duration of the append so concurrent CLI
// invocations never interleave partial lines.
func (s *Store) AppendJournal(id string, events ...taskgraph.Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf []byte
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		buf = append(append(buf, line...), '\n')
	}
	return lock.Append(s.journalPath(id), buf)
}

// ReadJournal returns the session's journal in append order. A missing
// journal is empty. Malformed lines are logged as warnings and skipped.
func (s *Store) ReadJournal(id string) ([]taskgraph.Event, error) {
	path := s.journalPath(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	defer f.Close()

	var events []taskgraph.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev taskgraph.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Printf("WARN: skipping malformed journal entry at %s:%d: %v", path, lineNum, err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read journal %s: %w", path, err)
	}
	return events, nil
}
