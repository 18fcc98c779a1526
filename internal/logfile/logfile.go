// Package logfile reads and appends the persisted log: one event per
// line, each line a self-contained JSON object, append order defining
// the chain.
package logfile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/veritaschain/vcp/internal/event"
)

// MalformedLogError means the file itself is not parseable as a
// sequence of events. Unlike tampering findings this is fatal: a
// broken file cannot be characterized further.
type MalformedLogError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed log %s at line %d: %v", e.Path, e.Line, e.Err)
}

func (e *MalformedLogError) Unwrap() error {
	return e.Err
}

func IsMalformedLogError(err error) bool {
	var me *MalformedLogError
	return errors.As(err, &me)
}

// ReadEvents loads every event from a JSONL log. Blank lines are
// skipped; any unparseable line aborts the load.
func ReadEvents(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var events []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, &MalformedLogError{Path: path, Line: lineNum, Err: err}
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	return events, nil
}

// AppendEvents appends events to the log, creating it if needed.
func AppendEvents(path string, events []event.Event) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := range events {
		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", i, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return w.Flush()
}

// WriteEvents truncates and rewrites the whole log, for use after a
// re-chain where every line changes.
func WriteEvents(path string, events []event.Event) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := range events {
		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", i, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return w.Flush()
}
