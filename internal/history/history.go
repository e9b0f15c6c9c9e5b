// SPDX-License-Identifier: MIT
//
// Package history keeps an append-only CSV log of single-file predictions.
// Each line is "path,label,timestamp" with the timestamp in local time.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeLayout is the timestamp format of the third column.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Entry is one recorded prediction.
type Entry struct {
	Path  string    `json:"path"`
	Label string    `json:"label"`
	Time  time.Time `json:"time"`
}

// Log is a history file. It is safe for concurrent use within one process.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Open returns the log at path. The file is created on first Append.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the backing file.
func (l *Log) Path() string { return l.path }

// Append records a prediction for path stamped with the current time.
func (l *Log) Append(path, label string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Path: path, Label: label, Time: l.now()}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return e, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return e, fmt.Errorf("failed to open history: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{e.Path, e.Label, e.Time.Format(TimeLayout)}); err != nil {
		f.Close()
		return e, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return e, fmt.Errorf("failed to write history: %w", err)
	}
	return e, f.Close()
}

// List returns every entry in file order. A missing file is an empty history.
func (l *Log) List() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()
	return parse(f)
}

// Clear removes every entry.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	var out []Entry
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("history line %d: %w", line, err)
		}
		ts, err := time.ParseInLocation(TimeLayout, rec[2], time.Local)
		if err != nil {
			return out, fmt.Errorf("history line %d: bad timestamp %q", line, rec[2])
		}
		out = append(out, Entry{Path: rec[0], Label: rec[1], Time: ts})
	}
}
