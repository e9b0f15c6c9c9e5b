// SPDX-License-Identifier: MIT
package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Row is one line of the training layout:
// filename,length,<57 features>,label.
type Row struct {
	Filename string
	Length   int // Decoded length in samples.
	Vector   Vector
	Label    string
}

// Header returns the column names of the training layout.
func Header() []string {
	h := make([]string, 0, Count+3)
	h = append(h, "filename", "length")
	h = append(h, Names[:]...)
	return append(h, "label")
}

// RowWriter writes rows in the training layout.
type RowWriter struct {
	w      *csv.Writer
	header bool
}

// NewRowWriter returns a writer that emits the header before the first row.
func NewRowWriter(w io.Writer) *RowWriter {
	return &RowWriter{w: csv.NewWriter(w)}
}

// Write appends one row.
func (rw *RowWriter) Write(r Row) error {
	if !rw.header {
		if err := rw.w.Write(Header()); err != nil {
			return err
		}
		rw.header = true
	}
	rec := make([]string, 0, Count+3)
	rec = append(rec, r.Filename, strconv.Itoa(r.Length))
	for _, x := range r.Vector {
		rec = append(rec, strconv.FormatFloat(x, 'g', -1, 64))
	}
	rec = append(rec, r.Label)
	return rw.w.Write(rec)
}

// Flush writes buffered rows and reports any write error.
func (rw *RowWriter) Flush() error {
	rw.w.Flush()
	return rw.w.Error()
}

// ReadRows parses a CSV in the training layout. The label column is
// optional; every other column must be present and in order.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("feature CSV is empty")
		}
		return nil, fmt.Errorf("failed to read feature CSV header: %w", err)
	}
	if len(header) < Count+2 || header[0] != "filename" || header[1] != "length" {
		return nil, fmt.Errorf("feature CSV header must start with filename,length and list %d features", Count)
	}
	if err := CheckNames(header[2 : Count+2]); err != nil {
		return nil, fmt.Errorf("feature CSV header: %w", err)
	}
	hasLabel := len(header) > Count+2
	if hasLabel && (len(header) != Count+3 || header[Count+2] != "label") {
		return nil, fmt.Errorf("feature CSV has unexpected trailing columns %v", header[Count+2:])
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("line %d: %d fields, want %d", line, len(rec), len(header))
		}
		row := Row{Filename: rec[0]}
		if row.Length, err = strconv.Atoi(rec[1]); err != nil {
			return nil, fmt.Errorf("line %d: length: %w", line, err)
		}
		for i := range Count {
			f, err := strconv.ParseFloat(rec[i+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, Names[i], err)
			}
			row.Vector[i] = f
		}
		if hasLabel {
			row.Label = rec[Count+2]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
