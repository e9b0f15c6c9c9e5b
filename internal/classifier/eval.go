// SPDX-License-Identifier: MIT
package classifier

import (
	"fmt"

	"genre/internal/features"
)

// ClassMetrics holds the per-label scores of an evaluation.
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int // Rows whose true label is Label.
}

// Report summarises a model over labelled rows.
type Report struct {
	Total     int
	Correct   int
	Accuracy  float64
	Classes   []ClassMetrics // Encoder order.
	MacroF1   float64
	Confusion [][]int // [true][predicted], encoder order.
	Skipped   int     // Rows whose label the encoder does not know.
}

// Evaluate classifies every labelled row and scores the predictions.
func Evaluate(a *Adapter, rows []features.Row) (*Report, error) {
	labels := a.Labels()
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	r := &Report{Confusion: make([][]int, len(labels))}
	for i := range r.Confusion {
		r.Confusion[i] = make([]int, len(labels))
	}

	for _, row := range rows {
		truth, ok := index[row.Label]
		if !ok {
			r.Skipped++
			continue
		}
		code, err := a.model.Predict(row.Vector.Slice())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", row.Filename, err)
		}
		r.Confusion[truth][code]++
		r.Total++
		if code == truth {
			r.Correct++
		}
	}
	if r.Total == 0 {
		return nil, fmt.Errorf("no rows carry a known label")
	}
	if r.Skipped > 0 {
		logger.Warnf("Skipped %d rows with unknown labels", r.Skipped)
	}
	r.Accuracy = float64(r.Correct) / float64(r.Total)

	r.Classes = make([]ClassMetrics, len(labels))
	for c, label := range labels {
		var predicted, actual int
		for k := range labels {
			predicted += r.Confusion[k][c]
			actual += r.Confusion[c][k]
		}
		tp := r.Confusion[c][c]
		m := ClassMetrics{
			Label:     label,
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, actual),
			Support:   actual,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
		r.MacroF1 += m.F1
	}
	r.MacroF1 /= float64(len(labels))
	return r, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
