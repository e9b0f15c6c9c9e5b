// SPDX-License-Identifier: MIT
package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"genre/internal/classifier"
	"genre/internal/history"
	"genre/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbabilities(t *testing.T) {
	d := classifier.Distribution{{Label: "blues", P: 0.1}, {Label: "jazz", P: 0.7}, {Label: "rock", P: 0.2}}
	var buf bytes.Buffer
	require.NoError(t, Probabilities(&buf, "song.wav", d))

	out := buf.String()
	assert.Contains(t, out, "song.wav")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[2]), "jazz"), "most probable first: %q", lines[2])
	assert.Contains(t, lines[2], " 70.00%")
	assert.Contains(t, lines[4], "blues")
	assert.Equal(t, 21, strings.Count(lines[2], "█"))
}

func TestResults(t *testing.T) {
	results := []transport.Result{
		{Source: "a.wav", Label: "jazz", Probabilities: classifier.Distribution{{Label: "jazz", P: 0.9}, {Label: "rock", P: 0.1}}},
		{Source: "long/b.wav", Error: "decode failed"},
		{Source: "c.wav", Label: "jazz"},
	}
	var buf bytes.Buffer
	require.NoError(t, Results(&buf, results))
	out := buf.String()
	assert.Contains(t, out, "a.wav       jazz (90.0%)")
	assert.Contains(t, out, "error: decode failed")
	assert.Contains(t, out, "3 files, 1 failed: jazz=2")
}

func TestReport(t *testing.T) {
	r := &classifier.Report{
		Total: 4, Correct: 3, Accuracy: 0.75, MacroF1: 0.7333,
		Classes: []classifier.ClassMetrics{
			{Label: "jazz", Precision: 1, Recall: 0.5, F1: 0.6667, Support: 2},
			{Label: "rock", Precision: 0.6667, Recall: 1, F1: 0.8, Support: 2},
		},
		Confusion: [][]int{{1, 1}, {0, 2}},
		Skipped:   1,
	}
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "0.7500")
	assert.Contains(t, out, "(3/4)")
	assert.Contains(t, out, "Skipped   1 rows")
	assert.Contains(t, out, "jazz      1.0000     0.5000     0.6667        2")
	assert.Contains(t, out, "rock       0      2")
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, History(&buf, nil))
	assert.Contains(t, buf.String(), "No history.")

	buf.Reset()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 600000, time.Local)
	require.NoError(t, History(&buf, []history.Entry{{Path: "x.wav", Label: "pop", Time: ts}}))
	assert.Equal(t, "2024-01-02 03:04:05.000600  x.wav  pop\n", buf.String())
}
