// SPDX-License-Identifier: MIT
//
// Package render formats results for the terminal. Styling degrades to plain
// text when the output is not a color terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"genre/internal/classifier"
	"genre/internal/history"
	"genre/internal/transport"

	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6e7681"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5534B"))
)

// Probabilities writes the distribution of one clip as a bar chart, most
// probable label first.
func Probabilities(w io.Writer, source string, d classifier.Distribution) error {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(source))
	sb.WriteString("\n\n")

	sorted := d.Sorted()
	width := labelWidth(sorted)
	for i, p := range sorted {
		filled := int(p.P*barWidth + 0.5)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		line := fmt.Sprintf("%s  %s %6.2f%%", pad(p.Label, width), bar, 100*p.P)
		if i == 0 {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Results writes one line per batch result followed by a label tally.
func Results(w io.Writer, results []transport.Result) error {
	var sb strings.Builder
	width := 0
	for _, r := range results {
		width = max(width, lipgloss.Width(r.Source))
	}

	failed := 0
	counts := map[string]int{}
	var order []string
	for _, r := range results {
		if r.Error != "" {
			failed++
			sb.WriteString(pad(r.Source, width))
			sb.WriteString("  ")
			sb.WriteString(errorStyle.Render("error: " + r.Error))
			sb.WriteByte('\n')
			continue
		}
		if counts[r.Label] == 0 {
			order = append(order, r.Label)
		}
		counts[r.Label]++
		fmt.Fprintf(&sb, "%s  %s", pad(r.Source, width), highlightStyle.Render(r.Label))
		if len(r.Probabilities) > 0 {
			fmt.Fprintf(&sb, " %s", infoStyle.Render(fmt.Sprintf("(%.1f%%)", 100*r.Probabilities.Top().P)))
		}
		sb.WriteByte('\n')
	}

	sb.WriteByte('\n')
	parts := make([]string, 0, len(order))
	for _, l := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", l, counts[l]))
	}
	summary := fmt.Sprintf("%d files, %d failed", len(results), failed)
	if len(parts) > 0 {
		summary += ": " + strings.Join(parts, " ")
	}
	sb.WriteString(infoStyle.Render(summary))
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// Report writes an evaluation summary, per-class scores and the confusion
// matrix.
func Report(w io.Writer, r *classifier.Report) error {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Evaluation"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Accuracy  %s  (%d/%d)\n", highlightStyle.Render(fmt.Sprintf("%.4f", r.Accuracy)), r.Correct, r.Total)
	fmt.Fprintf(&sb, "Macro F1  %.4f\n", r.MacroF1)
	if r.Skipped > 0 {
		sb.WriteString(infoStyle.Render(fmt.Sprintf("Skipped   %d rows with unknown labels", r.Skipped)))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	width := len("label")
	for _, c := range r.Classes {
		width = max(width, lipgloss.Width(c.Label))
	}
	sb.WriteString(infoStyle.Render(fmt.Sprintf("%s  %9s  %9s  %9s  %7s", pad("label", width), "precision", "recall", "f1", "support")))
	sb.WriteByte('\n')
	for _, c := range r.Classes {
		fmt.Fprintf(&sb, "%s  %9.4f  %9.4f  %9.4f  %7d\n", pad(c.Label, width), c.Precision, c.Recall, c.F1, c.Support)
	}

	sb.WriteByte('\n')
	sb.WriteString(infoStyle.Render("confusion (rows: true, columns: predicted)"))
	sb.WriteByte('\n')
	cell := 5
	for _, c := range r.Classes {
		cell = max(cell, lipgloss.Width(c.Label))
	}
	sb.WriteString(strings.Repeat(" ", width))
	for _, c := range r.Classes {
		fmt.Fprintf(&sb, "  %*s", cell, c.Label)
	}
	sb.WriteByte('\n')
	for i, row := range r.Confusion {
		sb.WriteString(pad(r.Classes[i].Label, width))
		for j, n := range row {
			s := fmt.Sprintf("  %*d", cell, n)
			if i == j && n > 0 {
				s = highlightStyle.Render(s)
			}
			sb.WriteString(s)
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// History writes the prediction log, oldest first.
func History(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := io.WriteString(w, infoStyle.Render("No history.")+"\n")
		return err
	}
	var sb strings.Builder
	width := 0
	for _, e := range entries {
		width = max(width, lipgloss.Width(e.Path))
	}
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %s  %s\n",
			infoStyle.Render(e.Time.Format(history.TimeLayout)), pad(e.Path, width), highlightStyle.Render(e.Label))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func labelWidth(d classifier.Distribution) int {
	width := 0
	for _, p := range d {
		width = max(width, lipgloss.Width(p.Label))
	}
	return width
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}
