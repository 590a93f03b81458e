package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/RyanBlaney/sonido-insect/pipeline"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

var (
	primary = lipgloss.Color("#00ff9f")
	dim     = lipgloss.Color("#6e7681")
	failure = lipgloss.Color("#ff5f87")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(failure).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(dim)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primary)
)

// renderTable draws rows under headers. A column named "error" is drawn in
// the failure color.
func renderTable(headers []string, rows [][]string) string {
	errCol := -1
	for i, h := range headers {
		if h == "error" {
			errCol = i
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == errCol:
				return errorStyle
			default:
				return cellStyle
			}
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// writeJSONLine writes v as one compact JSON document per line.
func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// result is the outcome of classifying one file.
type result struct {
	File          string             `json:"file"`
	Label         string             `json:"label,omitempty"`
	ClassID       int                `json:"class_id"`
	Confidence    float64            `json:"confidence,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	InvocationID  string             `json:"invocation_id,omitempty"`
	Cached        bool               `json:"cached,omitempty"`
	ElapsedMs     float64            `json:"elapsed_ms,omitempty"`
	Error         string             `json:"error,omitempty"`
	Stage         string             `json:"stage,omitempty"`
	Kind          string             `json:"kind,omitempty"`
}

func newResult(file string, pred *pipeline.Prediction, err error) result {
	r := result{File: file, ClassID: -1}
	if err != nil {
		r.Error = err.Error()
		var se *pipeline.StageError
		if errors.As(err, &se) {
			r.Stage = string(se.Stage)
			r.Kind = se.Kind.String()
			r.Error = se.Err.Error()
		}
		return r
	}

	r.Label = pred.Label
	r.ClassID = pred.ClassID
	r.Probabilities = pred.Probabilities
	r.Confidence = pred.Probabilities[pred.Label]
	r.InvocationID = pred.InvocationID
	r.Cached = pred.Cached
	for _, d := range pred.Durations {
		r.ElapsedMs += float64(d.Microseconds()) / 1000
	}
	return r
}

// writeResults prints results as JSON lines or a table.
func writeResults(w io.Writer, format string, results []result) error {
	if format == formatJSON {
		for _, r := range results {
			if err := writeJSONLine(w, r); err != nil {
				return err
			}
		}
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			rows = append(rows, []string{r.File, "", "", fmt.Sprintf("%s/%s: %s", r.Stage, r.Kind, r.Error)})
			continue
		}
		label := r.Label
		if r.Cached {
			label += " (cached)"
		}
		rows = append(rows, []string{r.File, label, strconv.FormatFloat(r.Confidence, 'f', 3, 64), ""})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"file", "label", "confidence", "error"}, rows))
	return err
}

// writeSummary prints per-label counts below a table.
func writeSummary(w io.Writer, results []result) error {
	counts := map[string]int{}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			continue
		}
		counts[r.Label]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rows := make([][]string, 0, len(labels)+1)
	for _, label := range labels {
		rows = append(rows, []string{label, strconv.Itoa(counts[label])})
	}
	if failed > 0 {
		rows = append(rows, []string{"(failed)", strconv.Itoa(failed)})
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render(fmt.Sprintf("%d recordings", len(results))),
		renderTable([]string{"label", "count"}, rows))
	return err
}

// failures returns an error when any result failed, after the output has
// been written.
func failures(results []result) error {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d recordings failed", failed, len(results))
}
