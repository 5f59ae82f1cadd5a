package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"

	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = cellStyle.Foreground(lipgloss.Color("9"))
)

// renderTable draws rows under headers with a normal border.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

// recordRows renders records as table rows.
func recordRows(recs []*store.TestRecord) [][]string {
	rows := make([][]string, 0, len(recs))

	for _, r := range recs {
		outcome := "success"
		if !r.Success {
			outcome = failStyle.Render(r.ErrorCategory)
		}

		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			r.Algorithm,
			r.Operation,
			units.HumanSize(float64(r.InputSize)),
			units.HumanSize(float64(r.OutputSize)),
			report.FormatLatency(r.Duration()),
			outcome,
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return rows
}

var recordHeaders = []string{
	"ID", "Algorithm", "Operation", "Input", "Output", "Duration", "Outcome", "Created",
}

// snapshotRows renders a snapshot as field/value rows.
func snapshotRows(snap *stats.Snapshot) [][]string {
	rows := [][]string{
		{"Trials", fmt.Sprintf("%d", snap.Count)},
		{"Succeeded", fmt.Sprintf("%d", snap.SuccessCount)},
		{"Failed", fmt.Sprintf("%d", snap.FailureCount)},
		{"Success Rate", report.FormatRate(snap.SuccessRate)},
		{"Input", units.HumanSize(float64(snap.InputBytes))},
	}

	if l := snap.Latency; l != nil {
		rows = append(rows,
			[]string{"Mean", report.FormatLatency(l.Mean)},
			[]string{"Median", report.FormatLatency(l.Median)},
			[]string{"P90", report.FormatLatency(l.P90)},
			[]string{"P99", report.FormatLatency(l.P99)},
			[]string{"Min", report.FormatLatency(l.Min)},
			[]string{"Max", report.FormatLatency(l.Max)},
			[]string{"Std Dev", report.FormatLatency(l.StdDev)},
		)
	}

	return rows
}
