package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// RenderMarkdown renders a report with its body as a Markdown document.
func RenderMarkdown(rep *Report) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, rep)
	writeOverview(&sb, rep)

	if rep.Body == nil {
		return sb.String()
	}

	writeSummary(&sb, rep.Body)
	writeRecommendation(&sb, rep.Body.Recommendation)

	switch rep.Kind {
	case KindPerformance:
		writePerformanceTable(&sb, rep.Body.Algorithms)
	case KindSecurity:
		writeSecurityTable(&sb, rep.Body.Algorithms)
		writeQuantumReadiness(&sb, rep.Body.QuantumReadiness)
	case KindComparison:
		writePerformanceTable(&sb, rep.Body.Algorithms)
		writeSecurityTable(&sb, rep.Body.Algorithms)
	}

	writeNotes(&sb, rep.Body.Algorithms)
	writeInsights(&sb, rep.Body.Insights)

	return sb.String()
}

func writeTitle(sb *strings.Builder, rep *Report) {
	fmt.Fprintf(sb, "# %s\n\n", rep.Title)
}

func writeOverview(sb *strings.Builder, rep *Report) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if rep.ID > 0 {
		fmt.Fprintf(sb, "| Report | %d |\n", rep.ID)
	}

	fmt.Fprintf(sb, "| Kind | %s |\n", rep.Kind)
	fmt.Fprintf(sb, "| Window | %s to %s |\n",
		rep.Window.From.UTC().Format(time.RFC3339),
		rep.Window.To.UTC().Format(time.RFC3339))
	fmt.Fprintf(sb, "| Generated | %s |\n", rep.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(sb, "| Algorithms | %d |\n", len(rep.Algorithms))

	if rep.Body != nil && rep.Body.Threshold > 0 {
		fmt.Fprintf(sb, "| Success Threshold | %.0f%% |\n", rep.Body.Threshold*100)
	}

	sb.WriteString("\n")
}

func writeSummary(sb *strings.Builder, body *Body) {
	if body.Summary == "" {
		return
	}

	fmt.Fprintf(sb, "## Summary\n\n%s\n\n", body.Summary)
}

func writeRecommendation(sb *strings.Builder, rec *Recommendation) {
	if rec == nil {
		return
	}

	sb.WriteString("## Recommendation\n\n")

	if rec.Algorithm != "" {
		fmt.Fprintf(sb, "**%s**: %s\n\n", rec.Algorithm, rec.Reason)
	} else {
		fmt.Fprintf(sb, "%s\n\n", rec.Reason)
	}
}

func writePerformanceTable(sb *strings.Builder, entries []Entry) {
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Algorithm | Trials | Success | Median | P90 | P99 | Std Dev | Input | Speed Rank | Stable |\n")
	sb.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|---|\n")

	for i := range entries {
		e := &entries[i]
		snap := e.Snapshot

		median, p90, p99, stddev := "-", "-", "-", "-"
		if snap.Latency != nil {
			median = FormatLatency(snap.Latency.Median)
			p90 = FormatLatency(snap.Latency.P90)
			p99 = FormatLatency(snap.Latency.P99)
			stddev = FormatLatency(snap.Latency.StdDev)
		}

		rank := "-"
		if e.SpeedRank > 0 {
			rank = fmt.Sprintf("%d", e.SpeedRank)
		}

		stable := "yes"
		if e.Unstable {
			stable = "no"
		} else if !snap.HasData() {
			stable = "-"
		}

		fmt.Fprintf(sb, "| %s | %d | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			e.Identity, snap.Count, FormatRate(snap.SuccessRate),
			median, p90, p99, stddev,
			units.HumanSize(float64(snap.InputBytes)), rank, stable)
	}

	sb.WriteString("\n")
}

func writeSecurityTable(sb *strings.Builder, entries []Entry) {
	sb.WriteString("## Security\n\n")
	sb.WriteString("| Algorithm | Family | Category | Quantum Safe | Level | Assessment |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for i := range entries {
		e := &entries[i]

		safe := "no"
		if e.QuantumSafe {
			safe = "yes"
		}

		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s |\n",
			e.Identity, e.Family, e.Category, safe, e.SecurityLevel, e.SecurityFlag)
	}

	sb.WriteString("\n")
}

func writeQuantumReadiness(sb *strings.Builder, qr *QuantumReadiness) {
	if qr == nil {
		return
	}

	sb.WriteString("## Quantum Readiness\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Post-Quantum Trials | %d |\n", qr.PostQuantumTrials)
	fmt.Fprintf(sb, "| Total Trials | %d |\n", qr.TotalTrials)
	fmt.Fprintf(sb, "| Share | %.1f%% |\n", qr.Share*100)
	fmt.Fprintf(sb, "| Level | %s |\n\n", qr.Level)
}

func writeNotes(sb *strings.Builder, entries []Entry) {
	var noted []*Entry

	for i := range entries {
		if len(entries[i].Notes) > 0 {
			noted = append(noted, &entries[i])
		}
	}

	if len(noted) == 0 {
		return
	}

	sb.WriteString("## Notes\n\n")

	for _, e := range noted {
		fmt.Fprintf(sb, "- **%s**: %s\n", e.Identity, strings.Join(e.Notes, "; "))
	}

	sb.WriteString("\n")
}

func writeInsights(sb *strings.Builder, insights []string) {
	if len(insights) == 0 {
		return
	}

	sb.WriteString("## Insights\n\n")

	for _, insight := range insights {
		fmt.Fprintf(sb, "- %s\n", insight)
	}

	sb.WriteString("\n")
}

// FormatLatency formats a trial duration with a unit suited to its size.
func FormatLatency(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// FormatRate formats a success rate, or "-" when there is no data.
func FormatRate(rate *float64) string {
	if rate == nil {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", *rate*100)
}

// ErrUnknownFormat is returned by Encode for an unsupported encoding.
var ErrUnknownFormat = errors.New("report format must be markdown or json")

// Encode renders rep for publication and returns the object name with the
// matching extension. An empty format means markdown.
func Encode(rep *Report, format string) (name string, data []byte, err error) {
	switch format {
	case "", "markdown", "md":
		return fmt.Sprintf("%d.md", rep.ID), []byte(RenderMarkdown(rep)), nil
	case "json":
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return "", nil, fmt.Errorf("encoding report: %w", err)
		}

		return fmt.Sprintf("%d.json", rep.ID), data, nil
	default:
		return "", nil, fmt.Errorf("%w, got %q", ErrUnknownFormat, format)
	}
}
