package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
)

var (
	statsUser   string
	statsFilter filterOptions
	statsBucket time.Duration
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded trials",
}

var statsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Latency and success statistics over matching trials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(statsUser); err != nil {
			return err
		}

		filter, err := statsFilter.build(statsUser, time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			snap, err := a.stats.Summarize(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if statsJSON {
				return printJSON(cmd.OutOrStdout(), snap)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, snapshotRows(snap)))

			return nil
		})
	},
}

var statsTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Bucketed statistics and the latency direction over time",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(statsUser); err != nil {
			return err
		}

		filter, err := statsFilter.build(statsUser, time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			trend, err := a.stats.Trend(cmd.Context(), filter, statsBucket)
			if err != nil {
				return err
			}

			if statsJSON {
				return printJSON(cmd.OutOrStdout(), trend)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"From", "To", "Trials", "Success", "Median", "P90"},
				trendRows(trend),
			))
			fmt.Fprintf(out, "direction: %s\n", trend.Direction)

			return nil
		})
	},
}

var statsOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Totals, per-algorithm summaries and daily activity of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(statsUser); err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			ov, err := a.stats.Overview(cmd.Context(), statsUser)
			if err != nil {
				return err
			}

			if statsJSON {
				return printJSON(cmd.OutOrStdout(), ov)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, [][]string{
				{"Total Trials", strconv.Itoa(ov.TotalTrials)},
				{"Recent Trials", fmt.Sprintf("%d (last %s)", ov.RecentTrials, ov.RecentWindow)},
				{"Success Rate", report.FormatRate(ov.SuccessRate)},
				{"By Family", countList(ov.ByFamily)},
				{"By Operation", countList(ov.ByOperation)},
			}))

			rows := make([][]string, 0, len(ov.Algorithms))
			for _, alg := range ov.Algorithms {
				median := "-"
				if alg.Snapshot.Latency != nil {
					median = report.FormatLatency(alg.Snapshot.Latency.Median)
				}

				rows = append(rows, []string{
					alg.Algorithm,
					alg.Family,
					strconv.Itoa(alg.Snapshot.Count),
					report.FormatRate(alg.Snapshot.SuccessRate),
					median,
				})
			}

			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Algorithm", "Family", "Trials", "Success", "Median"}, rows,
				))
			}

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsSummaryCmd, statsTrendCmd, statsOverviewCmd)

	statsCmd.PersistentFlags().StringVar(&statsUser, "user", "", "user whose trials are analyzed")
	statsCmd.PersistentFlags().BoolVar(&statsJSON, "json", false, "print the result as JSON")

	statsFilter.register(statsSummaryCmd)
	statsFilter.register(statsTrendCmd)
	statsTrendCmd.Flags().DurationVar(&statsBucket, "bucket", 0,
		"bucket width, defaults to analysis.trend_bucket")
}

func trendRows(t *stats.Trend) [][]string {
	rows := make([][]string, 0, len(t.Buckets))

	for _, b := range t.Buckets {
		median, p90 := "-", "-"
		if l := b.Snapshot.Latency; l != nil {
			median = report.FormatLatency(l.Median)
			p90 = report.FormatLatency(l.P90)
		}

		rows = append(rows, []string{
			b.From.Format(time.RFC3339),
			b.To.Format(time.RFC3339),
			strconv.Itoa(b.Snapshot.Count),
			report.FormatRate(b.Snapshot.SuccessRate),
			median,
			p90,
		})
	}

	return rows
}

// countList renders a count map as "a=1, b=2" in key order.
func countList(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := ""

	for i, k := range keys {
		if i > 0 {
			out += ", "
		}

		out += fmt.Sprintf("%s=%d", k, m[k])
	}

	return out
}
