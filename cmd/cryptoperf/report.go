package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/upload"
)

var (
	reportUser       string
	reportKind       string
	reportAlgorithms []string
	reportFrom       string
	reportTo         string
	reportTitle      string
	reportUpload     bool
	reportUploadFmt  string
	reportJSON       bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate, show and publish reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and store a report",
	RunE:  runReportGenerate,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(reportUser); err != nil {
			return err
		}

		var kind report.Kind

		if reportKind != "" {
			parsed, err := report.ParseKind(reportKind)
			if err != nil {
				return err
			}

			kind = parsed
		}

		return withApp(cmd.Context(), func(a *app) error {
			reps, err := a.reports.List(cmd.Context(), reportUser, kind)
			if err != nil {
				return err
			}

			if reportJSON {
				return printJSON(cmd.OutOrStdout(), reps)
			}

			rows := make([][]string, 0, len(reps))
			for _, rep := range reps {
				rows = append(rows, []string{
					strconv.FormatUint(uint64(rep.ID), 10),
					string(rep.Kind),
					rep.Title,
					rep.Window.From.Format(time.RFC3339),
					rep.Window.To.Format(time.RFC3339),
					rep.CreatedAt.UTC().Format(time.RFC3339),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Title", "From", "To", "Created"}, rows,
			))

			return nil
		})
	},
}

var reportKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the supported report kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportJSON {
			return printJSON(cmd.OutOrStdout(), report.Kinds())
		}

		rows := make([][]string, 0, 3)
		for _, k := range report.Kinds() {
			rows = append(rows, []string{string(k.Kind), k.Name, k.Description})
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Kind", "Name", "Description"}, rows))

		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a report as Markdown, or JSON with --json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(reportUser); err != nil {
			return err
		}

		id, err := parseReportID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			rep, err := a.reports.Get(cmd.Context(), reportUser, id)
			if err != nil {
				return err
			}

			if reportJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}

			fmt.Fprint(cmd.OutOrStdout(), report.RenderMarkdown(rep))

			return nil
		})
	},
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(reportUser); err != nil {
			return err
		}

		id, err := parseReportID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			if err := a.reports.Delete(cmd.Context(), reportUser, id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted report %d\n", id)

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportGenerateCmd, reportListCmd, reportKindsCmd, reportShowCmd, reportDeleteCmd)

	reportCmd.PersistentFlags().StringVar(&reportUser, "user", "", "owning user")
	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "print JSON instead of text")

	reportGenerateCmd.Flags().StringVar(&reportKind, "kind", "",
		"report kind: performance, security or comparison")
	reportGenerateCmd.Flags().StringSliceVar(&reportAlgorithms, "algorithm", nil,
		"algorithms to cover, defaults to every tested algorithm")
	reportGenerateCmd.Flags().StringVar(&reportFrom, "from", "",
		"window start, RFC3339 or a duration before now")
	reportGenerateCmd.Flags().StringVar(&reportTo, "to", "",
		"window end, RFC3339 or a duration before now")
	reportGenerateCmd.Flags().StringVar(&reportTitle, "title", "", "report title")
	reportGenerateCmd.Flags().BoolVar(&reportUpload, "upload", false,
		"publish the report to the configured S3 bucket")
	reportGenerateCmd.Flags().StringVar(&reportUploadFmt, "upload-format", "markdown",
		"published encoding: markdown or json")

	reportListCmd.Flags().StringVar(&reportKind, "kind", "", "only reports of this kind")

	_ = reportGenerateCmd.MarkFlagRequired("kind")
}

func runReportGenerate(cmd *cobra.Command, args []string) error {
	if err := requireUser(reportUser); err != nil {
		return err
	}

	kind, err := report.ParseKind(reportKind)
	if err != nil {
		return err
	}

	now := time.Now()

	var window report.Window

	if window.From, err = parseInstant(reportFrom, now); err != nil {
		return fmt.Errorf("parsing --from: %w", err)
	}

	if window.To, err = parseInstant(reportTo, now); err != nil {
		return fmt.Errorf("parsing --to: %w", err)
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		if err := a.ensureSeeded(ctx); err != nil {
			return err
		}

		rep, err := a.reports.Generate(ctx, report.Request{
			Kind:       kind,
			UserID:     reportUser,
			Algorithms: reportAlgorithms,
			Window:     window,
			Title:      reportTitle,
		})
		if err != nil {
			return err
		}

		if reportUpload {
			key, err := publishReport(ctx, a, rep, reportUploadFmt)
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"report": rep.ID,
				"key":    key,
			}).Info("Report published")
		}

		if reportJSON {
			return printJSON(cmd.OutOrStdout(), rep)
		}

		fmt.Fprint(cmd.OutOrStdout(), report.RenderMarkdown(rep))

		return nil
	})
}

// publishReport uploads rep in the given encoding and returns its key.
func publishReport(ctx context.Context, a *app, rep *report.Report, format string) (string, error) {
	uploader, err := a.requireUploader()
	if err != nil {
		return "", err
	}

	name, data, err := report.Encode(rep, format)
	if err != nil {
		return "", err
	}

	key, err := uploader.Upload(ctx, upload.KindReports, name, data)
	if err != nil {
		return "", fmt.Errorf("publishing report %d: %w", rep.ID, err)
	}

	return key, nil
}

func parseReportID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid report id %q", s)
	}

	return uint(id), nil
}
