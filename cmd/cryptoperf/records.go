package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/results"
	"github.com/ethpandaops/cryptoperf/pkg/upload"
)

var (
	recordsUser   string
	recordsFilter filterOptions
	recordsFormat string
	recordsOutput string
	recordsUpload bool
	recordsInput  string
	recordsLimit  int
	recordsJSON   bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List, export, import and delete test records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest records of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(recordsUser); err != nil {
			return err
		}

		filter, err := recordsFilter.build(recordsUser, time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			page, err := a.results.Paginate(cmd.Context(), filter, "", recordsLimit)
			if err != nil {
				return err
			}

			if recordsJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}

			recs := make([]*results.Record, len(page.Records))
			for i := range page.Records {
				recs[i] = &page.Records[i]
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(recordHeaders, recordRows(recs)))

			return nil
		})
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one record with its algorithm descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(recordsUser); err != nil {
			return err
		}

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		return withApp(ctx, func(a *app) error {
			rec, err := a.results.Get(ctx, recordsUser, ids[0])
			if err != nil {
				return err
			}

			d, err := a.catalog.Get(ctx, rec.Algorithm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if recordsJSON {
				return printJSON(out, map[string]any{"record": rec, "algorithm": d})
			}

			fmt.Fprintln(out, renderTable(recordHeaders, recordRows([]*results.Record{rec})))
			fmt.Fprintf(out, "%s: %s %s, key size %d, quantum safe %s, provider %s (%s)\n",
				d.Identity, d.Family, d.Category, d.KeySize,
				yesNo(d.QuantumSafe), d.Provider, d.Status)

			if rec.ErrorMessage != "" {
				fmt.Fprintf(out, "error: %s\n", rec.ErrorMessage)
			}

			return nil
		})
	},
}

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records to a file, stdout or S3",
	RunE:  runRecordsExport,
}

var recordsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from an export document",
	RunE:  runRecordsImport,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete records owned by a user",
	Long: `Delete the given records atomically. Nothing is deleted if any id is
missing or belongs to another user.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(recordsUser); err != nil {
			return err
		}

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			deleted, err := a.results.DeleteMany(cmd.Context(), recordsUser, ids)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", deleted)

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsShowCmd, recordsExportCmd,
		recordsImportCmd, recordsDeleteCmd)

	recordsCmd.PersistentFlags().StringVar(&recordsUser, "user", "", "owning user")

	recordsFilter.register(recordsListCmd)
	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", results.DefaultPageSize,
		"maximum number of records")
	recordsListCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
	recordsShowCmd.Flags().BoolVar(&recordsJSON, "json", false, "print the record as JSON")

	recordsFilter.register(recordsExportCmd)
	recordsExportCmd.Flags().StringVar(&recordsFormat, "format", "",
		"export format (json, yaml), defaults to export.format")
	recordsExportCmd.Flags().StringVarP(&recordsOutput, "output", "o", "",
		"write to this file instead of stdout")
	recordsExportCmd.Flags().BoolVar(&recordsUpload, "upload", false,
		"publish the export to the configured S3 bucket")

	recordsImportCmd.Flags().StringVarP(&recordsInput, "file", "f", "",
		"export document to import (- for stdin)")
	recordsImportCmd.Flags().StringVar(&recordsFormat, "format", "",
		"document format (json, yaml), inferred from the file extension")

	_ = recordsImportCmd.MarkFlagRequired("file")
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	if err := requireUser(recordsUser); err != nil {
		return err
	}

	filter, err := recordsFilter.build(recordsUser, time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		format := recordsFormat
		if format == "" {
			format = a.cfg.Export.Format
		}

		doc, err := a.results.Export(ctx, recordsUser, filter)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := doc.Encode(&buf, format); err != nil {
			return err
		}

		if recordsUpload {
			uploader, err := a.requireUploader()
			if err != nil {
				return err
			}

			name := recordsUser + "/" + doc.FileName(format)

			key, err := uploader.Upload(ctx, upload.KindExports, name, buf.Bytes())
			if err != nil {
				return fmt.Errorf("uploading export: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %d records to %s\n", doc.Metadata.Total, key)

			return nil
		}

		if recordsOutput == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())

			return err
		}

		if err := os.WriteFile(recordsOutput, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}

		log.WithFields(logrus.Fields{
			"file":    recordsOutput,
			"records": doc.Metadata.Total,
		}).Info("Export written")

		return nil
	})
}

func runRecordsImport(cmd *cobra.Command, args []string) error {
	format := recordsFormat
	if format == "" {
		format = formatFromPath(recordsInput)
	}

	var in io.Reader = cmd.InOrStdin()

	if recordsInput != "-" {
		f, err := os.Open(recordsInput)
		if err != nil {
			return fmt.Errorf("opening %s: %w", recordsInput, err)
		}
		defer f.Close()

		in = f
	}

	doc, err := results.DecodeExport(in, format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		if err := a.ensureSeeded(ctx); err != nil {
			return err
		}

		n, err := a.results.Import(ctx, doc)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)

		return nil
	})
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return results.FormatYAML
	default:
		return results.FormatJSON
	}
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}

			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("invalid record id %q", part)
			}

			ids = append(ids, uint(id))
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no record ids given")
	}

	return ids, nil
}
