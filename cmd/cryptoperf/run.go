package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

var (
	runUser        string
	runAlgorithms  []string
	runOperation   string
	runIterations  int
	runPayload     string
	runPayloadSize int
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run timed trials",
	Long: `Run one trial, or a batch when several algorithms or iterations are
requested. Every trial is recorded for the given user; executor failures
are recorded as failed trials rather than aborting the run.`,
	RunE: runTrials,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runUser, "user", "", "user the trials are recorded for")
	runCmd.Flags().StringSliceVar(&runAlgorithms, "algorithm", nil,
		"algorithm identities (comma-separated or repeated flag)")
	runCmd.Flags().StringVar(&runOperation, "operation", "",
		"operation: "+operationList(catalog.Operations))
	runCmd.Flags().IntVar(&runIterations, "iterations", 1, "trials per algorithm")
	runCmd.Flags().StringVar(&runPayload, "payload", "",
		"payload text (default \""+runner.DefaultPayload+"\")")
	runCmd.Flags().IntVar(&runPayloadSize, "payload-size", 0,
		"use this many random bytes as payload instead of --payload")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print records as JSON")

	_ = runCmd.MarkFlagRequired("algorithm")
	_ = runCmd.MarkFlagRequired("operation")
	runCmd.MarkFlagsMutuallyExclusive("payload", "payload-size")
}

func runTrials(cmd *cobra.Command, args []string) error {
	if err := requireUser(runUser); err != nil {
		return err
	}

	if runIterations < 1 {
		return fmt.Errorf("--iterations must be at least 1")
	}

	payload, err := trialPayload(runPayload, runPayloadSize)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		if err := a.ensureSeeded(ctx); err != nil {
			return err
		}

		op := catalog.Operation(runOperation)

		var recs []*store.TestRecord

		if len(runAlgorithms) == 1 && runIterations == 1 {
			rec, err := a.runner.Run(ctx, runUser, runAlgorithms[0], op, payload)
			if err != nil {
				return err
			}

			recs = []*store.TestRecord{rec}
		} else {
			trials := make([]runner.Trial, 0, len(runAlgorithms)*runIterations)

			for _, alg := range runAlgorithms {
				for range runIterations {
					trials = append(trials, runner.Trial{
						Algorithm: alg,
						Operation: op,
						Payload:   payload,
					})
				}
			}

			if recs, err = a.runner.RunBatch(ctx, runUser, trials); err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"batch_id": recs[0].BatchID,
				"trials":   len(recs),
			}).Info("Batch recorded")
		}

		if runJSON {
			return printJSON(cmd.OutOrStdout(), recs)
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderTable(recordHeaders, recordRows(recs)))

		return nil
	})
}

func trialPayload(text string, size int) ([]byte, error) {
	switch {
	case size > 0:
		return runner.RandomPayload(size)
	case text != "":
		return []byte(text), nil
	default:
		return []byte(runner.DefaultPayload), nil
	}
}
