package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Seed the algorithm catalog and start the HTTP API serving trials,
records, statistics and reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return withApp(ctx, func(a *app) error {
		if _, err := a.seed(ctx); err != nil {
			return err
		}

		if a.uploader != nil {
			if err := a.uploader.Preflight(ctx); err != nil {
				return fmt.Errorf("s3 preflight: %w", err)
			}
		}

		srv := a.apiServer()

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting api server: %w", err)
		}

		// Wait for shutdown signal.
		sig := <-sigCh
		log.WithField("signal", sig).Info("Shutting down API server")
		cancel()

		if err := srv.Stop(); err != nil {
			return fmt.Errorf("stopping api server: %w", err)
		}

		return nil
	})
}
