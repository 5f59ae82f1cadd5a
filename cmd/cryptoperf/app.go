package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ethpandaops/cryptoperf/pkg/api"
	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/config"
	"github.com/ethpandaops/cryptoperf/pkg/executor"
	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/results"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/store"
	"github.com/ethpandaops/cryptoperf/pkg/upload"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	store    store.Store
	registry *prometheus.Registry
	catalog  catalog.Catalog
	results  results.ResultStore
	runner   runner.Runner
	stats    stats.Aggregator
	reports  report.Generator
	uploader upload.Uploader
}

// newApp loads the configuration, opens the database and builds every
// component on top of it. Callers must Close the app.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cat := catalog.New(log, st)
	rs := results.New(log, st)

	a := &app{
		cfg:      cfg,
		store:    st,
		registry: registry,
		catalog:  cat,
		results:  rs,
		runner: runner.NewRunner(log, &runner.Config{
			BatchConcurrency: cfg.Runner.BatchConcurrency,
			MaxBatchSize:     cfg.Runner.MaxBatchSize,
		}, cat, executor.NewDefault(log), rs, runner.NewMetrics(registry)),
		stats: stats.NewAggregator(log, &stats.Config{
			DefaultWindow:   cfg.Analysis.DefaultWindow,
			TrendBucket:     cfg.Analysis.TrendBucket,
			ChangeThreshold: cfg.Analysis.TrendChangeThreshold,
			RecentWindow:    cfg.Analysis.RecentWindow,
		}, rs, cat),
		reports: report.NewGenerator(log, &report.Config{
			SuccessThreshold: cfg.Analysis.SuccessThreshold,
			DefaultWindow:    cfg.Analysis.DefaultWindow,
		}, cat, rs, st),
	}

	if cfg.Export.S3.Enabled {
		uploader, err := upload.NewS3Uploader(log, &cfg.Export.S3)
		if err != nil {
			_ = st.Stop()

			return nil, fmt.Errorf("creating s3 uploader: %w", err)
		}

		a.uploader = uploader
	}

	return a, nil
}

// Close releases the database.
func (a *app) Close() error {
	if err := a.store.Stop(); err != nil {
		return fmt.Errorf("stopping store: %w", err)
	}

	return nil
}

// seed loads the configured descriptor set into the catalog.
func (a *app) seed(ctx context.Context) (catalog.SeedSummary, error) {
	summary, err := a.catalog.Seed(ctx, catalog.SeedSet(&a.cfg.Catalog))
	if err != nil {
		return summary, fmt.Errorf("seeding catalog: %w", err)
	}

	return summary, nil
}

// ensureSeeded seeds the catalog when it is still empty, so a fresh
// database is usable without running seed first.
func (a *app) ensureSeeded(ctx context.Context) error {
	existing, err := a.catalog.List(ctx, catalog.Filter{})
	if err != nil {
		return fmt.Errorf("listing catalog: %w", err)
	}

	if len(existing) > 0 {
		return nil
	}

	_, err = a.seed(ctx)

	return err
}

// requireUploader returns the configured uploader or an error naming the
// config section to enable.
func (a *app) requireUploader() (upload.Uploader, error) {
	if a.uploader == nil {
		return nil, errors.New("publishing requires export.s3.enabled in config")
	}

	return a.uploader, nil
}

// apiServer builds the HTTP server over the app's components.
func (a *app) apiServer() api.Server {
	return api.NewServer(log, a.cfg, api.Dependencies{
		Catalog:  a.catalog,
		Runner:   a.runner,
		Results:  a.results,
		Stats:    a.stats,
		Reports:  a.reports,
		Uploader: a.uploader,
		Gatherer: a.registry,
	})
}

// withApp runs fn with a freshly built app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("Failed to close app")
		}
	}()

	return fn(a)
}
