// Package api exposes trials, records, statistics and reports over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/config"
	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/results"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/upload"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error

	// Handler returns the router, for embedding or tests.
	Handler() http.Handler
}

// Compile-time interface check.
var _ Server = (*server)(nil)

// Dependencies are the components served by the API. Uploader is
// optional; without it report publishing is unavailable.
type Dependencies struct {
	Catalog  catalog.Catalog
	Runner   runner.Runner
	Results  results.ResultStore
	Stats    stats.Aggregator
	Reports  report.Generator
	Uploader upload.Uploader
	Gatherer prometheus.Gatherer
}

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	deps       Dependencies
	router     http.Handler
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	deps Dependencies,
) Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		deps: deps,
		done: make(chan struct{}),
	}

	s.router = s.buildRouter()

	return s
}

// Handler returns the configured router.
func (s *server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves requests in the background.
func (s *server) Start(_ context.Context) error {
	listen := s.cfg.Server.Listen

	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}
