// Package runner executes timed trials and turns each one into a test
// record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/executor"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const (
	// DefaultBatchConcurrency bounds the trials of a batch run in parallel.
	DefaultBatchConcurrency = 4

	// DefaultMaxBatchSize caps the number of trials in one batch.
	DefaultMaxBatchSize = 1000
)

// Error categories recorded on failed trials.
const (
	ErrorCategoryExecutor = "executor-error"
	ErrorCategoryPanic    = "executor-panic"
)

var (
	// ErrInvalidOperation is returned when the algorithm's category does
	// not support the requested operation.
	ErrInvalidOperation = errors.New("operation not supported by algorithm")

	// ErrEmptyBatch is returned by RunBatch when no trials are given.
	ErrEmptyBatch = errors.New("batch contains no trials")

	// ErrBatchTooLarge is returned by RunBatch above the configured size.
	ErrBatchTooLarge = errors.New("batch too large")
)

// Trial is one entry of a batch.
type Trial struct {
	Algorithm string
	Operation catalog.Operation
	Payload   []byte
}

// RecordSink persists finished trial records.
type RecordSink interface {
	Append(ctx context.Context, record *store.TestRecord) error
}

// Runner executes trials.
type Runner interface {
	// Run times a single operation and appends exactly one record.
	// Executor failures are captured in the record, not returned.
	Run(
		ctx context.Context,
		userID, algorithm string,
		op catalog.Operation,
		payload []byte,
	) (*store.TestRecord, error)

	// RunBatch validates every trial, then runs them concurrently under a
	// shared batch id. Records are returned in trial order.
	RunBatch(
		ctx context.Context, userID string, trials []Trial,
	) ([]*store.TestRecord, error)
}

// Config for the runner.
type Config struct {
	BatchConcurrency int
	MaxBatchSize     int

	// Now stamps record creation times. Defaults to time.Now.
	Now func() time.Time
}

// NewRunner creates a new runner. metrics may be nil.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	cat catalog.Catalog,
	exec executor.Executor,
	sink RecordSink,
	metrics *Metrics,
) Runner {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &runner{
		log:      log.WithField("component", "runner"),
		cfg:      cfg,
		catalog:  cat,
		executor: exec,
		sink:     sink,
		metrics:  metrics,
	}
}

type runner struct {
	log      logrus.FieldLogger
	cfg      *Config
	catalog  catalog.Catalog
	executor executor.Executor
	sink     RecordSink
	metrics  *Metrics
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run executes one trial.
func (r *runner) Run(
	ctx context.Context,
	userID, algorithm string,
	op catalog.Operation,
	payload []byte,
) (*store.TestRecord, error) {
	d, err := r.resolve(ctx, algorithm, op)
	if err != nil {
		return nil, err
	}

	return r.execute(context.WithoutCancel(ctx), userID, d, op, payload, "")
}

// RunBatch executes trials concurrently after validating all of them.
func (r *runner) RunBatch(
	ctx context.Context, userID string, trials []Trial,
) ([]*store.TestRecord, error) {
	if len(trials) == 0 {
		return nil, ErrEmptyBatch
	}

	if len(trials) > r.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d trials, limit %d",
			ErrBatchTooLarge, len(trials), r.cfg.MaxBatchSize)
	}

	descriptors := make([]*catalog.Descriptor, len(trials))

	for i, trial := range trials {
		d, err := r.resolve(ctx, trial.Algorithm, trial.Operation)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}

		descriptors[i] = d
	}

	batchID := uuid.NewString()
	detached := context.WithoutCancel(ctx)
	records := make([]*store.TestRecord, len(trials))

	log := r.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"trials":   len(trials),
	})
	log.Debug("Running batch")

	var g errgroup.Group

	g.SetLimit(r.cfg.BatchConcurrency)

	for i := range trials {
		g.Go(func() error {
			rec, err := r.execute(
				detached, userID, descriptors[i],
				trials[i].Operation, trials[i].Payload, batchID,
			)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}

			records[i] = rec

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("Batch completed")

	return records, nil
}

// resolve looks the algorithm up and checks the operation against its
// category. Nothing is timed or recorded when it fails.
func (r *runner) resolve(
	ctx context.Context, algorithm string, op catalog.Operation,
) (*catalog.Descriptor, error) {
	d, err := r.catalog.Get(ctx, algorithm)
	if err != nil {
		return nil, err
	}

	if !catalog.ValidOperation(op) || !d.Supports(op) {
		return nil, fmt.Errorf("%w: %s does not support %q",
			ErrInvalidOperation, d.Identity, op)
	}

	return d, nil
}

func (r *runner) execute(
	ctx context.Context,
	userID string,
	d *catalog.Descriptor,
	op catalog.Operation,
	payload []byte,
	batchID string,
) (*store.TestRecord, error) {
	work := executor.WorkFor(d, op)

	start := time.Now()
	out, err := r.invoke(ctx, work, payload)
	elapsed := time.Since(start)

	record := &store.TestRecord{
		UserID:     userID,
		Algorithm:  d.Identity,
		Operation:  string(op),
		InputSize:  len(payload),
		Success:    err == nil,
		DurationNs: elapsed.Nanoseconds(),
		BatchID:    batchID,
		CreatedAt:  r.cfg.Now().UTC(),
	}

	if err != nil {
		record.ErrorCategory = ErrorCategoryExecutor
		record.ErrorMessage = err.Error()

		var pe *panicError
		if errors.As(err, &pe) {
			record.ErrorCategory = ErrorCategoryPanic
		}
	} else if out != nil {
		record.OutputSize = out.Size
	}

	if err := r.sink.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("appending record: %w", err)
	}

	r.metrics.observe(record)

	r.log.WithFields(logrus.Fields{
		"algorithm": record.Algorithm,
		"operation": record.Operation,
		"success":   record.Success,
		"duration":  elapsed,
		"record_id": record.ID,
	}).Debug("Trial completed")

	return record, nil
}

// invoke calls the executor, converting a panic into an error.
func (r *runner) invoke(
	ctx context.Context, work executor.Work, payload []byte,
) (out *executor.Output, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = nil, &panicError{value: v}
		}
	}()

	return r.executor.Execute(ctx, work, payload)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("executor panicked: %v", e.value)
}
