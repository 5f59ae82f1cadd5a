package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/executor"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

type fakeCatalog struct {
	descriptors map[string]catalog.Descriptor
}

func newFakeCatalog() *fakeCatalog {
	c := &fakeCatalog{descriptors: make(map[string]catalog.Descriptor)}
	for _, d := range catalog.DefaultDescriptors() {
		c.descriptors[d.Identity] = d
	}

	return c
}

func (c *fakeCatalog) Get(_ context.Context, identity string) (*catalog.Descriptor, error) {
	d, ok := c.descriptors[identity]
	if !ok {
		return nil, fmt.Errorf("%q: %w", identity, catalog.ErrNotFound)
	}

	return &d, nil
}

func (c *fakeCatalog) List(context.Context, catalog.Filter) ([]catalog.Descriptor, error) {
	return nil, nil
}

func (c *fakeCatalog) Seed(context.Context, []catalog.Descriptor) (catalog.SeedSummary, error) {
	return catalog.SeedSummary{}, nil
}

type memSink struct {
	mu      sync.Mutex
	records []*store.TestRecord
	err     error
}

func (s *memSink) Append(_ context.Context, rec *store.TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	rec.ID = uint(len(s.records) + 1)
	s.records = append(s.records, rec)

	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func newTestRunner(
	t *testing.T, exec executor.Executor, sink runner.RecordSink, metrics *runner.Metrics,
) runner.Runner {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	return runner.NewRunner(log, &runner.Config{
		BatchConcurrency: 3,
		MaxBatchSize:     10,
		Now:              func() time.Time { return fixed },
	}, newFakeCatalog(), exec, sink, metrics)
}

func TestRun_Success(t *testing.T) {
	sink := &memSink{}
	r := newTestRunner(t, &executor.Mock{OutputSize: 42}, sink, nil)

	rec, err := r.Run(context.Background(), "alice", "Kyber-768",
		catalog.OperationEncryption, []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, "Kyber-768", rec.Algorithm)
	assert.Equal(t, "encryption", rec.Operation)
	assert.Equal(t, 5, rec.InputSize)
	assert.Equal(t, 42, rec.OutputSize)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.ErrorCategory)
	assert.GreaterOrEqual(t, rec.DurationNs, int64(0))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)
}

func TestRun_RejectedBeforeTiming(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		op        catalog.Operation
		wantErr   error
	}{
		{
			name:      "unknown algorithm",
			algorithm: "Kyber-9000",
			op:        catalog.OperationEncryption,
			wantErr:   catalog.ErrNotFound,
		},
		{
			name:      "signing with a cipher",
			algorithm: "AES-256",
			op:        catalog.OperationSigning,
			wantErr:   runner.ErrInvalidOperation,
		},
		{
			name:      "encrypting with a signature scheme",
			algorithm: "Dilithium-3",
			op:        catalog.OperationEncryption,
			wantErr:   runner.ErrInvalidOperation,
		},
		{
			name:      "unknown operation",
			algorithm: "AES-256",
			op:        "hashing",
			wantErr:   runner.ErrInvalidOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			mock := &executor.Mock{}
			r := newTestRunner(t, mock, sink, nil)

			_, err := r.Run(context.Background(), "alice", tt.algorithm, tt.op, nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, sink.count())
			assert.Empty(t, mock.Calls())
		})
	}
}

func TestRun_ExecutorFailuresAreRecorded(t *testing.T) {
	tests := []struct {
		name     string
		mock     *executor.Mock
		category string
		message  string
	}{
		{
			name:     "error",
			mock:     &executor.Mock{Err: errors.New("bad key")},
			category: runner.ErrorCategoryExecutor,
			message:  "bad key",
		},
		{
			name:     "panic",
			mock:     &executor.Mock{PanicWith: "nil pointer"},
			category: runner.ErrorCategoryPanic,
			message:  "executor panicked: nil pointer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			r := newTestRunner(t, tt.mock, sink, nil)

			rec, err := r.Run(context.Background(), "bob", "ECC-P256",
				catalog.OperationSigning, []byte("x"))
			require.NoError(t, err)

			assert.Equal(t, 1, sink.count())
			assert.False(t, rec.Success)
			assert.Equal(t, tt.category, rec.ErrorCategory)
			assert.Equal(t, tt.message, rec.ErrorMessage)
			assert.Zero(t, rec.OutputSize)
		})
	}
}

func TestRun_SinkError(t *testing.T) {
	boom := errors.New("disk full")
	r := newTestRunner(t, &executor.Mock{}, &memSink{err: boom}, nil)

	_, err := r.Run(context.Background(), "alice", "AES-128",
		catalog.OperationEncryption, []byte("x"))
	require.ErrorIs(t, err, boom)
}

func TestRun_CallerCancellationDoesNotStopTrial(t *testing.T) {
	sink := &memSink{}
	r := newTestRunner(t, &executor.Mock{Delay: 20 * time.Millisecond}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *store.TestRecord, 1)

	go func() {
		rec, err := r.Run(ctx, "alice", "AES-128", catalog.OperationEncryption, []byte("x"))
		assert.NoError(t, err)
		done <- rec
	}()

	cancel()

	select {
	case rec := <-done:
		require.NotNil(t, rec)
		assert.True(t, rec.Success)
	case <-time.After(5 * time.Second):
		t.Fatal("trial did not complete")
	}

	assert.Equal(t, 1, sink.count())
}

func TestRun_Concurrent(t *testing.T) {
	sink := &memSink{}
	r := newTestRunner(t, &executor.Mock{}, sink, nil)

	const workers = 50

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := r.Run(context.Background(), fmt.Sprintf("user-%d", i%5),
				"AES-256", catalog.OperationEncryption, []byte("x"))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, workers, sink.count())
}

func TestRunBatch(t *testing.T) {
	sink := &memSink{}
	r := newTestRunner(t, &executor.Mock{Delay: time.Millisecond}, sink, nil)

	trials := []runner.Trial{
		{Algorithm: "Kyber-512", Operation: catalog.OperationEncryption, Payload: []byte("a")},
		{Algorithm: "RSA-2048", Operation: catalog.OperationEncryption, Payload: []byte("bb")},
		{Algorithm: "Dilithium-2", Operation: catalog.OperationSigning, Payload: []byte("ccc")},
		{Algorithm: "AES-128", Operation: catalog.OperationKeyGeneration},
	}

	records, err := r.RunBatch(context.Background(), "carol", trials)
	require.NoError(t, err)
	require.Len(t, records, len(trials))

	batchID := records[0].BatchID
	require.NotEmpty(t, batchID)

	for i, rec := range records {
		assert.Equal(t, trials[i].Algorithm, rec.Algorithm)
		assert.Equal(t, string(trials[i].Operation), rec.Operation)
		assert.Equal(t, len(trials[i].Payload), rec.InputSize)
		assert.Equal(t, batchID, rec.BatchID)
		assert.Equal(t, "carol", rec.UserID)
	}

	assert.Equal(t, len(trials), sink.count())
}

func TestRunBatch_ValidatesEverythingFirst(t *testing.T) {
	tests := []struct {
		name    string
		trials  []runner.Trial
		wantErr error
	}{
		{
			name:    "empty",
			wantErr: runner.ErrEmptyBatch,
		},
		{
			name:    "too large",
			trials:  make([]runner.Trial, 11),
			wantErr: runner.ErrBatchTooLarge,
		},
		{
			name: "last trial invalid",
			trials: []runner.Trial{
				{Algorithm: "AES-128", Operation: catalog.OperationEncryption},
				{Algorithm: "AES-128", Operation: catalog.OperationVerification},
			},
			wantErr: runner.ErrInvalidOperation,
		},
		{
			name: "unknown algorithm",
			trials: []runner.Trial{
				{Algorithm: "AES-128", Operation: catalog.OperationEncryption},
				{Algorithm: "Nope", Operation: catalog.OperationEncryption},
			},
			wantErr: catalog.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			r := newTestRunner(t, &executor.Mock{}, sink, nil)

			_, err := r.RunBatch(context.Background(), "alice", tt.trials)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, sink.count())
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := runner.NewMetrics(reg)

	ok := newTestRunner(t, &executor.Mock{}, &memSink{}, metrics)
	bad := newTestRunner(t, &executor.Mock{Err: errors.New("x")}, &memSink{}, metrics)

	for range 3 {
		_, err := ok.Run(context.Background(), "a", "AES-128", catalog.OperationEncryption, nil)
		require.NoError(t, err)
	}

	_, err := bad.Run(context.Background(), "a", "AES-128", catalog.OperationEncryption, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	observations := uint64(0)

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "cryptoperf_trials_total":
				var outcome string

				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" {
						outcome = lp.GetValue()
					}
				}

				counts[outcome] += m.GetCounter().GetValue()
			case "cryptoperf_trial_duration_seconds":
				observations += m.GetHistogram().GetSampleCount()
			}
		}
	}

	assert.Equal(t, map[string]float64{"success": 3, "failure": 1}, counts)
	assert.Equal(t, uint64(4), observations)
}
