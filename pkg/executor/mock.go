package executor

import (
	"context"
	"sync"
	"time"
)

// Mock is a configurable Executor for tests.
type Mock struct {
	// Delay is slept before returning.
	Delay time.Duration
	// Err is returned when set.
	Err error
	// PanicWith makes Execute panic with the given value when non-nil.
	PanicWith any
	// OutputSize is reported on success. Zero echoes the payload size.
	OutputSize int

	mu    sync.Mutex
	calls []Work
}

// Compile-time interface check.
var _ Executor = (*Mock)(nil)

// Execute records the call and behaves as configured.
func (m *Mock) Execute(_ context.Context, work Work, payload []byte) (*Output, error) {
	m.mu.Lock()
	m.calls = append(m.calls, work)
	m.mu.Unlock()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	if m.PanicWith != nil {
		panic(m.PanicWith)
	}

	if m.Err != nil {
		return nil, m.Err
	}

	size := m.OutputSize
	if size == 0 {
		size = len(payload)
	}

	return &Output{Size: size}, nil
}

// Calls returns a copy of the work received so far.
func (m *Mock) Calls() []Work {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Work(nil), m.calls...)
}
