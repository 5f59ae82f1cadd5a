// Package executor performs the cryptographic work behind a trial. The
// runner treats every executor as an opaque, possibly failing unit of work.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned when no implementation exists for the
// requested algorithm or operation.
var ErrUnsupported = errors.New("unsupported by executor")

// ErrVerification is returned when a round trip does not reproduce its
// input (bad signature, decryption mismatch).
var ErrVerification = errors.New("verification failed")

// Work describes one unit of cryptographic work.
type Work struct {
	Algorithm string
	Provider  string
	Category  catalog.Category
	KeySize   int
	Operation catalog.Operation
}

// WorkFor builds the work description for a descriptor and operation.
func WorkFor(d *catalog.Descriptor, op catalog.Operation) Work {
	return Work{
		Algorithm: d.Identity,
		Provider:  d.Provider,
		Category:  d.Category,
		KeySize:   d.KeySize,
		Operation: op,
	}
}

// Output is the result of a successful execution. Only its size is
// meaningful to callers.
type Output struct {
	Size int
}

// Executor runs cryptographic work.
type Executor interface {
	Execute(ctx context.Context, work Work, payload []byte) (*Output, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, work Work, payload []byte) (*Output, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, work Work, payload []byte) (*Output, error) {
	return f(ctx, work, payload)
}

// Router dispatches work to the executor registered for its provider.
type Router struct {
	log       logrus.FieldLogger
	mu        sync.RWMutex
	providers map[string]Executor
}

// Compile-time interface check.
var _ Executor = (*Router)(nil)

// NewRouter creates an empty Router.
func NewRouter(log logrus.FieldLogger) *Router {
	return &Router{
		log:       log.WithField("component", "executor"),
		providers: make(map[string]Executor, 4),
	}
}

// NewDefault returns a Router with every built-in provider registered.
func NewDefault(log logrus.FieldLogger) *Router {
	r := NewRouter(log)

	r.Register(catalog.ProviderStdlib, NewClassical())
	r.Register(catalog.ProviderCircl, NewCircl())
	r.Register(catalog.ProviderHPQC, NewHPQC())
	r.Register(catalog.ProviderSimulated, NewSimulated())

	return r
}

// Register binds provider to exec, replacing any previous binding.
func (r *Router) Register(provider string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[provider] = exec
}

// Providers returns the registered provider names.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	return names
}

// Execute forwards work to its provider's executor.
func (r *Router) Execute(
	ctx context.Context, work Work, payload []byte,
) (*Output, error) {
	r.mu.RLock()
	exec, ok := r.providers[work.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider %q: %w", work.Provider, ErrUnsupported)
	}

	r.log.WithFields(logrus.Fields{
		"algorithm": work.Algorithm,
		"operation": work.Operation,
		"provider":  work.Provider,
		"bytes":     len(payload),
	}).Trace("Executing work")

	return exec.Execute(ctx, work, payload)
}

// primitive is one algorithm's implementation of the trial operations.
type primitive interface {
	run(op catalog.Operation, payload []byte) (int, error)
}

// tableExecutor resolves primitives per algorithm identity and caches
// them, so key material is generated once per identity.
type tableExecutor struct {
	name    string
	resolve func(work Work) (primitive, error)

	mu    sync.Mutex
	cache map[string]primitive
}

func newTableExecutor(
	name string, resolve func(work Work) (primitive, error),
) *tableExecutor {
	return &tableExecutor{
		name:    name,
		resolve: resolve,
		cache:   make(map[string]primitive, 16),
	}
}

// Execute runs the requested operation on the cached primitive.
func (t *tableExecutor) Execute(
	ctx context.Context, work Work, payload []byte,
) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := t.primitive(work)
	if err != nil {
		return nil, err
	}

	size, err := p.run(work.Operation, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", work.Algorithm, work.Operation, err)
	}

	return &Output{Size: size}, nil
}

func (t *tableExecutor) primitive(work Work) (primitive, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.cache[work.Algorithm]; ok {
		return p, nil
	}

	p, err := t.resolve(work)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %s: %w", t.name, work.Algorithm, err)
	}

	t.cache[work.Algorithm] = p

	return p, nil
}

func unsupportedOperation(op catalog.Operation) error {
	return fmt.Errorf("operation %q: %w", op, ErrUnsupported)
}
