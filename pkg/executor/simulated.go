package executor

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
)

// simulatedSizes holds the published key and signature sizes of a scheme
// with no implementation in the dependency set.
type simulatedSizes struct {
	publicKey  int
	privateKey int
	signature  int
}

var simulatedSchemes = map[string]simulatedSizes{
	"Falcon-512":  {publicKey: 897, privateKey: 1281, signature: 666},
	"Falcon-1024": {publicKey: 1793, privateKey: 2305, signature: 1280},
}

// NewSimulated returns an executor that produces random output of the
// documented sizes. Verification always succeeds.
func NewSimulated() Executor {
	return newTableExecutor(catalog.ProviderSimulated, func(work Work) (primitive, error) {
		sizes, ok := simulatedSchemes[work.Algorithm]
		if !ok {
			return nil, ErrUnsupported
		}

		return &simulatedPrimitive{sizes: sizes}, nil
	})
}

type simulatedPrimitive struct {
	sizes simulatedSizes
}

func (p *simulatedPrimitive) run(op catalog.Operation, payload []byte) (int, error) {
	switch op {
	case catalog.OperationKeyGeneration:
		if err := fill(p.sizes.publicKey + p.sizes.privateKey); err != nil {
			return 0, err
		}

		return p.sizes.publicKey, nil

	case catalog.OperationSigning, catalog.OperationVerification:
		digest := sha256.Sum256(payload)
		if err := fill(p.sizes.signature - len(digest)); err != nil {
			return 0, err
		}

		return p.sizes.signature, nil
	}

	return 0, unsupportedOperation(op)
}

func fill(n int) error {
	if n <= 0 {
		return nil
	}

	if _, err := io.ReadFull(rand.Reader, make([]byte, n)); err != nil {
		return fmt.Errorf("reading random bytes: %w", err)
	}

	return nil
}
