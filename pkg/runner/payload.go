package runner

import (
	"crypto/rand"
	"fmt"
)

// DefaultPayload is the trial input used when a caller supplies none.
const DefaultPayload = "Hello, Quantum World!"

// RandomPayload returns size random bytes.
func RandomPayload(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative payload size %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating payload: %w", err)
	}

	return buf, nil
}
