// Package upload publishes exports and rendered reports to remote storage.
package upload

import "context"

// Object kinds, used as key sub-prefixes.
const (
	KindExports = "exports"
	KindReports = "reports"
)

// Uploader publishes documents to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// Upload stores data as prefix/kind/name and returns the object key.
	Upload(ctx context.Context, kind, name string, data []byte) (string, error)
}
