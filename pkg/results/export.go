package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/cryptoperf/pkg/store"
)

// Export encodings.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnsupportedFormat is returned for an unknown export encoding.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ExportMetadata describes an export.
type ExportMetadata struct {
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	ExportedBy string    `json:"exported_by" yaml:"exported_by"`
	Total      int       `json:"total" yaml:"total"`
	Filter     Filter    `json:"filter" yaml:"filter"`
}

// ExportDocument is a self-describing dump of records in query order.
type ExportDocument struct {
	Metadata ExportMetadata `json:"metadata" yaml:"metadata"`
	Records  []Record       `json:"records" yaml:"records"`
}

// Export returns every record matching filter.
func (r *resultStore) Export(
	ctx context.Context, exportedBy string, filter Filter,
) (*ExportDocument, error) {
	recs, err := r.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	if recs == nil {
		recs = []Record{}
	}

	return &ExportDocument{
		Metadata: ExportMetadata{
			ExportedAt: r.now().UTC(),
			ExportedBy: exportedBy,
			Total:      len(recs),
			Filter:     filter,
		},
		Records: recs,
	}, nil
}

// Import inserts the document's records, keeping their ids and
// timestamps. Every record must reference a catalog algorithm and carry
// an unused id; otherwise nothing is written. It returns how many records
// were written.
func (r *resultStore) Import(ctx context.Context, doc *ExportDocument) (int, error) {
	if doc == nil || len(doc.Records) == 0 {
		return 0, nil
	}

	known := make(map[string]struct{}, 16)

	recs := make([]*store.TestRecord, len(doc.Records))
	for i := range doc.Records {
		rec := doc.Records[i]
		rec.CreatedAt = rec.CreatedAt.UTC()
		recs[i] = &rec

		if _, ok := known[rec.Algorithm]; ok {
			continue
		}

		if _, err := r.store.GetAlgorithm(ctx, rec.Algorithm); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("record %d: %w %q", rec.ID, ErrUnknownAlgorithm, rec.Algorithm)
			}

			return 0, fmt.Errorf("resolving algorithm: %w", err)
		}

		known[rec.Algorithm] = struct{}{}
	}

	if err := r.store.BulkCreateRecords(ctx, recs); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return 0, fmt.Errorf("%w: %w", ErrConflict, err)
		}

		return 0, fmt.Errorf("importing records: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"records":     len(recs),
		"exported_by": doc.Metadata.ExportedBy,
	}).Info("Imported records")

	return len(recs), nil
}

// Encode writes the document in the given format.
func (d *ExportDocument) Encode(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(d)

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}

		return enc.Close()
	}

	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// DecodeExport reads a document written by Encode.
func DecodeExport(rd io.Reader, format string) (*ExportDocument, error) {
	var doc ExportDocument

	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(rd).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}

	case FormatYAML:
		if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return &doc, nil
}

// FileName names the document for download or publication.
func (d *ExportDocument) FileName(format string) string {
	if format == "" {
		format = FormatJSON
	}

	return fmt.Sprintf("records-%s.%s",
		d.Metadata.ExportedAt.UTC().Format("20060102T150405Z"), format)
}

// ContentType returns the MIME type for an export format.
func ContentType(format string) string {
	if format == FormatYAML {
		return "application/yaml"
	}

	return "application/json"
}
