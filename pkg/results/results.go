// Package results is the append-only store of trial records: filtered
// queries, keyset pagination, owner-checked deletion and export/import.
package results

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const (
	// DefaultPageSize is used when a page size is not given.
	DefaultPageSize = 50

	// MaxPageSize caps a requested page size.
	MaxPageSize = 500
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrForbidden is returned when acting on another user's record.
	ErrForbidden = errors.New("record belongs to another user")

	// ErrConflict is returned when an imported record reuses a stored id.
	ErrConflict = errors.New("record id already exists")

	// ErrUnknownAlgorithm is returned when an imported record references
	// an algorithm missing from the catalog.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrInvalidPageToken is returned for a malformed page token.
	ErrInvalidPageToken = errors.New("invalid page token")
)

// Record is a persisted trial outcome.
type Record = store.TestRecord

// Filter selects records.
type Filter = store.RecordFilter

// Page is one page of a paginated query.
type Page struct {
	Records       []Record `json:"records"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// ResultStore persists and retrieves trial records.
type ResultStore interface {
	Append(ctx context.Context, record *Record) error
	Get(ctx context.Context, ownerID string, id uint) (*Record, error)
	Query(ctx context.Context, filter Filter) ([]Record, error)
	Paginate(ctx context.Context, filter Filter, pageToken string, pageSize int) (*Page, error)
	DeleteOne(ctx context.Context, ownerID string, id uint) error
	DeleteMany(ctx context.Context, ownerID string, ids []uint) (int64, error)
	Export(ctx context.Context, exportedBy string, filter Filter) (*ExportDocument, error)
	Import(ctx context.Context, doc *ExportDocument) (int, error)
}

// Compile-time interface check.
var _ ResultStore = (*resultStore)(nil)

type resultStore struct {
	log   logrus.FieldLogger
	store store.Store
	now   func() time.Time
}

// New creates a ResultStore on top of st.
func New(log logrus.FieldLogger, st store.Store) ResultStore {
	return &resultStore{
		log:   log.WithField("component", "results"),
		store: st,
		now:   time.Now,
	}
}

// Append persists a new record and assigns its id.
func (r *resultStore) Append(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}

	return r.store.CreateRecord(ctx, record)
}

// Get returns one record owned by ownerID.
func (r *resultStore) Get(ctx context.Context, ownerID string, id uint) (*Record, error) {
	rec, err := r.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}

		return nil, err
	}

	if rec.UserID != ownerID {
		return nil, fmt.Errorf("record %d: %w", id, ErrForbidden)
	}

	return rec, nil
}

// Query returns every record matching filter, newest first.
func (r *resultStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	return r.store.ListRecords(ctx, filter, nil, 0)
}

// Paginate returns one page of records matching filter.
func (r *resultStore) Paginate(
	ctx context.Context, filter Filter, pageToken string, pageSize int,
) (*Page, error) {
	pageSize = ClampPageSize(pageSize)

	var after *store.Cursor

	if pageToken != "" {
		cursor, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, err
		}

		after = cursor
	}

	recs, err := r.store.ListRecords(ctx, filter, after, pageSize+1)
	if err != nil {
		return nil, err
	}

	page := &Page{Records: recs}

	if len(recs) > pageSize {
		page.Records = recs[:pageSize]

		last := page.Records[pageSize-1]
		page.NextPageToken = EncodePageToken(&store.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	if page.Records == nil {
		page.Records = []Record{}
	}

	return page, nil
}

// DeleteOne removes a single record owned by ownerID.
func (r *resultStore) DeleteOne(ctx context.Context, ownerID string, id uint) error {
	_, err := r.DeleteMany(ctx, ownerID, []uint{id})

	return err
}

// DeleteMany removes records owned by ownerID atomically. If any id is
// missing or foreign, nothing is deleted.
func (r *resultStore) DeleteMany(
	ctx context.Context, ownerID string, ids []uint,
) (int64, error) {
	deleted, err := r.store.DeleteRecords(ctx, ids, func(recs []store.TestRecord) error {
		for i := range recs {
			if recs[i].UserID != ownerID {
				return fmt.Errorf("record %d: %w", recs[i].ID, ErrForbidden)
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
		}

		return 0, err
	}

	r.log.WithFields(logrus.Fields{
		"user":    ownerID,
		"deleted": deleted,
	}).Info("Deleted records")

	return deleted, nil
}

// EncodePageToken returns the opaque token for a cursor.
func EncodePageToken(c *store.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 10) +
		"." + strconv.FormatUint(uint64(c.ID), 10)

	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodePageToken parses a token produced by EncodePageToken.
func DecodePageToken(token string) (*store.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageToken, err)
	}

	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidPageToken
	}

	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageToken, err)
	}

	parsedID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageToken, err)
	}

	return &store.Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        uint(parsedID),
	}, nil
}

// ClampPageSize applies the default and bounds to a requested size.
func ClampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}
