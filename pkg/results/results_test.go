package results_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cryptoperf/pkg/config"
	"github.com/ethpandaops/cryptoperf/pkg/results"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func setupResults(t *testing.T) results.ResultStore {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	for _, alg := range []store.Algorithm{
		{Identity: "AES-128", Family: "classical", Category: "symmetric-cipher", Provider: "stdlib", Status: "active"},
		{Identity: "RSA-2048", Family: "classical", Category: "key-exchange", Provider: "stdlib", Status: "active"},
		{Identity: "Kyber-768", Family: "post-quantum", Category: "key-exchange", QuantumSafe: true, Provider: "circl", Status: "active"},
	} {
		require.NoError(t, st.UpsertAlgorithm(context.Background(), &alg))
	}

	return results.New(log, st)
}

func appendRecords(t *testing.T, rs results.ResultStore, recs ...*results.Record) {
	t.Helper()

	for _, rec := range recs {
		require.NoError(t, rs.Append(context.Background(), rec))
	}
}

func rec(user, alg string, offset time.Duration, success bool) *results.Record {
	return &results.Record{
		UserID:     user,
		Algorithm:  alg,
		Operation:  "encryption",
		InputSize:  16,
		Success:    success,
		DurationNs: int64(time.Millisecond),
		CreatedAt:  base.Add(offset),
	}
}

func ids(recs []results.Record) []uint {
	out := make([]uint, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}

	return out
}

func TestAppend_StampsCreationTime(t *testing.T) {
	rs := setupResults(t)

	r := &results.Record{UserID: "alice", Algorithm: "AES-128", Operation: "encryption", Success: true}
	require.NoError(t, rs.Append(context.Background(), r))

	assert.NotZero(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, r.CreatedAt.Location())
}

func TestQuery_OrderAndFilters(t *testing.T) {
	rs := setupResults(t)
	ctx := context.Background()

	// Two records share a timestamp to exercise the id tie-break.
	appendRecords(t, rs,
		rec("alice", "AES-128", 0, true),
		rec("alice", "Kyber-768", time.Hour, false),
		rec("alice", "Kyber-768", time.Hour, true),
		rec("bob", "AES-128", 2*time.Hour, true),
	)

	all, err := rs.Query(ctx, results.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint{4, 3, 2, 1}, ids(all))

	tests := []struct {
		name   string
		filter results.Filter
		want   []uint
	}{
		{name: "user", filter: results.Filter{UserID: "alice"}, want: []uint{3, 2, 1}},
		{name: "algorithm", filter: results.Filter{Algorithms: []string{"Kyber-768"}}, want: []uint{3, 2}},
		{name: "failures", filter: results.Filter{Outcome: store.OutcomeFailure}, want: []uint{2}},
		{
			name:   "half-open window",
			filter: results.Filter{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)},
			want:   []uint{3, 2},
		},
		{name: "nothing", filter: results.Filter{UserID: "nobody"}, want: []uint{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rs.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestPaginate(t *testing.T) {
	rs := setupResults(t)
	ctx := context.Background()

	for i := range 7 {
		appendRecords(t, rs, rec("alice", "AES-256", time.Duration(i/2)*time.Minute, true))
	}

	var (
		seen  []uint
		token string
		pages int
	)

	for {
		page, err := rs.Paginate(ctx, results.Filter{UserID: "alice"}, token, 3)
		require.NoError(t, err)

		pages++
		seen = append(seen, ids(page.Records)...)

		if page.NextPageToken == "" {
			break
		}

		token = page.NextPageToken
	}

	all, err := rs.Query(ctx, results.Filter{UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, 3, pages)
	assert.Equal(t, ids(all), seen)
}

func TestPaginate_InvalidToken(t *testing.T) {
	rs := setupResults(t)

	for _, token := range []string{"%%%", "bm90LWEtY3Vyc29y", "YWJjLjEy"} {
		_, err := rs.Paginate(context.Background(), results.Filter{}, token, 10)
		require.ErrorIs(t, err, results.ErrInvalidPageToken, token)
	}
}

func TestPageTokenRoundTrip(t *testing.T) {
	c := &store.Cursor{CreatedAt: base.Add(123 * time.Nanosecond), ID: 42}

	got, err := results.DecodePageToken(results.EncodePageToken(c))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, c.ID, got.ID)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, results.DefaultPageSize, results.ClampPageSize(0))
	assert.Equal(t, results.DefaultPageSize, results.ClampPageSize(-3))
	assert.Equal(t, 1, results.ClampPageSize(1))
	assert.Equal(t, results.MaxPageSize, results.ClampPageSize(10_000))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		owner     string
		ids       []uint
		wantErr   error
		remaining int
	}{
		{name: "own records", owner: "alice", ids: []uint{1, 2}, remaining: 1},
		{name: "foreign record", owner: "alice", ids: []uint{1, 3}, wantErr: results.ErrForbidden, remaining: 3},
		{name: "missing record", owner: "alice", ids: []uint{1, 99}, wantErr: results.ErrNotFound, remaining: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := setupResults(t)
			appendRecords(t, rs,
				rec("alice", "AES-128", 0, true),
				rec("alice", "AES-128", time.Second, true),
				rec("bob", "AES-128", 2*time.Second, true),
			)

			_, err := rs.DeleteMany(ctx, tt.owner, tt.ids)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			left, err := rs.Query(ctx, results.Filter{})
			require.NoError(t, err)
			assert.Len(t, left, tt.remaining)
		})
	}

	t.Run("delete one", func(t *testing.T) {
		rs := setupResults(t)
		appendRecords(t, rs, rec("bob", "AES-128", 0, true))

		require.ErrorIs(t, rs.DeleteOne(ctx, "alice", 1), results.ErrForbidden)
		require.NoError(t, rs.DeleteOne(ctx, "bob", 1))
		require.ErrorIs(t, rs.DeleteOne(ctx, "bob", 1), results.ErrNotFound)
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	rs := setupResults(t)

	appendRecords(t, rs,
		rec("alice", "Kyber-768", 0, true),
		rec("bob", "AES-128", time.Second, false),
	)

	got, err := rs.Get(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "Kyber-768", got.Algorithm)
	assert.True(t, got.Success)

	_, err = rs.Get(ctx, "alice", 2)
	require.ErrorIs(t, err, results.ErrForbidden)

	_, err = rs.Get(ctx, "alice", 42)
	require.ErrorIs(t, err, results.ErrNotFound)
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		records []results.Record
		wantErr error
	}{
		{
			name: "id already stored",
			records: []results.Record{
				{ID: 5, UserID: "bob", Algorithm: "AES-128", Operation: "encryption", CreatedAt: base},
				{ID: 1, UserID: "bob", Algorithm: "AES-128", Operation: "encryption", CreatedAt: base},
			},
			wantErr: results.ErrConflict,
		},
		{
			name: "algorithm outside the catalog",
			records: []results.Record{
				{ID: 5, UserID: "bob", Algorithm: "AES-128", Operation: "encryption", CreatedAt: base},
				{ID: 6, UserID: "bob", Algorithm: "Rot13", Operation: "encryption", CreatedAt: base},
			},
			wantErr: results.ErrUnknownAlgorithm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rs := setupResults(t)

			appendRecords(t, rs, rec("alice", "AES-128", 0, true))

			n, err := rs.Import(ctx, &results.ExportDocument{Records: tt.records})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, n)

			left, err := rs.Query(ctx, results.Filter{})
			require.NoError(t, err)
			assert.Equal(t, []uint{1}, ids(left))
		})
	}
}

func TestImport_ThenAppend(t *testing.T) {
	ctx := context.Background()
	rs := setupResults(t)

	_, err := rs.Import(ctx, &results.ExportDocument{Records: []results.Record{
		{ID: 1, UserID: "alice", Algorithm: "AES-128", Operation: "encryption", CreatedAt: base},
		{ID: 2, UserID: "alice", Algorithm: "AES-128", Operation: "encryption", CreatedAt: base},
	}})
	require.NoError(t, err)

	next := rec("alice", "AES-128", time.Minute, true)
	require.NoError(t, rs.Append(ctx, next))
	assert.Equal(t, uint(3), next.ID)
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []string{results.FormatJSON, results.FormatYAML} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			src := setupResults(t)

			appendRecords(t, src,
				rec("alice", "AES-128", 0, true),
				rec("alice", "Kyber-768", 1500*time.Millisecond, false),
				rec("alice", "Kyber-768", 1500*time.Millisecond, true),
				rec("bob", "RSA-2048", time.Hour, true),
			)

			filter := results.Filter{UserID: "alice"}

			doc, err := src.Export(ctx, "alice", filter)
			require.NoError(t, err)
			assert.Equal(t, 3, doc.Metadata.Total)
			assert.Equal(t, "alice", doc.Metadata.ExportedBy)

			var buf bytes.Buffer
			require.NoError(t, doc.Encode(&buf, format))

			decoded, err := results.DecodeExport(&buf, format)
			require.NoError(t, err)

			dst := setupResults(t)

			n, err := dst.Import(ctx, decoded)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			want, err := src.Query(ctx, filter)
			require.NoError(t, err)

			got, err := dst.Query(ctx, filter)
			require.NoError(t, err)
			require.Len(t, got, len(want))

			for i := range want {
				assert.Equal(t, want[i].ID, got[i].ID)
				assert.Equal(t, want[i].Algorithm, got[i].Algorithm)
				assert.Equal(t, want[i].Success, got[i].Success)
				assert.Equal(t, want[i].DurationNs, got[i].DurationNs)
				assert.Equal(t, want[i].CreatedAt.UnixNano(), got[i].CreatedAt.UnixNano())
			}
		})
	}
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	doc := &results.ExportDocument{}

	require.ErrorIs(t, doc.Encode(&bytes.Buffer{}, "xml"), results.ErrUnsupportedFormat)

	_, err := results.DecodeExport(strings.NewReader("<x/>"), "xml")
	require.ErrorIs(t, err, results.ErrUnsupportedFormat)
}

func TestExportDocument_FileName(t *testing.T) {
	doc := &results.ExportDocument{
		Metadata: results.ExportMetadata{ExportedAt: base},
	}

	assert.Equal(t, "records-20240301T090000Z.json", doc.FileName(""))
	assert.Equal(t, "records-20240301T090000Z.yaml", doc.FileName(results.FormatYAML))
	assert.Equal(t, "application/yaml", results.ContentType(results.FormatYAML))
	assert.Equal(t, "application/json", results.ContentType(results.FormatJSON))
}
