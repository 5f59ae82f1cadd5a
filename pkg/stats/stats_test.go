package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

type sliceQuerier struct {
	records []store.TestRecord
}

func (q *sliceQuerier) Query(_ context.Context, f store.RecordFilter) ([]store.TestRecord, error) {
	out := make([]store.TestRecord, 0, len(q.records))

	for _, r := range q.records {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}

		if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
			continue
		}

		if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
			continue
		}

		out = append(out, r)
	}

	return out, nil
}

type listCatalog struct{}

func (listCatalog) Get(context.Context, string) (*catalog.Descriptor, error) {
	return nil, catalog.ErrNotFound
}

func (listCatalog) List(context.Context, catalog.Filter) ([]catalog.Descriptor, error) {
	return catalog.DefaultDescriptors(), nil
}

func (listCatalog) Seed(context.Context, []catalog.Descriptor) (catalog.SeedSummary, error) {
	return catalog.SeedSummary{}, nil
}

var day1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newAggregator(records []store.TestRecord, now time.Time) stats.Aggregator {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return stats.NewAggregator(log, &stats.Config{
		Now: func() time.Time { return now },
	}, &sliceQuerier{records: records}, listCatalog{})
}

func trial(alg string, at time.Time, d time.Duration, success bool) store.TestRecord {
	return store.TestRecord{
		UserID:     "alice",
		Algorithm:  alg,
		Operation:  "encryption",
		InputSize:  10,
		Success:    success,
		DurationNs: d.Nanoseconds(),
		CreatedAt:  at,
	}
}

func TestCompute_Empty(t *testing.T) {
	snap := stats.Compute(nil)

	assert.Equal(t, 0, snap.Count)
	assert.Equal(t, 0, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Nil(t, snap.SuccessRate)
	assert.Nil(t, snap.Latency)
	assert.False(t, snap.HasData())
}

func TestCompute_FourDurations(t *testing.T) {
	var recs []store.TestRecord
	for _, ms := range []int{40, 10, 30, 20} {
		recs = append(recs, trial("AES-128", day1, time.Duration(ms)*time.Millisecond, true))
	}

	snap := stats.Compute(recs)

	assert.Equal(t, 4, snap.Count)
	require.NotNil(t, snap.SuccessRate)
	assert.InDelta(t, 1.0, *snap.SuccessRate, 1e-9)
	assert.Equal(t, int64(40), snap.InputBytes)

	require.NotNil(t, snap.Latency)
	assert.Equal(t, 25*time.Millisecond, snap.Latency.Median)
	assert.Equal(t, 25*time.Millisecond, snap.Latency.Mean)
	assert.Equal(t, 10*time.Millisecond, snap.Latency.Min)
	assert.Equal(t, 40*time.Millisecond, snap.Latency.Max)
	assert.Equal(t, 37*time.Millisecond, snap.Latency.P90)
	assert.Equal(t, 39700*time.Microsecond, snap.Latency.P99)
	// Population standard deviation of 10, 20, 30, 40.
	assert.InDelta(t, 11180339.887, float64(snap.Latency.StdDev), 1)
}

func TestCompute_FailuresExcludedFromLatency(t *testing.T) {
	snap := stats.Compute([]store.TestRecord{
		trial("AES-128", day1, 5*time.Millisecond, true),
		trial("AES-128", day1, 500*time.Millisecond, false),
	})

	require.NotNil(t, snap.SuccessRate)
	assert.InDelta(t, 0.5, *snap.SuccessRate, 1e-9)
	assert.Equal(t, 5*time.Millisecond, snap.Latency.Max)

	onlyFailures := stats.Compute([]store.TestRecord{
		trial("AES-128", day1, time.Millisecond, false),
	})

	require.NotNil(t, onlyFailures.SuccessRate)
	assert.Zero(t, *onlyFailures.SuccessRate)
	assert.Nil(t, onlyFailures.Latency)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{name: "empty", values: nil, p: 50, want: 0},
		{name: "single", values: []float64{7}, p: 99, want: 7},
		{name: "exact rank", values: []float64{1, 2, 3}, p: 50, want: 2},
		{name: "interpolated", values: []float64{10, 20, 30, 40}, p: 50, want: 25},
		{name: "zero", values: []float64{10, 20}, p: 0, want: 10},
		{name: "hundred", values: []float64{10, 20}, p: 100, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, stats.Percentile(tt.values, tt.p), 1e-9)
		})
	}
}

func TestSummarize(t *testing.T) {
	agg := newAggregator([]store.TestRecord{
		trial("AES-128", day1, time.Millisecond, true),
		trial("AES-128", day1.Add(time.Hour), time.Millisecond, true),
	}, day1.Add(48*time.Hour))

	snap, err := agg.Summarize(context.Background(), store.RecordFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count)

	empty, err := agg.Summarize(context.Background(), store.RecordFilter{UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Nil(t, empty.SuccessRate)
	assert.Nil(t, empty.Latency)

	_, err = agg.Summarize(context.Background(), store.RecordFilter{From: day1, To: day1})
	require.ErrorIs(t, err, stats.ErrInvalidWindow)
}

func TestTrend_ThreeDays(t *testing.T) {
	agg := newAggregator([]store.TestRecord{
		trial("Kyber-768", day1.Add(2*time.Hour), 10*time.Millisecond, true),
		trial("Kyber-768", day1.Add(48*time.Hour+time.Hour), 20*time.Millisecond, true),
	}, day1.Add(96*time.Hour))

	trend, err := agg.Trend(context.Background(), store.RecordFilter{
		From: day1,
		To:   day1.Add(72 * time.Hour),
	}, 24*time.Hour)
	require.NoError(t, err)

	require.Len(t, trend.Buckets, 3)
	assert.Equal(t, day1, trend.Buckets[0].From)
	assert.Equal(t, day1.Add(24*time.Hour), trend.Buckets[0].To)
	assert.Equal(t, 1, trend.Buckets[0].Snapshot.Count)
	assert.Equal(t, 0, trend.Buckets[1].Snapshot.Count)
	assert.Nil(t, trend.Buckets[1].Snapshot.Latency)
	assert.Nil(t, trend.Buckets[1].Snapshot.SuccessRate)
	assert.Equal(t, 1, trend.Buckets[2].Snapshot.Count)
	assert.Equal(t, stats.DirectionDegrading, trend.Direction)
}

func TestTrend_Direction(t *testing.T) {
	tests := []struct {
		name   string
		first  time.Duration
		second time.Duration
		want   stats.Direction
	}{
		{name: "degrading", first: 10 * time.Millisecond, second: 12 * time.Millisecond, want: stats.DirectionDegrading},
		{name: "improving", first: 10 * time.Millisecond, second: 8 * time.Millisecond, want: stats.DirectionImproving},
		{name: "stable", first: 10 * time.Millisecond, second: 10500 * time.Microsecond, want: stats.DirectionStable},
		{name: "insufficient", first: 10 * time.Millisecond, want: stats.DirectionInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := []store.TestRecord{trial("AES-128", day1, tt.first, true)}
			if tt.second > 0 {
				recs = append(recs, trial("AES-128", day1.Add(25*time.Hour), tt.second, true))
			}

			trend, err := newAggregator(recs, day1).Trend(context.Background(), store.RecordFilter{
				From: day1, To: day1.Add(48 * time.Hour),
			}, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, trend.Direction)
		})
	}
}

func TestTrend_Windows(t *testing.T) {
	now := day1.Add(30 * 24 * time.Hour)
	agg := newAggregator(nil, now)

	trend, err := agg.Trend(context.Background(), store.RecordFilter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-stats.DefaultWindow), trend.From)
	assert.Equal(t, now, trend.To)
	assert.Len(t, trend.Buckets, 30)
	assert.Equal(t, stats.DirectionInsufficientData, trend.Direction)

	partial, err := agg.Trend(context.Background(), store.RecordFilter{
		From: day1, To: day1.Add(36 * time.Hour),
	}, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, partial.Buckets, 2)
	assert.Equal(t, day1.Add(36*time.Hour), partial.Buckets[1].To)

	_, err = agg.Trend(context.Background(), store.RecordFilter{
		From: day1.Add(time.Hour), To: day1,
	}, time.Hour)
	require.ErrorIs(t, err, stats.ErrInvalidWindow)

	_, err = agg.Trend(context.Background(), store.RecordFilter{
		From: day1, To: day1.Add(365 * 24 * time.Hour),
	}, time.Minute)
	require.ErrorIs(t, err, stats.ErrTooManyBuckets)
}

func TestOverview(t *testing.T) {
	now := day1.Add(10*24*time.Hour + 12*time.Hour)

	agg := newAggregator([]store.TestRecord{
		trial("AES-128", day1, time.Millisecond, true),
		trial("Kyber-768", now.Add(-time.Hour), 2*time.Millisecond, true),
		trial("Kyber-768", now.Add(-2*time.Hour), 3*time.Millisecond, false),
		trial("Mystery-1", now.Add(-40*24*time.Hour), time.Millisecond, true),
	}, now)

	ov, err := agg.Overview(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 4, ov.TotalTrials)
	assert.Equal(t, 2, ov.RecentTrials)
	require.NotNil(t, ov.SuccessRate)
	assert.InDelta(t, 0.75, *ov.SuccessRate, 1e-9)
	assert.Equal(t, map[string]int{"classical": 1, "post-quantum": 2, "unknown": 1}, ov.ByFamily)
	assert.Equal(t, map[string]int{"encryption": 4}, ov.ByOperation)

	require.Len(t, ov.Algorithms, 3)
	assert.Equal(t, "AES-128", ov.Algorithms[0].Algorithm)
	assert.Equal(t, "Kyber-768", ov.Algorithms[1].Algorithm)
	assert.Equal(t, 2, ov.Algorithms[1].Snapshot.Count)

	require.Len(t, ov.DailyActivity, 30)
	assert.Equal(t, now.Format(time.DateOnly), ov.DailyActivity[29].Date)
	assert.Equal(t, 2, ov.DailyActivity[29].Count)
	assert.Equal(t, 1, ov.DailyActivity[19].Count)
}
