package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const (
	// MaxBuckets bounds the number of buckets a trend may produce.
	MaxBuckets = 10000

	// DefaultWindow is used when a trend has no start.
	DefaultWindow = 30 * 24 * time.Hour

	// DefaultBucket is used when a trend has no bucket width.
	DefaultBucket = 24 * time.Hour

	// DefaultChangeThreshold is the relative change that marks a trend as
	// improving or degrading.
	DefaultChangeThreshold = 0.10

	// DefaultRecentWindow is the overview's notion of "recent".
	DefaultRecentWindow = 7 * 24 * time.Hour

	activityDays = 30
)

var (
	// ErrInvalidWindow is returned when a window's start is not before its end.
	ErrInvalidWindow = errors.New("window start must be before its end")

	// ErrTooManyBuckets is returned when a trend would exceed MaxBuckets.
	ErrTooManyBuckets = errors.New("too many trend buckets")
)

// Direction is the movement of latency across a trend.
type Direction string

// Trend directions.
const (
	DirectionImproving        Direction = "improving"
	DirectionDegrading        Direction = "degrading"
	DirectionStable           Direction = "stable"
	DirectionInsufficientData Direction = "insufficient_data"
)

// Bucket is one interval of a trend, half-open [From, To).
type Bucket struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Trend is a bucketed time series of snapshots.
type Trend struct {
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	BucketWidth time.Duration `json:"bucket_width_ns"`
	Buckets     []Bucket      `json:"buckets"`
	Direction   Direction     `json:"direction"`
}

// AlgorithmSummary is one algorithm's line in an overview.
type AlgorithmSummary struct {
	Algorithm string    `json:"algorithm"`
	Family    string    `json:"family"`
	Snapshot  *Snapshot `json:"snapshot"`
}

// DailyCount is the number of trials on one UTC day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Overview is a dashboard view of one user's activity.
type Overview struct {
	UserID        string             `json:"user_id"`
	TotalTrials   int                `json:"total_trials"`
	RecentTrials  int                `json:"recent_trials"`
	RecentWindow  time.Duration      `json:"recent_window_ns"`
	SuccessRate   *float64           `json:"success_rate"`
	ByFamily      map[string]int     `json:"by_family"`
	ByOperation   map[string]int     `json:"by_operation"`
	Algorithms    []AlgorithmSummary `json:"algorithms"`
	DailyActivity []DailyCount       `json:"daily_activity"`
}

// RecordQuerier returns records matching a filter.
type RecordQuerier interface {
	Query(ctx context.Context, filter store.RecordFilter) ([]store.TestRecord, error)
}

// Aggregator computes statistics over stored records.
type Aggregator interface {
	Summarize(ctx context.Context, filter store.RecordFilter) (*Snapshot, error)
	Trend(ctx context.Context, filter store.RecordFilter, width time.Duration) (*Trend, error)
	Overview(ctx context.Context, userID string) (*Overview, error)
}

// Config for the aggregator.
type Config struct {
	DefaultWindow   time.Duration
	TrendBucket     time.Duration
	ChangeThreshold float64
	RecentWindow    time.Duration

	// Now is the reference time for open-ended windows.
	Now func() time.Time
}

// NewAggregator creates an Aggregator reading from src. The catalog
// resolves algorithm families for overviews.
func NewAggregator(
	log logrus.FieldLogger,
	cfg *Config,
	src RecordQuerier,
	cat catalog.Catalog,
) Aggregator {
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = DefaultWindow
	}

	if cfg.TrendBucket <= 0 {
		cfg.TrendBucket = DefaultBucket
	}

	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = DefaultChangeThreshold
	}

	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &aggregator{
		log:     log.WithField("component", "stats"),
		cfg:     cfg,
		src:     src,
		catalog: cat,
	}
}

type aggregator struct {
	log     logrus.FieldLogger
	cfg     *Config
	src     RecordQuerier
	catalog catalog.Catalog
}

// Compile-time interface check.
var _ Aggregator = (*aggregator)(nil)

// Summarize aggregates every record matching filter.
func (a *aggregator) Summarize(
	ctx context.Context, filter store.RecordFilter,
) (*Snapshot, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, ErrInvalidWindow
	}

	recs, err := a.src.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	return Compute(recs), nil
}

// Trend splits the filter's window into buckets of width anchored at the
// window start.
func (a *aggregator) Trend(
	ctx context.Context, filter store.RecordFilter, width time.Duration,
) (*Trend, error) {
	if width <= 0 {
		width = a.cfg.TrendBucket
	}

	to := filter.To
	if to.IsZero() {
		to = a.cfg.Now()
	}

	from := filter.From
	if from.IsZero() {
		from = to.Add(-a.cfg.DefaultWindow)
	}

	from, to = from.UTC(), to.UTC()

	if !from.Before(to) {
		return nil, ErrInvalidWindow
	}

	span := to.Sub(from)

	count := int(span / width)
	if span%width != 0 {
		count++
	}

	if count > MaxBuckets {
		return nil, fmt.Errorf("%w: %d buckets, limit %d", ErrTooManyBuckets, count, MaxBuckets)
	}

	filter.From, filter.To = from, to

	recs, err := a.src.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	grouped := make([][]store.TestRecord, count)

	for i := range recs {
		k := int(recs[i].CreatedAt.Sub(from) / width)
		if k < 0 || k >= count {
			continue
		}

		grouped[k] = append(grouped[k], recs[i])
	}

	trend := &Trend{
		From:        from,
		To:          to,
		BucketWidth: width,
		Buckets:     make([]Bucket, count),
	}

	for k := range grouped {
		start := from.Add(time.Duration(k) * width)

		end := start.Add(width)
		if end.After(to) {
			end = to
		}

		trend.Buckets[k] = Bucket{
			From:     start,
			To:       end,
			Snapshot: Compute(grouped[k]),
		}
	}

	trend.Direction = direction(trend.Buckets, a.cfg.ChangeThreshold)

	a.log.WithFields(logrus.Fields{
		"records":   len(recs),
		"buckets":   count,
		"direction": trend.Direction,
	}).Debug("Computed trend")

	return trend, nil
}

// direction compares the mean latency of the first and last buckets that
// have latency data.
func direction(buckets []Bucket, threshold float64) Direction {
	first, last := -1, -1

	for i := range buckets {
		if buckets[i].Snapshot.Latency == nil {
			continue
		}

		if first < 0 {
			first = i
		}

		last = i
	}

	if first < 0 || first == last {
		return DirectionInsufficientData
	}

	a := float64(buckets[first].Snapshot.Latency.Mean)
	b := float64(buckets[last].Snapshot.Latency.Mean)

	switch {
	case b > a*(1+threshold):
		return DirectionDegrading
	case b < a*(1-threshold):
		return DirectionImproving
	default:
		return DirectionStable
	}
}

// Overview summarises everything userID has run.
func (a *aggregator) Overview(ctx context.Context, userID string) (*Overview, error) {
	recs, err := a.src.Query(ctx, store.RecordFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	families, err := a.families(ctx)
	if err != nil {
		return nil, err
	}

	now := a.cfg.Now().UTC()
	recentFrom := now.Add(-a.cfg.RecentWindow)

	today := now.Truncate(24 * time.Hour)
	activityFrom := today.AddDate(0, 0, -(activityDays - 1))
	daily := make([]DailyCount, activityDays)

	for i := range daily {
		daily[i].Date = activityFrom.AddDate(0, 0, i).Format(time.DateOnly)
	}

	ov := &Overview{
		UserID:       userID,
		TotalTrials:  len(recs),
		RecentWindow: a.cfg.RecentWindow,
		SuccessRate:  Compute(recs).SuccessRate,
		ByFamily:     make(map[string]int, 2),
		ByOperation:  make(map[string]int, len(catalog.Operations)),
	}

	perAlgorithm := make(map[string][]store.TestRecord, 16)

	for i := range recs {
		r := recs[i]

		if !r.CreatedAt.Before(recentFrom) {
			ov.RecentTrials++
		}

		family, ok := families[r.Algorithm]
		if !ok {
			family = "unknown"
		}

		ov.ByFamily[family]++
		ov.ByOperation[r.Operation]++
		perAlgorithm[r.Algorithm] = append(perAlgorithm[r.Algorithm], r)

		if !r.CreatedAt.Before(activityFrom) {
			if day := int(r.CreatedAt.Sub(activityFrom) / (24 * time.Hour)); day < activityDays {
				daily[day].Count++
			}
		}
	}

	ov.DailyActivity = daily
	ov.Algorithms = make([]AlgorithmSummary, 0, len(perAlgorithm))

	for alg, group := range perAlgorithm {
		ov.Algorithms = append(ov.Algorithms, AlgorithmSummary{
			Algorithm: alg,
			Family:    families[alg],
			Snapshot:  Compute(group),
		})
	}

	sort.Slice(ov.Algorithms, func(i, j int) bool {
		return ov.Algorithms[i].Algorithm < ov.Algorithms[j].Algorithm
	})

	return ov, nil
}

func (a *aggregator) families(ctx context.Context) (map[string]string, error) {
	descriptors, err := a.catalog.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}

	out := make(map[string]string, len(descriptors))
	for _, d := range descriptors {
		out[d.Identity] = string(d.Family)
	}

	return out, nil
}
