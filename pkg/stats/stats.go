// Package stats derives aggregate snapshots, trends and overviews from
// trial records. Nothing here is persisted or cached.
package stats

import (
	"math"
	"sort"
	"time"

	mstats "github.com/montanaflynn/stats"

	"github.com/ethpandaops/cryptoperf/pkg/store"
)

// Latency summarises the durations of successful trials.
type Latency struct {
	Mean   time.Duration `json:"mean_ns"`
	Median time.Duration `json:"median_ns"`
	P90    time.Duration `json:"p90_ns"`
	P99    time.Duration `json:"p99_ns"`
	Min    time.Duration `json:"min_ns"`
	Max    time.Duration `json:"max_ns"`
	StdDev time.Duration `json:"stddev_ns"`
}

// Snapshot is the aggregate of a selection of records. SuccessRate and
// Latency are nil when there is no data to derive them from.
type Snapshot struct {
	Count        int      `json:"count"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	SuccessRate  *float64 `json:"success_rate"`
	InputBytes   int64    `json:"input_bytes"`
	Latency      *Latency `json:"latency"`
}

// HasData reports whether the snapshot covers at least one trial.
func (s *Snapshot) HasData() bool {
	return s != nil && s.Count > 0
}

// Rate returns the success rate, or def when there is none.
func (s *Snapshot) Rate(def float64) float64 {
	if s == nil || s.SuccessRate == nil {
		return def
	}

	return *s.SuccessRate
}

// Compute aggregates records. Latency is taken from successful trials
// only.
func Compute(records []store.TestRecord) *Snapshot {
	snap := &Snapshot{Count: len(records)}
	if len(records) == 0 {
		return snap
	}

	durations := make([]float64, 0, len(records))

	for i := range records {
		snap.InputBytes += int64(records[i].InputSize)

		if !records[i].Success {
			snap.FailureCount++

			continue
		}

		snap.SuccessCount++
		durations = append(durations, float64(records[i].DurationNs))
	}

	rate := float64(snap.SuccessCount) / float64(snap.Count)
	snap.SuccessRate = &rate

	if len(durations) > 0 {
		snap.Latency = latency(durations)
	}

	return snap
}

func latency(durations []float64) *Latency {
	sort.Float64s(durations)

	data := mstats.Float64Data(durations)

	// Both only fail on empty input, which callers rule out.
	mean, _ := mstats.Mean(data)
	stddev, _ := mstats.StandardDeviation(data)

	return &Latency{
		Mean:   toDuration(mean),
		Median: toDuration(Percentile(durations, 50)),
		P90:    toDuration(Percentile(durations, 90)),
		P99:    toDuration(Percentile(durations, 99)),
		Min:    toDuration(durations[0]),
		Max:    toDuration(durations[len(durations)-1]),
		StdDev: toDuration(stddev),
	}
}

// Percentile returns the p-th percentile of sorted values using linear
// interpolation at rank p/100*(n-1).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)

	switch {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func toDuration(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}
