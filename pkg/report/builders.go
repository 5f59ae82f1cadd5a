package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

// Flags and notes attached to report entries.
const (
	UnstableNote = "unstable under current test conditions"

	FlagQuantumVulnerable = "vulnerable to future quantum adversary"
	FlagQuantumResistant  = "quantum-resistant by design, performance trade-off noted separately"
	FlagGroverOnly        = "quantum impact limited to Grover speedup"

	NoRecommendation = "no algorithm met the success threshold"
)

// Security levels derived from trial success rates.
const (
	LevelHigh       = "high"
	LevelMediumHigh = "medium-high"
	LevelMedium     = "medium"
	LevelMediumLow  = "medium-low"
	LevelLow        = "low"
	LevelUnassessed = "unassessed"
)

// Body is the structured content of a report.
type Body struct {
	Kind             Kind              `json:"kind"`
	Title            string            `json:"title"`
	GeneratedAt      time.Time         `json:"generated_at"`
	Window           Window            `json:"window"`
	Threshold        float64           `json:"success_threshold"`
	Algorithms       []Entry           `json:"algorithms"`
	Recommendation   *Recommendation   `json:"recommendation,omitempty"`
	Summary          string            `json:"summary"`
	Insights         []string          `json:"insights,omitempty"`
	QuantumReadiness *QuantumReadiness `json:"quantum_readiness,omitempty"`
}

// Entry is one algorithm's section of a report.
type Entry struct {
	Identity        string           `json:"identity"`
	Family          catalog.Family   `json:"family"`
	Category        catalog.Category `json:"category"`
	KeySize         int              `json:"key_size"`
	QuantumSafe     bool             `json:"quantum_safe"`
	Snapshot        *stats.Snapshot  `json:"snapshot,omitempty"`
	SpeedRank       int              `json:"speed_rank,omitempty"`
	ReliabilityRank int              `json:"reliability_rank,omitempty"`
	Unstable        bool             `json:"unstable"`
	SecurityFlag    string           `json:"security_flag,omitempty"`
	SecurityLevel   string           `json:"security_level,omitempty"`
	Notes           []string         `json:"notes,omitempty"`
}

// Recommendation is the report's overall advice. Algorithm is empty when
// nothing qualified.
type Recommendation struct {
	Algorithm   string `json:"algorithm,omitempty"`
	QuantumSafe bool   `json:"quantum_safe"`
	Reason      string `json:"reason"`
}

// QuantumReadiness is the share of post-quantum trials in the selection.
type QuantumReadiness struct {
	PostQuantumTrials int     `json:"post_quantum_trials"`
	TotalTrials       int     `json:"total_trials"`
	Share             float64 `json:"share"`
	Level             string  `json:"level"`
}

type input struct {
	kind        Kind
	title       string
	window      Window
	generatedAt time.Time
	threshold   float64
	descriptors []catalog.Descriptor
	records     map[string][]store.TestRecord
}

func (in *input) body() *Body {
	return &Body{
		Kind:        in.kind,
		Title:       in.title,
		GeneratedAt: in.generatedAt,
		Window:      in.window,
		Threshold:   in.threshold,
	}
}

func (in *input) entries() []Entry {
	out := make([]Entry, 0, len(in.descriptors))

	for _, d := range in.descriptors {
		out = append(out, Entry{
			Identity:    d.Identity,
			Family:      d.Family,
			Category:    d.Category,
			KeySize:     d.KeySize,
			QuantumSafe: d.QuantumSafe,
			Snapshot:    stats.Compute(in.records[d.Identity]),
		})
	}

	return out
}

func buildPerformance(in *input) *Body {
	body := in.body()
	body.Algorithms = in.entries()

	unstable := applyPerformance(body.Algorithms, in.threshold)

	trials := 0
	for i := range body.Algorithms {
		trials += body.Algorithms[i].Snapshot.Count
	}

	body.Insights = performanceInsights(body.Algorithms)
	body.Recommendation = recommendFastest(body.Algorithms, in.threshold, false)
	body.Summary = fmt.Sprintf("Analysed %d algorithms over %d trials; %d unstable.",
		len(body.Algorithms), trials, unstable)

	return body
}

func buildSecurity(in *input) *Body {
	body := in.body()
	body.Algorithms = in.entries()

	for i := range body.Algorithms {
		applySecurity(&body.Algorithms[i])
	}

	body.QuantumReadiness = readiness(body.Algorithms)

	var vulnerable, weak []string

	for i := range body.Algorithms {
		e := &body.Algorithms[i]

		if e.SecurityFlag == FlagQuantumVulnerable {
			vulnerable = append(vulnerable, e.Identity)
		}

		if e.SecurityLevel == LevelLow || e.SecurityLevel == LevelMediumLow {
			weak = append(weak, e.Identity)
		}
	}

	rec := &Recommendation{Reason: "All selected algorithms are quantum-resistant or symmetric."}
	if len(vulnerable) > 0 {
		rec.Reason = "Plan migration to quantum-safe alternatives for: " +
			strings.Join(vulnerable, ", ") + "."
	}

	body.Recommendation = rec

	if len(weak) > 0 {
		body.Insights = append(body.Insights, fmt.Sprintf(
			"Review %d algorithms with security concerns: %s",
			len(weak), strings.Join(weak, ", ")))
	}

	if qr := body.QuantumReadiness; qr != nil {
		body.Insights = append(body.Insights, fmt.Sprintf(
			"Post-quantum share of trials is %.0f%% (%s readiness)", qr.Share*100, qr.Level))
	}

	body.Summary = fmt.Sprintf("Assessed %d algorithms; %d vulnerable to a future quantum adversary.",
		len(body.Algorithms), len(vulnerable))

	return body
}

func buildComparison(in *input) *Body {
	body := in.body()
	body.Algorithms = in.entries()

	applyPerformance(body.Algorithms, in.threshold)

	safe := 0

	for i := range body.Algorithms {
		applySecurity(&body.Algorithms[i])

		if body.Algorithms[i].QuantumSafe {
			safe++
		}
	}

	body.Insights = append(performanceInsights(body.Algorithms), fmt.Sprintf(
		"Security: %d quantum-safe algorithms, %d classical algorithms",
		safe, len(body.Algorithms)-safe))
	body.Recommendation = recommendFastest(body.Algorithms, in.threshold, true)

	body.Summary = fmt.Sprintf("Compared %d algorithms.", len(body.Algorithms))
	if body.Recommendation.Algorithm != "" {
		body.Summary = fmt.Sprintf("Compared %d algorithms; recommended %s.",
			len(body.Algorithms), body.Recommendation.Algorithm)
	}

	return body
}

// applyPerformance sets speed and reliability ranks and the unstable flag.
// It returns the number of unstable entries.
func applyPerformance(entries []Entry, threshold float64) int {
	speed := make([]*Entry, 0, len(entries))
	reliability := make([]*Entry, 0, len(entries))
	unstable := 0

	for i := range entries {
		e := &entries[i]

		if e.Snapshot.Latency != nil {
			speed = append(speed, e)
		}

		if e.Snapshot.HasData() {
			reliability = append(reliability, e)

			if e.Snapshot.Rate(0) < threshold {
				e.Unstable = true
				e.Notes = append(e.Notes, UnstableNote)
				unstable++
			}
		}
	}

	sort.SliceStable(speed, func(i, j int) bool {
		return speed[i].Snapshot.Latency.Median < speed[j].Snapshot.Latency.Median
	})

	for i, e := range speed {
		e.SpeedRank = i + 1
	}

	sort.SliceStable(reliability, func(i, j int) bool {
		return reliability[i].Snapshot.Rate(0) > reliability[j].Snapshot.Rate(0)
	})

	for i, e := range reliability {
		e.ReliabilityRank = i + 1
	}

	return unstable
}

func performanceInsights(entries []Entry) []string {
	var (
		fastest, slowest, reliable *Entry
		ranked                     int
	)

	for i := range entries {
		e := &entries[i]

		if e.SpeedRank == 1 {
			fastest = e
		}

		if e.SpeedRank > ranked {
			ranked = e.SpeedRank
			slowest = e
		}

		if e.ReliabilityRank == 1 {
			reliable = e
		}
	}

	var out []string

	if fastest != nil {
		out = append(out, fmt.Sprintf("Fastest: %s with a median of %s",
			fastest.Identity, FormatLatency(fastest.Snapshot.Latency.Median)))
	}

	if slowest != nil && ranked > 1 {
		out = append(out, fmt.Sprintf("Slowest: %s with a median of %s",
			slowest.Identity, FormatLatency(slowest.Snapshot.Latency.Median)))
	}

	if reliable != nil {
		out = append(out, fmt.Sprintf("Most reliable: %s at %s success",
			reliable.Identity, FormatRate(reliable.Snapshot.SuccessRate)))
	}

	return out
}

// recommendFastest picks the fastest entry meeting the threshold. With
// preferSafe, quantum-safe candidates win over faster classical ones.
func recommendFastest(entries []Entry, threshold float64, preferSafe bool) *Recommendation {
	var bestSafe, bestClassical, best *Entry

	for i := range entries {
		e := &entries[i]

		if e.Snapshot.Latency == nil || e.Snapshot.Rate(0) < threshold {
			continue
		}

		if best == nil || faster(e, best) {
			best = e
		}

		if e.QuantumSafe {
			if bestSafe == nil || faster(e, bestSafe) {
				bestSafe = e
			}
		} else if bestClassical == nil || faster(e, bestClassical) {
			bestClassical = e
		}
	}

	pick, reason := best, "fastest algorithm meeting the success threshold"

	if preferSafe {
		switch {
		case bestSafe != nil:
			pick, reason = bestSafe, "fastest quantum-resistant algorithm meeting the success threshold"
		case bestClassical != nil:
			pick, reason = bestClassical, "no quantum-resistant algorithm met the success threshold; fastest classical algorithm"
		default:
			pick = nil
		}
	}

	if pick == nil {
		return &Recommendation{Reason: NoRecommendation}
	}

	return &Recommendation{
		Algorithm:   pick.Identity,
		QuantumSafe: pick.QuantumSafe,
		Reason:      fmt.Sprintf("%s (median %s)", reason, FormatLatency(pick.Snapshot.Latency.Median)),
	}
}

func faster(a, b *Entry) bool {
	return a.Snapshot.Latency.Median < b.Snapshot.Latency.Median
}

func applySecurity(e *Entry) {
	switch {
	case e.Family == catalog.FamilyPostQuantum:
		e.SecurityFlag = FlagQuantumResistant
	case e.Category == catalog.CategorySymmetricCipher:
		e.SecurityFlag = FlagGroverOnly
	default:
		e.SecurityFlag = FlagQuantumVulnerable
	}

	e.SecurityLevel = securityLevel(e.Snapshot)
	e.Notes = append(e.Notes, keySizeNotes(e)...)
}

func securityLevel(snap *stats.Snapshot) string {
	if !snap.HasData() {
		return LevelUnassessed
	}

	rate := snap.Rate(0)

	switch {
	case rate >= 0.95:
		return LevelHigh
	case rate >= 0.90:
		return LevelMediumHigh
	case rate >= 0.80:
		return LevelMedium
	case rate >= 0.70:
		return LevelMediumLow
	default:
		return LevelLow
	}
}

func keySizeNotes(e *Entry) []string {
	id := strings.ToUpper(e.Identity)

	switch {
	case strings.HasPrefix(id, "RSA"):
		switch {
		case e.KeySize >= 4096:
			return []string{"strong key size for current threats"}
		case e.KeySize >= 2048:
			return []string{"adequate key size, consider upgrading"}
		default:
			return []string{"weak key size, upgrade recommended"}
		}
	case strings.HasPrefix(id, "AES"):
		if e.KeySize >= 256 {
			return []string{"strong symmetric key size"}
		}

		return []string{"consider 256-bit keys"}
	}

	return nil
}

func readiness(entries []Entry) *QuantumReadiness {
	qr := &QuantumReadiness{}

	for i := range entries {
		n := entries[i].Snapshot.Count
		qr.TotalTrials += n

		if entries[i].QuantumSafe {
			qr.PostQuantumTrials += n
		}
	}

	if qr.TotalTrials == 0 {
		return nil
	}

	qr.Share = float64(qr.PostQuantumTrials) / float64(qr.TotalTrials)

	switch {
	case qr.Share < 0.25:
		qr.Level = "low"
	case qr.Share < 0.50:
		qr.Level = "medium"
	default:
		qr.Level = "high"
	}

	return qr
}
