// Package report builds, persists and renders performance, security and
// comparison reports over stored trial records.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const (
	// DefaultSuccessThreshold is the success rate below which an algorithm
	// is flagged unstable.
	DefaultSuccessThreshold = 0.95

	// DefaultWindow is the analysis window when a request gives no start.
	DefaultWindow = 30 * 24 * time.Hour
)

var (
	// ErrInsufficientData is returned when there is nothing to report on.
	ErrInsufficientData = errors.New("insufficient data for report")

	// ErrForbidden is returned when accessing another user's report.
	ErrForbidden = errors.New("report belongs to another user")

	// ErrNotFound is returned for an unknown report id.
	ErrNotFound = errors.New("report not found")

	// ErrUnknownKind is returned for an unsupported report kind.
	ErrUnknownKind = errors.New("unknown report kind")
)

// Kind is the type of report.
type Kind string

// Report kinds.
const (
	KindPerformance Kind = "performance"
	KindSecurity    Kind = "security"
	KindComparison  Kind = "comparison"
)

// KindInfo describes a report kind.
type KindInfo struct {
	Kind        Kind   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Kinds lists the supported report kinds.
func Kinds() []KindInfo {
	return []KindInfo{
		{
			Kind:        KindPerformance,
			Name:        "Performance Analysis",
			Description: "Analyze algorithm execution times and performance metrics",
		},
		{
			Kind:        KindSecurity,
			Name:        "Security Assessment",
			Description: "Evaluate security properties and quantum readiness",
		},
		{
			Kind:        KindComparison,
			Name:        "Algorithm Comparison",
			Description: "Compare multiple algorithms across various metrics",
		},
	}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k.Kind) == s {
			return k.Kind, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Window is the half-open time range a report covers.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Request asks for a new report.
type Request struct {
	Kind       Kind
	UserID     string
	Algorithms []string
	Window     Window
	Title      string
}

// Report is a generated, persisted report.
type Report struct {
	ID         uint      `json:"id"`
	UserID     string    `json:"user_id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Algorithms []string  `json:"algorithms"`
	Window     Window    `json:"window"`
	CreatedAt  time.Time `json:"created_at"`
	Body       *Body     `json:"body,omitempty"`
}

// Generator creates and manages reports.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Report, error)
	Get(ctx context.Context, userID string, id uint) (*Report, error)
	List(ctx context.Context, userID string, kind Kind) ([]Report, error)
	Delete(ctx context.Context, userID string, id uint) error
}

// Config for the generator.
type Config struct {
	SuccessThreshold float64
	DefaultWindow    time.Duration
	Now              func() time.Time
}

// NewGenerator creates a Generator. Records are read through src and
// reports persisted in st.
func NewGenerator(
	log logrus.FieldLogger,
	cfg *Config,
	cat catalog.Catalog,
	src stats.RecordQuerier,
	st store.Store,
) Generator {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}

	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = DefaultWindow
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &generator{
		log:     log.WithField("component", "report"),
		cfg:     cfg,
		catalog: cat,
		src:     src,
		store:   st,
	}
}

type generator struct {
	log     logrus.FieldLogger
	cfg     *Config
	catalog catalog.Catalog
	src     stats.RecordQuerier
	store   store.Store
}

// Compile-time interface check.
var _ Generator = (*generator)(nil)

// Generate builds a report from the current records and persists it.
func (g *generator) Generate(ctx context.Context, req Request) (*Report, error) {
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}

	now := g.cfg.Now().UTC()

	window := req.Window
	if window.To.IsZero() {
		window.To = now
	}

	if window.From.IsZero() {
		window.From = window.To.Add(-g.cfg.DefaultWindow)
	}

	window.From, window.To = window.From.UTC(), window.To.UTC()

	if !window.From.Before(window.To) {
		return nil, stats.ErrInvalidWindow
	}

	descriptors, err := g.resolveExplicit(ctx, req.Algorithms)
	if err != nil {
		return nil, err
	}

	filter := store.RecordFilter{
		UserID: req.UserID,
		From:   window.From,
		To:     window.To,
	}

	for _, d := range descriptors {
		filter.Algorithms = append(filter.Algorithms, d.Identity)
	}

	recs, err := g.src.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	if len(descriptors) == 0 {
		descriptors, err = g.resolveImplicit(ctx, req.Kind, recs)
		if err != nil {
			return nil, err
		}
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: no algorithms selected", ErrInsufficientData)
	}

	if req.Kind != KindSecurity && len(recs) == 0 {
		return nil, fmt.Errorf("%w: no trials in window", ErrInsufficientData)
	}

	title := req.Title
	if title == "" {
		title = DefaultTitle(req.Kind, now)
	}

	in := &input{
		kind:        req.Kind,
		title:       title,
		window:      window,
		generatedAt: now,
		threshold:   g.cfg.SuccessThreshold,
		descriptors: descriptors,
		records:     groupByAlgorithm(recs),
	}

	var body *Body

	switch req.Kind {
	case KindPerformance:
		body = buildPerformance(in)
	case KindSecurity:
		body = buildSecurity(in)
	case KindComparison:
		body = buildComparison(in)
	}

	identities := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		identities = append(identities, d.Identity)
	}

	rep := &Report{
		UserID:     req.UserID,
		Kind:       req.Kind,
		Title:      title,
		Algorithms: identities,
		Window:     window,
		CreatedAt:  now,
		Body:       body,
	}

	model, err := toModel(rep)
	if err != nil {
		return nil, err
	}

	if err := g.store.CreateReport(ctx, model); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	rep.ID = model.ID

	g.log.WithFields(logrus.Fields{
		"report_id":  rep.ID,
		"kind":       rep.Kind,
		"user":       rep.UserID,
		"algorithms": len(identities),
		"records":    len(recs),
	}).Info("Report generated")

	return rep, nil
}

// resolveExplicit looks up requested identities, dropping duplicates.
func (g *generator) resolveExplicit(
	ctx context.Context, identities []string,
) ([]catalog.Descriptor, error) {
	seen := make(map[string]struct{}, len(identities))
	out := make([]catalog.Descriptor, 0, len(identities))

	for _, id := range identities {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}

		d, err := g.catalog.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		out = append(out, *d)
	}

	catalog.SortDescriptors(out)

	return out, nil
}

// resolveImplicit picks the algorithms of a request that named none: the
// whole catalog for security reports, otherwise whatever the records
// cover.
func (g *generator) resolveImplicit(
	ctx context.Context, kind Kind, recs []store.TestRecord,
) ([]catalog.Descriptor, error) {
	if kind == KindSecurity {
		all, err := g.catalog.List(ctx, catalog.Filter{})
		if err != nil {
			return nil, fmt.Errorf("listing catalog: %w", err)
		}

		return all, nil
	}

	seen := make(map[string]struct{}, 16)
	ids := make([]string, 0, 16)

	for i := range recs {
		if _, ok := seen[recs[i].Algorithm]; ok {
			continue
		}

		seen[recs[i].Algorithm] = struct{}{}
		ids = append(ids, recs[i].Algorithm)
	}

	sort.Strings(ids)

	return g.resolveExplicit(ctx, ids)
}

// Get returns a report owned by userID.
func (g *generator) Get(ctx context.Context, userID string, id uint) (*Report, error) {
	model, err := g.store.GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}

		return nil, err
	}

	if model.UserID != userID {
		return nil, fmt.Errorf("%w: %d", ErrForbidden, id)
	}

	return fromModel(model, true)
}

// List returns userID's reports newest first, without bodies.
func (g *generator) List(ctx context.Context, userID string, kind Kind) ([]Report, error) {
	if kind != "" {
		if _, err := ParseKind(string(kind)); err != nil {
			return nil, err
		}
	}

	models, err := g.store.ListReports(ctx, userID, string(kind))
	if err != nil {
		return nil, err
	}

	out := make([]Report, 0, len(models))

	for i := range models {
		rep, err := fromModel(&models[i], false)
		if err != nil {
			return nil, err
		}

		out = append(out, *rep)
	}

	return out, nil
}

// Delete removes a report owned by userID.
func (g *generator) Delete(ctx context.Context, userID string, id uint) error {
	err := g.store.DeleteReport(ctx, id, func(r *store.Report) error {
		if r.UserID != userID {
			return fmt.Errorf("%w: %d", ErrForbidden, id)
		}

		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return err
}

// DefaultTitle names a report after its kind and date.
func DefaultTitle(kind Kind, at time.Time) string {
	name := string(kind)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}

	return fmt.Sprintf("%s Report - %s", name, at.UTC().Format(time.DateOnly))
}

func groupByAlgorithm(recs []store.TestRecord) map[string][]store.TestRecord {
	out := make(map[string][]store.TestRecord, 16)
	for i := range recs {
		out[recs[i].Algorithm] = append(out[recs[i].Algorithm], recs[i])
	}

	return out
}

func toModel(rep *Report) (*store.Report, error) {
	algs, err := json.Marshal(rep.Algorithms)
	if err != nil {
		return nil, fmt.Errorf("encoding algorithms: %w", err)
	}

	body, err := json.Marshal(rep.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding report body: %w", err)
	}

	return &store.Report{
		UserID:         rep.UserID,
		Kind:           string(rep.Kind),
		Title:          rep.Title,
		AlgorithmsJSON: string(algs),
		WindowFrom:     rep.Window.From,
		WindowTo:       rep.Window.To,
		BodyJSON:       string(body),
		CreatedAt:      rep.CreatedAt,
	}, nil
}

func fromModel(m *store.Report, withBody bool) (*Report, error) {
	rep := &Report{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      Kind(m.Kind),
		Title:     m.Title,
		Window:    Window{From: m.WindowFrom.UTC(), To: m.WindowTo.UTC()},
		CreatedAt: m.CreatedAt.UTC(),
	}

	if m.AlgorithmsJSON != "" {
		if err := json.Unmarshal([]byte(m.AlgorithmsJSON), &rep.Algorithms); err != nil {
			return nil, fmt.Errorf("decoding algorithms: %w", err)
		}
	}

	if withBody && m.BodyJSON != "" {
		var body Body
		if err := json.Unmarshal([]byte(m.BodyJSON), &body); err != nil {
			return nil, fmt.Errorf("decoding report body: %w", err)
		}

		rep.Body = &body
	}

	return rep, nil
}
