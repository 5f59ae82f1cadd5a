package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/upload"
)

type reportRequest struct {
	Kind       string    `json:"kind" validate:"required"`
	Title      string    `json:"title,omitempty" validate:"max=200"`
	Algorithms []string  `json:"algorithms,omitempty" validate:"max=100,dive,required"`
	From       time.Time `json:"from,omitzero"`
	To         time.Time `json:"to,omitzero"`
}

// handleGenerateReport builds and stores a new report.
func (s *server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeBody(w, r, bodyOverhead, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	kind, err := report.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	rep, err := s.deps.Reports.Generate(r.Context(), report.Request{
		Kind:       kind,
		UserID:     userFromContext(r.Context()),
		Algorithms: req.Algorithms,
		Window:     report.Window{From: req.From.UTC(), To: req.To.UTC()},
		Title:      req.Title,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, rep)
}

// handleListReports lists the caller's reports without bodies.
func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	var kind report.Kind

	if v := r.URL.Query().Get("kind"); v != "" {
		parsed, err := report.ParseKind(v)
		if err != nil {
			s.writeError(w, r, err)

			return
		}

		kind = parsed
	}

	reps, err := s.deps.Reports.List(r.Context(), userFromContext(r.Context()), kind)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if reps == nil {
		reps = []report.Report{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reps})
}

// loadReport resolves the {id} parameter to one of the caller's reports.
func (s *server) loadReport(r *http.Request) (*report.Report, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}

	return s.deps.Reports.Get(r.Context(), userFromContext(r.Context()), id)
}

// handleGetReport returns a report with its body.
func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.loadReport(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// handleReportMarkdown renders a report as Markdown.
func (s *server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, err := s.loadReport(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.RenderMarkdown(rep)))
}

// handlePublishReport uploads a report to object storage, as Markdown by
// default or as JSON with ?format=json.
func (s *server) handlePublishReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploader == nil {
		s.writeError(w, r, errPublishingDisabled)

		return
	}

	rep, err := s.loadReport(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	name, data, err := report.Encode(rep, r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	key, err := s.deps.Uploader.Upload(r.Context(), upload.KindReports, name, data)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("publishing report %d: %w", rep.ID, err))

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key})
}

// handleDeleteReport removes one of the caller's reports.
func (s *server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if err := s.deps.Reports.Delete(r.Context(), userFromContext(r.Context()), id); err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
