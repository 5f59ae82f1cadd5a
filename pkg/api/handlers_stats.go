package api

import (
	"net/http"
	"time"
)

// handleSummary aggregates the caller's matching records.
func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, userFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	snap, err := s.deps.Stats.Summarize(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleTrend buckets the caller's matching records over time.
func (s *server) handleTrend(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, userFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var width time.Duration

	if v := r.URL.Query().Get("bucket"); v != "" {
		if width, err = time.ParseDuration(v); err != nil {
			s.writeError(w, r, invalidInput("invalid bucket %q", v))

			return
		}
	}

	trend, err := s.deps.Stats.Trend(r.Context(), filter, width)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, trend)
}

// handleOverview returns the caller's dashboard overview.
func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.deps.Stats.Overview(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, overview)
}
