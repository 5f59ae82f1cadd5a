package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/cryptoperf/pkg/results"
)

// maxImportBytes caps an uploaded export document.
const maxImportBytes = 64 << 20

type deleteRecordsRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

// handleListRecords returns one page of the caller's records.
func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, userFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	pageSize := 0

	if v := r.URL.Query().Get("page_size"); v != "" {
		if pageSize, err = strconv.Atoi(v); err != nil {
			s.writeError(w, r, invalidInput("invalid page_size %q", v))

			return
		}
	}

	page, err := s.deps.Results.Paginate(
		r.Context(), filter, r.URL.Query().Get("page_token"), pageSize,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, page)
}

type recordResponse struct {
	Record    *results.Record   `json:"record"`
	Algorithm algorithmResponse `json:"algorithm"`
}

// handleGetRecord returns one of the caller's records with its
// algorithm descriptor.
func (s *server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	rec, err := s.deps.Results.Get(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	d, err := s.deps.Catalog.Get(r.Context(), rec.Algorithm)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("record %d: %w", id, err))

		return
	}

	writeJSON(w, http.StatusOK, recordResponse{
		Record:    rec,
		Algorithm: toAlgorithmResponse(*d),
	})
}

// handleDeleteRecord removes one of the caller's records.
func (s *server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if err := s.deps.Results.DeleteOne(
		r.Context(), userFromContext(r.Context()), id,
	); err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

// handleDeleteRecords removes several of the caller's records atomically.
func (s *server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req deleteRecordsRequest
	if err := decodeBody(w, r, bodyOverhead, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	deleted, err := s.deps.Results.DeleteMany(
		r.Context(), userFromContext(r.Context()), req.IDs,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// handleExportRecords streams the caller's matching records as an
// export document.
func (s *server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	filter, err := parseFilter(r, userID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.cfg.Export.Format
	}

	doc, err := s.deps.Results.Export(r.Context(), userID, filter)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var buf bytes.Buffer
	if err := doc.Encode(&buf, format); err != nil {
		s.writeError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", results.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(
		"attachment; filename=%q", doc.FileName(format),
	))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleImportRecords loads an export document. Records must belong to
// the caller.
func (s *server) handleImportRecords(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	format := r.URL.Query().Get("format")
	if format == "" {
		format = results.FormatJSON
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			format = results.FormatYAML
		}
	}

	doc, err := results.DecodeExport(http.MaxBytesReader(w, r.Body, maxImportBytes), format)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errInvalidInput, err))

		return
	}

	for i := range doc.Records {
		rec := &doc.Records[i]

		if rec.UserID == "" {
			rec.UserID = userID
		}

		if rec.UserID != userID {
			s.writeError(w, r, fmt.Errorf("record %d: %w", rec.ID, results.ErrForbidden))

			return
		}
	}

	imported, err := s.deps.Results.Import(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"imported": imported})
}
