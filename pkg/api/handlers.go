package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/report"
	"github.com/ethpandaops/cryptoperf/pkg/results"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/stats"
)

var (
	// errInvalidInput marks malformed query parameters and bodies.
	errInvalidInput = errors.New("invalid input")

	// errPublishingDisabled is returned when no uploader is configured.
	errPublishingDisabled = errors.New("publishing is not configured")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("operation", func(fl validator.FieldLevel) bool {
		return catalog.ValidOperation(catalog.Operation(fl.Field().String()))
	})

	return v
}

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps err onto an HTTP status. Server-side failures are logged
// and reported without detail.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")

		writeJSON(w, status, errorResponse{"internal error"})

		return
	}

	writeJSON(w, status, errorResponse{err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidInput),
		errors.Is(err, runner.ErrInvalidOperation),
		errors.Is(err, runner.ErrEmptyBatch),
		errors.Is(err, runner.ErrBatchTooLarge),
		errors.Is(err, results.ErrInvalidPageToken),
		errors.Is(err, results.ErrUnsupportedFormat),
		errors.Is(err, results.ErrUnknownAlgorithm),
		errors.Is(err, stats.ErrInvalidWindow),
		errors.Is(err, stats.ErrTooManyBuckets),
		errors.Is(err, report.ErrUnknownKind),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, results.ErrNotFound),
		errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, results.ErrForbidden),
		errors.Is(err, report.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, results.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, report.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errPublishingDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}

// decodeBody decodes a JSON body of at most limit bytes and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := io.Reader(r.Body)
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return invalidInput("request body exceeds %d bytes", maxErr.Limit)
		}

		return invalidInput("invalid request body: %v", err)
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidInput, err)
	}

	return nil
}

// parseIDParam reads the {id} URL parameter.
func parseIDParam(r *http.Request) (uint, error) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		return 0, invalidInput("id parameter is required")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return 0, invalidInput("invalid id %q", idStr)
	}

	return uint(id), nil
}

// parseFilter builds a record filter for userID from query parameters.
// List parameters may be repeated or comma separated.
func parseFilter(r *http.Request, userID string) (results.Filter, error) {
	q := r.URL.Query()

	filter := results.Filter{
		UserID:     userID,
		Algorithms: splitList(q["algorithm"]),
		Operations: splitList(q["operation"]),
		BatchID:    q.Get("batch_id"),
	}

	for _, op := range filter.Operations {
		if !catalog.ValidOperation(catalog.Operation(op)) {
			return filter, invalidInput("unknown operation %q", op)
		}
	}

	switch outcome := q.Get("outcome"); outcome {
	case "", "any":
	case "success", "failure":
		filter.Outcome = outcome
	default:
		return filter, invalidInput("outcome must be success, failure or any")
	}

	var err error

	if filter.From, err = parseTime(q.Get("from")); err != nil {
		return filter, invalidInput("from: %v", err)
	}

	if filter.To, err = parseTime(q.Get("to")); err != nil {
		return filter, invalidInput("to: %v", err)
	}

	return filter, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}

func splitList(values []string) []string {
	var out []string

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type algorithmResponse struct {
	catalog.Descriptor
	Operations []catalog.Operation `json:"operations"`
}

func toAlgorithmResponse(d catalog.Descriptor) algorithmResponse {
	return algorithmResponse{
		Descriptor: d,
		Operations: d.SupportedOperations(),
	}
}

// handleListAlgorithms returns the catalog, optionally filtered by
// family and category.
func (s *server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Family:   catalog.Family(q.Get("family")),
		Category: catalog.Category(q.Get("category")),
	}

	switch filter.Family {
	case "", catalog.FamilyClassical, catalog.FamilyPostQuantum:
	default:
		s.writeError(w, r, invalidInput("unknown family %q", filter.Family))

		return
	}

	switch filter.Category {
	case "", catalog.CategoryKeyExchange, catalog.CategorySignature,
		catalog.CategorySymmetricCipher:
	default:
		s.writeError(w, r, invalidInput("unknown category %q", filter.Category))

		return
	}

	descriptors, err := s.deps.Catalog.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := make([]algorithmResponse, 0, len(descriptors))
	for _, d := range descriptors {
		resp = append(resp, toAlgorithmResponse(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{"algorithms": resp})
}

// handleGetAlgorithm returns a single descriptor.
func (s *server) handleGetAlgorithm(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Catalog.Get(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toAlgorithmResponse(*d))
}

// handleAlgorithmCategories counts the catalog by family and category.
func (s *server) handleAlgorithmCategories(w http.ResponseWriter, r *http.Request) {
	descriptors, err := s.deps.Catalog.List(r.Context(), catalog.Filter{})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, catalog.Summarize(descriptors))
}

// handleReportKinds lists the report types.
func (s *server) handleReportKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"report_types": report.Kinds()})
}
