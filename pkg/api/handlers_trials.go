package api

import (
	"fmt"
	"net/http"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/runner"
	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const (
	maxIterations = 1000

	// bodyOverhead is allowed on top of the payload limit for JSON
	// framing and escaping.
	bodyOverhead = 64 << 10
)

type trialRequest struct {
	Algorithm   string  `json:"algorithm" validate:"required"`
	Operation   string  `json:"operation" validate:"required,operation"`
	Payload     *string `json:"payload,omitempty"`
	PayloadSize int     `json:"payload_size,omitempty" validate:"gte=0"`
}

type batchRequest struct {
	Trials     []trialRequest `json:"trials" validate:"required,min=1,dive"`
	Iterations int            `json:"iterations,omitempty" validate:"gte=0"`
}

type batchResponse struct {
	BatchID string              `json:"batch_id"`
	Records []*store.TestRecord `json:"records"`
}

// payload returns the trial input, generating random bytes for a size.
func (req *trialRequest) payload(limit int64) ([]byte, error) {
	switch {
	case req.Payload != nil && req.PayloadSize > 0:
		return nil, invalidInput("payload and payload_size are mutually exclusive")
	case req.Payload != nil:
		if int64(len(*req.Payload)) > limit {
			return nil, invalidInput("payload exceeds %d bytes", limit)
		}

		return []byte(*req.Payload), nil
	case req.PayloadSize > 0:
		if int64(req.PayloadSize) > limit {
			return nil, invalidInput("payload_size exceeds %d bytes", limit)
		}

		return runner.RandomPayload(req.PayloadSize)
	default:
		return []byte(runner.DefaultPayload), nil
	}
}

func (s *server) bodyLimit() int64 {
	return 2*s.cfg.Server.MaxPayloadBytes + bodyOverhead
}

// handleRunTrial runs one timed trial and returns its record.
func (s *server) handleRunTrial(w http.ResponseWriter, r *http.Request) {
	var req trialRequest
	if err := decodeBody(w, r, s.bodyLimit(), &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	payload, err := req.payload(s.cfg.Server.MaxPayloadBytes)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	rec, err := s.deps.Runner.Run(
		r.Context(),
		userFromContext(r.Context()),
		req.Algorithm,
		catalog.Operation(req.Operation),
		payload,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleRunBatch runs every trial of the request, each repeated
// iterations times, under one batch id.
func (s *server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest

	limit := int64(s.cfg.Runner.MaxBatchSize) * s.bodyLimit()
	if err := decodeBody(w, r, limit, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	iterations := req.Iterations
	if iterations == 0 {
		iterations = 1
	}

	if iterations > maxIterations {
		s.writeError(w, r, invalidInput("iterations must not exceed %d", maxIterations))

		return
	}

	if total := len(req.Trials) * iterations; total > s.cfg.Runner.MaxBatchSize {
		s.writeError(w, r, fmt.Errorf("%w: %d trials, limit %d",
			runner.ErrBatchTooLarge, total, s.cfg.Runner.MaxBatchSize))

		return
	}

	trials := make([]runner.Trial, 0, len(req.Trials)*iterations)

	for i := range req.Trials {
		payload, err := req.Trials[i].payload(s.cfg.Server.MaxPayloadBytes)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("trial %d: %w", i, err))

			return
		}

		for range iterations {
			trials = append(trials, runner.Trial{
				Algorithm: req.Trials[i].Algorithm,
				Operation: catalog.Operation(req.Trials[i].Operation),
				Payload:   payload,
			})
		}
	}

	recs, err := s.deps.Runner.RunBatch(r.Context(), userFromContext(r.Context()), trials)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := batchResponse{Records: recs}
	if len(recs) > 0 {
		resp.BatchID = recs[0].BatchID
	}

	writeJSON(w, http.StatusCreated, resp)
}
