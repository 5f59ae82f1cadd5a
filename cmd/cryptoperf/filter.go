package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"github.com/ethpandaops/cryptoperf/pkg/results"
)

// filterOptions are the record selection flags shared by several commands.
type filterOptions struct {
	algorithms []string
	operations []string
	outcome    string
	from       string
	to         string
	batchID    string
}

func (o *filterOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.algorithms, "algorithm", nil,
		"only these algorithms (comma-separated or repeated flag)")
	cmd.Flags().StringSliceVar(&o.operations, "operation", nil,
		"only these operations (comma-separated or repeated flag)")
	cmd.Flags().StringVar(&o.outcome, "outcome", "",
		"only success or failure trials")
	cmd.Flags().StringVar(&o.from, "from", "",
		"inclusive start, RFC3339 or a duration before now (e.g. 72h)")
	cmd.Flags().StringVar(&o.to, "to", "",
		"exclusive end, RFC3339 or a duration before now")
	cmd.Flags().StringVar(&o.batchID, "batch-id", "", "only trials of this batch")
}

// build returns the filter for user.
func (o *filterOptions) build(user string, now time.Time) (results.Filter, error) {
	filter := results.Filter{
		UserID:     user,
		Algorithms: o.algorithms,
		Operations: o.operations,
		BatchID:    o.batchID,
	}

	for _, op := range o.operations {
		if !catalog.ValidOperation(catalog.Operation(op)) {
			return filter, fmt.Errorf("unknown operation %q", op)
		}
	}

	switch o.outcome {
	case "", "any":
	case "success", "failure":
		filter.Outcome = o.outcome
	default:
		return filter, fmt.Errorf("outcome must be success, failure or any, got %q", o.outcome)
	}

	var err error

	if filter.From, err = parseInstant(o.from, now); err != nil {
		return filter, fmt.Errorf("parsing --from: %w", err)
	}

	if filter.To, err = parseInstant(o.to, now); err != nil {
		return filter, fmt.Errorf("parsing --to: %w", err)
	}

	return filter, nil
}

// parseInstant accepts an RFC3339 timestamp or a duration relative to now.
func parseInstant(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", v)
	}

	return now.Add(-d).UTC(), nil
}

func requireUser(user string) error {
	if user == "" {
		return fmt.Errorf("--user is required")
	}

	return nil
}
