package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
)

func TestParseInstant(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "empty", in: "", want: time.Time{}},
		{name: "rfc3339", in: "2024-07-01T00:00:00Z", want: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{name: "offset", in: "2024-07-01T02:00:00+02:00", want: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{name: "duration", in: "72h", want: now.Add(-72 * time.Hour)},
		{name: "garbage", in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInstant(tt.in, now)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	opts := filterOptions{
		algorithms: []string{"AES-128"},
		operations: []string{"encryption"},
		outcome:    "failure",
		from:       "24h",
	}

	filter, err := opts.build("alice", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", filter.UserID)
	assert.Equal(t, []string{"AES-128"}, filter.Algorithms)
	assert.Equal(t, "failure", filter.Outcome)
	assert.Equal(t, now.Add(-24*time.Hour), filter.From)
	assert.True(t, filter.To.IsZero())

	_, err = (&filterOptions{operations: []string{"hash"}}).build("alice", now)
	require.Error(t, err)

	_, err = (&filterOptions{outcome: "maybe"}).build("alice", now)
	require.Error(t, err)

	filter, err = (&filterOptions{outcome: "any"}).build("alice", now)
	require.NoError(t, err)
	assert.Empty(t, filter.Outcome)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)

	_, err = parseIDs([]string{"0"})
	require.Error(t, err)

	_, err = parseIDs([]string{"x"})
	require.Error(t, err)

	_, err = parseIDs([]string{","})
	require.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, "yaml", formatFromPath("dump.YML"))
	assert.Equal(t, "yaml", formatFromPath("dump.yaml"))
	assert.Equal(t, "json", formatFromPath("dump.json"))
	assert.Equal(t, "json", formatFromPath("-"))
}

func TestCountList(t *testing.T) {
	assert.Equal(t, "-", countList(nil))
	assert.Equal(t, "classical=2, post-quantum=1", countList(map[string]int{
		"post-quantum": 1,
		"classical":    2,
	}))
}

func TestSummaryRows(t *testing.T) {
	rows := summaryRows(catalog.Summary{
		Classical: 2, PostQuantum: 1, Total: 3,
		Categories: map[catalog.Category]int{
			catalog.CategorySymmetricCipher: 1,
			catalog.CategoryKeyExchange:     2,
			catalog.CategorySignature:       0,
		},
	})

	assert.Equal(t, [][]string{
		{"classical", "2"},
		{"post-quantum", "1"},
		{"key-exchange", "2"},
		{"signature", "0"},
		{"symmetric-cipher", "1"},
		{"total", "3"},
	}, rows)
}
