package upload

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cryptoperf/pkg/config"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		kind   string
		object string
		want   string
	}{
		{
			name:   "default prefix",
			kind:   KindExports,
			object: "records-20240501.json",
			want:   "cryptoperf/exports/records-20240501.json",
		},
		{
			name:   "custom prefix",
			prefix: "team/benchmarks",
			kind:   KindReports,
			object: "12.md",
			want:   "team/benchmarks/reports/12.md",
		},
		{
			name:   "slashes trimmed",
			prefix: "/my-prefix/",
			kind:   KindReports,
			object: "/3.json",
			want:   "my-prefix/reports/3.json",
		},
		{
			name:   "no kind",
			object: ".write-test",
			want:   "cryptoperf/.write-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{cfg: &config.S3Config{Prefix: tt.prefix}}
			assert.Equal(t, tt.want, u.resolveKey(tt.kind, tt.object))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "json file", path: "exports/records.json", wantPrefix: "application/json"},
		{name: "yaml file", path: "exports/records.yaml", wantPrefix: "application/yaml"},
		{name: "markdown file", path: "reports/1.md", wantPrefix: "text/markdown"},
		{name: "no extension", path: "reports/README", wantPrefix: "application/octet-stream"},
		{name: "html file", path: "reports/index.html", wantPrefix: "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader(t *testing.T) {
	log := logrus.New()

	_, err := NewS3Uploader(log, &config.S3Config{})
	require.ErrorIs(t, err, ErrDisabled)

	_, err = NewS3Uploader(log, nil)
	require.ErrorIs(t, err, ErrDisabled)

	_, err = NewS3Uploader(log, &config.S3Config{Enabled: true})
	require.Error(t, err)

	u, err := NewS3Uploader(log, &config.S3Config{
		Enabled:        true,
		Bucket:         "results",
		EndpointURL:    "http://localhost:9000",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, u)
}
