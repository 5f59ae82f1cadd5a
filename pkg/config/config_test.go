package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, "text", cfg.Global.LogFormat)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultUserHeader, cfg.Server.UserHeader)
	assert.Equal(t, int64(DefaultMaxPayloadBytes), cfg.Server.MaxPayloadBytes)
	assert.InDelta(t, 0.95, cfg.Analysis.SuccessThreshold, 1e-9)
	assert.Equal(t, 720*time.Hour, cfg.Analysis.DefaultWindow)
	assert.Equal(t, 24*time.Hour, cfg.Analysis.TrendBucket)
	assert.Equal(t, DefaultBatchConcurrency, cfg.Runner.BatchConcurrency)
	assert.True(t, cfg.Catalog.SeedDefaults)
	assert.Equal(t, "json", cfg.Export.Format)
	assert.Equal(t, DefaultS3Prefix, cfg.Export.S3.Prefix)
}

func TestLoad_FileAndMerge(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
global:
  log_level: warn
database:
  driver: sqlite
  sqlite:
    path: /tmp/base.db
analysis:
  success_threshold: 0.9
  trend_bucket: 6h
catalog:
  seed_defaults: false
  algorithms:
    - identity: Custom-KEM
      family: post-quantum
      category: key-exchange
      key_size: 768
      quantum_safe: true
      provider: simulated
`)
	override := writeConfig(t, "override.yaml", `
global:
  log_level: debug
server:
  listen: 127.0.0.1:9090
  cors_origins:
    - https://a.example
    - https://b.example
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "/tmp/base.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.9, cfg.Analysis.SuccessThreshold, 1e-9)
	assert.Equal(t, 6*time.Hour, cfg.Analysis.TrendBucket)
	assert.False(t, cfg.Catalog.SeedDefaults)
	require.Len(t, cfg.Catalog.Algorithms, 1)
	assert.Equal(t, "Custom-KEM", cfg.Catalog.Algorithms[0].Identity)
	assert.Equal(t, 768, cfg.Catalog.Algorithms[0].KeySize)
	assert.True(t, cfg.Catalog.Algorithms[0].QuantumSafe)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
global:
  log_level: info
server:
  listen: ":8080"
analysis:
  success_threshold: 0.95
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, ":8080", cfg.Server.Listen)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"CRYPTOPERF_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "float override - success_threshold",
			envVars: map[string]string{
				"CRYPTOPERF_ANALYSIS_SUCCESS_THRESHOLD": "0.8",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.InDelta(t, 0.8, cfg.Analysis.SuccessThreshold, 1e-9)
			},
		},
		{
			name: "duration override - trend_bucket",
			envVars: map[string]string{
				"CRYPTOPERF_ANALYSIS_TREND_BUCKET": "1h",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Hour, cfg.Analysis.TrendBucket)
			},
		},
		{
			name: "boolean override - rate limit",
			envVars: map[string]string{
				"CRYPTOPERF_SERVER_RATE_LIMIT_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Server.RateLimit.Enabled)
			},
		},
		{
			name: "slice override - cors_origins",
			envVars: map[string]string{
				"CRYPTOPERF_SERVER_CORS_ORIGINS": "https://x.example, https://y.example",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t,
					[]string{"https://x.example", "https://y.example"},
					cfg.Server.CORSOrigins)
			},
		},
		{
			name: "nested override - postgres host",
			envVars: map[string]string{
				"CRYPTOPERF_DATABASE_POSTGRES_HOST": "db.internal",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Global:   GlobalConfig{LogLevel: "info", LogFormat: "text"},
			Database: DatabaseConfig{Driver: "sqlite", SQLite: SQLiteDatabaseConfig{Path: ":memory:"}},
			Server:   ServerConfig{MaxPayloadBytes: 1024},
			Analysis: AnalysisConfig{SuccessThreshold: 0.95},
			Export:   ExportConfig{Format: "json"},
		}

		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		errContains string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "mysql"
			},
			errContains: "unsupported driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Postgres.Database = "x"
			},
			errContains: "postgres.host is required",
		},
		{
			name: "threshold out of range",
			mutate: func(cfg *Config) {
				cfg.Analysis.SuccessThreshold = 1.5
			},
			errContains: "success_threshold",
		},
		{
			name: "rate limit without budget",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit.Enabled = true
			},
			errContains: "requests_per_minute",
		},
		{
			name: "bad export format",
			mutate: func(cfg *Config) {
				cfg.Export.Format = "xml"
			},
			errContains: "export.format",
		},
		{
			name: "s3 without bucket",
			mutate: func(cfg *Config) {
				cfg.Export.S3.Enabled = true
			},
			errContains: "bucket is required",
		},
		{
			name: "duplicate catalog identity",
			mutate: func(cfg *Config) {
				cfg.Catalog.Algorithms = []AlgorithmConfig{
					{Identity: "A"}, {Identity: "A"},
				}
			},
			errContains: "duplicate identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errContains == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "cryptoperf", SSLMode: "disable",
	}

	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=cryptoperf sslmode=disable",
		p.DSN())
}
