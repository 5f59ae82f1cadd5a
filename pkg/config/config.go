package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "CRYPTOPERF"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log output format.
	DefaultLogFormat = "text"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultUserHeader carries the caller identity supplied by the
	// upstream identity provider.
	DefaultUserHeader = "X-User-ID"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "cryptoperf.db"

	// DefaultSuccessThreshold is the success rate below which an
	// algorithm is reported as unstable.
	DefaultSuccessThreshold = 0.95

	// DefaultWindow is the analysis window used when a request omits one.
	DefaultWindow = 30 * 24 * time.Hour

	// DefaultTrendBucket is the default trend bucket width.
	DefaultTrendBucket = 24 * time.Hour

	// DefaultTrendChangeThreshold is the relative change that separates
	// a stable trend from an improving or degrading one.
	DefaultTrendChangeThreshold = 0.10

	// DefaultRecentWindow bounds the "recent trials" overview counter.
	DefaultRecentWindow = 7 * 24 * time.Hour

	// DefaultBatchConcurrency bounds concurrent trials in one batch.
	DefaultBatchConcurrency = 4

	// DefaultMaxBatchSize caps the number of trials in one batch.
	DefaultMaxBatchSize = 1000

	// DefaultMaxPayloadBytes caps a single trial payload.
	DefaultMaxPayloadBytes = 1 << 20

	// DefaultExportFormat is the default export encoding.
	DefaultExportFormat = "json"

	// DefaultS3Prefix is the default key prefix for published objects.
	DefaultS3Prefix = "cryptoperf"
)

// Config is the root configuration for cryptoperf.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Runner   RunnerConfig   `yaml:"runner" mapstructure:"runner"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
}

// AnalysisConfig tunes statistics and report generation.
type AnalysisConfig struct {
	SuccessThreshold     float64       `yaml:"success_threshold" mapstructure:"success_threshold"`
	DefaultWindow        time.Duration `yaml:"default_window" mapstructure:"default_window"`
	TrendBucket          time.Duration `yaml:"trend_bucket" mapstructure:"trend_bucket"`
	TrendChangeThreshold float64       `yaml:"trend_change_threshold" mapstructure:"trend_change_threshold"`
	RecentWindow         time.Duration `yaml:"recent_window" mapstructure:"recent_window"`
}

// RunnerConfig contains trial execution settings.
type RunnerConfig struct {
	BatchConcurrency int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	MaxBatchSize     int `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// CatalogConfig controls how the algorithm catalog is seeded.
type CatalogConfig struct {
	SeedDefaults bool              `yaml:"seed_defaults" mapstructure:"seed_defaults"`
	Algorithms   []AlgorithmConfig `yaml:"algorithms,omitempty" mapstructure:"algorithms"`
}

// AlgorithmConfig declares an extra catalog descriptor.
type AlgorithmConfig struct {
	Identity      string `yaml:"identity" mapstructure:"identity"`
	Family        string `yaml:"family" mapstructure:"family"`
	Category      string `yaml:"category" mapstructure:"category"`
	KeySize       int    `yaml:"key_size" mapstructure:"key_size"`
	SecurityLevel int    `yaml:"security_level,omitempty" mapstructure:"security_level"`
	QuantumSafe   bool   `yaml:"quantum_safe" mapstructure:"quantum_safe"`
	Provider      string `yaml:"provider" mapstructure:"provider"`
	Status        string `yaml:"status,omitempty" mapstructure:"status"`
	Description   string `yaml:"description,omitempty" mapstructure:"description"`
}

// ExportConfig contains record export settings.
type ExportConfig struct {
	Format string   `yaml:"format" mapstructure:"format"`
	S3     S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// Load reads the given configuration files in order, later files
// overriding earlier ones, then applies CRYPTOPERF_* environment
// overrides. With no files, defaults and environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := decode(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// decode maps viper's merged settings onto the config struct. Env values
// arrive as strings, so weak typing and string hooks are required.
func decode(input map[string]any, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToSliceHook(","),
		),
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	return decoder.Decode(input)
}

// stringToSliceHook splits comma separated env values into string slices
// and maps an empty string to an empty slice.
func stringToSliceHook(sep string) mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Slice ||
			t.Elem().Kind() != reflect.String {
			return data, nil
		}

		raw, _ := data.(string)
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		return parts, nil
	}
}

// setDefaults registers every key so that environment overrides are
// visible through AllSettings even when no file sets them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.log_format", DefaultLogFormat)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "cryptoperf")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.user_header", DefaultUserHeader)
	v.SetDefault("server.max_payload_bytes", DefaultMaxPayloadBytes)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", 120)

	v.SetDefault("analysis.success_threshold", DefaultSuccessThreshold)
	v.SetDefault("analysis.default_window", DefaultWindow.String())
	v.SetDefault("analysis.trend_bucket", DefaultTrendBucket.String())
	v.SetDefault("analysis.trend_change_threshold", DefaultTrendChangeThreshold)
	v.SetDefault("analysis.recent_window", DefaultRecentWindow.String())

	v.SetDefault("runner.batch_concurrency", DefaultBatchConcurrency)
	v.SetDefault("runner.max_batch_size", DefaultMaxBatchSize)

	v.SetDefault("catalog.seed_defaults", true)

	v.SetDefault("export.format", DefaultExportFormat)
	v.SetDefault("export.s3.enabled", false)
	v.SetDefault("export.s3.endpoint_url", "")
	v.SetDefault("export.s3.region", "")
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.prefix", DefaultS3Prefix)
	v.SetDefault("export.s3.access_key_id", "")
	v.SetDefault("export.s3.secret_access_key", "")
	v.SetDefault("export.s3.force_path_style", false)
	v.SetDefault("export.s3.storage_class", "")
}

// applyDefaults fills zero values that survive decoding, e.g. when a
// file explicitly sets a key to an empty value.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.LogFormat == "" {
		c.Global.LogFormat = DefaultLogFormat
	}

	if c.Server.UserHeader == "" {
		c.Server.UserHeader = DefaultUserHeader
	}

	if c.Analysis.DefaultWindow == 0 {
		c.Analysis.DefaultWindow = DefaultWindow
	}

	if c.Analysis.TrendBucket == 0 {
		c.Analysis.TrendBucket = DefaultTrendBucket
	}

	if c.Analysis.RecentWindow == 0 {
		c.Analysis.RecentWindow = DefaultRecentWindow
	}

	if c.Runner.BatchConcurrency == 0 {
		c.Runner.BatchConcurrency = DefaultBatchConcurrency
	}

	if c.Runner.MaxBatchSize == 0 {
		c.Runner.MaxBatchSize = DefaultMaxBatchSize
	}

	if c.Export.Format == "" {
		c.Export.Format = DefaultExportFormat
	}

	if c.Export.S3.Prefix == "" {
		c.Export.S3.Prefix = DefaultS3Prefix
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Global.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("global.log_format must be text or json, got %q",
			c.Global.LogFormat)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf(
			"server.rate_limit.requests_per_minute must be positive when enabled",
		)
	}

	if c.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("server.max_payload_bytes must be positive")
	}

	if c.Analysis.SuccessThreshold < 0 || c.Analysis.SuccessThreshold > 1 {
		return fmt.Errorf("analysis.success_threshold must be within [0, 1], got %v",
			c.Analysis.SuccessThreshold)
	}

	if c.Analysis.TrendChangeThreshold < 0 {
		return fmt.Errorf("analysis.trend_change_threshold must not be negative")
	}

	if c.Analysis.DefaultWindow < 0 || c.Analysis.TrendBucket < 0 ||
		c.Analysis.RecentWindow < 0 {
		return fmt.Errorf("analysis durations must not be negative")
	}

	if c.Runner.BatchConcurrency < 0 {
		return fmt.Errorf("runner.batch_concurrency must not be negative")
	}

	if c.Runner.MaxBatchSize < 0 {
		return fmt.Errorf("runner.max_batch_size must not be negative")
	}

	switch c.Export.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("export.format must be json or yaml, got %q",
			c.Export.Format)
	}

	if c.Export.S3.Enabled && c.Export.S3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required when s3 export is enabled")
	}

	seen := make(map[string]struct{}, len(c.Catalog.Algorithms))

	for i, alg := range c.Catalog.Algorithms {
		if alg.Identity == "" {
			return fmt.Errorf("catalog.algorithms[%d]: identity is required", i)
		}

		if _, exists := seen[alg.Identity]; exists {
			return fmt.Errorf("catalog.algorithms[%d]: duplicate identity %q",
				i, alg.Identity)
		}

		seen[alg.Identity] = struct{}{}
	}

	return nil
}
