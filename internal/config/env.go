package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., DOWNLOAD_MAX_RETRIES).
type EnvConfig struct {
	// WorkDir is where archives, extracted models and outputs are written.
	// Env: WORK_DIR (default: .)
	WorkDir string `envconfig:"WORK_DIR" default:"."`

	// DBURL is the run history database URL.
	// Env: DB_URL
	// Default: sqlite:///{work_dir}/modelprep.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// WorkerCount bounds how many models are prepared at once.
	// Env: WORKER_COUNT (default: 1)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"1"`

	// ManifestPath points at a YAML manifest replacing the embedded one.
	// Env: MANIFEST_PATH
	ManifestPath string `envconfig:"MANIFEST_PATH"`

	// Download configures archive downloads.
	Download DownloadEnv `envconfig:"DOWNLOAD"`

	// Converter configures the external converter.
	Converter ConverterEnv `envconfig:"CONVERTER"`

	// Reporting configures progress reporting.
	Reporting ReportingEnv `envconfig:"REPORTING"`

	// KaggleUsername and KaggleKey authenticate Kaggle API downloads.
	// Env: KAGGLE_USERNAME, KAGGLE_KEY
	KaggleUsername string `envconfig:"KAGGLE_USERNAME"`
	KaggleKey      string `envconfig:"KAGGLE_KEY"`

	// HFToken authenticates Hugging Face downloads.
	// Env: HF_TOKEN
	HFToken string `envconfig:"HF_TOKEN"`
}

// DownloadEnv holds environment configuration for downloads.
type DownloadEnv struct {
	// Timeout is the per-download timeout in seconds.
	// Env: DOWNLOAD_TIMEOUT (default: 1800)
	Timeout float64 `envconfig:"TIMEOUT" default:"1800"`

	// MaxRetries is the number of attempts.
	// Env: DOWNLOAD_MAX_RETRIES (default: 4)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"4"`

	// InitialDelay is the first retry delay in seconds.
	// Env: DOWNLOAD_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry delay multiplier.
	// Env: DOWNLOAD_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// ConverterEnv holds environment configuration for the converter.
type ConverterEnv struct {
	// Command runs the embedded conversion script.
	// Env: CONVERTER_COMMAND (default: uv)
	Command string `envconfig:"COMMAND" default:"uv"`

	// MaxRetries is the number of conversion attempts.
	// Env: CONVERTER_MAX_RETRIES (default: 4)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"4"`

	// InitialDelay is the first retry delay in seconds.
	// Env: CONVERTER_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry delay multiplier.
	// Env: CONVERTER_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// ReportingEnv holds environment configuration for reporting.
type ReportingEnv struct {
	// LogTimeInterval is the progress logging interval in seconds.
	// Env: REPORTING_LOG_TIME_INTERVAL (default: 5)
	LogTimeInterval float64 `envconfig:"LOG_TIME_INTERVAL" default:"5"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "MODELPREP" would require MODELPREP_WORK_DIR instead of WORK_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.WorkDir != "" {
		cfg = cfg.Apply(WithWorkDir(e.WorkDir))
	}
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = cfg.Apply(WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = cfg.Apply(WithLogFormat(parseLogFormat(e.LogFormat)))
	}

	return cfg.Apply(
		WithWorkerCount(e.WorkerCount),
		WithManifestPath(e.ManifestPath),
		WithDownloadConfig(e.Download.ToDownloadConfig()),
		WithConverterConfig(e.Converter.ToConverterConfig()),
		WithCredentials(NewCredentials(e.KaggleUsername, e.KaggleKey, e.HFToken)),
		WithReportingInterval(seconds(e.Reporting.LogTimeInterval)),
	)
}

// ToDownloadConfig converts DownloadEnv to DownloadConfig.
func (d DownloadEnv) ToDownloadConfig() DownloadConfig {
	return NewDownloadConfig().
		WithTimeout(seconds(d.Timeout)).
		WithMaxRetries(d.MaxRetries).
		WithInitialDelay(seconds(d.InitialDelay)).
		WithBackoffFactor(d.BackoffFactor)
}

// ToConverterConfig converts ConverterEnv to ConverterConfig.
func (c ConverterEnv) ToConverterConfig() ConverterConfig {
	return NewConverterConfig().
		WithCommand(c.Command).
		WithMaxRetries(c.MaxRetries).
		WithInitialDelay(seconds(c.InitialDelay)).
		WithBackoffFactor(c.BackoffFactor)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
