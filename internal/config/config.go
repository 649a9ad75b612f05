// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultWorkDir              = "."
	DefaultLogLevel             = "INFO"
	DefaultWorkerCount          = 1
	DefaultDBFile               = "modelprep.db"
	DefaultDownloadTimeout      = 30 * time.Minute
	DefaultDownloadMaxRetries   = 4
	DefaultDownloadInitialDelay = 2 * time.Second
	DefaultDownloadBackoff      = 2.0
	DefaultConverterCommand     = "uv"
	DefaultConverterMaxRetries  = 4
	DefaultConverterDelay       = 2 * time.Second
	DefaultConverterBackoff     = 2.0
	DefaultReportingInterval    = 5 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// DownloadConfig configures archive downloads.
type DownloadConfig struct {
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewDownloadConfig creates a DownloadConfig with defaults.
func NewDownloadConfig() DownloadConfig {
	return DownloadConfig{
		timeout:       DefaultDownloadTimeout,
		maxRetries:    DefaultDownloadMaxRetries,
		initialDelay:  DefaultDownloadInitialDelay,
		backoffFactor: DefaultDownloadBackoff,
	}
}

// Timeout returns the overall per-download timeout.
func (d DownloadConfig) Timeout() time.Duration { return d.timeout }

// MaxRetries returns the number of attempts made before giving up.
func (d DownloadConfig) MaxRetries() int { return d.maxRetries }

// InitialDelay returns the delay before the first retry.
func (d DownloadConfig) InitialDelay() time.Duration { return d.initialDelay }

// BackoffFactor returns the retry delay multiplier.
func (d DownloadConfig) BackoffFactor() float64 { return d.backoffFactor }

// WithTimeout returns a new config with the specified timeout.
func (d DownloadConfig) WithTimeout(t time.Duration) DownloadConfig {
	if t > 0 {
		d.timeout = t
	}
	return d
}

// WithMaxRetries returns a new config with the specified attempt count.
func (d DownloadConfig) WithMaxRetries(n int) DownloadConfig {
	if n > 0 {
		d.maxRetries = n
	}
	return d
}

// WithInitialDelay returns a new config with the specified initial delay.
func (d DownloadConfig) WithInitialDelay(delay time.Duration) DownloadConfig {
	if delay >= 0 {
		d.initialDelay = delay
	}
	return d
}

// WithBackoffFactor returns a new config with the specified multiplier.
func (d DownloadConfig) WithBackoffFactor(f float64) DownloadConfig {
	if f >= 1 {
		d.backoffFactor = f
	}
	return d
}

// ConverterConfig configures the external model converter.
type ConverterConfig struct {
	command       string
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewConverterConfig creates a ConverterConfig with defaults.
func NewConverterConfig() ConverterConfig {
	return ConverterConfig{
		command:       DefaultConverterCommand,
		maxRetries:    DefaultConverterMaxRetries,
		initialDelay:  DefaultConverterDelay,
		backoffFactor: DefaultConverterBackoff,
	}
}

// Command returns the executable used to run the conversion script.
func (c ConverterConfig) Command() string { return c.command }

// MaxRetries returns the number of conversion attempts.
func (c ConverterConfig) MaxRetries() int { return c.maxRetries }

// InitialDelay returns the delay before the first retry.
func (c ConverterConfig) InitialDelay() time.Duration { return c.initialDelay }

// BackoffFactor returns the retry delay multiplier.
func (c ConverterConfig) BackoffFactor() float64 { return c.backoffFactor }

// WithCommand returns a new config with the specified command.
func (c ConverterConfig) WithCommand(cmd string) ConverterConfig {
	if strings.TrimSpace(cmd) != "" {
		c.command = strings.TrimSpace(cmd)
	}
	return c
}

// WithMaxRetries returns a new config with the specified attempt count.
func (c ConverterConfig) WithMaxRetries(n int) ConverterConfig {
	if n > 0 {
		c.maxRetries = n
	}
	return c
}

// WithInitialDelay returns a new config with the specified initial delay.
func (c ConverterConfig) WithInitialDelay(delay time.Duration) ConverterConfig {
	if delay >= 0 {
		c.initialDelay = delay
	}
	return c
}

// WithBackoffFactor returns a new config with the specified multiplier.
func (c ConverterConfig) WithBackoffFactor(f float64) ConverterConfig {
	if f >= 1 {
		c.backoffFactor = f
	}
	return c
}

// Credentials holds the secrets used to authenticate against model hubs.
type Credentials struct {
	kaggleUsername string
	kaggleKey      string
	hfToken        string
}

// NewCredentials creates Credentials from raw values.
func NewCredentials(kaggleUsername, kaggleKey, hfToken string) Credentials {
	return Credentials{
		kaggleUsername: kaggleUsername,
		kaggleKey:      kaggleKey,
		hfToken:        hfToken,
	}
}

// KaggleUsername returns the Kaggle API user name.
func (c Credentials) KaggleUsername() string { return c.kaggleUsername }

// KaggleKey returns the Kaggle API key.
func (c Credentials) KaggleKey() string { return c.kaggleKey }

// HFToken returns the Hugging Face access token.
func (c Credentials) HFToken() string { return c.hfToken }

// HasKaggle reports whether both Kaggle credentials are set.
func (c Credentials) HasKaggle() bool {
	return c.kaggleUsername != "" && c.kaggleKey != ""
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	workDir           string
	dbURL             string
	logLevel          string
	logFormat         LogFormat
	workerCount       int
	manifestPath      string
	download          DownloadConfig
	converter         ConverterConfig
	credentials       Credentials
	reportingInterval time.Duration
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		workDir:           DefaultWorkDir,
		dbURL:             defaultDBURL(DefaultWorkDir),
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		workerCount:       DefaultWorkerCount,
		download:          NewDownloadConfig(),
		converter:         NewConverterConfig(),
		reportingInterval: DefaultReportingInterval,
	}
}

func defaultDBURL(workDir string) string {
	return "sqlite:///" + filepath.Join(workDir, DefaultDBFile)
}

// WorkDir returns the directory archives and artifacts are written to.
func (c AppConfig) WorkDir() string { return c.workDir }

// DBURL returns the run history database URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// WorkerCount returns how many models may be prepared concurrently.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// ManifestPath returns the optional user manifest file.
func (c AppConfig) ManifestPath() string { return c.manifestPath }

// Download returns the download config.
func (c AppConfig) Download() DownloadConfig { return c.download }

// Converter returns the converter config.
func (c AppConfig) Converter() ConverterConfig { return c.converter }

// Credentials returns the hub credentials.
func (c AppConfig) Credentials() Credentials { return c.credentials }

// ReportingInterval returns the minimum time between progress log lines.
func (c AppConfig) ReportingInterval() time.Duration { return c.reportingInterval }

// EnsureWorkDir creates the work directory if it doesn't exist.
func (c AppConfig) EnsureWorkDir() error {
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithWorkDir sets the work directory.
func WithWorkDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		// Keep the default database next to the artifacts.
		if c.dbURL == "" || c.dbURL == defaultDBURL(c.workDir) {
			c.dbURL = defaultDBURL(dir)
		}
		c.workDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithWorkerCount sets the number of concurrent pipelines.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithManifestPath sets the user manifest file.
func WithManifestPath(path string) AppConfigOption {
	return func(c *AppConfig) { c.manifestPath = path }
}

// WithDownloadConfig sets the download config.
func WithDownloadConfig(d DownloadConfig) AppConfigOption {
	return func(c *AppConfig) { c.download = d }
}

// WithConverterConfig sets the converter config.
func WithConverterConfig(cc ConverterConfig) AppConfigOption {
	return func(c *AppConfig) { c.converter = cc }
}

// WithCredentials sets the hub credentials.
func WithCredentials(cr Credentials) AppConfigOption {
	return func(c *AppConfig) { c.credentials = cr }
}

// WithReportingInterval sets the progress log interval.
func WithReportingInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.reportingInterval = d
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Secrets are reported only as present or absent.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("work_dir", c.workDir),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("log_level", c.logLevel),
		slog.Int("worker_count", c.workerCount),
		slog.String("manifest", c.manifestOrDefault()),
		slog.String("converter", c.converter.Command()),
		slog.Int("download_max_retries", c.download.MaxRetries()),
		slog.Bool("kaggle_credentials", c.credentials.HasKaggle()),
		slog.Bool("hf_token", c.credentials.HFToken() != ""),
	}
}

func (c AppConfig) maskedDBURL() string {
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

func (c AppConfig) manifestOrDefault() string {
	if c.manifestPath == "" {
		return "(embedded)"
	}
	return c.manifestPath
}
