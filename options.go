package modelprep

import (
	"io"
	"log/slog"

	"github.com/helixml/modelprep/application/service"
	"github.com/helixml/modelprep/infrastructure/tracking"
	"github.com/helixml/modelprep/internal/config"
)

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	app          config.AppConfig
	appOpts      []config.AppConfigOption
	history      bool
	logger       *slog.Logger
	pipelineOpts []service.PipelineOption
	closers      []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		app:     config.NewAppConfig(),
		history: true,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithConfig replaces the base configuration, typically one loaded with
// config.LoadConfig. Other options are applied on top of it.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
	}
}

// WithWorkDir sets the directory archives and converted models are written to.
func WithWorkDir(dir string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithWorkDir(dir))
	}
}

// WithSQLite records run history in the SQLite file at path.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithDBURL("sqlite:///"+path))
		c.history = true
	}
}

// WithPostgres records run history in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithDBURL(dsn))
		c.history = true
	}
}

// WithoutHistory disables the run history database.
func WithoutHistory() Option {
	return func(c *clientConfig) {
		c.history = false
	}
}

// WithManifest loads the model catalogue from a YAML file instead of the
// built-in one.
func WithManifest(path string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithManifestPath(path))
	}
}

// WithWorkerCount sets how many models are prepared in parallel.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithWorkerCount(n))
	}
}

// WithCredentials sets Kaggle and Hugging Face credentials.
func WithCredentials(kaggleUsername, kaggleKey, hfToken string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithCredentials(config.NewCredentials(kaggleUsername, kaggleKey, hfToken)))
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithReporter subscribes r to every step status change.
func WithReporter(r tracking.Reporter) Option {
	return func(c *clientConfig) {
		c.pipelineOpts = append(c.pipelineOpts, service.WithReporter(r))
	}
}

// WithPipelineOptions passes options through to the pipeline, e.g. to
// replace the downloader or converter.
func WithPipelineOptions(opts ...service.PipelineOption) Option {
	return func(c *clientConfig) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// WithCloser registers a resource to be closed with the client.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
