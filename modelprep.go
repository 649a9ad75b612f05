// Package modelprep downloads pretrained sentence encoders and prepares them
// for on-device inference.
//
// Basic usage:
//
//	client, err := modelprep.New(
//	    modelprep.WithWorkDir("models"),
//	    modelprep.WithSQLite("models/modelprep.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Download, extract and convert to TFLite
//	runs, err := client.Prepare(ctx, modelprep.PrepareOptions{}, "cmlm-en-base")
package modelprep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helixml/modelprep/application/service"
	"github.com/helixml/modelprep/domain/model"
	"github.com/helixml/modelprep/infrastructure/manifest"
	"github.com/helixml/modelprep/infrastructure/persistence"
	"github.com/helixml/modelprep/internal/config"
	"github.com/helixml/modelprep/internal/database"
)

// PrepareOptions tune Prepare.
type PrepareOptions struct {
	// All prepares every model in the catalogue and ignores names.
	All bool
	// Force re-runs every step even when its output exists.
	Force bool
	// SkipConvert stops after extraction.
	SkipConvert bool
}

// Client is the main entry point for the modelprep library.
type Client struct {
	cfg      config.AppConfig
	catalog  manifest.Manifest
	pipeline *service.Pipeline
	db       *database.Database
	runs     model.RunStore
	closers  []io.Closer
	logger   *slog.Logger
	closed   atomic.Bool
	mu       sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}

	cfg := cc.app.Apply(cc.appOpts...)
	logger := cc.logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		catalog: catalog,
		closers: cc.closers,
		logger:  logger,
	}

	pipelineOpts := cc.pipelineOpts
	if cc.history {
		db, err := database.NewDatabase(context.Background(), cfg.DBURL())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := persistence.AutoMigrate(db); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
		}
		c.db = &db
		c.runs = persistence.NewRunStore(db)
		pipelineOpts = append([]service.PipelineOption{service.WithRunStore(c.runs)}, pipelineOpts...)
	}

	c.pipeline = service.NewPipeline(cfg, logger, pipelineOpts...)
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() config.AppConfig {
	return c.cfg
}

// Catalog returns the models this client can prepare.
func (c *Client) Catalog() manifest.Manifest {
	return c.catalog
}

// Prepare runs the pipeline for the named models, or the default model when
// none is named. Models run in parallel up to the configured worker count.
func (c *Client) Prepare(ctx context.Context, opts PrepareOptions, names ...string) ([]model.Run, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	var models []model.Model
	if opts.All {
		models = c.catalog.Models()
	} else {
		var err error
		models, err = c.catalog.Select(names...)
		if err != nil {
			return nil, err
		}
	}

	runOpts := service.RunOptions{Force: opts.Force, SkipConvert: opts.SkipConvert}
	if len(models) == 1 {
		run, err := c.pipeline.Run(ctx, models[0], runOpts)
		return []model.Run{run}, err
	}
	return c.pipeline.RunAll(ctx, models, runOpts)
}

// Inspect reports which artifacts of the named model exist on disk.
func (c *Client) Inspect(name string) (service.Artifacts, error) {
	m, err := c.catalog.Get(name)
	if err != nil {
		return service.Artifacts{}, err
	}
	return c.pipeline.Inspect(m), nil
}

// History returns recorded runs newest first. An empty name lists every
// model; limit <= 0 returns all runs.
func (c *Client) History(ctx context.Context, name string, limit int) ([]model.Run, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.runs == nil {
		return nil, ErrNoHistory
	}
	return c.runs.List(ctx, name, limit)
}

// Close releases the database and any registered resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}
