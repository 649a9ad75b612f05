package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/modelprep/domain/model"
	"github.com/helixml/modelprep/infrastructure/archive"
	"github.com/helixml/modelprep/infrastructure/converter"
	"github.com/helixml/modelprep/infrastructure/fetch"
	"github.com/helixml/modelprep/infrastructure/provider"
	"github.com/helixml/modelprep/infrastructure/tracking"
	"github.com/helixml/modelprep/internal/config"
	"github.com/helixml/modelprep/internal/log"
)

// Downloader fetches a URL to a file.
type Downloader interface {
	Download(ctx context.Context, url, dest string, opts fetch.Options) (int64, error)
}

// Converter turns a SavedModel directory into a TFLite file.
type Converter interface {
	Convert(ctx context.Context, srcDir, dest string) error
}

// HubDownloader fetches models that are published as repositories rather
// than archives.
type HubDownloader interface {
	Download(ctx context.Context, m model.Model, destDir string) (string, error)
	OnnxFile(m model.Model) string
}

// Verifier loads a downloaded model and reports its embedding dimension.
type Verifier interface {
	Verify(ctx context.Context, dir, onnxFile string) (int, error)
}

// ExtractFunc unpacks an archive into a directory.
type ExtractFunc func(ctx context.Context, archivePath, destDir string) (archive.Result, error)

// RunOptions tune a pipeline run.
type RunOptions struct {
	// Force re-runs every step even when its output exists.
	Force bool
	// SkipConvert stops after extraction.
	SkipConvert bool
}

// Artifacts reports which pipeline outputs exist for a model.
type Artifacts struct {
	Archive   bool
	Extracted bool
	Output    bool
}

// Ready reports whether the final output exists.
func (a Artifacts) Ready() bool { return a.Output }

// Pipeline downloads, extracts and converts models.
type Pipeline struct {
	cfg        config.AppConfig
	logger     *slog.Logger
	downloader Downloader
	extract    ExtractFunc
	converter  Converter
	hub        HubDownloader
	verifier   Verifier
	store      model.RunStore
	reporters  []tracking.Reporter
	newID      func() string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithDownloader replaces the HTTP downloader.
func WithDownloader(d Downloader) PipelineOption {
	return func(p *Pipeline) { p.downloader = d }
}

// WithExtractor replaces the archive extractor.
func WithExtractor(fn ExtractFunc) PipelineOption {
	return func(p *Pipeline) { p.extract = fn }
}

// WithConverter replaces the TFLite converter.
func WithConverter(c Converter) PipelineOption {
	return func(p *Pipeline) { p.converter = c }
}

// WithHubDownloader replaces the Hugging Face downloader.
func WithHubDownloader(h HubDownloader) PipelineOption {
	return func(p *Pipeline) { p.hub = h }
}

// WithVerifier replaces the ONNX model verifier.
func WithVerifier(v Verifier) PipelineOption {
	return func(p *Pipeline) { p.verifier = v }
}

// WithRunStore persists every finished run.
func WithRunStore(s model.RunStore) PipelineOption {
	return func(p *Pipeline) { p.store = s }
}

// WithReporter adds a subscriber for step status updates.
func WithReporter(r tracking.Reporter) PipelineOption {
	return func(p *Pipeline) { p.reporters = append(p.reporters, r) }
}

// NewPipeline creates a Pipeline writing into cfg.WorkDir().
func NewPipeline(cfg config.AppConfig, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:        cfg,
		logger:     logger,
		downloader: fetch.NewDownloader(nil, cfg.Download()),
		extract:    archive.ExtractTarGz,
		converter:  converter.NewTFLite(cfg.Converter()),
		hub:        provider.NewHugotDownloader(cfg.Credentials().HFToken()),
		verifier:   provider.NewHugotVerifier(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path resolves a model artifact name inside the work directory.
func (p *Pipeline) Path(name string) string {
	return filepath.Join(p.cfg.WorkDir(), name)
}

// Inspect reports which artifacts of m are present on disk.
func (p *Pipeline) Inspect(m model.Model) Artifacts {
	if !m.NeedsArchive() {
		_, err := provider.FindModelDir(p.Path(m.Output()))
		return Artifacts{Output: err == nil}
	}
	return Artifacts{
		Archive:   exists(p.Path(m.Archive())),
		Extracted: exists(p.Path(m.ExtractDir())),
		Output:    exists(p.Path(m.Output())),
	}
}

// RunAll runs the pipeline for every model, at most WorkerCount at a time.
// The first failure cancels the remaining runs. The returned slice holds the
// run of each model in input order; runs that never started are zero.
func (p *Pipeline) RunAll(ctx context.Context, models []model.Model, opts RunOptions) ([]model.Run, error) {
	runs := make([]model.Run, len(models))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.WorkerCount(), 1))
	for i, m := range models {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := p.Run(gctx, m, opts)
			runs[i] = run
			return err
		})
	}
	return runs, g.Wait()
}

// Run executes every step for m, skipping steps whose output already exists
// unless opts.Force is set. The run is recorded in the run store even when
// a step fails.
func (p *Pipeline) Run(ctx context.Context, m model.Model, opts RunOptions) (model.Run, error) {
	if err := m.Validate(); err != nil {
		return model.Run{}, err
	}
	if err := p.cfg.EnsureWorkDir(); err != nil {
		return model.Run{}, err
	}

	run := model.NewRun(p.newID(), m.Name())
	ctx = log.WithRun(ctx, run.ID(), m.Name())

	cooldown := tracking.NewCooldown(tracking.NewLoggingReporter(p.logger), p.cfg.ReportingInterval())
	defer func() { _ = cooldown.Close() }()
	ex := &execution{
		pipeline:  p,
		model:     m,
		opts:      opts,
		run:       run,
		reporters: append([]tracking.Reporter{cooldown}, p.reporters...),
	}

	var err error
	if m.NeedsArchive() {
		err = ex.archivePipeline(ctx)
	} else {
		err = ex.hubPipeline(ctx)
	}

	run = ex.run.Finish()
	p.save(ctx, run)
	if err != nil {
		return run, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return run, nil
}

func (p *Pipeline) save(ctx context.Context, run model.Run) {
	if p.store == nil {
		return
	}
	// Record the run even if the caller's context was cancelled.
	if err := p.store.Save(context.WithoutCancel(ctx), run); err != nil {
		p.logger.WarnContext(ctx, "failed to record run",
			slog.String("run_id", run.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// execution carries the state of a single Run call.
type execution struct {
	pipeline  *Pipeline
	model     model.Model
	opts      RunOptions
	run       model.Run
	reporters []tracking.Reporter
}

func (e *execution) archivePipeline(ctx context.Context) error {
	steps := []func(context.Context) error{e.download, e.extract}
	if !e.opts.SkipConvert {
		steps = append(steps, e.convert, e.verifyTFLite)
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) hubPipeline(ctx context.Context) error {
	if err := e.hubDownload(ctx); err != nil {
		return err
	}
	return e.verifyONNX(ctx)
}

// step runs fn under a tracker for s and records the final status.
func (e *execution) step(ctx context.Context, s model.Step, fn func(tr *tracking.Tracker) error) error {
	tr := tracking.NewTracker(e.run.ID(), e.model.Name(), s, e.pipeline.logger, e.reporters...)
	err := fn(tr)
	if err != nil {
		tr.Fail(ctx, err.Error())
	} else if !tr.Status().State().IsTerminal() {
		tr.Complete(ctx, "")
	}
	e.run = e.run.Record(tr.Status())
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

func (e *execution) download(ctx context.Context) error {
	dest := e.pipeline.Path(e.model.Archive())
	return e.step(ctx, model.StepDownload, func(tr *tracking.Tracker) error {
		if exists(dest) && !e.opts.Force {
			tr.Skip(ctx, fmt.Sprintf("%s already exists, skipping download.", dest))
			return nil
		}

		tr.Start(ctx, "Downloading model...")
		totalSet := false
		opts := fetch.Options{
			Auth: e.auth(),
			Progress: func(written, total int64) {
				if !totalSet && total > 0 {
					tr.SetTotal(ctx, total)
					totalSet = true
				}
				tr.SetCurrent(ctx, written, "")
			},
		}
		if _, err := e.pipeline.downloader.Download(ctx, e.model.Location(), dest, opts); err != nil {
			return err
		}
		tr.Complete(ctx, fmt.Sprintf("Saved archive as %s", dest))
		return nil
	})
}

func (e *execution) extract(ctx context.Context) error {
	src := e.pipeline.Path(e.model.Archive())
	dest := e.pipeline.Path(e.model.ExtractDir())
	return e.step(ctx, model.StepExtract, func(tr *tracking.Tracker) error {
		if exists(dest) && !e.opts.Force {
			tr.Skip(ctx, fmt.Sprintf("%s/ already exists, skipping extraction.", dest))
			return nil
		}

		tr.Start(ctx, "Extracting model...")
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("remove %s: %w", dest, err)
		}
		res, err := e.pipeline.extract(ctx, src, dest)
		if err != nil {
			return err
		}
		tr.SetTotal(ctx, int64(res.Files))
		tr.Complete(ctx, fmt.Sprintf("Extracted to %s/", dest))
		return nil
	})
}

func (e *execution) convert(ctx context.Context) error {
	src := e.pipeline.Path(e.model.ExtractDir())
	dest := e.pipeline.Path(e.model.Output())
	return e.step(ctx, model.StepConvert, func(tr *tracking.Tracker) error {
		if exists(dest) && !e.opts.Force {
			tr.Skip(ctx, fmt.Sprintf("%s already exists, skipping conversion.", dest))
			return nil
		}

		tr.Start(ctx, "Converting model to TFLite...")
		if err := e.pipeline.converter.Convert(ctx, src, dest); err != nil {
			return err
		}
		tr.Complete(ctx, fmt.Sprintf("Saved TFLite model as %s", dest))
		return nil
	})
}

func (e *execution) verifyTFLite(ctx context.Context) error {
	path := e.pipeline.Path(e.model.Output())
	return e.step(ctx, model.StepVerify, func(tr *tracking.Tracker) error {
		tr.Start(ctx, "Verifying TFLite model...")
		if err := converter.ValidateTFLite(path); err != nil {
			return err
		}
		tr.Complete(ctx, fmt.Sprintf("%s is a valid TFLite model", path))
		return nil
	})
}

func (e *execution) hubDownload(ctx context.Context) error {
	dest := e.pipeline.Path(e.model.Output())
	return e.step(ctx, model.StepDownload, func(tr *tracking.Tracker) error {
		if _, err := provider.FindModelDir(dest); err == nil && !e.opts.Force {
			tr.Skip(ctx, fmt.Sprintf("%s/ already exists, skipping download.", dest))
			return nil
		}

		tr.Start(ctx, "Downloading model...")
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("remove %s: %w", dest, err)
		}
		path, err := e.pipeline.hub.Download(ctx, e.model, dest)
		if err != nil {
			return err
		}
		tr.Complete(ctx, fmt.Sprintf("Saved model to %s/", path))
		return nil
	})
}

func (e *execution) verifyONNX(ctx context.Context) error {
	dir := e.pipeline.Path(e.model.Output())
	return e.step(ctx, model.StepVerify, func(tr *tracking.Tracker) error {
		tr.Start(ctx, "Verifying model...")
		dim, err := e.pipeline.verifier.Verify(ctx, dir, e.pipeline.hub.OnnxFile(e.model))
		if err != nil {
			return err
		}
		tr.Complete(ctx, fmt.Sprintf("Model produces %d-dimensional embeddings", dim))
		return nil
	})
}

func (e *execution) auth() fetch.Auth {
	creds := e.pipeline.cfg.Credentials()
	switch e.model.Source() {
	case model.SourceKaggle:
		if creds.HasKaggle() {
			return fetch.BasicAuth{Username: creds.KaggleUsername(), Password: creds.KaggleKey()}
		}
	case model.SourceHuggingFace:
		if creds.HFToken() != "" {
			return fetch.BearerToken(creds.HFToken())
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
