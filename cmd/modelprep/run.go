package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixml/modelprep"
	"github.com/helixml/modelprep/internal/log"
)

func runCmd(flags *globalFlags) *cobra.Command {
	var (
		all         bool
		force       bool
		skipConvert bool
	)

	cmd := &cobra.Command{
		Use:   "run [model...]",
		Short: "Download, extract and convert models",
		Long: `Download, extract and convert the named models (default: cmlm-en-base).

Every step is skipped when its output already exists:
  1. download  <archive>         from the model's URL
  2. extract   <extract dir>/    from the archive
  3. convert   <output>.tflite   via TensorFlow's TFLiteConverter (uv run)
  4. verify    the converted model

Hugging Face ONNX models are downloaded with hugot and verified by
embedding a probe sentence.

Environment variables:
  WORK_DIR                     Output directory (default: .)
  DB_URL                       Run history database (default: sqlite:///{work_dir}/modelprep.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  WORKER_COUNT                 Models processed in parallel (default: 1)
  MANIFEST_PATH                YAML file replacing the built-in model list
  DOWNLOAD_TIMEOUT             Download timeout in seconds (default: 1800)
  DOWNLOAD_MAX_RETRIES         Download attempts (default: 4)
  DOWNLOAD_INITIAL_DELAY       First retry delay in seconds (default: 2)
  DOWNLOAD_BACKOFF_FACTOR      Retry delay multiplier (default: 2)
  CONVERTER_COMMAND            Command running the conversion script (default: uv)
  CONVERTER_MAX_RETRIES        Conversion attempts (default: 4)
  CONVERTER_INITIAL_DELAY      First conversion retry delay in seconds (default: 2)
  CONVERTER_BACKOFF_FACTOR     Conversion retry delay multiplier (default: 2)
  KAGGLE_USERNAME, KAGGLE_KEY  Kaggle API credentials
  HF_TOKEN                     Hugging Face access token
  REPORTING_LOG_TIME_INTERVAL  Seconds between progress log lines (default: 5)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd.Context(), flags, args, modelprep.PrepareOptions{
				All:         all,
				Force:       force,
				SkipConvert: skipConvert,
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Process every model in the manifest")
	cmd.Flags().BoolVar(&force, "force", false, "Re-run every step even if its output exists")
	cmd.Flags().BoolVar(&skipConvert, "skip-convert", false, "Stop after extracting the archive")

	return cmd
}

func runModels(ctx context.Context, flags *globalFlags, names []string, opts modelprep.PrepareOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := log.Configure(cfg).Slog()
	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.LogAttrs(ctx, slog.LevelDebug, "starting modelprep", attrs...)

	client, err := modelprep.New(modelprep.WithConfig(cfg), modelprep.WithLogger(logger))
	if err != nil {
		logger.Warn("run history disabled", slog.String("error", err.Error()))
		client, err = modelprep.New(modelprep.WithConfig(cfg), modelprep.WithLogger(logger), modelprep.WithoutHistory())
		if err != nil {
			return err
		}
	}
	defer func() { _ = client.Close() }()

	_, err = client.Prepare(ctx, opts, names...)
	return err
}
