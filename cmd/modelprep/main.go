// Package main is the entry point for the modelprep CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/modelprep/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile string
	workDir string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "modelprep",
		Short: "Download sentence encoders and prepare them for on-device inference",
		Long: `modelprep downloads pretrained sentence-encoder models, extracts them and
converts them to TensorFlow Lite (or fetches ONNX builds from Hugging Face).
Each step is skipped when its output already exists in the work directory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.PersistentFlags().StringVar(&flags.workDir, "work-dir", "", "Directory for archives and converted models (default: WORK_DIR or .)")

	cmd.AddCommand(runCmd(flags))
	cmd.AddCommand(listCmd(flags))
	cmd.AddCommand(historyCmd(flags))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables,
// then applies command line overrides.
func loadConfig(flags *globalFlags) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(flags.envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if flags.workDir != "" {
		cfg = cfg.Apply(config.WithWorkDir(flags.workDir))
	}
	return cfg, nil
}
