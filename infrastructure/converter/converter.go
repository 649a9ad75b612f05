// Package converter turns extracted SavedModel directories into TFLite
// flatbuffers by running an embedded Python script through uv.
package converter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/helixml/modelprep/internal/config"
)

//go:embed convert_tflite.py
var script []byte

// ErrConverterNotFound is returned when the converter command is not on PATH.
var ErrConverterNotFound = errors.New("converter command not found")

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, forwarding their output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", ErrConverterNotFound, name)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// TFLite converts SavedModel directories to .tflite files.
type TFLite struct {
	runner  Runner
	cfg     config.ConverterConfig
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, delay time.Duration, err error)
}

// TFLiteOption configures a TFLite converter.
type TFLiteOption func(*TFLite)

// WithRunner replaces the command runner.
func WithRunner(r Runner) TFLiteOption {
	return func(t *TFLite) {
		if r != nil {
			t.runner = r
		}
	}
}

// WithRetryHook is called before each retry.
func WithRetryHook(fn func(attempt int, delay time.Duration, err error)) TFLiteOption {
	return func(t *TFLite) {
		t.onRetry = fn
	}
}

// NewTFLite creates a converter that shells out to cfg.Command().
func NewTFLite(cfg config.ConverterConfig, opts ...TFLiteOption) *TFLite {
	t := &TFLite{
		runner: ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr},
		cfg:    cfg,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Convert writes a TFLite model for the SavedModel in srcDir to dest and
// checks the result is a TFLite flatbuffer.
func (t *TFLite) Convert(ctx context.Context, srcDir, dest string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("saved model: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("saved model: %s is not a directory", srcDir)
	}

	scriptPath, cleanup, err := writeScript()
	if err != nil {
		return err
	}
	defer cleanup()

	attempts := max(t.cfg.MaxRetries(), 1)
	delay := t.cfg.InitialDelay()
	for i := range attempts {
		if i > 0 {
			if t.onRetry != nil {
				t.onRetry(i, delay, err)
			}
			if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("convert %s: %w (last error: %v)", srcDir, sleepErr, err)
			}
			delay = time.Duration(float64(delay) * t.cfg.BackoffFactor())
		}

		err = t.runner.Run(ctx, t.cfg.Command(), "run", scriptPath, srcDir, dest)
		if err == nil || errors.Is(err, ErrConverterNotFound) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("convert %s: %w", srcDir, err)
	}

	return ValidateTFLite(dest)
}

func writeScript() (string, func(), error) {
	tmp, err := os.CreateTemp("", "convert-tflite-*.py")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(script); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
