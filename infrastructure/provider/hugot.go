// Package provider fetches and checks Hugging Face ONNX models with hugot.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/helixml/modelprep/domain/model"
)

// ProbeSentence is embedded to check that a downloaded model loads and runs.
const ProbeSentence = "The quick brown fox jumps over the lazy dog."

// ErrNoModel is returned when a directory holds no hugot model.
var ErrNoModel = errors.New("no model found")

// sessionMu serializes hugot sessions. ONNX Runtime allows only one active
// session per process and is not thread-safe.
var sessionMu sync.Mutex

type downloadFunc func(repo, dest string, opts hugot.DownloadOptions) (string, error)

// HugotDownloader fetches ONNX models from the Hugging Face hub.
type HugotDownloader struct {
	token    string
	arch     string
	download downloadFunc
}

// NewHugotDownloader creates a downloader. token may be empty for public
// repositories.
func NewHugotDownloader(token string) *HugotDownloader {
	return &HugotDownloader{
		token:    token,
		arch:     runtime.GOARCH,
		download: hugot.DownloadModel,
	}
}

// OnnxFile returns the ONNX file that will be fetched for m on this machine.
func (d *HugotDownloader) OnnxFile(m model.Model) string {
	return m.OnnxFile(d.arch)
}

// Download fetches the repository named by m.Location() into destDir and
// returns the directory holding the model files.
func (d *HugotDownloader) Download(ctx context.Context, m model.Model, destDir string) (string, error) {
	if m.Source() != model.SourceHuggingFace {
		return "", fmt.Errorf("%w: %s is not a huggingface model", model.ErrUnknownSource, m.Name())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	opts := hugot.NewDownloadOptions()
	if onnx := d.OnnxFile(m); onnx != "" {
		opts.OnnxFilePath = onnx
	}
	if d.token != "" {
		opts.AuthToken = d.token
	}

	modelPath, err := d.download(m.Location(), destDir, opts)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", m.Location(), err)
	}
	return modelPath, ctx.Err()
}

// FindModelDir looks for the directory holding tokenizer.json, either root
// itself or one of its immediate subdirectories.
func FindModelDir(root string) (string, error) {
	if hasTokenizer(root) {
		return root, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no subdirectory with tokenizer.json in %s", ErrNoModel, root)
}

func hasTokenizer(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "tokenizer.json"))
	return err == nil
}

// HugotVerifier loads a model in a hugot session and embeds a probe sentence.
type HugotVerifier struct{}

// NewHugotVerifier creates a verifier.
func NewHugotVerifier() *HugotVerifier {
	return &HugotVerifier{}
}

// Verify embeds ProbeSentence with the model in dir and returns the
// embedding dimension. onnxFile selects the ONNX file when the model ships
// more than one; empty lets hugot pick.
func (v *HugotVerifier) Verify(ctx context.Context, dir, onnxFile string) (int, error) {
	modelPath, err := FindModelDir(dir)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sessionMu.Lock()
	defer sessionMu.Unlock()

	session, err := newHugotSession()
	if err != nil {
		return 0, fmt.Errorf("create hugot session: %w", err)
	}
	defer func() { _ = session.Destroy() }()

	cfg := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "modelprep-verify",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	if onnxFile != "" {
		cfg.OnnxFilename = filepath.Base(onnxFile)
	}
	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		return 0, fmt.Errorf("create feature extraction pipeline: %w", err)
	}

	result, err := pipeline.RunPipeline([]string{ProbeSentence})
	if err != nil {
		return 0, fmt.Errorf("run embedding pipeline: %w", err)
	}
	if len(result.Embeddings) != 1 || len(result.Embeddings[0]) == 0 {
		return 0, fmt.Errorf("run embedding pipeline: empty embedding for probe sentence")
	}
	return len(result.Embeddings[0]), nil
}
