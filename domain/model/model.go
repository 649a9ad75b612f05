// Package model defines the models modelprep can prepare and the status of
// each pipeline step.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Format is the on-device inference format a model is prepared for.
type Format string

// Format values.
const (
	FormatTFLite Format = "tflite"
	FormatONNX   Format = "onnx"
)

// Source identifies where a model archive comes from.
type Source string

// Source values.
const (
	SourceKaggle      Source = "kaggle"
	SourceURL         Source = "url"
	SourceHuggingFace Source = "huggingface"
)

// DefaultVariant is the ONNX file used when no architecture-specific file matches.
const DefaultVariant = "default"

// Errors returned by model validation and lookup.
var (
	ErrUnknownModel  = errors.New("unknown model")
	ErrInvalidModel  = errors.New("invalid model")
	ErrUnknownFormat = errors.New("unknown format")
	ErrUnknownSource = errors.New("unknown source")
)

// Model describes one preparable model.
type Model struct {
	name        string
	description string
	source      Source
	location    string
	format      Format
	archive     string
	extractDir  string
	output      string
	variants    map[string]string
}

// Option configures a Model.
type Option func(*Model)

// WithDescription sets a human readable description.
func WithDescription(d string) Option {
	return func(m *Model) { m.description = d }
}

// WithArchive overrides the downloaded archive file name.
func WithArchive(name string) Option {
	return func(m *Model) {
		if name != "" {
			m.archive = name
		}
	}
}

// WithExtractDir overrides the extraction directory name.
func WithExtractDir(dir string) Option {
	return func(m *Model) {
		if dir != "" {
			m.extractDir = dir
		}
	}
}

// WithOutput overrides the converted artifact name.
func WithOutput(name string) Option {
	return func(m *Model) {
		if name != "" {
			m.output = name
		}
	}
}

// WithVariant registers the ONNX file to fetch on the given architecture
// (a GOARCH value, or DefaultVariant).
func WithVariant(arch, file string) Option {
	return func(m *Model) {
		if m.variants == nil {
			m.variants = make(map[string]string)
		}
		m.variants[arch] = file
	}
}

// NewModel creates a Model. Archive, extract directory and output default to
// names derived from the model name.
func NewModel(name string, source Source, location string, format Format, opts ...Option) Model {
	m := Model{
		name:       name,
		source:     source,
		location:   location,
		format:     format,
		archive:    name + ".tar.gz",
		extractDir: name,
		output:     name,
	}
	if format == FormatTFLite {
		m.output = name + ".tflite"
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Name returns the model name.
func (m Model) Name() string { return m.name }

// Description returns the model description.
func (m Model) Description() string { return m.description }

// Source returns where the model is fetched from.
func (m Model) Source() Source { return m.source }

// Location returns the download URL or, for Hugging Face, the repository id.
func (m Model) Location() string { return m.location }

// Format returns the target inference format.
func (m Model) Format() Format { return m.format }

// Archive returns the archive file name.
func (m Model) Archive() string { return m.archive }

// ExtractDir returns the directory the archive is unpacked into.
func (m Model) ExtractDir() string { return m.extractDir }

// Output returns the final artifact: a .tflite file or an ONNX model directory.
func (m Model) Output() string { return m.output }

// NeedsArchive reports whether the pipeline downloads and extracts a tarball.
func (m Model) NeedsArchive() bool { return m.source != SourceHuggingFace }

// Variants returns the architecture to ONNX file mapping, sorted by architecture.
func (m Model) Variants() []string {
	keys := make([]string, 0, len(m.variants))
	for k := range m.variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + m.variants[k]
	}
	return out
}

// OnnxFile returns the ONNX file to fetch on arch, falling back to the
// default variant. Returns "" when none is configured.
func (m Model) OnnxFile(arch string) string {
	if f, ok := m.variants[arch]; ok {
		return f
	}
	return m.variants[DefaultVariant]
}

// Validate checks the model is complete and internally consistent.
func (m Model) Validate() error {
	if strings.TrimSpace(m.name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModel)
	}
	if strings.ContainsAny(m.name, `/\`) {
		return fmt.Errorf("%w: name %q must not contain path separators", ErrInvalidModel, m.name)
	}
	if strings.TrimSpace(m.location) == "" {
		return fmt.Errorf("%w: %s has no location", ErrInvalidModel, m.name)
	}

	switch m.source {
	case SourceKaggle, SourceURL, SourceHuggingFace:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, m.source)
	}

	switch m.format {
	case FormatTFLite:
		if m.source == SourceHuggingFace {
			return fmt.Errorf("%w: %s: huggingface sources only produce onnx", ErrInvalidModel, m.name)
		}
	case FormatONNX:
		if m.source != SourceHuggingFace {
			return fmt.Errorf("%w: %s: onnx models must come from huggingface", ErrInvalidModel, m.name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, m.format)
	}

	for _, p := range []string{m.archive, m.extractDir, m.output} {
		if strings.Contains(p, "..") || filepath.IsAbs(p) {
			return fmt.Errorf("%w: %s: path %q escapes the work directory", ErrInvalidModel, m.name, p)
		}
	}
	return nil
}
