// Package manifest loads the catalogue of preparable models from YAML.
package manifest

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/helixml/modelprep/domain/model"
)

// DefaultModel is prepared when no model is named on the command line.
const DefaultModel = "cmlm-en-base"

//go:embed models.yaml
var embedded []byte

// File is the top-level structure of a manifest file.
type File struct {
	Models []Entry `yaml:"models"`
}

// Entry is one model in a manifest file.
type Entry struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Source       string            `yaml:"source"`
	URL          string            `yaml:"url"`
	Repo         string            `yaml:"repo"`
	Format       string            `yaml:"format"`
	Archive      string            `yaml:"archive"`
	ExtractDir   string            `yaml:"extract_dir"`
	Output       string            `yaml:"output"`
	OnnxVariants map[string]string `yaml:"onnx_variants"`
}

// Manifest is a validated, name-indexed model catalogue.
type Manifest struct {
	models []model.Model
	byName map[string]model.Model
}

// Default parses the manifest compiled into the binary.
func Default() (Manifest, error) {
	return Parse(embedded)
}

// Load reads the manifest at path, or the embedded one when path is empty.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (Manifest, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest YAML in strict mode so unknown keys are rejected.
func Parse(data []byte) (Manifest, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return New(f.Models...)
}

// New builds a Manifest from entries, validating each model and rejecting
// duplicate names.
func New(entries ...Entry) (Manifest, error) {
	m := Manifest{byName: make(map[string]model.Model, len(entries))}
	for _, e := range entries {
		md := e.ToModel()
		if err := md.Validate(); err != nil {
			return Manifest{}, err
		}
		if _, dup := m.byName[md.Name()]; dup {
			return Manifest{}, fmt.Errorf("%w: duplicate model %q", model.ErrInvalidModel, md.Name())
		}
		m.byName[md.Name()] = md
		m.models = append(m.models, md)
	}
	return m, nil
}

// ToModel converts an Entry to a domain Model.
func (e Entry) ToModel() model.Model {
	source := model.Source(e.Source)
	location := e.URL
	if source == model.SourceHuggingFace {
		location = e.Repo
	}

	opts := []model.Option{
		model.WithDescription(e.Description),
		model.WithArchive(e.Archive),
		model.WithExtractDir(e.ExtractDir),
		model.WithOutput(e.Output),
	}

	arches := make([]string, 0, len(e.OnnxVariants))
	for arch := range e.OnnxVariants {
		arches = append(arches, arch)
	}
	sort.Strings(arches)
	for _, arch := range arches {
		opts = append(opts, model.WithVariant(arch, e.OnnxVariants[arch]))
	}

	return model.NewModel(e.Name, source, location, model.Format(e.Format), opts...)
}

// Models returns all models in manifest order.
func (m Manifest) Models() []model.Model {
	out := make([]model.Model, len(m.models))
	copy(out, m.models)
	return out
}

// Get returns the model called name.
func (m Manifest) Get(name string) (model.Model, error) {
	md, ok := m.byName[name]
	if !ok {
		return model.Model{}, fmt.Errorf("%w: %q", model.ErrUnknownModel, name)
	}
	return md, nil
}

// Select resolves names to models. No names selects DefaultModel.
func (m Manifest) Select(names ...string) ([]model.Model, error) {
	if len(names) == 0 {
		names = []string{DefaultModel}
	}
	out := make([]model.Model, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		md, err := m.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, nil
}
