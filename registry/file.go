package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type fileSchema struct {
	Backends map[string]backendSchema `json:"backends" yaml:"backends" toml:"backends"`
	Models   map[string]modelSchema   `json:"models" yaml:"models" toml:"models"`
}

type backendSchema struct {
	URL             string `json:"url" yaml:"url" toml:"url"`
	Kind            string `json:"kind" yaml:"kind" toml:"kind"`
	MaxLoadedModels int    `json:"max_loaded_models" yaml:"max_loaded_models" toml:"max_loaded_models"`
	APIKeyEnv       string `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	SupportSchema   bool   `json:"support_schema" yaml:"support_schema" toml:"support_schema"`
	SupportGrammar  bool   `json:"support_grammar" yaml:"support_grammar" toml:"support_grammar"`
}

type modelSchema struct {
	Backend       string   `json:"backend" yaml:"backend" toml:"backend"`
	Key           string   `json:"key" yaml:"key" toml:"key"`
	ContextLength int      `json:"context_length" yaml:"context_length" toml:"context_length"`
	GPURatio      float64  `json:"gpu_ratio" yaml:"gpu_ratio" toml:"gpu_ratio"`
	StopStrings   []string `json:"stop_strings" yaml:"stop_strings" toml:"stop_strings"`
}

// LoadFile reads a registry file. The format is chosen by extension:
// .yaml/.yml, .toml or .json.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes registry data in the format named by ext (with or without the
// leading dot).
func Parse(data []byte, ext string) (*Registry, error) {
	var file fileSchema
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode models yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode models toml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode models json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported models file format %q", ext)
	}
	return file.build()
}

func (f fileSchema) build() (*Registry, error) {
	r := New()
	for _, id := range sortedKeys(f.Backends) {
		b := f.Backends[id]
		if err := r.AddBackend(BackendDescriptor{
			ID:             id,
			Kind:           b.Kind,
			BaseURL:        b.URL,
			MaxLoaded:      b.MaxLoadedModels,
			APIKeyEnv:      b.APIKeyEnv,
			SupportSchema:  b.SupportSchema,
			SupportGrammar: b.SupportGrammar,
		}); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(f.Models) {
		m := f.Models[id]
		if m.Backend == "" {
			return nil, fmt.Errorf("model %q: missing required field backend", id)
		}
		if _, err := r.AddModel(ModelSpec{
			ID:            id,
			Key:           m.Key,
			BackendID:     m.Backend,
			ContextLength: m.ContextLength,
			ResourceRatio: m.GPURatio,
			StopSequences: m.StopStrings,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
