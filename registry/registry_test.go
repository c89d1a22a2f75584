package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.AddBackend(BackendDescriptor{ID: "lmstudio-local", BaseURL: "http://localhost:1234/v1", MaxLoaded: 2}))
	_, err := r.AddModel(ModelSpec{ID: "qwen", Key: "qwen/qwen3-8b", BackendID: "lmstudio-local", ContextLength: 32768, ResourceRatio: 1})
	require.NoError(t, err)
	return r
}

func TestRegistry_AddAndLookup(t *testing.T) {
	r := newTestRegistry(t)

	d, err := r.Model("qwen")
	require.NoError(t, err)
	assert.Equal(t, "qwen/qwen3-8b", d.Key)
	assert.Equal(t, KindLMStudio, d.Backend.Kind)
	assert.Equal(t, 2, d.Backend.MaxLoaded)

	_, err = r.Model("missing")
	assert.True(t, errors.Is(err, ErrModelNotFound))

	_, err = r.Backend("missing")
	assert.True(t, errors.Is(err, ErrBackendNotFound))
}

func TestRegistry_AddModelValidation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.AddModel(ModelSpec{ID: "x", BackendID: "nope", ContextLength: 10})
	assert.True(t, errors.Is(err, ErrBackendNotFound))

	_, err = r.AddModel(ModelSpec{ID: "x", BackendID: "lmstudio-local"})
	assert.Error(t, err)

	d, err := r.AddModel(ModelSpec{ID: "nokey", BackendID: "lmstudio-local", ContextLength: 10})
	require.NoError(t, err)
	assert.Equal(t, "nokey", d.Key)
}

func TestRegistry_BackendKindInference(t *testing.T) {
	r := New()
	assert.Error(t, r.AddBackend(BackendDescriptor{ID: "mystery"}))
	require.NoError(t, r.AddBackend(BackendDescriptor{ID: "mystery", Kind: KindOpenAI}))
	require.NoError(t, r.AddBackend(BackendDescriptor{ID: "anthropic-main"}))

	b, err := r.Backend("anthropic-main")
	require.NoError(t, err)
	assert.Equal(t, KindAnthropic, b.Kind)
	assert.Equal(t, "", InferKind("custom"))
}

func TestModelDescriptor_Equal(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Model("qwen")
	b, _ := r.Model("qwen")
	assert.True(t, a.Equal(b))

	b.ContextLength = 8192
	assert.False(t, a.Equal(b))

	c, _ := r.Model("qwen")
	c.StopSequences = []string{"</s>"}
	assert.False(t, a.Equal(c))

	d, _ := r.Model("qwen")
	d.Backend.MaxLoaded = 3
	assert.False(t, a.Equal(d))
}

func TestRegistry_ReturnedDescriptorsAreCopies(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(BackendDescriptor{ID: "mock"}))
	_, err := r.AddModel(ModelSpec{ID: "m", BackendID: "mock", ContextLength: 100, StopSequences: []string{"a"}})
	require.NoError(t, err)

	d, _ := r.Model("m")
	d.StopSequences[0] = "changed"

	again, _ := r.Model("m")
	assert.Equal(t, []string{"a"}, again.StopSequences)
}

const yamlRegistry = `
backends:
  lmstudio-gpu0:
    url: http://localhost:1234/v1
    max_loaded_models: 1
models:
  coder:
    backend: lmstudio-gpu0
    key: qwen2.5-coder-14b
    context_length: 16384
    gpu_ratio: 0.9
    stop_strings: ["<|im_end|>"]
  planner:
    backend: lmstudio-gpu0
    key: llama-3.1-8b
    context_length: 8192
    gpu_ratio: 0.5
`

const tomlRegistry = `
[backends.anthropic-cloud]
kind = "anthropic"
api_key_env = "ANTHROPIC_API_KEY"
max_loaded_models = 4

[models.claude]
backend = "anthropic-cloud"
key = "claude-3-5-sonnet-latest"
context_length = 200000
gpu_ratio = 0.0
`

const jsonRegistry = `{
  "backends": {"openai": {"url": "https://api.openai.com/v1", "max_loaded_models": 8}},
  "models": {"gpt": {"backend": "openai", "key": "gpt-4o-mini", "context_length": 128000, "gpu_ratio": 0}}
}`

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		ext     string
		model   string
		kind    string
		ctxLen  int
		backend string
	}{
		{"yaml", yamlRegistry, ".yaml", "coder", KindLMStudio, 16384, "lmstudio-gpu0"},
		{"toml", tomlRegistry, "toml", "claude", KindAnthropic, 200000, "anthropic-cloud"},
		{"json", jsonRegistry, ".json", "gpt", KindOpenAI, 128000, "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.data), tt.ext)
			require.NoError(t, err)
			d, err := r.Model(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Backend.Kind)
			assert.Equal(t, tt.ctxLen, d.ContextLength)
			assert.Equal(t, tt.backend, d.Backend.ID)
		})
	}
}

func TestParse_YAMLDetails(t *testing.T) {
	r, err := Parse([]byte(yamlRegistry), "yml")
	require.NoError(t, err)

	models := r.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "coder", models[0].ID)
	assert.Equal(t, []string{"<|im_end|>"}, models[0].StopSequences)
	assert.InDelta(t, 0.9, models[0].ResourceRatio, 1e-9)
	assert.Len(t, r.Backends(), 1)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("models:\n  x:\n    context_length: 10\n"), "yaml")
	assert.ErrorContains(t, err, "missing required field backend")

	_, err = Parse([]byte("models:\n  x:\n    backend: ghost\n    context_length: 10\n"), "yaml")
	assert.True(t, errors.Is(err, ErrBackendNotFound))

	_, err = Parse([]byte("{}"), ".ini")
	assert.ErrorContains(t, err, "unsupported")

	_, err = Parse([]byte("{not json"), ".json")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlRegistry), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	_, err = r.Model("planner")
	assert.NoError(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
