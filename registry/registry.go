package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrModelNotFound is returned when a model id is not registered.
	ErrModelNotFound = errors.New("model not found")
	// ErrBackendNotFound is returned when a backend id is not registered.
	ErrBackendNotFound = errors.New("backend not found")
)

// Known backend kinds. A backend kind selects the client implementation.
const (
	KindLMStudio  = "lmstudio"
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindMock      = "mock"
)

var knownKinds = []string{KindLMStudio, KindAnthropic, KindOpenAI, KindMock}

// BackendDescriptor describes one inference provider endpoint.
type BackendDescriptor struct {
	ID             string
	Kind           string
	BaseURL        string
	MaxLoaded      int // <= 0 means unlimited
	APIKeyEnv      string
	SupportSchema  bool
	SupportGrammar bool
}

// ModelDescriptor describes a model binding on a backend.
type ModelDescriptor struct {
	ID            string
	Key           string // backend-side model key
	Backend       BackendDescriptor
	ContextLength int
	ResourceRatio float64
	StopSequences []string
}

// Equal reports whether two descriptors are identical in every field.
func (d ModelDescriptor) Equal(o ModelDescriptor) bool {
	return d.ID == o.ID &&
		d.Key == o.Key &&
		d.Backend == o.Backend &&
		d.ContextLength == o.ContextLength &&
		d.ResourceRatio == o.ResourceRatio &&
		slices.Equal(d.StopSequences, o.StopSequences)
}

// InferKind returns the known backend kind contained in a backend id, or ""
// when none matches. "lmstudio-gpu0" yields "lmstudio".
func InferKind(backendID string) string {
	id := strings.ToLower(backendID)
	for _, k := range knownKinds {
		if strings.Contains(id, k) {
			return k
		}
	}
	return ""
}

// Registry maps model ids to descriptors. It is safe for concurrent reads.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendDescriptor
	models   map[string]ModelDescriptor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		backends: make(map[string]BackendDescriptor),
		models:   make(map[string]ModelDescriptor),
	}
}

// AddBackend registers a backend descriptor. The kind is inferred from the id
// when left empty.
func (r *Registry) AddBackend(b BackendDescriptor) error {
	if b.ID == "" {
		return errors.New("backend id is required")
	}
	if b.Kind == "" {
		b.Kind = InferKind(b.ID)
	}
	if b.Kind == "" {
		return fmt.Errorf("backend %q: cannot infer kind, set it explicitly", b.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.ID] = b
	return nil
}

// ModelSpec is the input used to register a model against an existing backend.
type ModelSpec struct {
	ID            string
	Key           string
	BackendID     string
	ContextLength int
	ResourceRatio float64
	StopSequences []string
}

// AddModel registers a model bound to a previously registered backend.
func (r *Registry) AddModel(spec ModelSpec) (ModelDescriptor, error) {
	if spec.ID == "" {
		return ModelDescriptor{}, errors.New("model id is required")
	}
	if spec.ContextLength <= 0 {
		return ModelDescriptor{}, fmt.Errorf("model %q: context_length must be positive", spec.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[spec.BackendID]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("model %q: %w: %s", spec.ID, ErrBackendNotFound, spec.BackendID)
	}
	key := spec.Key
	if key == "" {
		key = spec.ID
	}
	d := ModelDescriptor{
		ID:            spec.ID,
		Key:           key,
		Backend:       b,
		ContextLength: spec.ContextLength,
		ResourceRatio: spec.ResourceRatio,
		StopSequences: slices.Clone(spec.StopSequences),
	}
	r.models[spec.ID] = d
	return d, nil
}

// Model returns the descriptor registered under id.
func (r *Registry) Model(id string) (ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[id]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	d.StopSequences = slices.Clone(d.StopSequences)
	return d, nil
}

// Backend returns the backend descriptor registered under id.
func (r *Registry) Backend(id string) (BackendDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return BackendDescriptor{}, fmt.Errorf("%w: %s", ErrBackendNotFound, id)
	}
	return b, nil
}

// Models returns all model descriptors sorted by id.
func (r *Registry) Models() []ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelDescriptor, 0, len(r.models))
	for _, d := range r.models {
		d.StopSequences = slices.Clone(d.StopSequences)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Backends returns all backend descriptors sorted by id.
func (r *Registry) Backends() []BackendDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BackendDescriptor, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
