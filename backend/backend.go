package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/registry"
)

// ErrUnknownBackendKind is returned when no factory is registered for a kind.
var ErrUnknownBackendKind = errors.New("unknown backend kind")

// InferenceConfig holds the sampling parameters of one completion call.
type InferenceConfig struct {
	MaxTokens     int      `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64  `json:"temperature" mapstructure:"temperature"`
	StopSequences []string `json:"stop_strings,omitempty" mapstructure:"stop_strings"`
	Grammar       string   `json:"grammar,omitempty" mapstructure:"grammar"`
	Schema        string   `json:"schema,omitempty" mapstructure:"schema"`
}

// Validate checks required inference parameters.
func (c InferenceConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %v", c.Temperature)
	}
	return nil
}

// Prompt is the rendered input of a completion. Text carries the templated
// single-string form, Messages the structured form chat APIs consume.
type Prompt struct {
	Text     string
	Messages []conversation.Message
}

// Instance is a loaded model.
type Instance interface {
	// Descriptor returns the configuration the instance was loaded with.
	Descriptor() registry.ModelDescriptor
	// ApplyPromptTemplate renders a message list into a Prompt.
	ApplyPromptTemplate(msgs []conversation.Message) (Prompt, error)
	// Complete runs one completion and returns the raw text output.
	Complete(ctx context.Context, p Prompt, cfg InferenceConfig) (string, error)
	// CountTokens returns the number of tokens text occupies for this model.
	CountTokens(ctx context.Context, text string) (int, error)
}

// Client is one backend endpoint capable of loading models.
type Client interface {
	Kind() string
	LoadModel(ctx context.Context, d registry.ModelDescriptor) (Instance, error)
	UnloadModel(ctx context.Context, d registry.ModelDescriptor) error
}

// Factory creates a Client for a backend descriptor.
type Factory func(b registry.BackendDescriptor) (Client, error)

// Factories is a registry of Client factories keyed by backend kind.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories returns an empty factory registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register installs f for kind, replacing any previous factory.
func (f *Factories) Register(kind string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[kind] = factory
}

// Kinds returns the registered kinds in sorted order.
func (f *Factories) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.factories))
	for k := range f.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New creates a Client for b using the factory registered for b.Kind.
func (f *Factories) New(b registry.BackendDescriptor) (Client, error) {
	f.mu.RLock()
	factory, ok := f.factories[b.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend %q: %w: %q", b.ID, ErrUnknownBackendKind, b.Kind)
	}
	c, err := factory(b)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", b.ID, err)
	}
	return c, nil
}

// MergeStops combines model and call stop sequences without duplicates.
func MergeStops(model, call []string) []string {
	out := slices.Clone(model)
	for _, s := range call {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// RenderChatML renders messages in the ChatML template followed by an open
// assistant turn.
func RenderChatML(msgs []conversation.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteByte('\n')
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

// EstimateTokens is a tokenizer-free approximation of four characters per
// token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
