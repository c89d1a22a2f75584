package backend

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/registry"
)

// CompletionCall records one Complete invocation on a MockClient.
type CompletionCall struct {
	Model  string
	Prompt Prompt
	Config InferenceConfig
}

// MockClient is a deterministic in-memory Client useful for tests & examples.
// Completions are served from per-model queues in FIFO order.
type MockClient struct {
	mu        sync.Mutex
	queues    map[string][]string
	responder func(model string, p Prompt, cfg InferenceConfig) (string, error)
	loads     []string
	unloads   []string
	calls     []CompletionCall
	loadErr   map[string]error
	unloadErr map[string]error
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		queues:    make(map[string][]string),
		loadErr:   make(map[string]error),
		unloadErr: make(map[string]error),
	}
}

// MockFactory returns a Factory that always yields m.
func MockFactory(m *MockClient) Factory {
	return func(registry.BackendDescriptor) (Client, error) { return m, nil }
}

// Enqueue appends scripted completions for a model id.
func (m *MockClient) Enqueue(modelID string, responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[modelID] = append(m.queues[modelID], responses...)
}

// SetResponder installs a fallback used when a model's queue is empty.
func (m *MockClient) SetResponder(fn func(model string, p Prompt, cfg InferenceConfig) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

// FailLoad makes LoadModel fail for a model id.
func (m *MockClient) FailLoad(modelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr[modelID] = err
}

// FailUnload makes UnloadModel fail for a model id.
func (m *MockClient) FailUnload(modelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloadErr[modelID] = err
}

// Pending returns the number of unconsumed scripted completions for a model.
func (m *MockClient) Pending(modelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[modelID])
}

// Loads returns the model ids passed to LoadModel, in call order.
func (m *MockClient) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.loads)
}

// Unloads returns the model ids passed to UnloadModel, in call order.
func (m *MockClient) Unloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.unloads)
}

// Calls returns every recorded completion call.
func (m *MockClient) Calls() []CompletionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Kind implements Client.
func (m *MockClient) Kind() string { return registry.KindMock }

// LoadModel implements Client.
func (m *MockClient) LoadModel(_ context.Context, d registry.ModelDescriptor) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadErr[d.ID]; err != nil {
		return nil, err
	}
	m.loads = append(m.loads, d.ID)
	return &mockInstance{client: m, desc: d}, nil
}

// UnloadModel implements Client.
func (m *MockClient) UnloadModel(_ context.Context, d registry.ModelDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloads = append(m.unloads, d.ID)
	return m.unloadErr[d.ID]
}

func (m *MockClient) complete(ctx context.Context, model string, p Prompt, cfg InferenceConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, CompletionCall{Model: model, Prompt: p, Config: cfg})
	if q := m.queues[model]; len(q) > 0 {
		m.queues[model] = q[1:]
		m.mu.Unlock()
		return q[0], nil
	}
	responder := m.responder
	m.mu.Unlock()
	if responder != nil {
		return responder(model, p, cfg)
	}
	return "", fmt.Errorf("mock: no scripted completion for model %q", model)
}

type mockInstance struct {
	client *MockClient
	desc   registry.ModelDescriptor
}

func (i *mockInstance) Descriptor() registry.ModelDescriptor { return i.desc }

func (i *mockInstance) ApplyPromptTemplate(msgs []conversation.Message) (Prompt, error) {
	return Prompt{Text: RenderChatML(msgs), Messages: slices.Clone(msgs)}, nil
}

func (i *mockInstance) Complete(ctx context.Context, p Prompt, cfg InferenceConfig) (string, error) {
	return i.client.complete(ctx, i.desc.ID, p, cfg)
}

func (i *mockInstance) CountTokens(_ context.Context, text string) (int, error) {
	return EstimateTokens(text), nil
}

// Compile-time interface assertions.
var (
	_ Client   = (*MockClient)(nil)
	_ Instance = (*mockInstance)(nil)
)
