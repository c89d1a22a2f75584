package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/registry"
)

func testBackend(maxLoaded int) registry.BackendDescriptor {
	return registry.BackendDescriptor{ID: "mock-gpu0", Kind: registry.KindMock, MaxLoaded: maxLoaded}
}

func testModel(id string, b registry.BackendDescriptor) registry.ModelDescriptor {
	return registry.ModelDescriptor{ID: id, Key: id, Backend: b, ContextLength: 4096, ResourceRatio: 1}
}

func newTestPool(m *MockClient) *Pool {
	f := NewFactories()
	f.Register(registry.KindMock, MockFactory(m))
	return NewPool(func(o *Options) { o.Factories = f })
}

func TestPool_ReuseIdenticalDescriptor(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	ctx := context.Background()
	d := testModel("a", testBackend(2))

	first, err := p.EnsureLoaded(ctx, d)
	require.NoError(t, err)
	second, err := p.EnsureLoaded(ctx, d)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"a"}, m.Loads())
	assert.Equal(t, []string{"a"}, p.Loaded("mock-gpu0"))
}

func TestPool_CapacityInvariant(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	ctx := context.Background()
	b := testBackend(2)

	sequence := []string{"a", "b", "c", "a", "d", "b", "b", "e", "a", "c"}
	for _, id := range sequence {
		_, err := p.EnsureLoaded(ctx, testModel(id, b))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(p.Loaded(b.ID)), 2, "after loading %s", id)
		assert.True(t, p.IsLoaded(testModel(id, b)))
	}
}

func TestPool_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	ctx := context.Background()
	b := testBackend(2)

	for _, id := range []string{"a", "b", "a", "c"} {
		_, err := p.EnsureLoaded(ctx, testModel(id, b))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"b"}, m.Unloads())
	assert.Equal(t, []string{"c", "a"}, p.Loaded(b.ID))
	assert.False(t, p.IsLoaded(testModel("b", b)))
}

func TestPool_UnlimitedCapacity(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	b := testBackend(0)
	for i := 0; i < 10; i++ {
		_, err := p.EnsureLoaded(context.Background(), testModel(fmt.Sprintf("m%d", i), b))
		require.NoError(t, err)
	}
	assert.Len(t, p.Loaded(b.ID), 10)
	assert.Empty(t, m.Unloads())
}

func TestPool_ReloadOnChangedDescriptor(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	ctx := context.Background()
	b := testBackend(2)

	d := testModel("a", b)
	_, err := p.EnsureLoaded(ctx, d)
	require.NoError(t, err)

	changed := d
	changed.ContextLength = 8192
	assert.True(t, p.IsLoaded(changed), "loaded state is keyed by model id")

	inst, err := p.EnsureLoaded(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, 8192, inst.Descriptor().ContextLength)
	assert.Equal(t, []string{"a", "a"}, m.Loads())
	assert.Equal(t, []string{"a"}, m.Unloads())
	assert.Equal(t, []string{"a"}, p.Loaded(b.ID))
}

func TestPool_UnknownKind(t *testing.T) {
	p := NewPool()
	_, err := p.EnsureLoaded(context.Background(), testModel("a", testBackend(1)))
	assert.True(t, errors.Is(err, ErrUnknownBackendKind))

	err = p.Prepare(registry.BackendDescriptor{ID: "x", Kind: "vllm"})
	assert.True(t, errors.Is(err, ErrUnknownBackendKind))
}

func TestPool_LoadFailureLeavesNoHandle(t *testing.T) {
	m := NewMockClient()
	m.FailLoad("a", errors.New("out of memory"))
	p := newTestPool(m)

	_, err := p.EnsureLoaded(context.Background(), testModel("a", testBackend(1)))
	assert.ErrorContains(t, err, "out of memory")
	assert.False(t, p.IsLoaded(testModel("a", testBackend(1))))
}

func TestPool_EvictionSurvivesUnloadFailure(t *testing.T) {
	m := NewMockClient()
	m.FailUnload("a", errors.New("busy"))
	p := newTestPool(m)
	ctx := context.Background()
	b := testBackend(1)

	_, err := p.EnsureLoaded(ctx, testModel("a", b))
	require.NoError(t, err)
	_, err = p.EnsureLoaded(ctx, testModel("b", b))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, p.Loaded(b.ID))
}

func TestPool_UnloadAndUnloadAll(t *testing.T) {
	m := NewMockClient()
	p := newTestPool(m)
	ctx := context.Background()
	b := testBackend(3)
	other := registry.BackendDescriptor{ID: "mock-gpu1", Kind: registry.KindMock, MaxLoaded: 1}

	for _, d := range []registry.ModelDescriptor{testModel("a", b), testModel("b", b), testModel("c", other)} {
		_, err := p.EnsureLoaded(ctx, d)
		require.NoError(t, err)
	}

	require.NoError(t, p.Unload(ctx, testModel("a", b)))
	assert.False(t, p.IsLoaded(testModel("a", b)))
	require.NoError(t, p.Unload(ctx, testModel("a", b)))

	m.FailUnload("c", errors.New("gone"))
	err := p.UnloadAll(ctx)
	assert.ErrorContains(t, err, "gone")
	assert.Empty(t, p.Loaded(b.ID))
	assert.Empty(t, p.Loaded(other.ID))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, m.Unloads())
}

func TestMockClient_Completions(t *testing.T) {
	m := NewMockClient()
	m.Enqueue("a", "one", "two")
	inst, err := m.LoadModel(context.Background(), testModel("a", testBackend(1)))
	require.NoError(t, err)

	prompt, err := inst.ApplyPromptTemplate([]conversation.Message{{Role: conversation.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n", prompt.Text)

	ctx := context.Background()
	out, err := inst.Complete(ctx, prompt, InferenceConfig{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "one", out)
	out, _ = inst.Complete(ctx, prompt, InferenceConfig{})
	assert.Equal(t, "two", out)

	_, err = inst.Complete(ctx, prompt, InferenceConfig{})
	assert.Error(t, err)

	m.SetResponder(func(model string, _ Prompt, _ InferenceConfig) (string, error) { return "echo " + model, nil })
	out, err = inst.Complete(ctx, prompt, InferenceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "echo a", out)

	calls := m.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, 10, calls[0].Config.MaxTokens)
}

func TestMergeStops(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, MergeStops([]string{"a", "b"}, []string{"b", "c"}))
	assert.Nil(t, MergeStops(nil, nil))
}

func TestInferenceConfig_Validate(t *testing.T) {
	assert.NoError(t, InferenceConfig{MaxTokens: 1, Temperature: 0.2}.Validate())
	assert.Error(t, InferenceConfig{}.Validate())
	assert.Error(t, InferenceConfig{MaxTokens: 1, Temperature: -1}.Validate())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
