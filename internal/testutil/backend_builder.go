package testutil

import (
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/registry"
)

// MockBackend returns a mock backend descriptor.
func MockBackend(id string, maxLoaded int) registry.BackendDescriptor {
	return registry.BackendDescriptor{ID: id, Kind: registry.KindMock, MaxLoaded: maxLoaded}
}

// MockModel returns a model descriptor bound to b.
func MockModel(id string, b registry.BackendDescriptor, contextLength int) registry.ModelDescriptor {
	return registry.ModelDescriptor{ID: id, Key: id, Backend: b, ContextLength: contextLength, ResourceRatio: 1}
}

// NewMockPool returns a pool whose mock kind is served by m.
func NewMockPool(m *backend.MockClient) *backend.Pool {
	f := backend.NewFactories()
	f.Register(registry.KindMock, backend.MockFactory(m))
	return backend.NewPool(func(o *backend.Options) { o.Factories = f })
}
