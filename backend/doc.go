// Package backend defines the inference backend contract and the Pool that
// owns live model instances.
//
// A Client is one backend endpoint (an LM Studio server, the OpenAI API, the
// Anthropic API). It loads models into Instances that render prompts and run
// completions. Clients are created from BackendDescriptors through a
// Factories lookup keyed by backend kind.
//
// The Pool keeps at most one Instance per model id and, per backend, no more
// Instances than the backend's MaxLoaded. When a backend is full the least
// recently used Instance is unloaded first.
//
//	pool := backend.NewPool(func(o *backend.Options) {
//		o.Factories = factories
//	})
//	inst, err := pool.EnsureLoaded(ctx, descriptor)
//
// MockClient is a scripted in-memory Client used by tests and examples.
package backend
