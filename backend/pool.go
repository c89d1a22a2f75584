package backend

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/registry"
)

// Options configure a Pool.
type Options struct {
	Factories *Factories
	Logger    logging.Logger
}

type handle struct {
	desc registry.ModelDescriptor
	inst Instance
}

// backendState tracks the loaded handles of one backend. The list is ordered
// from most to least recently used.
type backendState struct {
	client  Client
	order   *list.List
	handles map[string]*list.Element
}

// Pool owns the live model instances of every backend.
type Pool struct {
	mu       sync.Mutex
	opts     Options
	backends map[string]*backendState
}

// NewPool creates an empty pool.
func NewPool(optFns ...func(o *Options)) *Pool {
	opts := Options{
		Factories: NewFactories(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pool{opts: opts, backends: make(map[string]*backendState)}
}

// Prepare creates clients for the given backends up front so unknown kinds
// surface at startup instead of on first use.
func (p *Pool) Prepare(backends ...registry.BackendDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range backends {
		if _, err := p.stateLocked(b); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) stateLocked(b registry.BackendDescriptor) (*backendState, error) {
	if st, ok := p.backends[b.ID]; ok {
		return st, nil
	}
	c, err := p.opts.Factories.New(b)
	if err != nil {
		return nil, err
	}
	st := &backendState{client: c, order: list.New(), handles: make(map[string]*list.Element)}
	p.backends[b.ID] = st
	return st, nil
}

// EnsureLoaded returns a live instance for d. An instance loaded with an
// identical descriptor is reused. A handle for the same model id with a
// different descriptor is unloaded and replaced. When the backend is at
// capacity, least recently used handles are evicted before loading.
func (p *Pool) EnsureLoaded(ctx context.Context, d registry.ModelDescriptor) (Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.stateLocked(d.Backend)
	if err != nil {
		return nil, err
	}
	if el, ok := st.handles[d.ID]; ok {
		h := el.Value.(*handle)
		if h.desc.Equal(d) {
			st.order.MoveToFront(el)
			return h.inst, nil
		}
		p.opts.Logger.Info("model configuration changed, reloading", "model", d.ID, "backend", d.Backend.ID)
		p.dropLocked(ctx, st, el)
	}

	limit := d.Backend.MaxLoaded
	for limit > 0 && st.order.Len() >= limit {
		lru := st.order.Back()
		p.opts.Logger.Info("evicting least recently used model",
			"model", lru.Value.(*handle).desc.ID, "backend", d.Backend.ID, "loaded", st.order.Len(), "max", limit)
		p.dropLocked(ctx, st, lru)
	}

	inst, err := st.client.LoadModel(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("load model %q on %q: %w", d.ID, d.Backend.ID, err)
	}
	st.handles[d.ID] = st.order.PushFront(&handle{desc: d, inst: inst})
	p.opts.Logger.Debug("model loaded", "model", d.ID, "backend", d.Backend.ID, "loaded", st.order.Len())
	return inst, nil
}

// dropLocked unloads and forgets a handle. Unload failures are logged; the
// handle is forgotten either way so capacity accounting stays correct.
func (p *Pool) dropLocked(ctx context.Context, st *backendState, el *list.Element) {
	h := el.Value.(*handle)
	st.order.Remove(el)
	delete(st.handles, h.desc.ID)
	if err := st.client.UnloadModel(ctx, h.desc); err != nil {
		p.opts.Logger.Error("failed to unload model", "model", h.desc.ID, "backend", h.desc.Backend.ID, "error", err)
	}
}

// Unload unloads the model with d's id if it is loaded.
func (p *Pool) Unload(ctx context.Context, d registry.ModelDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.backends[d.Backend.ID]
	if !ok {
		return nil
	}
	el, ok := st.handles[d.ID]
	if !ok {
		return nil
	}
	h := el.Value.(*handle)
	st.order.Remove(el)
	delete(st.handles, d.ID)
	if err := st.client.UnloadModel(ctx, h.desc); err != nil {
		return fmt.Errorf("unload model %q: %w", d.ID, err)
	}
	return nil
}

// UnloadAll unloads every handle of every backend. All handles are released
// even when some unloads fail; the failures are joined.
func (p *Pool) UnloadAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for id, st := range p.backends {
		for el := st.order.Front(); el != nil; el = el.Next() {
			h := el.Value.(*handle)
			if err := st.client.UnloadModel(ctx, h.desc); err != nil {
				errs = append(errs, fmt.Errorf("unload model %q on %q: %w", h.desc.ID, id, err))
			}
		}
		st.order.Init()
		clear(st.handles)
	}
	return errors.Join(errs...)
}

// IsLoaded reports whether a handle exists for d's model id.
func (p *Pool) IsLoaded(d registry.ModelDescriptor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.backends[d.Backend.ID]
	if !ok {
		return false
	}
	_, ok = st.handles[d.ID]
	return ok
}

// Loaded returns the model ids loaded on a backend, most recently used first.
func (p *Pool) Loaded(backendID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.backends[backendID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, st.order.Len())
	for el := st.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*handle).desc.ID)
	}
	return ids
}
