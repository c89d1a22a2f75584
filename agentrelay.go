// Package agentrelay provides a high-level façade that wires the model
// registry, the backend pool, the tool registry, the agent roster and the
// orchestrator into one runnable system. Most applications interact with this
// package by:
//  1. Loading config.Settings (config.Load)
//  2. Creating a Relay via New()
//  3. Driving turns through Relay.Orchestrator (RunTurn or Serve)
//  4. Calling Close to unload every model
//
// Backends are created through tagged factories: openai and lmstudio endpoints
// share the OpenAI-compatible client, anthropic uses the Messages API and mock
// serves scripted responses for tests and demos.
package agentrelay

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/backend/anthropic"
	"github.com/hupe1980/agentrelay/backend/openai"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
)

// Options configures the Relay instance.
type Options struct {
	// Factories creates backend clients by kind. Defaults to DefaultFactories.
	Factories *backend.Factories
	// SessionStore receives the orchestration transcript (defaults to in-memory).
	SessionStore session.Store
	// Echo receives the live output of execute_command (defaults to io.Discard).
	Echo io.Writer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Relay aggregates the wired components.
type Relay struct {
	Settings     config.Settings
	Registry     *registry.Registry
	Pool         *backend.Pool
	Tools        *tool.Registry
	Roster       *agent.Roster
	Orchestrator *orchestrator.Orchestrator

	logger logging.Logger
}

// DefaultFactories returns the factories of every built-in backend kind.
// The mock kind is only registered when a client is supplied.
func DefaultFactories(logger logging.Logger, mock *backend.MockClient) *backend.Factories {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	f := backend.NewFactories()
	oa := openai.Factory(func(o *openai.Options) { o.Logger = logger })
	f.Register(registry.KindOpenAI, oa)
	f.Register(registry.KindLMStudio, oa)
	f.Register(registry.KindAnthropic, anthropic.Factory(func(o *anthropic.Options) { o.Logger = logger }))
	if mock != nil {
		f.Register(registry.KindMock, backend.MockFactory(mock))
	}
	return f
}

// New loads the models and agents files named by s and wires the system.
func New(s config.Settings, optFns ...func(o *Options)) (*Relay, error) {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Echo:         io.Discard,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Factories == nil {
		opts.Factories = DefaultFactories(opts.Logger, nil)
	}

	reg, err := registry.LoadFile(s.ModelsFile)
	if err != nil {
		return nil, err
	}
	specs, err := config.LoadAgents(s.AgentsFile)
	if err != nil {
		return nil, err
	}

	pool := backend.NewPool(func(o *backend.Options) {
		o.Factories = opts.Factories
		o.Logger = opts.Logger
	})
	if err := pool.Prepare(reg.Backends()...); err != nil {
		return nil, err
	}

	r := &Relay{Settings: s, Registry: reg, Pool: pool, logger: opts.Logger}

	tools, err := NewTools(s, reg, rosterRef{r}, func(o *Options) {
		o.Echo = opts.Echo
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	r.Tools = tools

	roster, err := config.BuildRoster(s, specs, config.Deps{
		Registry: reg,
		Loader:   pool,
		Tools:    tools,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	r.Roster = roster

	orch, err := orchestrator.New(roster, tools, s.EntryAgent, func(o *orchestrator.Options) {
		o.MaxSteps = s.MaxSteps
		o.SessionStore = opts.SessionStore
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	r.Orchestrator = orch
	opts.Logger.Info("relay ready",
		"agents", len(roster.Names()),
		"tools", len(tools.Names()),
		"entry", s.EntryAgent,
		"session", orch.SessionID())
	return r, nil
}

// NewTools returns a registry holding the file tools, rooted at the
// configured work directory, and the agent management tools.
func NewTools(s config.Settings, models tool.ModelLister, agents tool.AgentLister, optFns ...func(o *Options)) (*tool.Registry, error) {
	opts := Options{Echo: io.Discard, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	tools := tool.NewRegistry(func(o *tool.Options) { o.Logger = opts.Logger })
	if err := tools.Register(tool.FileTools(func(o *tool.FileOptions) {
		o.WorkDir = s.Tools.WorkDir
		o.Echo = opts.Echo
		o.Logger = opts.Logger
	})...); err != nil {
		return nil, err
	}
	if err := tools.Register(tool.ManagementTools(models, tools, agents)...); err != nil {
		return nil, err
	}
	return tools, nil
}

// Close unloads every loaded model.
func (r *Relay) Close(ctx context.Context) error {
	if r == nil || r.Pool == nil {
		return nil
	}
	if err := r.Pool.UnloadAll(ctx); err != nil {
		r.logger.Warn("unload models", "error", err)
		return fmt.Errorf("close relay: %w", err)
	}
	return nil
}

// rosterRef lets the management tools list agents of a roster that is built
// after the tools are registered.
type rosterRef struct{ r *Relay }

func (ref rosterRef) Agents() []*agent.Agent {
	if ref.r.Roster == nil {
		return nil
	}
	return ref.r.Roster.Agents()
}

var _ tool.AgentLister = rosterRef{}
