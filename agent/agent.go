package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/protocol"
	"github.com/hupe1980/agentrelay/refine"
	"github.com/hupe1980/agentrelay/registry"
)

// ErrCorrectionsExhausted is returned when a model keeps violating the
// response protocol beyond Options.MaxCorrections.
var ErrCorrectionsExhausted = errors.New("agent: protocol corrections exhausted")

// Loader provides loaded model instances, normally a *backend.Pool.
type Loader interface {
	EnsureLoaded(ctx context.Context, d registry.ModelDescriptor) (backend.Instance, error)
}

// Options configure an Agent.
type Options struct {
	Description   string
	Instruction   Instruction
	Seed          []conversation.Message
	Inference     backend.InferenceConfig
	Summarization conversation.Policy
	Refinement    refine.Policy
	// Tools lists the tool names advertised to this agent.
	Tools []string
	// MaxCorrections bounds corrective retries per call; 0 means unbounded.
	MaxCorrections int
	Logger         logging.Logger
	Now            func() time.Time
}

// Agent is a named conversational role with its own model binding, history
// and policies.
type Agent struct {
	name    string
	model   registry.ModelDescriptor
	loader  Loader
	store   *conversation.Store
	refiner *refine.Loop
	opts    Options
}

// New creates an agent. The instruction is resolved once with the agent's
// name, model, description and tools as template state.
func New(name string, model registry.ModelDescriptor, loader Loader, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Inference: backend.InferenceConfig{
			MaxTokens:   2048,
			Temperature: 0.7,
		},
		Summarization: conversation.Policy{
			Threshold:             0.65,
			CharsPerToken:         conversation.DefaultCharsPerToken,
			PercentageToSummarize: 0.4,
		},
		Refinement: refine.DefaultPolicy(),
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if name == "" {
		return nil, errors.New("agent: name is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("agent %s: loader is required", name)
	}

	system, err := opts.Instruction.Resolve(map[string]any{
		"name":        name,
		"model":       model.ID,
		"description": opts.Description,
		"tools":       opts.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: resolve instruction: %w", name, err)
	}

	a := &Agent{name: name, model: model, loader: loader, opts: opts}
	a.store = conversation.New(func(o *conversation.Options) {
		o.Name = name
		o.SystemPrompt = strings.TrimSpace(system)
		o.Seed = opts.Seed
		o.ContextLength = model.ContextLength
		o.Policy = opts.Summarization
		o.Summarizer = a
		o.Logger = opts.Logger
		o.Now = opts.Now
	})
	a.refiner = refine.NewLoop(opts.Refinement, func(o *refine.Options) {
		o.Logger = opts.Logger
		o.Name = name
	})
	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.opts.Description }

// Model returns the agent's model descriptor.
func (a *Agent) Model() registry.ModelDescriptor { return a.model }

// Tools returns the tool names advertised to the agent.
func (a *Agent) Tools() []string { return append([]string(nil), a.opts.Tools...) }

// Conversation returns the agent's conversation store.
func (a *Agent) Conversation() *conversation.Store { return a.store }

// ContextDisplay renders the context usage, e.g. "[Zeus 12.3%/32768]".
func (a *Agent) ContextDisplay() string {
	_, pct := a.store.EstimateUsage()
	return fmt.Sprintf("[%s %.1f%%/%d]", a.name, pct, a.model.ContextLength)
}

// CallOptions adjust a single Respond call.
type CallOptions struct {
	// NoHistory leaves the conversation untouched.
	NoHistory bool
	// Inference overrides the agent's inference configuration.
	Inference *backend.InferenceConfig
	// SkipRefinement bypasses the scratchpad for this call.
	SkipRefinement bool
	// Metadata is attached to the appended user message.
	Metadata map[string]any
	// SingleAttempt returns the first protocol violation as an error
	// instead of sending corrections.
	SingleAttempt bool
}

// WithoutHistory keeps the call out of the agent's history.
func WithoutHistory() func(o *CallOptions) {
	return func(o *CallOptions) { o.NoHistory = true }
}

// WithoutRefinement bypasses the scratchpad for the call.
func WithoutRefinement() func(o *CallOptions) {
	return func(o *CallOptions) { o.SkipRefinement = true }
}

// WithSingleAttempt makes the call fail on the first malformed reply.
func WithSingleAttempt() func(o *CallOptions) {
	return func(o *CallOptions) { o.SingleAttempt = true }
}

// WithInference overrides the inference configuration for the call.
func WithInference(cfg backend.InferenceConfig) func(o *CallOptions) {
	return func(o *CallOptions) { o.Inference = &cfg }
}

// WithMetadata attaches metadata to the appended user message.
func WithMetadata(md map[string]any) func(o *CallOptions) {
	return func(o *CallOptions) { o.Metadata = md }
}

// Respond sends prompt through the agent and returns the parsed reply. It
// retries with corrective instructions until the reply satisfies the
// delimiter, syntax and action checks, the context is cancelled or
// MaxCorrections is exceeded. Refinement rounds are single attempts, so the
// scratchpad costs at most MaxIterations completions.
func (a *Agent) Respond(ctx context.Context, prompt string, optFns ...func(o *CallOptions)) (protocol.Record, error) {
	var call CallOptions
	for _, fn := range optFns {
		fn(&call)
	}
	cfg := a.opts.Inference
	if call.Inference != nil {
		cfg = *call.Inference
	}

	sent := prompt
	metadata := call.Metadata
	if !call.SkipRefinement && !call.NoHistory && a.opts.Refinement.Enabled {
		res := a.refiner.Run(ctx, prompt, a.refinementCall)
		if res.Plan != "" && res.Plan != prompt {
			sent = res.Plan
			metadata = withOriginalPrompt(metadata, prompt, res)
		}
	}

	inst, err := a.loader.EnsureLoaded(ctx, a.model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}

	msgs := a.store.Messages()
	msgs = append(msgs, conversation.Message{Role: conversation.RoleUser, Content: sent})

	corrections := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := a.complete(ctx, inst, msgs, cfg)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, perr := protocol.Parse(raw)
		if perr == nil {
			block, _ := protocol.Extract(raw)
			if !call.NoHistory {
				a.store.Append(ctx, conversation.RoleUser, sent, metadata)
				a.store.Append(ctx, conversation.RoleAssistant, block, nil)
			}
			return rec, nil
		}

		if call.SingleAttempt {
			return nil, fmt.Errorf("agent %s: %w", a.name, perr)
		}
		corrections++
		a.opts.Logger.Warn("model reply violates response protocol",
			"agent", a.name, "error", perr, "attempt", corrections)
		if a.opts.MaxCorrections > 0 && corrections > a.opts.MaxCorrections {
			return nil, fmt.Errorf("agent %s: %w: %w", a.name, ErrCorrectionsExhausted, perr)
		}
		msgs = append(msgs, conversation.Message{Role: conversation.RoleUser, Content: protocol.Correction(perr)})
	}
}

// complete runs one completion. Backend failures are logged and reported as
// an empty reply, which the protocol check then treats as malformed.
func (a *Agent) complete(ctx context.Context, inst backend.Instance, msgs []conversation.Message, cfg backend.InferenceConfig) string {
	start := time.Now()
	p, err := inst.ApplyPromptTemplate(msgs)
	if err == nil {
		var raw string
		raw, err = inst.Complete(ctx, p, cfg)
		if err == nil && raw != "" {
			logging.LLMCall(a.opts.Logger, a.model.ID, backend.EstimateTokens(raw), time.Since(start), true, nil)
			return raw
		}
	}
	if err == nil {
		err = errors.New("empty completion")
	}
	logging.LLMCall(a.opts.Logger, a.model.ID, 0, time.Since(start), false, err)
	return ""
}

func (a *Agent) refinementCall(ctx context.Context, prompt string, cfg backend.InferenceConfig) (protocol.Record, error) {
	return a.Respond(ctx, prompt, WithoutHistory(), WithoutRefinement(), WithSingleAttempt(), WithInference(cfg))
}

func withOriginalPrompt(md map[string]any, original string, res refine.Result) map[string]any {
	out := make(map[string]any, len(md)+3)
	for k, v := range md {
		out[k] = v
	}
	out["original_prompt"] = original
	out["refinement_iterations"] = res.Iterations
	out["refinement_stop"] = string(res.StopReason)
	return out
}

const summaryPromptTemplate = `Summarize the following agent conversation history into a concise bullet-point list.
Focus on facts, decisions, and tool usage. Avoid redundant or low-signal information.

Conversation:
%s

Your summary should emphasize:
- Key user requests
- Actions taken by the agent (e.g. tool calls, delegations)
- Results or important returned values
- Current state or pending decisions

Format your summary as a clean bullet list (use '-' for each point).
Respond with a NORMAL_RESPONSE whose response field holds the summary.`

// Summarize implements conversation.Summarizer. The request goes through the
// response protocol and never touches the history.
func (a *Agent) Summarize(ctx context.Context, transcript string) (string, error) {
	rec, err := a.Respond(ctx, fmt.Sprintf(summaryPromptTemplate, transcript), WithoutHistory(), WithoutRefinement())
	if err != nil {
		return "", err
	}
	act, err := protocol.DecodeAs(rec, protocol.KindNormalResponse)
	if err != nil {
		return "", fmt.Errorf("agent %s: summary reply: %w", a.name, err)
	}
	return act.(protocol.NormalResponse).Response, nil
}

var _ conversation.Summarizer = (*Agent)(nil)
