package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/protocol"
	"github.com/hupe1980/agentrelay/session"
)

var (
	// ErrTurnBudgetExceeded ends a turn that used more agent calls than MaxSteps.
	ErrTurnBudgetExceeded = errors.New("turn step budget exceeded")
	// ErrUnexpectedAction ends a turn whose agent replied with an action that
	// only the system produces (TOOL_RETURN, REFINEMENT_RESPONSE).
	ErrUnexpectedAction = errors.New("unexpected action")

	errInterrupted = errors.New("interrupted by operator")
)

// InterruptMessage is the reply of a turn cancelled by the operator.
const InterruptMessage = "I was interrupted. Please try again or type 'quit' to exit."

// State is the position of a turn in the orchestration state machine.
type State string

const (
	StateResponding       State = "RESPONDING"
	StateDelegatedForward State = "DELEGATED_FORWARD"
	StateDelegatedBack    State = "DELEGATED_BACK"
	StateToolPending      State = "TOOL_PENDING"
	StateDone             State = "DONE"
)

// ToolRunner executes tools; *tool.Registry implements it.
type ToolRunner interface {
	Run(ctx context.Context, name, rawArgs string) protocol.ToolReturn
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxSteps bounds the agent calls of one turn; 0 means unbounded.
	MaxSteps int
	// SessionID names the transcript; a random id is used when empty.
	SessionID string
	// SessionStore receives the turn events.
	SessionStore session.Store
	// Logging services.
	Logger logging.Logger
}

// Reply is the outcome of a completed turn.
type Reply struct {
	TurnID      string
	Agent       string
	Text        string
	Steps       int
	Interrupted bool
}

// Orchestrator owns the active agent and drives turns. RunTurn calls are
// serialized; Interrupt may be called from any goroutine.
type Orchestrator struct {
	roster *agent.Roster
	tools  ToolRunner
	opts   Options

	turnMu sync.Mutex

	mu       sync.Mutex
	active   *agent.Agent
	cancel   context.CancelCauseFunc
	turnDone chan struct{}
}

// New creates an orchestrator whose first active agent is entry.
func New(roster *agent.Roster, tools ToolRunner, entry string, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		MaxSteps:     50,
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionID == "" {
		opts.SessionID = session.NewID()
	}
	if roster == nil || tools == nil {
		return nil, errors.New("orchestrator: roster and tools are required")
	}
	active, err := roster.Get(entry)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: entry agent: %w", err)
	}
	if _, err := opts.SessionStore.Create(opts.SessionID); err != nil {
		return nil, fmt.Errorf("orchestrator: create session: %w", err)
	}
	return &Orchestrator{roster: roster, tools: tools, opts: opts, active: active}, nil
}

// Active returns the agent that receives the next operator input.
func (o *Orchestrator) Active() *agent.Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// SessionID returns the transcript id.
func (o *Orchestrator) SessionID() string { return o.opts.SessionID }

// Interrupt cancels the running turn. It reports whether a turn was running.
func (o *Orchestrator) Interrupt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel(errInterrupted)
	return true
}

// Wait blocks until the running turn, if any, has returned or ctx is done.
// Callers cancel the context given to RunTurn first, so no backend work
// follows a successful Wait.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.turnDone
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) setActive(a *agent.Agent) {
	o.mu.Lock()
	o.active = a
	o.mu.Unlock()
	if err := o.opts.SessionStore.ApplyDelta(o.opts.SessionID, map[string]any{"active_agent": a.Name()}); err != nil {
		o.opts.Logger.Warn("failed to record active agent", "error", err)
	}
}

// turn is the state of one RunTurn call.
type turn struct {
	ctx   context.Context
	id    string
	state State
	steps int
}

// RunTurn processes one operator input until an agent produces a
// NORMAL_RESPONSE. An operator interrupt yields a synthetic reply instead of
// an error.
func (o *Orchestrator) RunTurn(ctx context.Context, input string) (Reply, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	turnCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	o.mu.Lock()
	o.cancel = cancel
	o.turnDone = done
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.turnDone = nil
		o.mu.Unlock()
		cancel(nil)
		close(done)
	}()

	t := &turn{ctx: turnCtx, id: session.NewID(), state: StateResponding}
	start := time.Now()
	o.record(t, o.Active(), session.EventInput, input)

	reply, err := o.run(t, input)
	if err != nil && errors.Is(context.Cause(turnCtx), errInterrupted) && ctx.Err() == nil {
		o.opts.Logger.Warn("turn interrupted", "turn_id", t.id, "agent", o.Active().Name())
		o.record(t, o.Active(), session.EventInterrupt, InterruptMessage)
		reply = Reply{TurnID: t.id, Agent: o.Active().Name(), Text: InterruptMessage, Steps: t.steps, Interrupted: true}
		err = nil
	}
	if err != nil {
		o.record(t, o.Active(), session.EventError, err.Error())
	}
	logging.Turn(o.opts.Logger, o.Active().Name(), t.steps, time.Since(start), err == nil, err)
	return reply, err
}

func (o *Orchestrator) run(t *turn, input string) (Reply, error) {
	rec, err := o.call(t, o.Active(), input)
	for {
		if err != nil {
			return Reply{}, err
		}
		active := o.Active()
		act, derr := protocol.Decode(rec)
		if derr != nil {
			var unknown *protocol.UnknownActionError
			if errors.As(derr, &unknown) {
				return Reply{}, derr
			}
			prompt := fmt.Sprintf("Your %s prompt is invalid. Error: %v", rec.Action(), derr)
			rec, err = o.reprompt(t, active, prompt)
			continue
		}
		o.record(t, active, session.EventAction, string(act.Kind()))

		switch a := act.(type) {
		case protocol.NormalResponse:
			t.state = StateDone
			o.record(t, active, session.EventReply, a.Response)
			return Reply{TurnID: t.id, Agent: active.Name(), Text: a.Response, Steps: t.steps}, nil

		case protocol.DelegateTask:
			rec, err = o.delegate(t, active, a.Agent, a.Prompt(), StateDelegatedForward)

		case protocol.DelegateBack:
			rec, err = o.delegate(t, active, a.ReturnTo, a.Prompt(), StateDelegatedBack)

		case protocol.UseTool:
			t.state = StateToolPending
			o.record(t, active, session.EventToolCall, a.Tool+" "+a.Args)
			ret := o.tools.Run(t.ctx, a.Tool, a.Args)
			body, eerr := protocol.Encode(ret)
			if eerr != nil {
				return Reply{}, fmt.Errorf("encode tool return: %w", eerr)
			}
			o.record(t, active, session.EventToolReturn, body)
			t.state = StateResponding
			rec, err = o.call(t, active, body, agent.WithoutRefinement())

		default:
			return Reply{}, fmt.Errorf("%w: %s from agent %s", ErrUnexpectedAction, act.Kind(), active.Name())
		}
	}
}

// delegate switches the active agent to target and sends it prompt. A target
// that is not in the roster is reported back to the current agent.
func (o *Orchestrator) delegate(t *turn, from *agent.Agent, target, prompt string, state State) (protocol.Record, error) {
	to, err := o.roster.Get(target)
	if err != nil {
		msg := fmt.Sprintf("Agent %s does not exist. Please try again.\nAvailable agents: %s",
			target, strings.Join(o.roster.Names(), ", "))
		o.opts.Logger.Warn("delegation to unknown agent", "from", from.Name(), "target", target)
		return o.reprompt(t, from, msg)
	}
	t.state = state
	o.opts.Logger.Info("delegating", "from", from.Name(), "to", to.Name(), "state", string(state))
	o.record(t, from, session.EventDelegation, from.Name()+" -> "+to.Name())
	o.setActive(to)
	t.state = StateResponding
	return o.call(t, to, prompt)
}

// reprompt sends a corrective prompt that stays out of the agent's history.
func (o *Orchestrator) reprompt(t *turn, a *agent.Agent, prompt string) (protocol.Record, error) {
	o.record(t, a, session.EventReprompt, prompt)
	return o.call(t, a, prompt, agent.WithoutHistory())
}

func (o *Orchestrator) call(t *turn, a *agent.Agent, prompt string, optFns ...func(o *agent.CallOptions)) (protocol.Record, error) {
	if o.opts.MaxSteps > 0 && t.steps >= o.opts.MaxSteps {
		return nil, fmt.Errorf("%w: %d calls", ErrTurnBudgetExceeded, t.steps)
	}
	t.steps++
	return a.Respond(t.ctx, prompt, optFns...)
}

func (o *Orchestrator) record(t *turn, a *agent.Agent, kind session.EventKind, detail string) {
	ev := session.NewEvent(o.opts.SessionID, t.id, a.Name(), kind, detail)
	if err := o.opts.SessionStore.AppendEvent(o.opts.SessionID, ev); err != nil {
		o.opts.Logger.Warn("failed to record session event", "kind", string(kind), "error", err)
	}
}
