package testutil

import (
	"github.com/hupe1980/agentrelay/protocol"
)

// Fence renders an action as a model reply with a ```json block. It panics on
// encoding errors, which cannot happen for the protocol types.
func Fence(a protocol.Action) string {
	s, err := protocol.Fence(a)
	if err != nil {
		panic(err)
	}
	return s
}

// NormalReply returns a fenced NORMAL_RESPONSE reply.
func NormalReply(text string) string {
	return Fence(protocol.NormalResponse{Response: text})
}

// DelegateReply returns a fenced DELEGATE_TASK reply from caller to agent.
func DelegateReply(agent, caller, input string) string {
	return Fence(protocol.DelegateTask{Agent: agent, CallerAgent: caller, Reason: "delegating", UserInput: input})
}

// DelegateBackReply returns a fenced DELEGATE_BACK reply.
func DelegateBackReply(to, from, reason string, success bool) string {
	return Fence(protocol.DelegateBack{ReturnTo: to, ReturnFrom: from, Reason: reason, Success: success})
}

// ToolReply returns a fenced USE_TOOL reply.
func ToolReply(tool, args string) string {
	return Fence(protocol.UseTool{Tool: tool, Args: args})
}

// RefinementBuilder provides a fluent helper for REFINEMENT_RESPONSE replies.
// Example:
//
//	reply := NewRefinementBuilder("1. do x").Done(true).Score(85).Build()
type RefinementBuilder struct {
	r protocol.RefinementResponse
}

// NewRefinementBuilder starts a refinement reply proposing plan.
func NewRefinementBuilder(plan string) *RefinementBuilder {
	return &RefinementBuilder{r: protocol.RefinementResponse{NewPlan: plan, Why: "refined", Success: true}}
}

// Done sets the done flag (chainable).
func (b *RefinementBuilder) Done(d bool) *RefinementBuilder { b.r.Done = d; return b }

// Score sets the score (chainable).
func (b *RefinementBuilder) Score(s int) *RefinementBuilder { b.r.Score = s; return b }

// Checklist sets every checklist item to v (chainable).
func (b *RefinementBuilder) Checklist(v bool) *RefinementBuilder {
	b.r.Checklist = protocol.Checklist{Objective: v, Inputs: v, Outputs: v, Constraints: v}
	return b
}

// Build returns the fenced reply.
func (b *RefinementBuilder) Build() string { return Fence(b.r) }
