// Package orchestrator runs operator turns across a roster of agents.
//
// A turn starts with the operator input sent to the active agent and follows
// the agent's structured actions until one of them is a NORMAL_RESPONSE:
//
//	RESPONDING --NORMAL_RESPONSE--> DONE
//	RESPONDING --DELEGATE_TASK----> DELEGATED_FORWARD --> RESPONDING (target agent)
//	RESPONDING --DELEGATE_BACK----> DELEGATED_BACK    --> RESPONDING (return agent)
//	RESPONDING --USE_TOOL---------> TOOL_PENDING      --> RESPONDING (same agent)
//
// Invalid delegations or tool requests are answered with a corrective prompt
// that stays out of the agent's history. An unknown action kind ends the turn
// with an error. The active agent carries over to the next turn.
package orchestrator
