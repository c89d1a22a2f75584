package logging

import "time"

// CallLogger is implemented by loggers that offer domain helpers for backend
// calls, tool executions and orchestration turns (see RelayLogger).
type CallLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogTurn(agent string, steps int, dur time.Duration, success bool, err error)
}

var _ CallLogger = (*RelayLogger)(nil)

// LLMCall routes to CallLogger.LogLLMCall when available and falls back to
// plain Info/Error records otherwise.
func LLMCall(l Logger, model string, tokens int, dur time.Duration, success bool, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogLLMCall(model, tokens, dur, success, err)
		return
	}
	if !success {
		l.Error("LLM call failed", "model", model, "duration", dur, "error", errString(err))
		return
	}
	l.Info("LLM call completed", "model", model, "token_count", tokens, "duration", dur)
}

// ToolCall routes to CallLogger.LogToolCall when available.
func ToolCall(l Logger, tool string, dur time.Duration, success bool, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogToolCall(tool, dur, success, err)
		return
	}
	if !success {
		l.Error("Tool execution failed", "tool_name", tool, "duration", dur, "error", errString(err))
		return
	}
	l.Info("Tool execution completed", "tool_name", tool, "duration", dur)
}

// Turn routes to CallLogger.LogTurn when available.
func Turn(l Logger, agent string, steps int, dur time.Duration, success bool, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogTurn(agent, steps, dur, success, err)
		return
	}
	if !success {
		l.Error("Turn failed", "agent", agent, "step_count", steps, "error", errString(err))
		return
	}
	l.Info("Turn completed", "agent", agent, "step_count", steps, "duration", dur)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
