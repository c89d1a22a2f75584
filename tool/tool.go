// Package tool implements the tool subsystem that lets agents invoke named
// capabilities (file access, process execution, introspection) with
// "key=value" arguments and receive a TOOL_RETURN record back.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/internal/util"
)

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Tool is a named capability callable by agents.
//
// Tools are registered explicitly with a Registry; the registry parses and
// coerces arguments according to Params before Call is invoked, so
// implementations receive typed values only.
type Tool interface {
	// Name returns the unique identifier, conventionally "group.function".
	Name() string

	// Description is the one-line summary shown to models.
	Description() string

	// Params declares the accepted arguments in order.
	Params() []Param

	// Call runs the tool. The returned string becomes the TOOL_RETURN result.
	// A *ToolError reports a failure whose Message is shown to the model as is.
	Call(ctx context.Context, args Args) (string, error)
}

// ValidationError represents argument validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Error codes used by the built-in tools and the registry.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeExitStatus = "EXIT_STATUS"
)
