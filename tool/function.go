package tool

import (
	"context"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier ("group.function")
	name string
	// Human-readable description shown to models
	description string
	// Declared arguments
	params []Param
	// User supplied implementation
	fn func(ctx context.Context, args Args) (string, error)
}

// NewFunctionTool constructs a FunctionTool.
//
// Example:
//
//	echo := NewFunctionTool(
//	  "text.echo",
//	  "Echo the given text",
//	  []Param{Required("text", TypeString, "text to echo")},
//	  func(ctx context.Context, args Args) (string, error) {
//	    return args.String("text"), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	params []Param,
	fn func(ctx context.Context, args Args) (string, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		params:      params,
		fn:          fn,
	}
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Params returns the declared arguments.
func (t *FunctionTool) Params() []Param { return t.params }

// Call invokes the underlying function. Errors other than *ToolError are
// wrapped as *ToolError{Code: "EXECUTION_ERROR"}.
func (t *FunctionTool) Call(ctx context.Context, args Args) (string, error) {
	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return result, toolErr
		}
		return result, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}
	return result, nil
}

var _ Tool = (*FunctionTool)(nil)
