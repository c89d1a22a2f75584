package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/protocol"
)

// DescriptionHeading starts the tool section appended to system prompts.
const DescriptionHeading = "# AVAILABLE TOOLS"

// Options configure a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry is a static name → Tool mapping populated by explicit
// registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	opts  Options
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{tools: make(map[string]Tool), opts: opts}
}

// Register adds tools. A tool with an empty or duplicate name, or with an
// invalid parameter declaration, is rejected.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if err := validate(t); err != nil {
			return err
		}
		if _, ok := r.tools[t.Name()]; ok {
			return fmt.Errorf("tool %q already registered", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return nil
}

func validate(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool name is required")
	}
	seen := make(map[string]bool)
	for _, p := range t.Params() {
		if p.Name == "" || strings.ContainsAny(p.Name, "=,") {
			return fmt.Errorf("tool %s: invalid parameter name %q", t.Name(), p.Name)
		}
		if !p.Type.valid() {
			return fmt.Errorf("tool %s: parameter %s has unsupported type %q", t.Name(), p.Name, p.Type)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %s", t.Name(), p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	names := r.Names()
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		if t, err := r.Get(n); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Run executes a tool with a raw "key=value" argument string. Every failure,
// including an unknown tool, is reported as an unsuccessful ToolReturn.
func (r *Registry) Run(ctx context.Context, name, rawArgs string) protocol.ToolReturn {
	start := time.Now()
	r.opts.Logger.Debug("tool.call.start", "tool", name, "args", rawArgs)

	ret, err := r.run(ctx, name, rawArgs)
	logging.ToolCall(r.opts.Logger, name, time.Since(start), ret.Success, err)
	return ret
}

func (r *Registry) run(ctx context.Context, name, rawArgs string) (protocol.ToolReturn, error) {
	t, err := r.Get(name)
	if err != nil {
		return failure(name, "Tool not found: "+name), err
	}
	args, err := ParseArgs(rawArgs, t.Params())
	if err != nil {
		r.opts.Logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())
		return failure(name, "Error executing tool: "+err.Error()), err
	}
	result, err := t.Call(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			msg := toolErr.Message
			if toolErr.Code == CodeExecution {
				msg = "Error executing tool: " + msg
			}
			return failure(name, msg), err
		}
		return failure(name, "Error executing tool: "+err.Error()), err
	}
	return protocol.ToolReturn{Tool: name, Result: result, Success: true}, nil
}

func failure(name, msg string) protocol.ToolReturn {
	return protocol.ToolReturn{Tool: name, Result: msg, Success: false}
}

// Describe renders the prompt section advertising the named tools. With no
// names every registered tool is described.
func (r *Registry) Describe(names ...string) (string, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	blocks := make([]string, 0, len(names))
	for _, n := range names {
		t, err := r.Get(n)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, Describe(t))
	}
	return DescriptionHeading + "\n" + strings.Join(blocks, "\n\n"), nil
}

// Describe renders one tool as a prompt block.
func Describe(t Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\nDescription: %s\nArguments:\n", t.Name(), firstLine(t.Description()))
	params := t.Params()
	if len(params) == 0 {
		b.WriteString("  (no arguments)")
		return b.String()
	}
	for i, p := range params {
		if i > 0 {
			b.WriteByte('\n')
		}
		if p.HasDefault {
			fmt.Fprintf(&b, "  - %s (%s, default=%s)", p.Name, p.Type, formatDefault(p.Default))
		} else {
			fmt.Fprintf(&b, "  - %s (%s)", p.Name, p.Type)
		}
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "No description provided."
	}
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func formatDefault(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprint(v)
}
