package agent

import "github.com/hupe1980/agentrelay/internal/util"

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(state map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(state map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(state map[string]any) (string, error) { return f(state) }

// Instruction is the system prompt of an agent: either template text or a
// dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from template text. The text
// may reference {{.name}}, {{.model}}, {{.description}} and {{.tools}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(state map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by text.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, rendering templates or invoking the
// provider as needed.
func (i Instruction) Resolve(state map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(state)
	}
	return util.RenderTemplate(i.text, state)
}
