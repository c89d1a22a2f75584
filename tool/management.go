package tool

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/registry"
)

// Agent management tool names.
const (
	AvailableModelsName = "agent_management.get_available_models"
	AvailableToolsName  = "agent_management.get_available_tools"
	ExistingAgentsName  = "agent_management.get_existing_agents"
)

// ModelLister lists configured models; *registry.Registry implements it.
type ModelLister interface {
	Models() []registry.ModelDescriptor
}

// AgentLister lists the running agents; *agent.Roster implements it.
type AgentLister interface {
	Agents() []*agent.Agent
}

type modelInfo struct {
	Name          string  `json:"name"`
	Backend       string  `json:"backend"`
	ContextLength int     `json:"context_length"`
	GPURatio      float64 `json:"gpu_ratio"`
	Key           string  `json:"key"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type agentInfo struct {
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
}

// ManagementTools returns the introspection tools. tools is the registry the
// tools are listed from; it is read at call time, so tools registered later
// are included.
func ManagementTools(models ModelLister, tools *Registry, agents AgentLister) []Tool {
	return []Tool{
		NewFunctionTool(AvailableModelsName, "Get all available models from the models pool.", nil,
			func(context.Context, Args) (string, error) {
				out := []modelInfo{}
				for _, m := range models.Models() {
					out = append(out, modelInfo{
						Name:          m.ID,
						Backend:       m.Backend.ID,
						ContextLength: m.ContextLength,
						GPURatio:      m.ResourceRatio,
						Key:           m.Key,
					})
				}
				return indentJSON(out)
			}),
		NewFunctionTool(AvailableToolsName, "Get all available tools.", nil,
			func(context.Context, Args) (string, error) {
				out := []toolInfo{}
				for _, t := range tools.Tools() {
					out = append(out, toolInfo{Name: t.Name(), Description: firstLine(t.Description())})
				}
				return indentJSON(out)
			}),
		NewFunctionTool(ExistingAgentsName, "Get all existing agents.", nil,
			func(context.Context, Args) (string, error) {
				out := []agentInfo{}
				for _, a := range agents.Agents() {
					tools := a.Tools()
					if tools == nil {
						tools = []string{}
					}
					out = append(out, agentInfo{
						Name:        a.Name(),
						Model:       a.Model().ID,
						Description: a.Description(),
						Tools:       tools,
					})
				}
				return indentJSON(out)
			}),
	}
}

func indentJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
