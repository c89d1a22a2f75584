package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/protocol"
	"github.com/hupe1980/agentrelay/refine"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/tool"
)

// AgentSpec is one entry of the roster file.
type AgentSpec struct {
	Model           string                   `mapstructure:"model"`
	Description     string                   `mapstructure:"description"`
	Prompts         []string                 `mapstructure:"prompts"`
	SeedPromptsFile string                   `mapstructure:"seed_prompts_file"`
	Tools           []string                 `mapstructure:"tools"`
	Inference       *backend.InferenceConfig `mapstructure:"inference_config"`
	Summarization   *conversation.Policy     `mapstructure:"summarization_config"`
	Refinement      *refine.Policy           `mapstructure:"-"`
}

// Validate checks the required sections of the spec of agent name.
func (s AgentSpec) Validate(name string) error {
	if s.Model == "" {
		return fmt.Errorf("agent %s: model is required", name)
	}
	if len(s.Prompts) == 0 {
		return fmt.Errorf("agent %s: no system prompt, add at least one file to prompts", name)
	}
	if s.Inference == nil {
		return fmt.Errorf("agent %s: inference_config is required", name)
	}
	if err := s.Inference.Validate(); err != nil {
		return fmt.Errorf("agent %s: inference_config: %w", name, err)
	}
	if s.Summarization == nil {
		return fmt.Errorf("agent %s: summarization_config is required", name)
	}
	if err := s.Summarization.Validate(); err != nil {
		return fmt.Errorf("agent %s: summarization_config: %w", name, err)
	}
	if s.Refinement != nil {
		if err := s.Refinement.Validate(); err != nil {
			return fmt.Errorf("agent %s: refinement_config: %w", name, err)
		}
	}
	return nil
}

// LoadAgents reads the roster file. The format follows the file extension
// (yaml, yml, json or toml).
func LoadAgents(path string) (map[string]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("agents file %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode agents file %s: %w", path, err)
	}
	return ParseAgents(doc)
}

// ParseAgents decodes the "agents" section of a roster document. Agent names
// keep their case. Refinement settings not given in the file keep the
// defaults of refine.DefaultPolicy.
func ParseAgents(doc map[string]any) (map[string]AgentSpec, error) {
	raw, ok := doc["agents"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("agents file: no agents defined")
	}
	specs := make(map[string]AgentSpec, len(raw))
	for name, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("agent %s: expected a mapping", name)
		}
		var spec AgentSpec
		if err := mapstructure.Decode(fields, &spec); err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		if rc, ok := fields["refinement_config"]; ok {
			p := refine.DefaultPolicy()
			if err := mapstructure.Decode(rc, &p); err != nil {
				return nil, fmt.Errorf("agent %s: refinement_config: %w", name, err)
			}
			spec.Refinement = &p
		}
		if err := spec.Validate(name); err != nil {
			return nil, err
		}
		specs[name] = spec
	}
	return specs, nil
}

// LoadPrompts concatenates prompt files, separated by blank lines. Relative
// paths are resolved against dir.
func LoadPrompts(dir string, files []string) (string, error) {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(resolve(dir, f))
		if err != nil {
			return "", fmt.Errorf("prompt file: %w", err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n"), nil
}

type seedMessage struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// LoadSeeds reads a seed prompt file: a JSON or YAML list of role/content
// pairs. Relative paths are resolved against dir.
func LoadSeeds(dir, file string) ([]conversation.Message, error) {
	path := resolve(dir, file)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed prompts file: %w", err)
	}
	var raw []seedMessage
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("seed prompts file %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("seed prompts file %s: %w", path, err)
	}
	msgs := make([]conversation.Message, 0, len(raw))
	for i, m := range raw {
		role, err := conversation.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("seed prompts file %s: entry %d: %w", path, i, err)
		}
		msgs = append(msgs, conversation.Message{Role: role, Content: m.Content})
	}
	return msgs, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Deps are the shared services agents are built on.
type Deps struct {
	Registry *registry.Registry
	Loader   agent.Loader
	Tools    *tool.Registry
	Logger   logging.Logger
}

// BuildRoster creates every agent of specs.
func BuildRoster(s Settings, specs map[string]AgentSpec, deps Deps) (*agent.Roster, error) {
	if deps.Registry == nil || deps.Loader == nil || deps.Tools == nil {
		return nil, errors.New("config: registry, loader and tools are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NoOpLogger{}
	}
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)

	roster := agent.NewRoster()
	for _, name := range names {
		a, err := buildAgent(s, name, specs[name], deps)
		if err != nil {
			return nil, err
		}
		if err := roster.Add(a); err != nil {
			return nil, err
		}
		deps.Logger.Info("agent initialized", "agent", name, "model", a.Model().ID)
	}
	return roster, nil
}

func buildAgent(s Settings, name string, spec AgentSpec, deps Deps) (*agent.Agent, error) {
	if err := spec.Validate(name); err != nil {
		return nil, err
	}
	model, err := deps.Registry.Model(spec.Model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	body, err := LoadPrompts(s.PromptsDir, spec.Prompts)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	var seed []conversation.Message
	if spec.SeedPromptsFile != "" {
		if seed, err = LoadSeeds(s.SeedsDir, spec.SeedPromptsFile); err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
	}

	appendix := protocol.Guidelines()
	if len(spec.Tools) > 0 {
		desc, err := deps.Tools.Describe(spec.Tools...)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		appendix += "\n\n" + desc
	}

	refinement := refine.DefaultPolicy()
	if spec.Refinement != nil {
		refinement = *spec.Refinement
	}

	return agent.New(name, model, deps.Loader, func(o *agent.Options) {
		o.Description = spec.Description
		o.Instruction = agent.NewInstructionFromFunc(func(state map[string]any) (string, error) {
			text, err := util.RenderTemplate(body, state)
			if err != nil {
				return "", err
			}
			return text + "\n\n" + appendix, nil
		})
		o.Seed = seed
		o.Inference = *spec.Inference
		o.Summarization = *spec.Summarization
		o.Refinement = refinement
		o.Tools = spec.Tools
		o.MaxCorrections = s.MaxCorrections
		o.Logger = deps.Logger
	})
}
