package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/registry"
)

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	name   lipgloss.Style
	detail lipgloss.Style
	empty  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true),
		header: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		name:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail: lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(2),
		empty:  lipgloss.NewStyle().Faint(true),
	}
}

type entry struct {
	name    string
	details []string
}

func render(title string, entries []entry) string {
	s := newStyles()
	lines := []string{
		s.title.Render(title),
		s.header.Render(fmt.Sprintf("count: %d", len(entries))),
	}
	if len(entries) == 0 {
		lines = append(lines, s.empty.Render("Nothing configured."))
	}
	for _, e := range entries {
		lines = append(lines, s.name.Render(e.name))
		for _, d := range e.details {
			lines = append(lines, s.detail.Render(d))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func writeOutput(cmd *cobra.Command, asJSON bool, v any, title string, entries []entry) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), render(title, entries))
	return err
}

type modelView struct {
	ID            string   `json:"id"`
	Key           string   `json:"key"`
	Backend       string   `json:"backend"`
	Kind          string   `json:"kind"`
	ContextLength int      `json:"context_length"`
	GPURatio      float64  `json:"gpu_ratio"`
	StopStrings   []string `json:"stop_strings,omitempty"`
}

func newModelsCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the configured backends and models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(v)
			if err != nil {
				return err
			}
			reg, err := registry.LoadFile(s.ModelsFile)
			if err != nil {
				return err
			}
			views := []modelView{}
			entries := []entry{}
			for _, m := range reg.Models() {
				views = append(views, modelView{
					ID:            m.ID,
					Key:           m.Key,
					Backend:       m.Backend.ID,
					Kind:          m.Backend.Kind,
					ContextLength: m.ContextLength,
					GPURatio:      m.ResourceRatio,
					StopStrings:   m.StopSequences,
				})
				entries = append(entries, entry{name: m.ID, details: []string{
					fmt.Sprintf("backend: %s (%s, max loaded %d)", m.Backend.ID, m.Backend.Kind, m.Backend.MaxLoaded),
					fmt.Sprintf("key: %s", m.Key),
					fmt.Sprintf("context length: %d, gpu ratio: %.2f", m.ContextLength, m.ResourceRatio),
				}})
			}
			return writeOutput(cmd, asJSON, views, "Models", entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}

type agentView struct {
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Description string   `json:"description,omitempty"`
	Prompts     []string `json:"prompts"`
	Tools       []string `json:"tools"`
	Refinement  bool     `json:"refinement"`
}

func newAgentsCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents of the roster file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(v)
			if err != nil {
				return err
			}
			specs, err := config.LoadAgents(s.AgentsFile)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(specs))
			for n := range specs {
				names = append(names, n)
			}
			sort.Strings(names)

			views := []agentView{}
			entries := []entry{}
			for _, n := range names {
				spec := specs[n]
				tools := spec.Tools
				if tools == nil {
					tools = []string{}
				}
				refinement := spec.Refinement != nil && spec.Refinement.Enabled
				views = append(views, agentView{
					Name:        n,
					Model:       spec.Model,
					Description: spec.Description,
					Prompts:     spec.Prompts,
					Tools:       tools,
					Refinement:  refinement,
				})
				details := []string{fmt.Sprintf("model: %s", spec.Model)}
				if spec.Description != "" {
					details = append(details, spec.Description)
				}
				if len(tools) > 0 {
					details = append(details, "tools: "+strings.Join(tools, ", "))
				}
				if n == s.EntryAgent {
					details = append(details, "entry agent")
				}
				entries = append(entries, entry{name: n, details: details})
			}
			return writeOutput(cmd, asJSON, views, "Agents", entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}

type toolView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Arguments   []string `json:"arguments"`
}

func newToolsCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools agents can be given",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(v)
			if err != nil {
				return err
			}
			tools, err := agentrelay.NewTools(s, registry.New(), agent.NewRoster())
			if err != nil {
				return err
			}
			views := []toolView{}
			entries := []entry{}
			for _, t := range tools.Tools() {
				args := []string{}
				for _, p := range t.Params() {
					args = append(args, fmt.Sprintf("%s (%s)", p.Name, p.Type))
				}
				desc := strings.SplitN(strings.TrimSpace(t.Description()), "\n", 2)[0]
				views = append(views, toolView{Name: t.Name(), Description: desc, Arguments: args})
				details := []string{desc}
				if len(args) > 0 {
					details = append(details, "arguments: "+strings.Join(args, ", "))
				}
				entries = append(entries, entry{name: t.Name(), details: details})
			}
			return writeOutput(cmd, asJSON, views, "Tools", entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}
