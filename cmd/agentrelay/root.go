package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
)

// deps are the parts of the command tree tests replace.
type deps struct {
	factories func(logger logging.Logger) *backend.Factories
}

func defaultDeps() deps {
	return deps{factories: func(logger logging.Logger) *backend.Factories {
		return agentrelay.DefaultFactories(logger, nil)
	}}
}

func Execute() error {
	return newRootCmd(defaultDeps()).Execute()
}

func newRootCmd(d deps) *cobra.Command {
	v := config.NewViper()
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "agentrelay",
		Short: "agentrelay: chat with a team of LLM agents that delegate and use tools",
		Long: "agentrelay runs a roster of LLM agents behind one console. The active agent answers, " +
			"delegates to another agent or calls a tool; models are loaded on demand and evicted " +
			"per backend when its capacity is reached.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v, d)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./agentrelay.yaml)")
	pf.String("agents", "", "agents file (default agents.yaml)")
	pf.String("models", "", "models file (default models.yaml)")
	pf.String("prompts", "", "prompt directory (default prompts)")
	pf.String("seeds", "", "seed prompt directory (default seeds)")
	pf.String("entry", "", "agent receiving the first input (default Zeus)")
	pf.Int("max-steps", 0, "agent calls allowed per turn (default 50)")
	pf.String("log-level", "", "debug, info, warn or error (default info)")
	pf.String("log-format", "", "console, text or json (default console)")
	pf.String("workdir", "", "working directory of the file tools")
	bindFlags(v, pf, map[string]string{
		config.KeyAgentsFile:   "agents",
		config.KeyModelsFile:   "models",
		config.KeyPromptsDir:   "prompts",
		config.KeySeedsDir:     "seeds",
		config.KeyEntryAgent:   "entry",
		config.KeyMaxSteps:     "max-steps",
		config.KeyLogLevel:     "log-level",
		config.KeyLogFormat:    "log-format",
		config.KeyToolsWorkDir: "workdir",
	})

	rootCmd.AddCommand(
		newChatCmd(v, d),
		newModelsCmd(v),
		newAgentsCmd(v),
		newToolsCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

// bindFlags binds flags to setting keys. An unset flag leaves the config
// file, environment and defaults in charge.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}
