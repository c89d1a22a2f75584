package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/agentrelay/logging"
)

// Setting keys.
const (
	KeyAgentsFile     = "agents_file"
	KeyModelsFile     = "models_file"
	KeyPromptsDir     = "prompts_dir"
	KeySeedsDir       = "seeds_dir"
	KeyEntryAgent     = "entry_agent"
	KeyMaxSteps       = "max_steps"
	KeyMaxCorrections = "max_corrections"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyToolsWorkDir   = "tools.workdir"
)

const (
	configName = "agentrelay"
	configType = "yaml"
	envPrefix  = "AGENTRELAY"
)

// Settings are the process level options.
type Settings struct {
	AgentsFile     string `mapstructure:"agents_file"`
	ModelsFile     string `mapstructure:"models_file"`
	PromptsDir     string `mapstructure:"prompts_dir"`
	SeedsDir       string `mapstructure:"seeds_dir"`
	EntryAgent     string `mapstructure:"entry_agent"`
	MaxSteps       int    `mapstructure:"max_steps"`
	MaxCorrections int    `mapstructure:"max_corrections"`
	Log            struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Tools struct {
		WorkDir string `mapstructure:"workdir"`
	} `mapstructure:"tools"`
}

// NewViper returns a viper instance with defaults, the config file search
// path and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAgentsFile, "agents.yaml")
	v.SetDefault(KeyModelsFile, "models.yaml")
	v.SetDefault(KeyPromptsDir, "prompts")
	v.SetDefault(KeySeedsDir, "seeds")
	v.SetDefault(KeyEntryAgent, "Zeus")
	v.SetDefault(KeyMaxSteps, 50)
	v.SetDefault(KeyMaxCorrections, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyToolsWorkDir, "")
	return v
}

// Load reads the config file when present and decodes the settings.
func Load(v *viper.Viper) (Settings, error) {
	if v == nil {
		v = NewViper()
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, s.Validate()
}

// Validate checks the decoded settings.
func (s Settings) Validate() error {
	if s.AgentsFile == "" {
		return errors.New(KeyAgentsFile + " is required")
	}
	if s.ModelsFile == "" {
		return errors.New(KeyModelsFile + " is required")
	}
	if s.EntryAgent == "" {
		return errors.New(KeyEntryAgent + " is required")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("%s must not be negative, got %d", KeyMaxSteps, s.MaxSteps)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return err
	}
	return nil
}

// Logger builds the process logger from the log settings, writing to w.
func (s Settings) Logger(w io.Writer) *logging.RelayLogger {
	level, err := logging.ParseLevel(s.Log.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = w
	if s.Log.Format != "" {
		cfg.Format = s.Log.Format
	}
	return logging.NewLogger(cfg)
}
