package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings holds the service configuration, loaded from a config file with
// environment overrides (FIGARO_ prefix, dashes as underscores).
type Settings struct {
	// AgentEndpoint is the agent API URL queries are POSTed to.
	AgentEndpoint string `mapstructure:"agent-endpoint"`
	Model         string `mapstructure:"model"`
	DefaultAgent  string `mapstructure:"default-agent"`
	AgentsDir     string `mapstructure:"agents-dir"`

	// TokenEnv names the environment variable holding the bearer token;
	// TokenFile points at a token file instead. TokenFile wins when both
	// are set.
	TokenEnv  string `mapstructure:"token-env"`
	TokenFile string `mapstructure:"token-file"`

	WarehouseDSN      string `mapstructure:"warehouse-dsn"`
	WarehouseDatabase string `mapstructure:"warehouse-database"`
	WarehouseSchema   string `mapstructure:"warehouse-schema"`
	FallbackSQL       string `mapstructure:"fallback-sql"`

	// CaptureReasoning enables accumulation of thinking content into a
	// separate reasoning result.
	CaptureReasoning bool `mapstructure:"capture-reasoning"`
	// ShowToolResults folds raw tool results into the visible insights.
	ShowToolResults bool `mapstructure:"show-tool-results"`
	RowDisplayLimit int  `mapstructure:"row-display-limit"`

	ListenAddr string `mapstructure:"listen-addr"`
	EventTopic string `mapstructure:"event-topic"`

	LogLevel string `mapstructure:"log-level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "llama3.1-70b")
	v.SetDefault("token-env", "AGENT_API_TOKEN")
	v.SetDefault("agents-dir", "agents")
	v.SetDefault("capture-reasoning", false)
	v.SetDefault("show-tool-results", false)
	v.SetDefault("row-display-limit", 10)
	v.SetDefault("listen-addr", ":3978")
	v.SetDefault("event-topic", "figaro.events")
	v.SetDefault("log-level", "info")
}

// LoadSettings reads figaro.yaml from the working directory or
// $HOME/.figaro, merged with FIGARO_* environment variables. A missing
// config file is fine, the defaults and environment carry the day.
func LoadSettings(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("figaro")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "could not read config file %s", configFile)
		}
	} else {
		v.SetConfigName("figaro")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.figaro")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "could not read config file")
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal settings")
	}

	return settings, nil
}
