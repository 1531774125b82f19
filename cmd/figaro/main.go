package main

import (
	"database/sql"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/config"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/relay"
	"github.com/go-go-golems/figaro/pkg/warehouse"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "figaro",
	Short: "Relay natural-language queries to a data agent API and stream back results",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional, local development convenience
		_ = godotenv.Load()

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %s", logLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./figaro.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newQueryCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRelay wires the full pipeline from the settings: token provider,
// agent API client, agent registry, warehouse executor, event router and
// the relay itself.
func buildRelay(settings *config.Settings) (*relay.Relay, *events.EventRouter, error) {
	if settings.AgentEndpoint == "" {
		return nil, nil, errors.New("no agent endpoint configured")
	}

	var tokenProvider agentapi.TokenProvider
	if settings.TokenFile != "" {
		tokenProvider = agentapi.NewFileTokenProvider(settings.TokenFile)
	} else {
		tokenProvider = agentapi.NewEnvTokenProvider(settings.TokenEnv)
	}

	client := agentapi.NewClient(settings.AgentEndpoint, tokenProvider)

	agents, err := config.LoadRegistry(settings.AgentsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", settings.AgentsDir).Msg("Could not load agent registry, starting empty")
		agents = config.NewRegistry()
	}

	var executor warehouse.Executor
	if settings.WarehouseDSN != "" {
		db, err := sql.Open("snowflake", settings.WarehouseDSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not open warehouse connection")
		}
		executor = warehouse.NewSQLExecutor(db,
			warehouse.WithSessionContext(settings.WarehouseDatabase, settings.WarehouseSchema))
	} else {
		log.Warn().Msg("No warehouse DSN configured, SQL execution disabled")
	}

	router, err := events.NewEventRouter()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not create event router")
	}

	tracer := events.NewLogTracer(log.Logger, zerolog.TraceLevel)

	r := relay.NewRelay(client, agents, executor,
		relay.WithModel(settings.Model),
		relay.WithReasoningCapture(settings.CaptureReasoning),
		relay.WithToolResultVisibility(settings.ShowToolResults),
		relay.WithFallbackSQL(settings.FallbackSQL),
		relay.WithTracer(tracer),
		relay.WithEventSinks(events.NewWatermillSink(router.Publisher, settings.EventTopic)),
	)

	return r, router, nil
}
