package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/config"
	"github.com/go-go-golems/figaro/pkg/format"
	"github.com/go-go-golems/figaro/pkg/relay"
)

func newQueryCommand() *cobra.Command {
	var agentName string
	var stream bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Run a single natural-language query from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(configFile)
			if err != nil {
				return err
			}

			r, router, err := buildRelay(settings)
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()

			if agentName == "" {
				agentName = settings.DefaultAgent
			}

			opts := relay.QueryOptions{}
			if stream {
				opts.Observer = func(delta *agentapi.Delta) {
					for _, item := range delta.Content {
						if text, ok := item.(agentapi.TextContent); ok {
							fmt.Print(text.Text)
						}
					}
				}
			}

			response, err := r.Query(cmd.Context(), agentName, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			if stream {
				fmt.Println()
			}

			for _, result := range response.Results {
				fmt.Println(result.Summary)
				if result.Insights != "" {
					fmt.Println(result.Insights)
				}
				if len(result.Rows) > 0 {
					fmt.Println()
					fmt.Print(format.RenderTable(result.Rows, settings.RowDisplayLimit))
				}
				if result.SQL != "" {
					fmt.Printf("\nSQL: %s\n", result.SQL)
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Agent configuration to use (default: from settings)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print deltas as they arrive")

	return cmd
}
