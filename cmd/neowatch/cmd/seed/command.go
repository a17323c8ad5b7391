// Package seed provides the neowatch seed command.
package seed

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/neowatch/internal/cmd/application"
	"github.com/agentstation/neowatch/internal/cmd/output"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/mutation"
	"github.com/agentstation/neowatch/internal/seed"
)

// NewCommand creates the seed command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "seed <file>",
		GroupID: "management",
		Short:   "Create events from a YAML file",
		Long: `Seed creates every event listed in a YAML file, in file order.

The file is validated before anything is written. Seeding stops at the
first event the store rejects; events before it stay created.

Seed writes to the configured store directly. A server sharing the same
SQL database announces the new events to its observers within its change
poll interval. To seed a running server's in-memory store, use
"neowatch serve --seed <file>" instead.`,
		Example: `  neowatch seed events.yaml
  neowatch seed events.yaml --dry-run -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := seed.Load(args[0])
			if err != nil {
				return err
			}

			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return err
			}
			if dryRun {
				return output.NewFormatter(output.FormatYAML).Format(cmd.OutOrStdout(), seed.File{Events: entries})
			}

			ctx := cmd.Context()
			st, err := app.Store(ctx)
			if err != nil {
				return err
			}
			logger := app.Logger()
			serializer, err := mutation.New(ctx, st, discard{logger: logger}, mutation.WithLogger(logger))
			if err != nil {
				return err
			}

			res, err := seed.Apply(ctx, serializer, entries)
			logger.Info().Str("file", args[0]).Int("created", len(res.Created)).Msg("Seeded events")
			if err != nil {
				return err
			}
			return output.FormatEvents(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()), res.Created)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Validate and print the parsed file without writing")
	return cmd
}

// discard publishes nowhere; no observers are attached outside serve.
type discard struct {
	logger *zerolog.Logger
}

func (d discard) Publish(n events.Notification) {
	d.logger.Debug().Uint64("sequence", n.Sequence).Str("kind", string(n.Kind)).Msg("Committed")
}
