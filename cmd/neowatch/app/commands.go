package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/neowatch/cmd/neowatch/cmd/events"
	"github.com/agentstation/neowatch/cmd/neowatch/cmd/seed"
	"github.com/agentstation/neowatch/cmd/neowatch/cmd/serve"
	"github.com/agentstation/neowatch/cmd/neowatch/cmd/token"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(events.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(seed.NewCommand(a))
	rootCmd.AddCommand(token.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(a.newVersionCommand())
}

// newVersionCommand creates the version command.
func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("neowatch %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
