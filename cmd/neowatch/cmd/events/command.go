// Package events provides the neowatch events command for reading the
// configured store directly.
package events

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/neowatch/internal/cmd/application"
	"github.com/agentstation/neowatch/internal/cmd/output"
	"github.com/agentstation/neowatch/pkg/special"
)

// NewCommand creates the events command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event", "ev"},
		GroupID: "core",
		Short:   "Read special events from the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newGetCommand(app))
	return cmd
}

func newListCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events in dashboard order",
		Example: `  neowatch events list --active
  neowatch events list --type interstellar_object --min-priority high -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			st, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			list, err := st.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return output.FormatEvents(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()), list)
		},
	}
	cmd.Flags().Bool("active", false, "Only active events")
	cmd.Flags().StringSlice("type", nil, "Only these event types")
	cmd.Flags().StringSlice("origin", nil, "Only these origins")
	cmd.Flags().String("min-priority", "", "Only events at or above this priority")
	return cmd
}

func parseFilter(cmd *cobra.Command) (special.Filter, error) {
	var f special.Filter
	var err error
	if f.ActiveOnly, err = cmd.Flags().GetBool("active"); err != nil {
		return f, err
	}

	types, err := cmd.Flags().GetStringSlice("type")
	if err != nil {
		return f, err
	}
	for _, raw := range types {
		t, err := special.ParseType(raw)
		if err != nil {
			return f, err
		}
		f.Types = append(f.Types, t)
	}

	origins, err := cmd.Flags().GetStringSlice("origin")
	if err != nil {
		return f, err
	}
	for _, raw := range origins {
		o, err := special.ParseOrigin(raw)
		if err != nil {
			return f, err
		}
		f.Origins = append(f.Origins, o)
	}

	minPriority, err := cmd.Flags().GetString("min-priority")
	if err != nil {
		return f, err
	}
	if minPriority != "" {
		if f.MinPriority, err = special.ParsePriority(minPriority); err != nil {
			return f, err
		}
	}
	return f, nil
}

func newGetCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			e, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output.FormatEvent(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()), e)
		},
	}
}
