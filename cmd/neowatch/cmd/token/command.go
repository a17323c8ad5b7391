// Package token provides the neowatch token command.
package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/cmd/application"
	"github.com/agentstation/neowatch/internal/cmd/output"
	"github.com/agentstation/neowatch/pkg/errors"
)

// Issued is the output of token issue.
type Issued struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCommand creates the token command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "token",
		GroupID: "management",
		Short:   "Manage API bearer tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newIssueCommand(app))
	return cmd
}

func newIssueCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token",
		Long: `Issue signs an HS256 bearer token with the configured auth.jwt_secret
(NEOWATCH_AUTH_JWT_SECRET). Operator tokens may mutate events; viewer
tokens may only read.`,
		Example: `  neowatch token issue --subject ops-dashboard --role operator --ttl 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roleName, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			role := auth.Role(roleName)
			if role != auth.RoleOperator && role != auth.RoleViewer {
				return errors.NewValidationError("role", roleName, "must be operator or viewer")
			}

			cfg := app.AuthConfig()
			issuer, err := auth.NewIssuer(cfg.Secret, cfg.Issuer)
			if err != nil {
				return err
			}
			expiresAt := time.Now().Add(ttl).UTC().Truncate(time.Second)
			signed, err := issuer.Issue(subject, role, ttl)
			if err != nil {
				return err
			}

			format := output.Format(app.OutputFormat())
			if format == "" {
				// Bare token for scripts: TOKEN=$(neowatch token issue ...)
				_, err := fmt.Fprintln(cmd.OutOrStdout(), signed)
				return err
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), Issued{
				Token:     signed,
				Subject:   subject,
				Role:      role,
				ExpiresAt: expiresAt,
			})
		},
	}
	cmd.Flags().String("subject", "", "Token subject (required)")
	cmd.Flags().String("role", string(auth.RoleOperator), "Role: operator or viewer")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
