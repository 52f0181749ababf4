package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/cli/ui"
	"github.com/hippocampushub/hubportal/internal/web/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin endpoints",
		Long: `Issue an HS256 bearer token signed with admin.jwt_secret.

The token is printed alone on stdout so it can be captured:

  curl -H "Authorization: Bearer $(hubportal token)" localhost:3000/admin/sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Admin.TokenTTL
			}

			svc := auth.NewAuthService(cfg.Admin.JWTSecret, cfg.Admin.Issuer, ttl)
			token, err := svc.GenerateToken(subject, roles)
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error()+": set admin.jwt_secret or HUBPORTAL_ADMIN_JWT_SECRET", nil, noColor(cmd)))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "cli", "Token subject, logged by admin actions")
	cmd.Flags().StringSlice("role", []string{auth.RoleAdmin}, "Roles to grant")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default admin.token_ttl)")
	return cmd
}
