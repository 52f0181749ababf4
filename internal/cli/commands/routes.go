package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/api"
	"github.com/hippocampushub/hubportal/internal/cli/ui"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/web/auth"
	"github.com/hippocampushub/hubportal/internal/web/router"
	"github.com/hippocampushub/hubportal/internal/web/websocket"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes the server would register",
		Long: `List the HTTP routes serve registers under the current configuration,
with their names and parameters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg := a.cfg
			handler, err := api.New(api.Config{
				Manager:     portal.NewManager(a.catalog, a.fetcher, portal.ManagerConfig{Logger: a.logger}),
				Cache:       a.cache,
				Data:        a.data,
				Auth:        auth.NewAuthService(cfg.Admin.JWTSecret, cfg.Admin.Issuer, cfg.Admin.TokenTTL),
				WebSocket:   websocket.NewServer(ctx, nil, a.logger),
				CORSOrigins: cfg.Server.CORSOrigins,
				Profiling:   cfg.Admin.Profiling,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			routes := handler.Routes()
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), routes)
			}

			table := ui.NewTable(cmd.OutOrStdout(), []string{"Method", "Pattern", "Name", "Parameters"}, &ui.TableOptions{NoColor: noColor(cmd)})
			for _, r := range routes {
				table.AddRow(r.Method, r.Pattern, r.Name, describeParams(r.Parameters))
			}
			table.Render()
			return nil
		},
	}
	addJSONFlag(cmd)
	return cmd
}

// describeParams renders path parameters as {name} and query parameters as ?name
func describeParams(params []router.RouteParameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Source == router.QueryParam {
			parts = append(parts, "?"+p.Name)
			continue
		}
		parts = append(parts, "{"+p.Name+"}")
	}
	return strings.Join(parts, " ")
}
