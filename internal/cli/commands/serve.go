package commands

import (
	"context"
	"net/http"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/api"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/web/auth"
	"github.com/hippocampushub/hubportal/internal/web/server"
	"github.com/hippocampushub/hubportal/internal/web/websocket"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		Long: `Run the portal HTTP server.

Configuration comes from hubportal.yaml (or --config) and HUBPORTAL_*
environment variables. --port and --host override server.port and
server.host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().String("host", "", "Host to bind")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}

	recorder, err := a.history(ctx)
	if err != nil {
		return err
	}
	limiter, err := a.limiter(ctx)
	if err != nil {
		return err
	}

	manager := portal.NewManager(a.catalog, a.fetcher, portal.ManagerConfig{
		IdleTTL:       cfg.Sessions.IdleTTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		MaxSessions:   cfg.Sessions.Max,
		History:       recorder,
		Logger:        a.logger,
	})
	runCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go manager.Run(runCtx)

	ws := websocket.NewServer(ctx, &websocket.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(cfg.Server.CORSOrigins),
	}, a.logger)
	ws.Start()

	handler, err := api.New(api.Config{
		Manager:        manager,
		Cache:          a.cache,
		Data:           a.data,
		Auth:           auth.NewAuthService(cfg.Admin.JWTSecret, cfg.Admin.Issuer, cfg.Admin.TokenTTL),
		WebSocket:      ws,
		Limiter:        limiter,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Profiling:      cfg.Admin.Profiling,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	serverConfig := server.DefaultConfig(handler)
	serverConfig.Address = cfg.Server.Addr()
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.IdleTimeout = cfg.Server.IdleTimeout

	srv, err := server.New(serverConfig)
	if err != nil {
		return err
	}

	shutdownConfig := server.DefaultShutdownConfig()
	shutdownConfig.Timeout = cfg.Server.ShutdownTimeout
	shutdownConfig.Logger = a.logger
	gs := server.NewGracefulShutdown(srv, shutdownConfig)

	// sockets first, so no push races the session teardown
	gs.RegisterHook(func(context.Context) error {
		ws.Shutdown()
		return nil
	})
	gs.RegisterHook(func(context.Context) error {
		stopSweep()
		manager.Shutdown()
		return nil
	})

	a.logger.Info("starting portal",
		zap.String("addr", serverConfig.Address),
		zap.Strings("views", a.catalog.Names()),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("history", cfg.History.Enabled),
	)
	return gs.Run(ctx)
}

// checkOrigin accepts same-origin upgrades plus the configured CORS origins
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		return sameOrigin(r, origin)
	}
}

func sameOrigin(r *http.Request, origin string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	return false
}
