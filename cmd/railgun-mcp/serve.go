package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools (stdio by default)",
	Long: `Serve the Railgun tools over MCP.

stdio is the default transport. Logs go to stderr so stdout carries only
protocol frames. With --transport sse or http the server listens on
MCP_LISTEN_ADDR instead.`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
	addServeFlags(rootCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("transport", "", "override MCP_TRANSPORT (stdio, sse, http)")
	cmd.Flags().String("listen", "", "override MCP_LISTEN_ADDR for the sse and http transports")
	cmd.Flags().String("metrics-addr", "", "override METRICS_ADDR for /healthz, /readyz and /metrics")
}

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"log-level":    &cfg.LogLevel,
		"transport":    &cfg.Transport,
		"listen":       &cfg.ListenAddr,
		"metrics-addr": &cfg.MetricsAddr,
	}
	for name, dst := range overrides {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting railgun-mcp",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"transport", cfg.Transport,
		"default_network", cfg.DefaultNetwork,
		"networks", cfg.Networks(),
		"engine_configured", cfg.EngineConfigured(),
	)
	if !cfg.EngineConfigured() {
		logger.Warn("RAILGUN_API_KEY is not set; private balance and transfer tools will fail")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.close()

	s := mcpserver.NewMCPServer(mcpserver.Deps{
		Rail:   a.rail,
		Prices: a.prices,
		Config: cfg,
		Logger: logger,

		SendLimiter: a.limiter,
	})
	if err := mcpserver.Serve(ctx, s, cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}
