package main

import (
	"github.com/spf13/cobra"

	"github.com/samsavage/railgun-mcp/internal/mcpserver"
)

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "railgun-mcp",
	Short: "MCP server for private transactions on the Railgun protocol",
	Long: `railgun-mcp exposes Railgun wallets, shielded balances, private transfers,
recipes and relayers as Model Context Protocol tools.

Configuration comes from environment variables, then ~/.railgun/config.json,
then built-in defaults.

Examples:
  railgun-mcp init                  # Write a starter config file
  railgun-mcp serve                 # Serve MCP over stdio
  railgun-mcp serve --transport sse # Serve MCP over SSE on MCP_LISTEN_ADDR
  railgun-mcp config                # Show the effective configuration
  railgun-mcp tools                 # List the tools`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	mcpserver.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
