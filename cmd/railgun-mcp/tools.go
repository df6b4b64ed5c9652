package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/samsavage/railgun-mcp/internal/mcpserver"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the MCP tools this server exposes",
	Run: func(_ *cobra.Command, _ []string) {
		tools := mcpserver.Tools()
		color.New(color.Bold).Printf("%d tools\n\n", len(tools))
		for _, t := range tools {
			fmt.Printf("  %s\n", color.CyanString(t.Name))
			fmt.Printf("      %s\n", t.Description)
		}
	},
}
