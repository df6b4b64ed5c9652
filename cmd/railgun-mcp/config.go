package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sum := cfg.Summary()

		bold := color.New(color.Bold)
		bold.Println("Railgun MCP configuration")
		fmt.Println()

		source := sum.ConfigFile
		if source == "" {
			source = "(none, environment and defaults only)"
		}
		fmt.Printf("  Config file:      %s\n", source)
		fmt.Printf("  API URL:          %s\n", sum.APIURL)
		fmt.Printf("  API key:          %s\n", setOrMissing(sum.APIKeySet))
		fmt.Printf("  Wallet password:  %s\n", setOrMissing(sum.WalletPasswordSet))
		fmt.Printf("  Private key:      %s\n", setOrMissing(sum.PrivateKeySet))
		fmt.Printf("  Default network:  %s\n", sum.DefaultNetwork)
		fmt.Printf("  Storage:          %s\n", sum.Storage)
		fmt.Printf("  Transport:        %s\n", cfg.Transport)
		fmt.Println()

		bold.Println("RPC endpoints")
		names := make([]string, 0, len(sum.RPCEndpoints))
		for name := range sum.RPCEndpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-10s %s\n", name, sum.RPCEndpoints[name])
		}

		if !cfg.EngineConfigured() {
			fmt.Println()
			color.Yellow("Set RAILGUN_API_KEY to enable private balances and transfers.")
		}
		return nil
	},
}

func setOrMissing(ok bool) string {
	if ok {
		return color.GreenString("set")
	}
	return color.RedString("not set")
}
