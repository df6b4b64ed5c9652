package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsavage/railgun-mcp/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter ~/.railgun/config.json",
	Long: `Init asks for the Railgun API key, a default wallet password and the
default network, then writes them to config.json in the Railgun home
directory (RAILGUN_HOME, default ~/.railgun). An existing file is never
overwritten.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("no-password", false, "skip the default wallet password prompt")
}

func runInit(cmd *cobra.Command, _ []string) error {
	home := os.Getenv("RAILGUN_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		home = filepath.Join(dir, config.DefaultHomeDirName)
	}
	path := filepath.Join(home, config.DefaultConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; edit it directly", path)
	}

	in := bufio.NewReader(os.Stdin)
	fc := map[string]any{}

	apiKey, err := prompt(in, "Railgun API key (leave empty to skip): ")
	if err != nil {
		return err
	}
	if apiKey != "" {
		fc["api_key"] = apiKey
	}

	network, err := prompt(in, fmt.Sprintf("Default network [%s]: ", config.DefaultNetwork))
	if err != nil {
		return err
	}
	if network == "" {
		network = config.DefaultNetwork
	}
	if _, ok := config.DefaultRPCEndpoints[network]; !ok {
		return fmt.Errorf("unknown network %q", network)
	}
	fc["default_network"] = network

	if skip, _ := cmd.Flags().GetBool("no-password"); !skip {
		password, err := readPassword()
		if err != nil {
			return err
		}
		if password != "" {
			fc["wallet_password"] = password
		}
	}

	if err := config.WriteFile(path, fc); err != nil {
		return err
	}
	color.Green("Wrote %s", path)
	fmt.Println("Environment variables still override anything in this file.")
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword prompts twice without echo. An empty answer means wallets
// need a password on every call.
func readPassword() (string, error) {
	fmt.Print("Default wallet password (leave empty to skip): ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	if len(password) == 0 {
		return "", nil
	}
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters long")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	fmt.Println()
	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}
