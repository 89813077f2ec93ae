// ABOUTME: Entry point for the murmur chat server and its command-line client
// ABOUTME: Wires cobra commands, .env loading and signal handling

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var version = "dev"

const banner = `
  _ __ ___  _   _ _ __ _ __ ___  _   _ _ __
 | '_ ' _ \| | | | '__| '_ ' _ \| | | | '__|
 | | | | | | |_| | |  | | | | | | |_| | |
 |_| |_| |_|\__,_|_|  |_| |_| |_|\__,_|_|
`

// getConfigPath returns the path to the server config file.
// Priority: MURMUR_CONFIG env var > XDG_CONFIG_HOME/murmur/config.yaml > ~/.config/murmur/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MURMUR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "murmur", "config.yaml")
}

// loadDotEnv reads .env from the working directory when present.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "murmur",
		Short:         "murmur - chat sessions backed by a local Ollama model",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", getConfigPath(), "configuration file path (yaml or toml)")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newClientCmds()...)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
