package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/aether/internal/config"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "aether",
	Short: "AETHER - remote code execution gateway",
	Long: `AETHER is an authenticated gateway that runs code in disposable remote
sandboxes. Every request gets a fresh sandbox that is destroyed before the
response is returned.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./aether.yaml or ~/.aether/aether.yaml)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
