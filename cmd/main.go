package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "formcoach",
		Short:         "Real-time exercise form feedback over WebSocket",
		Long:          "formcoach relays video frames to a vision model and streams the feedback back to the client as text and synthesized speech.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newAnalyzeCmd(&configPath),
		newStreamCmd(),
	)

	return rootCmd
}
