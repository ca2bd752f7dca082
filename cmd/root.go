// Package cmd implements the discusswatch command-line interface: the serve
// command runs the polling cache and HTTP API, refresh performs a one-shot
// pass, and sources inspects the registry.
package cmd

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "discusswatch",
		Short: "Multi-source discussion cache",
		Long: `discusswatch polls forum and governance backends on a tiered
schedule and serves the aggregated metadata from an in-process cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so config environment overrides are in place.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newSourcesCommand())
}
