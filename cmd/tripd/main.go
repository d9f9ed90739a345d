// Package main implements the tripd CLI for running POI retrieval
// pipelines from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML config; empty means the
	// default location plus TRIPD_ environment overrides.
	configFile string
	// version information, set at build time.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tripd",
	Short: "Personalized point-of-interest retrieval",
	Long: `tripd retrieves and ranks points of interest for a traveler persona,
combining a local vector store with live web search, durable caches,
and model-driven summarization and reranking.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tripd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default ~/.config/tripd/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
