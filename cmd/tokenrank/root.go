package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	apiURL  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokenrank",
	Short: "Token usage leaderboard service and CLI",
	Long: `TokenRank ranks coding-agent users by their token consumption.

It ingests OTLP metrics from agent telemetry exporters, keeps durable
per-user token counters, and serves a ranked leaderboard.

Server:
  tokenrank serve     # Start the leaderboard server

CLI:
  tokenrank login     # Log in via device flow and store an API key
  tokenrank status    # Show the stored credentials and current rank
  tokenrank logout    # Remove stored credentials`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tokenrank.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "leaderboard API base URL")
}
