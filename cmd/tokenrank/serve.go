package main

import (
	"fmt"

	"github.com/artpar/tokenrank/bootstrap"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the leaderboard server",
	Long: `Start the TokenRank server.

The server will:
  - Load configuration from tokenrank.yaml (or --config)
  - Or load configuration from TOKENRANK_* environment variables
  - Connect to Postgres and Redis (or run fully in-memory)
  - Accept OTLP metric submissions and serve the leaderboard

Environment variables (for Docker deployments):
  TOKENRANK_DATABASE_DRIVER - "postgres" or "memory" (default: memory)
  TOKENRANK_DATABASE_DSN    - Postgres DSN
  TOKENRANK_CACHE_MODE      - "redis" or "memory" (default: memory)
  TOKENRANK_CACHE_ADDR      - Redis address
  TOKENRANK_SERVER_PORT     - Server port (default: 8080)
  TOKENRANK_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  tokenrank serve
  tokenrank serve --config /etc/tokenrank/config.yaml

  # Docker (env vars only):
  TOKENRANK_DATABASE_DSN=postgres://... tokenrank serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
