package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewlane/guildsync/internal/config"
	"github.com/crewlane/guildsync/internal/db"
	"github.com/crewlane/guildsync/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "guildsync",
	Short:   "GuildSync mirrors a project management workspace into Discord",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synchronization service",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level, cfg.Log.Format)
		if err := db.Migrate(cfg.Postgres); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
