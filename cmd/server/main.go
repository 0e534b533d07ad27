package main

import (
	"fmt"
	"os"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/handlers"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "booktalk",
	Short: "BookTalk API server",
	Long: `BookTalk serves the book club REST API.

  booktalk serve      Start the HTTP server (default)
  booktalk migrate    Apply database migrations and seed the admin account`,
	Version:       handlers.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logger.Info("migrations_applied", nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	logger.Init()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
