// Package main is the entry point for the photo wall server.
//
// COMMANDS:
//
//	wall serve   [--config path]   run the HTTP and websocket server
//	wall migrate [--config path]   apply schema migrations and report the version
//	wall config init [path]        write a default config file
//
// Configuration comes from an optional TOML file, then environment
// variables (PORT, DB_PATH, JWT_SECRET, SMTP_*, TELEGRAM_*, S3_*, ...).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/photo-wall/internal/config"
	sqliteRepo "github.com/sakif/photo-wall/internal/repository/sqlite"
	"github.com/sakif/photo-wall/internal/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

// newLogger builds the process logger from the [log] section.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

var rootCmd = &cobra.Command{
	Use:          "wall",
	Short:        "Live photo wall server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, os.Getenv)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)

		srv, err := server.New(cfg, logger)
		if err != nil {
			logger.Error("failed to create server", slog.String("error", err.Error()))
			return err
		}

		// Start blocks until SIGINT or SIGTERM.
		if err := srv.Start(); err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			return err
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, os.Getenv)
		if err != nil {
			return err
		}

		// Opening the database applies any pending migrations.
		db, err := sqliteRepo.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", cfg.Database.Path, err)
		}
		defer db.Close()

		status, err := db.SchemaStatus()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("Schema version: %d (latest %d)\n", status.Version, status.Latest)
		if !status.UpToDate() {
			return fmt.Errorf("schema is not up to date (dirty=%v)", status.Dirty)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "wall.toml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.Init(path, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Println("Set auth.jwt_secret (or JWT_SECRET) before running in production.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
