package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/internal/database"
	"github.com/jgoulah/espisync/internal/logging"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "espisync",
	Short: "Copy ESPI interval usage data into InfluxDB",
	Long: `espisync downloads a Green Button (ESPI) usage feed, converts each electric
interval reading to UTC and kWh, and writes it to InfluxDB as an energy_usage point.
Readings can also be archived to a local SQLite database and published over MQTT.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "archive database file (default is archive.path from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the archive database path
func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	if cfg.Archive.Path != "" {
		return cfg.Archive.Path
	}
	return config.DefaultArchivePath()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the logger for a command
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(cfg.Logging, version)
}

// openDB opens the archive database connection
func openDB(cfg *config.Config) (*database.DB, error) {
	path := getDBPath(cfg)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}
