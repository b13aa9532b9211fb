// Package cli implements the radar command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"narrativeradar/internal/app"
	"narrativeradar/internal/config"
	"narrativeradar/internal/logging"
)

var (
	dbPath     string
	logLevel   string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "radar",
	Short:         "Fortnightly narrative radar",
	Long:          "Compares two adjacent windows of developer, on-chain, discourse and social activity and ranks the narratives that moved.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $RADAR_DB_PATH or data/radar.db)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $RADAR_CONFIG)")
}

// Execute runs the root command and reports errors on stderr.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("RADAR_CONFIG", configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// openApp wires the application with logs on stderr so stdout stays machine-readable.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(cfg, logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel))
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
