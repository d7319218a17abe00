// Command sift runs the entity search service: an HTTP API over the
// Elasticsearch entity index, plus the index maintenance commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/siftd/sift/internal/config"
)

var (
	configFile string
	settings   *config.Settings
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sift",
	Short:         "Sanctions and PEP entity search service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(configFile)
		if err != nil {
			return err
		}
		logger = newLogger(settings)
		slog.SetDefault(logger)
		return nil
	},
}

func newLogger(settings *config.Settings) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if settings.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
