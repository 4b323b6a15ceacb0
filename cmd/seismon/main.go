// Command seismon ingests earthquake reports and predicts their effect on
// gravitational-wave detectors.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/config"
	"github.com/ligovirgo/seismon/internal/ui"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "seismon <command>",
	Short:         "Earthquake feed ingestion and detector impact prediction",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetColor(ui.ShouldUseColor(os.Stdout))

		level := logLevel
		if debug, _ := cmd.Flags().GetBool("debug"); debug && !cmd.Flags().Changed("log-level") {
			level = "debug"
		}
		l, err := newLogger(level, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(logger)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration: %w", err)
		}
		return nil
	},
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid --log-format %q (must be text or json)", format)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "C", config.DefaultPath, "path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Pipeline
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(exportCmd)

	// Queries
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(detectorsCmd)
	rootCmd.AddCommand(predictionsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
