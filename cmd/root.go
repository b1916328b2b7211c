package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jsphweid/metalign/config"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	logLevel     string
	searchConfig config.SearchConfig
)

var rootCmd = &cobra.Command{
	Use:   "metalign",
	Short: "Aligns notes to voices, beats and meter",
	Long: `metalign runs an incremental joint beam search over note events and
reports the best voice, beat lattice and meter hypotheses.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel); err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		searchConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML search config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "DEBUG, INFO, WARN or ERROR")
}

func setupLogging(level string) error {
	var l slog.Level
	if level == "" {
		level = "INFO"
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
