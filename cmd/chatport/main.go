// Command chatport converts third-party chat export bundles into the
// server import format.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chatport/chatport/internal/config"
)

var (
	version = "dev"

	flagOutput   string
	flagConfig   string
	flagWorkers  int
	flagVerbose  bool
	flagProgress bool
)

var rootCmd = &cobra.Command{
	Use:     "chatport",
	Short:   "chat history converter",
	Long:    "chatport converts Slack and Mattermost exports, and chat archive databases,\ninto an importable data set.",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl := slog.LevelInfo
		if flagVerbose {
			lvl = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagOutput, "output", "o", "chatport-output", "output `directory` (must be empty or absent)")
	pf.StringVarP(&flagConfig, "config", "c", "", "configuration `file`")
	pf.IntVar(&flagWorkers, "workers", 0, "download worker count (overrides the config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&flagProgress, "progress", true, "show the progress bar")

	rootCmd.AddCommand(slackCmd, mattermostCmd, databaseCmd)
}

// loadParams merges flag overrides over the configuration file.
func loadParams() (config.Params, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Params{}, err
	}
	if flagWorkers < 0 {
		return config.Params{}, fmt.Errorf("invalid worker count: %d", flagWorkers)
	}
	if flagWorkers > 0 {
		cfg.Convert.Workers = flagWorkers
	}
	return cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
