// lifeplan serves the schedule, fitness, coaching and wealth planner API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lifeplan/internal/config"
	appLog "lifeplan/internal/log"
)

// Build-time variables (set via -ldflags).
var version = "dev"

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lifeplan",
	Short:         "Personal schedule and savings planner",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", path, err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Log.Level = lvl
		}
		appLog.Configure(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "/etc/lifeplan/config.yaml", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(waterfallCmd)
	rootCmd.AddCommand(plansCmd)
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lifeplan %s\n", version)
	},
}
