package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "buildforge",
	Short: "Distributed Conan package build coordinator",
	Long: `buildforge schedules and runs Conan package builds across repositories
and profiles, tracking the recipe/package dependency graph so that a build
blocked on a missing dependency re-triggers automatically once that
dependency becomes available.

Get started:
  buildforge run         Run every worker in one process (crawler, scheduler,
                          agent, watchdog, nudge RPC server)
  buildforge crawler      Run only the repo-crawling worker
  buildforge scheduler    Run only the commit-to-build fan-out worker
  buildforge agent        Run only the build-execution worker
  buildforge watchdog     Run only the stall-detection worker
  buildforge serve        Run only the nudge RPC server
  buildforge demoseed     Seed a database with a demo ecosystem
  buildforge config       View the current configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.buildforge/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		runCmd,
		crawlerCmd,
		schedulerCmd,
		agentCmd,
		watchdogCmd,
		serveCmd,
		demoSeedCmd,
		configCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
