package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/policysync/pkg/cli"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "policysync",
	Short: "Policysync - git-backed policy and data distribution",
	Long: `Policysync distributes authorization policy and data from a git-versioned
source of truth to policy agents in near real time.

  - bundle and diff build policy bundles from repository commits
  - watch publishes changed policy directories as commits land
  - client subscribes to data topics and keeps a local policy store in sync`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "policysync.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, yaml)")
}

// loadConfig installs the process configuration and logger. A missing
// config file is only an error when --config was given explicitly.
func loadConfig(cmd *cobra.Command) error {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		config.SetConfig(config.NewDefaultConfig())
	} else if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	cfg := config.GetConfig()
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	return nil
}
