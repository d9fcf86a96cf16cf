package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

const defaultConfigFile = "admission.yaml"

var rootCmd = &cobra.Command{
	Use:   "admission",
	Short: "Admission - quota slots with expiring reservations and permit gates",
	Long: `Admission manages named pools of quota slots.

A caller takes a slot, then confirms it (consumed) or cancels it (returned).
Slots that are neither confirmed nor cancelled within the pool's TTL expire
and return to the pool. An optional permit gate limits how many takes are
attempted per interval.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration file with environment overrides. When
// the default file is absent and --config was not given, built-in defaults
// are used instead.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config")

	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg, err := config.Parse(nil)
		if err != nil {
			return nil, cli.NewConfigError("", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}

// commandContext returns the command's context, or context.Background when
// the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
