package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
)

var validateFlags struct {
	format string
	watch  bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and ADMISSION_* environment
overrides, and report every validation problem found.

Examples:
  # Validate the default config file
  admission validate

  # Validate a specific file and print the resolved pools as JSON
  admission validate --config /etc/admission/admission.yaml --output json

  # Re-validate every time the file is saved
  admission validate --config admission.yaml --watch`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.format, "output", "o", "text", "output format: text, json, csv")
	validateCmd.Flags().BoolVarP(&validateFlags.watch, "watch", "w", false, "re-validate whenever the config file changes")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err == nil {
		err = printValid(cmd.OutOrStdout(), format, cfg)
	}
	if !validateFlags.watch {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
	}

	return watchConfig(cmd, format)
}

// watchConfig re-validates the config file on every change until
// interrupted. Validation failures are reported, not returned.
func watchConfig(cmd *cobra.Command, format cli.OutputFormat) error {
	w, err := config.NewWatcher(cfgFile, 0)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Watching %s for changes (Ctrl-C to stop)\n", cfgFile)

	return w.Watch(ctx, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintf(errOut, "✗ %v\n", cli.NewConfigError(cfgFile, err))
			return
		}
		if err := printValid(out, format, cfg); err != nil {
			fmt.Fprintf(errOut, "✗ %v\n", err)
		}
	})
}

func printValid(out io.Writer, format cli.OutputFormat, cfg *config.Config) error {
	if format == cli.FormatText {
		fmt.Fprintln(out, "✓ Configuration valid")
		fmt.Fprintln(out)
	}
	return cli.NewFormatter(format).FormatTo(out, newPoolTable(cfg.Limits))
}

// poolTable lists the resolved pool settings.
type poolTable struct {
	Pools []poolRow `json:"pools"`
}

type poolRow struct {
	Name      string `json:"name"`
	Capacity  int64  `json:"capacity"`
	TTL       string `json:"ttl"`
	Strategy  string `json:"strategy"`
	RateLimit string `json:"rate_limit"`
}

func newPoolTable(cfg config.LimitsConfig) poolTable {
	names := make([]string, 0, len(cfg.Pools))
	for name := range cfg.Pools {
		names = append(names, name)
	}
	sort.Strings(names)

	var t poolTable
	for _, name := range names {
		p := cfg.Pools[name]
		gate := "off"
		if p.RateLimit.Enabled {
			gate = fmt.Sprintf("%s %d/%s", p.RateLimit.Algorithm, p.RateLimit.Capacity, p.RateLimit.Interval)
			if p.RateLimit.HighTraffic {
				gate += " high-traffic"
			}
		}
		t.Pools = append(t.Pools, poolRow{
			Name:      name,
			Capacity:  p.Capacity,
			TTL:       p.TTL.String(),
			Strategy:  p.Strategy,
			RateLimit: gate,
		})
	}
	return t
}

// Header implements cli.Table.
func (t poolTable) Header() []string {
	return []string{"pool", "capacity", "ttl", "strategy", "rate_limit"}
}

// Rows implements cli.Table.
func (t poolTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Pools))
	for _, p := range t.Pools {
		rows = append(rows, []string{p.Name, strconv.FormatInt(p.Capacity, 10), p.TTL, p.Strategy, p.RateLimit})
	}
	return rows
}
