package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits/journal"
)

var journalFlags struct {
	pool   string
	kind   string
	key    string
	since  time.Duration
	limit  int
	format string
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the slot event journal",
	Long: `Query and prune the SQLite slot event journal written by "admission run"
when journal.enabled is true and journal.backend is sqlite.

Subcommands:
  query   - List journaled slot events with filters
  prune   - Delete events older than journal.retention`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List journaled slot events",
	Long: `List journaled slot events, oldest first.

Examples:
  # Last hour of expirations in the api pool
  admission journal query --pool api --kind expired --since 1h

  # Export the first 1000 events as CSV
  admission journal query --limit 1000 --output csv > events.csv`,
	RunE: queryJournal,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events older than the retention period",
	RunE:  pruneJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd)
	journalCmd.AddCommand(journalPruneCmd)

	journalQueryCmd.Flags().StringVar(&journalFlags.pool, "pool", "", "filter by pool name")
	journalQueryCmd.Flags().StringVar(&journalFlags.kind, "kind", "", "filter by event kind: taken, rejected, confirmed, cancelled, expired")
	journalQueryCmd.Flags().StringVar(&journalFlags.key, "key", "", "filter by slot key")
	journalQueryCmd.Flags().DurationVar(&journalFlags.since, "since", 0, "only events newer than this duration")
	journalQueryCmd.Flags().IntVar(&journalFlags.limit, "limit", 100, "maximum number of events (0 for all)")
	journalQueryCmd.Flags().StringVarP(&journalFlags.format, "output", "o", "text", "output format: text, json, csv")
}

// openJournal opens the configured journal backend.
func openJournal(cfg config.JournalConfig) (journal.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		return journal.NewSQLiteBackend(cfg.SQLitePath)
	case "memory", "":
		return journal.NewMemoryBackend(0), nil
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Backend)
	}
}

// openPersistentJournal opens the journal for offline inspection. Only the
// SQLite backend outlives the process that wrote it.
func openPersistentJournal(cmd *cobra.Command) (journal.Backend, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Journal.Backend != "sqlite" {
		return nil, nil, cli.NewConfigError(cfgFile, fmt.Errorf("journal.backend is %q; only sqlite journals can be inspected", cfg.Journal.Backend))
	}
	backend, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, nil, err
	}
	return backend, cfg, nil
}

func queryJournal(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(journalFlags.format)
	if err != nil {
		return err
	}

	backend, _, err := openPersistentJournal(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	filter := &journal.Filter{
		Pool:  journalFlags.pool,
		Kind:  journalFlags.kind,
		Key:   journalFlags.key,
		Limit: journalFlags.limit,
	}
	if journalFlags.since > 0 {
		filter.Since = time.Now().Add(-journalFlags.since)
	}

	records, err := backend.Query(commandContext(cmd), filter)
	if err != nil {
		return cli.NewCommandError("journal query", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), recordTable(records))
}

func pruneJournal(cmd *cobra.Command, args []string) error {
	backend, cfg, err := openPersistentJournal(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	deleted, err := journal.NewPruner(backend, cfg.Journal.Retention).Prune(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d events older than %s\n", deleted, cfg.Journal.Retention)
	return nil
}

// recordTable renders journal records.
type recordTable []*journal.Record

// Header implements cli.Table.
func (t recordTable) Header() []string {
	return []string{"recorded_at", "pool", "key", "kind", "reason", "serial", "remaining", "held"}
}

// Rows implements cli.Table.
func (t recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.RecordedAt.Format(time.RFC3339Nano),
			r.Pool,
			r.Key,
			r.Kind,
			r.Reason,
			strconv.FormatInt(r.Serial, 10),
			strconv.FormatInt(r.Remaining, 10),
			r.Held.String(),
		})
	}
	return rows
}
