package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/telemetry/logging"
)

var runFlags struct {
	pool         string
	requests     int
	concurrency  int
	confirmRatio float64
	cancelRatio  float64
	hold         time.Duration
	serve        bool
	logLevel     string
	format       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the configured pools with a synthetic load",
	Long: `Build every configured pool and run a synthetic workload against it.

Each simulated request takes a slot under a fresh UUID, holds it for --hold,
then confirms it, cancels it, or abandons it so that it expires. A summary
per pool is printed when the load finishes. Prometheus metrics are served
while the command runs when telemetry.metrics.enabled is true.

Examples:
  # Run with the default config
  admission run

  # Heavier load against a single pool
  admission run --pool api --requests 100000 --concurrency 64

  # Abandon half the slots and keep serving /metrics afterwards
  admission run --confirm-ratio 0.3 --cancel-ratio 0.2 --serve`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.pool, "pool", "p", "", "only load this pool (default: all pools, round robin)")
	runCmd.Flags().IntVarP(&runFlags.requests, "requests", "n", 1000, "number of simulated requests")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 8, "number of concurrent callers")
	runCmd.Flags().Float64Var(&runFlags.confirmRatio, "confirm-ratio", 0.6, "fraction of granted slots that are confirmed")
	runCmd.Flags().Float64Var(&runFlags.cancelRatio, "cancel-ratio", 0.2, "fraction of granted slots that are cancelled")
	runCmd.Flags().DurationVar(&runFlags.hold, "hold", 2*time.Millisecond, "how long a caller holds a slot before resolving it")
	runCmd.Flags().BoolVar(&runFlags.serve, "serve", false, "keep serving metrics after the load until interrupted")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVarP(&runFlags.format, "output", "o", "text", "summary format: text, json, csv")
}

func runLoad(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runFlags.format)
	if err != nil {
		return err
	}
	if runFlags.requests < 0 || runFlags.concurrency <= 0 {
		return fmt.Errorf("--requests must not be negative and --concurrency must be positive")
	}
	if runFlags.confirmRatio < 0 || runFlags.cancelRatio < 0 || runFlags.confirmRatio+runFlags.cancelRatio > 1 {
		return fmt.Errorf("--confirm-ratio and --cancel-ratio must be non-negative and sum to at most 1")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	logCfg.Writer = cmd.ErrOrStderr()
	logger, err := logging.New(logCfg)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger.Slog())

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	opts := limits.Options{
		Logger: logger.Slog(),
		OnExpire: func(ctx context.Context, pool, id string) {
			slog.Debug("slot expired", "pool", pool, "request_id", id)
		},
	}

	// Metrics
	var metricsURL string
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = limits.NewMetrics(reg)

		srv, addr, err := startMetricsServer(cfg.Telemetry.Metrics, opts.Metrics)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer shutdownMetricsServer(srv)
		metricsURL = fmt.Sprintf("http://%s%s", addr, cfg.Telemetry.Metrics.Path)
		logger.Info("metrics server listening", "url", metricsURL)
	}

	// Journal
	var recorder *journal.Recorder
	if cfg.Journal.Enabled {
		backend, err := openJournal(cfg.Journal)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer backend.Close()

		recorder = journal.NewRecorder(backend, journal.RecorderConfig{
			AsyncBuffer:  cfg.Journal.AsyncBuffer,
			WriteTimeout: cfg.Journal.WriteTimeout,
		})
		defer recorder.Close()
		opts.Observers = append(opts.Observers, recorder)

		scheduler := journal.NewScheduler(journal.NewPruner(backend, cfg.Journal.Retention), cfg.Journal.PruneSchedule)
		if err := scheduler.Start(ctx); err != nil {
			logger.Warn("failed to start journal retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}
		logger.Info("journal enabled", "backend", cfg.Journal.Backend)
	}

	registry, err := limits.NewRegistry(cfg.Limits, opts)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer registry.Close()

	pools := registry.Pools()
	if runFlags.pool != "" {
		if _, err := registry.Pool(runFlags.pool); err != nil {
			return cli.NewCommandError("run", err)
		}
		pools = []string{runFlags.pool}
	}

	progress := cli.NewProgress(cmd.ErrOrStderr(), int64(runFlags.requests))
	stats := simulate(ctx, registry, logger, simConfig{
		Pools:        pools,
		Requests:     runFlags.requests,
		Concurrency:  runFlags.concurrency,
		ConfirmRatio: runFlags.confirmRatio,
		CancelRatio:  runFlags.cancelRatio,
		Hold:         runFlags.hold,
	}, progress.Record)
	progress.Finish()

	remaining := registry.Stop()

	summary := newRunSummary(pools, stats, remaining)
	if recorder != nil {
		// Flush pending journal writes before reporting.
		recorder.Close()
		summary.JournalWritten = recorder.Written()
		summary.JournalDropped = recorder.Dropped()
	}

	out := cmd.OutOrStdout()
	if err := cli.NewFormatter(format).FormatTo(out, summary); err != nil {
		return cli.NewCommandError("run", err)
	}
	if format == cli.FormatText && recorder != nil {
		fmt.Fprintf(out, "\njournal: %d written, %d dropped\n", summary.JournalWritten, summary.JournalDropped)
	}

	if runFlags.serve && metricsURL != "" && ctx.Err() == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n✓ Metrics endpoint: %s\nPress Ctrl+C to stop\n", metricsURL)
		<-ctx.Done()
	}

	return nil
}

// startMetricsServer serves the metrics handler on cfg.ListenAddress and
// returns the bound address.
func startMetricsServer(cfg config.MetricsConfig, m *limits.Metrics) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return srv, ln.Addr().String(), nil
}

func shutdownMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown failed", "error", err)
	}
}

// simConfig describes a synthetic workload.
type simConfig struct {
	Pools        []string
	Requests     int
	Concurrency  int
	ConfirmRatio float64
	CancelRatio  float64
	Hold         time.Duration
}

// poolStats counts simulated outcomes for one pool.
type poolStats struct {
	taken     atomic.Int64
	denied    atomic.Int64
	confirmed atomic.Int64
	cancelled atomic.Int64
	abandoned atomic.Int64

	// late counts confirms and cancels that lost the race with expiry.
	late atomic.Int64
}

// simulate runs cfg.Requests take attempts spread round robin over cfg.Pools.
// It stops early when ctx is cancelled. record is called once per attempt.
func simulate(ctx context.Context, registry *limits.Registry, logger *logging.Logger, cfg simConfig, record func(granted bool)) map[string]*poolStats {
	stats := make(map[string]*poolStats, len(cfg.Pools))
	for _, p := range cfg.Pools {
		stats[p] = &poolStats{}
	}
	if len(cfg.Pools) == 0 {
		return stats
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pool := cfg.Pools[i%len(cfg.Pools)]
				granted := simulateOne(ctx, registry, logger, cfg, pool, stats[pool])
				if record != nil {
					record(granted)
				}
			}
		}()
	}

dispatch:
	for i := 0; i < cfg.Requests; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return stats
}

func simulateOne(ctx context.Context, registry *limits.Registry, logger *logging.Logger, cfg simConfig, pool string, st *poolStats) bool {
	id := uuid.NewString()
	reqCtx := logging.WithRequestID(logging.WithPool(ctx, pool), id)

	res, err := registry.Take(reqCtx, pool, id)
	if err != nil {
		logger.ErrorContext(reqCtx, "take failed", "error", err)
		st.denied.Add(1)
		return false
	}
	if !res.Granted {
		st.denied.Add(1)
		return false
	}
	st.taken.Add(1)
	logger.DebugContext(reqCtx, "slot taken", "serial", res.Serial)

	if cfg.Hold > 0 {
		select {
		case <-time.After(cfg.Hold):
		case <-ctx.Done():
		}
	}

	switch r := rand.Float64(); {
	case r < cfg.ConfirmRatio:
		ok, err := registry.Confirm(pool, id)
		recordResolution(reqCtx, logger, "confirm", ok, err, &st.confirmed, &st.late)
	case r < cfg.ConfirmRatio+cfg.CancelRatio:
		ok, err := registry.Cancel(pool, id)
		recordResolution(reqCtx, logger, "cancel", ok, err, &st.cancelled, &st.late)
	default:
		st.abandoned.Add(1)
	}
	return true
}

// recordResolution counts a confirm or cancel result. A slot that expired
// first counts as late; an error is logged and not counted.
func recordResolution(ctx context.Context, logger *logging.Logger, action string, ok bool, err error, resolved, late *atomic.Int64) {
	switch {
	case err != nil:
		logger.ErrorContext(ctx, action+" failed", "error", err)
	case ok:
		resolved.Add(1)
	default:
		late.Add(1)
		logger.WarnContext(ctx, "slot expired before "+action)
	}
}

// runSummary is the per-pool outcome of a run.
type runSummary struct {
	Pools          []poolSummary `json:"pools"`
	JournalWritten int64         `json:"journal_written,omitempty"`
	JournalDropped int64         `json:"journal_dropped,omitempty"`
}

type poolSummary struct {
	Name      string `json:"name"`
	Taken     int64  `json:"taken"`
	Denied    int64  `json:"denied"`
	Confirmed int64  `json:"confirmed"`
	Cancelled int64  `json:"cancelled"`
	Abandoned int64  `json:"abandoned"`
	Late      int64  `json:"late"`
	Remaining int64  `json:"remaining"`
}

func newRunSummary(pools []string, stats map[string]*poolStats, remaining map[string]int64) runSummary {
	var s runSummary
	for _, name := range pools {
		st := stats[name]
		s.Pools = append(s.Pools, poolSummary{
			Name:      name,
			Taken:     st.taken.Load(),
			Denied:    st.denied.Load(),
			Confirmed: st.confirmed.Load(),
			Cancelled: st.cancelled.Load(),
			Abandoned: st.abandoned.Load(),
			Late:      st.late.Load(),
			Remaining: remaining[name],
		})
	}
	return s
}

// Header implements cli.Table.
func (s runSummary) Header() []string {
	return []string{"pool", "taken", "denied", "confirmed", "cancelled", "abandoned", "late", "remaining"}
}

// Rows implements cli.Table.
func (s runSummary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Pools))
	for _, p := range s.Pools {
		rows = append(rows, []string{
			p.Name,
			strconv.FormatInt(p.Taken, 10),
			strconv.FormatInt(p.Denied, 10),
			strconv.FormatInt(p.Confirmed, 10),
			strconv.FormatInt(p.Cancelled, 10),
			strconv.FormatInt(p.Abandoned, 10),
			strconv.FormatInt(p.Late, 10),
			strconv.FormatInt(p.Remaining, 10),
		})
	}
	return rows
}
