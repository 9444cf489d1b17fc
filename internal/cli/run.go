package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/performance/engine"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/output"
	"github.com/wesleyorama2/groomload/internal/storage"
)

type runOptions struct {
	configFlags

	outputs          []string
	quiet            bool
	noColor          bool
	metricsAddr      string
	historyPath      string
	noHistory        bool
	liveThresholds   bool
	progressInterval time.Duration
	stopTimeout      time.Duration

	stdout io.Writer
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Run a load test",
		Long: `Run every scenario of a configuration concurrently, then judge the
result against its thresholds.

Config file mode:
  groomload run salon.yaml

Quick mode with a built-in scenario:
  groomload run --body appointments --base-url http://localhost:8091/api \
    --username admin --password admin123 --profile smoke

Quick mode against a single path:
  groomload run --url /health --base-url http://localhost:8091 --vus 5 --duration 1m

The exit status is 0 for PASS, 1 for FAIL and 2 for ABORTED or an invalid
configuration. The first interrupt ends the profiles early; the run still
drains and reports, as ABORTED. A second one cancels in-flight requests.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.stdout == nil {
				opts.stdout = cmd.OutOrStdout()
			}
			return runLoad(cmd, args, opts)
		},
	}

	opts.configFlags.register(cmd)
	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.outputs, "out", "o", nil, "Write the report to a file; format from extension (.json, .yaml, .xml, .html). Repeatable")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output, show only the verdict")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	flags.StringVar(&opts.historyPath, "history", "", "History file (default ~/.groomload/history.db)")
	flags.BoolVar(&opts.noHistory, "no-history", false, "Do not save the report to the history")
	flags.BoolVar(&opts.liveThresholds, "live-thresholds", false, "Evaluate thresholds on a rolling window while running")
	flags.DurationVar(&opts.progressInterval, "progress-interval", 0, "Live progress interval (default 1s on a terminal, 10s otherwise)")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", 30*time.Second, "How long the first interrupt waits for in-flight iterations")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := opts.load(args)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	if opts.liveThresholds {
		if cfg.Options == nil {
			cfg.Options = &config.ExecutionOptions{}
		}
		if cfg.Options.LiveThresholds == nil {
			cfg.Options.LiveThresholds = &config.LiveThresholdsConfig{}
		}
		cfg.Options.LiveThresholds.Enabled = true
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engineOpts := []engine.Option{engine.WithLogger(logger)}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" && cfg.Options != nil {
		metricsAddr = cfg.Options.MetricsAddr
	}
	if metricsAddr != "" {
		observer := metrics.NewPrometheusObserver()
		srv, err := serveMetrics(metricsAddr, observer, logger)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		defer shutdownMetrics(srv, logger)
		engineOpts = append(engineOpts, engine.WithObserver(observer))
	}

	eng, err := engine.NewEngine(cfg, engineOpts...)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	console := output.NewConsole(output.Config{
		Writer:  opts.stdout,
		Quiet:   opts.quiet,
		NoColor: opts.noColor,
	})
	console.PrintHeader(output.Header{
		Name:      cfg.Name,
		RunID:     eng.RunID(),
		BaseURL:   cfg.Settings.BaseURL,
		AuthMode:  cfg.Settings.Auth.Mode,
		Scenarios: eng.Scenarios(),
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := handleSignals(ctx, eng, cancel, opts.stopTimeout, logger)
	defer stopSignals()

	interval := opts.progressInterval
	if interval <= 0 {
		interval = time.Second
		if !console.IsTTY() {
			interval = 10 * time.Second
		}
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		output.Watch(watchCtx, eng, console, interval)
	}()

	report, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if report == nil {
		return &ExitError{Code: 2, Err: runErr}
	}

	console.PrintSummary(report)

	for _, path := range opts.outputs {
		if err := writeReport(path, report); err != nil {
			logger.Error("failed to write report", zap.String("path", path), zap.Error(err))
			continue
		}
		if !opts.quiet {
			fmt.Fprintf(opts.stdout, "Report: %s\n", path)
		}
	}

	if !opts.noHistory {
		saveHistory(opts.historyPath, cfg, report, logger)
	}

	if code := report.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// handleSignals stops the engine on the first interrupt and cancels the
// run on the second. The returned function releases the handler.
func handleSignals(ctx context.Context, eng *engine.Engine, cancel context.CancelFunc, stopTimeout time.Duration, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		stopping := false
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if stopping {
					logger.Warn("second signal, cancelling in-flight requests", zap.String("signal", sig.String()))
					cancel()
					return
				}
				stopping = true
				logger.Warn("signal received, stopping profiles", zap.String("signal", sig.String()))
				go func() {
					stopCtx, stopCancel := context.WithTimeout(ctx, stopTimeout)
					defer stopCancel()
					if err := eng.Stop(stopCtx); err != nil {
						logger.Warn("stop did not finish cleanly", zap.Error(err))
					}
				}()
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func serveMetrics(addr string, observer *metrics.PrometheusObserver, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observer.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

func shutdownMetrics(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
}

func writeReport(path string, report *engine.Report) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return output.WriteFile(path, report)
}

// historyFile picks the flag, then the config option, then the default.
func historyFile(flagPath string, cfg *config.TestConfig) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if cfg != nil && cfg.Options != nil && cfg.Options.HistoryPath != "" {
		return cfg.Options.HistoryPath, nil
	}
	return storage.DefaultPath()
}

func saveHistory(flagPath string, cfg *config.TestConfig, report *engine.Report, logger *zap.Logger) {
	path, err := historyFile(flagPath, cfg)
	if err != nil {
		logger.Warn("no history path", zap.Error(err))
		return
	}

	store, err := storage.Open(path)
	if err != nil {
		logger.Warn("failed to open history", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Save(report); err != nil {
		logger.Warn("failed to save report to history", zap.Error(err))
		return
	}
	logger.Debug("report saved to history", zap.String("path", path), zap.String("run_id", report.RunID))
}
