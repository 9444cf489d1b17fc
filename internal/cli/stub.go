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
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/salon"
)

func newStubCmd() *cobra.Command {
	var (
		addr string
		opts salon.StubOptions
	)

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve an in-memory salon API to run scenarios against",
		Long: `Start a stand-in for the salon API. It accepts the configured admin
credentials and any --user accounts, issues rotating token pairs and answers
every endpoint the built-in scenarios call. A logout revokes every token of
the account. Use --latency and --error-rate to shape it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			opts.Logger = logger

			if opts.ErrorRate < 0 || opts.ErrorRate > 1 {
				return &ExitError{Code: 2, Err: fmt.Errorf("--error-rate must be between 0 and 1, got %g", opts.ErrorRate)}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveStub(ctx, addr, opts, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8091", "Listen address")
	cmd.Flags().StringVar(&opts.Username, "username", "admin", "Accepted admin username (empty accepts any)")
	cmd.Flags().StringVar(&opts.Password, "password", "admin123", "Accepted admin password")
	cmd.Flags().StringToStringVar(&opts.Users, "user", nil, "Further accepted account as name=password (repeatable)")
	cmd.Flags().DurationVar(&opts.Latency, "latency", 0, "Delay added to every response")
	cmd.Flags().Float64Var(&opts.ErrorRate, "error-rate", 0, "Fraction of data requests answered with 500")
	return cmd
}

// serveStub serves the stub API until ctx is done.
func serveStub(ctx context.Context, addr string, opts salon.StubOptions, out io.Writer, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	stub := salon.NewStub(opts)
	srv := &http.Server{Handler: stub, ReadHeaderTimeout: 5 * time.Second}
	fmt.Fprintf(out, "Stub salon API listening on http://%s/api\n", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("stub shutdown", zap.Error(err))
		}
	}

	logger.Info("stub stopped", zap.Int64("requests", stub.Requests()))
	return nil
}
