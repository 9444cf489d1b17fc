package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/logging"
)

var version = "0.1.0"

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCmd builds the groomload command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "groomload",
		Short:   "Load generator for the grooming-salon API",
		Version: version,
		Long: `groomload drives virtual users against the grooming-salon API along
staged load profiles, collects per-request metrics and judges the run
against latency and error-rate thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "Log format: console or json")
	root.PersistentFlags().String("log-output", "stderr", "Log destination: stdout, stderr or a file path")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newScenariosCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newStubCmd())
	return root
}

// Execute runs the CLI and returns the process exit status. This is called
// by main.main().
func Execute() int {
	return execute(NewRootCmd(), os.Args[1:], os.Stderr)
}

func execute(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(stderr, "Error:", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

// newLogger builds the logger from the persistent logging flags.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	out, _ := cmd.Flags().GetString("log-output")

	logger, err := logging.New(logging.Config{Level: level, Format: format, Output: out})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
