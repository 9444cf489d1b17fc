package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/groomload/internal/logging"
	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

func newValidateCmd() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Check a configuration without sending any traffic",
		Long: `Load a configuration the same way 'run' does, including environment and
flag overrides, and report every problem found. Nothing is sent to the
salon API.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(args)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			eng, err := engine.NewEngine(cfg, engine.WithLogger(logging.Nop()))
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			printValidation(cmd.OutOrStdout(), cfg, eng)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printValidation(w io.Writer, cfg *config.TestConfig, eng *engine.Engine) {
	fmt.Fprintf(w, "✓ %s is valid\n", cfg.Name)
	if cfg.Settings.BaseURL != "" {
		fmt.Fprintf(w, "  Target:    %s\n", cfg.Settings.BaseURL)
	}
	fmt.Fprintf(w, "  Auth mode: %s\n", cfg.Settings.Auth.Mode)

	for _, name := range eng.Scenarios() {
		sc := cfg.Scenarios[name]
		d, _ := config.ParseScenarioDuration(sc)

		source := sc.Body
		if source == "" {
			source = fmt.Sprintf("%d requests", len(sc.Requests))
		}
		fmt.Fprintf(w, "  Scenario %s: %s, %s, %s\n", name, sc.Executor, source, d)
		if len(sc.Thresholds) > 0 {
			fmt.Fprintf(w, "    thresholds: %s\n", formatThresholds(sc.Thresholds))
		}
	}

	if len(cfg.Thresholds) > 0 {
		fmt.Fprintf(w, "  Thresholds: %s\n", formatThresholds(cfg.Thresholds))
	}
}

func formatThresholds(m map[string][]string) string {
	selectors := make([]string, 0, len(m))
	for s := range m {
		selectors = append(selectors, s)
	}
	sort.Strings(selectors)

	parts := make([]string, 0, len(selectors))
	for _, s := range selectors {
		parts = append(parts, fmt.Sprintf("%s %s", s, strings.Join(m[s], ", ")))
	}
	return strings.Join(parts, "; ")
}
