package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/salon"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in salon scenarios and stage presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printScenarios(cmd.OutOrStdout())
		},
	}
}

func printScenarios(w io.Writer) {
	fmt.Fprintln(w, "Scenarios:")
	for _, name := range salon.Names() {
		def, _ := salon.Lookup(name)
		fmt.Fprintf(w, "  %-14s %s\n", name, def.Description)

		auth := "own login"
		if def.SetupLogin {
			auth = "setup login"
		}
		if def.UsesLogout {
			auth += ", logs out"
		}
		fmt.Fprintf(w, "  %-14s profile %s, %s\n", "", def.Profile, auth)
		fmt.Fprintf(w, "  %-14s thresholds: %s\n", "", formatThresholds(def.Thresholds))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Profiles:")
	for _, name := range salon.ProfileNames() {
		stages, _ := salon.Profile(name)
		total, _ := config.ParseScenarioDuration(&config.ScenarioConfig{Stages: stages})
		fmt.Fprintf(w, "  %-14s %s, peak %d VUs: %s\n", name, total, peakTarget(stages), describeStages(stages))
	}
}

func peakTarget(stages []config.StageConfig) int {
	peak := 0
	for _, s := range stages {
		if s.Target > peak {
			peak = s.Target
		}
	}
	return peak
}

func describeStages(stages []config.StageConfig) string {
	out := ""
	for i, s := range stages {
		if i > 0 {
			out += " → "
		}
		d, err := config.ParseDurationString(s.Duration)
		if err != nil {
			d = time.Duration(0)
		}
		out += fmt.Sprintf("%s@%d", d, s.Target)
	}
	return out
}
