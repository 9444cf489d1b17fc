package salon

import (
	"sort"

	"github.com/wesleyorama2/groomload/internal/performance/config"
)

// Profile names.
const (
	ProfileStandard = "standard"
	ProfileSmoke    = "smoke"
	ProfileStress   = "stress"
)

var profiles = map[string][]config.StageConfig{
	// ramp up, sustain, ramp up again, sustain, ramp down
	ProfileStandard: {
		{Duration: "30s", Target: 10, Name: "ramp-up"},
		{Duration: "1m", Target: 10, Name: "sustain"},
		{Duration: "30s", Target: 30, Name: "ramp-up-2"},
		{Duration: "1m", Target: 30, Name: "sustain-2"},
		{Duration: "30s", Target: 0, Name: "ramp-down"},
	},
	// minimal load to verify the system works
	ProfileSmoke: {
		{Duration: "30s", Target: 1, Name: "ramp-up"},
		{Duration: "1m", Target: 1, Name: "sustain"},
	},
	ProfileStress: {
		{Duration: "30s", Target: 10, Name: "warm-up"},
		{Duration: "1m", Target: 30, Name: "ramp-up"},
		{Duration: "30s", Target: 50, Name: "ramp-up-2"},
		{Duration: "1m", Target: 50, Name: "sustain"},
		{Duration: "30s", Target: 0, Name: "ramp-down"},
	},
}

// Profile returns a copy of the named stage preset.
func Profile(name string) ([]config.StageConfig, bool) {
	stages, ok := profiles[name]
	if !ok {
		return nil, false
	}
	out := make([]config.StageConfig, len(stages))
	copy(out, stages)
	return out, true
}

// ProfileNames lists the presets in alphabetical order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultThresholds are the bounds every salon scenario is held to.
func DefaultThresholds() map[string][]string {
	return map[string][]string{
		"http_req_duration": {"p(95)<500", "p(99)<1000"},
		"http_req_failed":   {"rate<0.01"},
	}
}

// ReportThresholds relax the latency bounds for the heavier report endpoints.
func ReportThresholds() map[string][]string {
	return map[string][]string{
		"http_req_duration": {"p(95)<1000", "p(99)<2000"},
		"http_req_failed":   {"rate<0.01"},
	}
}
