package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/groomload/internal/performance/config"
)

// configFlags are the flags shared by run and validate. They either point
// at a config file or describe a single quick scenario.
type configFlags struct {
	configPath string

	// quick mode
	name     string
	body     string
	url      string
	profile  string
	stages   string
	vus      int
	duration string

	// overrides, applied after the environment
	baseURL  string
	username string
	password string
	authMode string
	maxRPS   float64
}

func (f *configFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Configuration file (YAML or JSON)")

	flags.StringVar(&f.name, "name", "", "Run name for a quick run")
	flags.StringVar(&f.body, "body", "", "Built-in scenario to run without a config file (see 'groomload scenarios')")
	flags.StringVar(&f.url, "url", "", "Path or URL to GET in a quick run without a config file")
	flags.StringVar(&f.profile, "profile", "", "Stage preset for a quick run: standard, smoke, stress")
	flags.StringVar(&f.stages, "stages", "", "Stages for a quick run in format 'duration:target,duration:target,...'")
	flags.IntVar(&f.vus, "vus", 0, "Constant number of virtual users for a quick run")
	flags.StringVar(&f.duration, "duration", "", "Duration of a constant-vus quick run (e.g., 5m, 30s)")

	flags.StringVar(&f.baseURL, "base-url", "", "Salon API base URL (overrides BASE_URL and the config file)")
	flags.StringVar(&f.username, "username", "", "Setup login username (overrides ADMIN_USER)")
	flags.StringVar(&f.password, "password", "", "Setup login password (overrides ADMIN_PASS)")
	flags.StringVar(&f.authMode, "auth-mode", "", "Session mode: isolated or shared (overrides AUTH_MODE)")
	flags.Float64Var(&f.maxRPS, "max-rps", 0, "Cap the request rate across all virtual users")
}

func (f *configFlags) quick() bool {
	return f.body != "" || f.url != ""
}

// load builds the run configuration: file or quick scenario first, then
// environment overrides, then flag overrides.
func (f *configFlags) load(args []string) (*config.TestConfig, error) {
	path := f.configPath
	if path == "" && len(args) > 0 {
		path = args[0]
	}

	var cfg *config.TestConfig
	switch {
	case path != "" && f.quick():
		return nil, errors.New("--body and --url cannot be combined with a config file")
	case path != "":
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	case f.quick():
		built, err := f.buildQuickConfig()
		if err != nil {
			return nil, err
		}
		cfg = built
	default:
		return nil, errors.New("either a config file, --body or --url is required")
	}

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)
	f.applyOverrides(cfg)
	return cfg, nil
}

func (f *configFlags) applyOverrides(cfg *config.TestConfig) {
	if f.baseURL != "" {
		cfg.Settings.BaseURL = f.baseURL
	}
	if f.username != "" {
		cfg.Settings.Auth.Username = f.username
	}
	if f.password != "" {
		cfg.Settings.Auth.Password = f.password
	}
	if f.authMode != "" {
		cfg.Settings.Auth.Mode = f.authMode
	}
	if f.maxRPS > 0 {
		cfg.Settings.MaxRPS = f.maxRPS
	}
}

// buildQuickConfig builds a single-scenario config from flags.
func (f *configFlags) buildQuickConfig() (*config.TestConfig, error) {
	if f.body != "" && f.url != "" {
		return nil, errors.New("--body and --url are mutually exclusive")
	}

	scenario := &config.ScenarioConfig{Body: f.body}
	scenarioName := f.body
	if f.url != "" {
		scenarioName = "quick"
		scenario.Requests = []config.RequestConfig{{
			Name:   "GET " + f.url,
			Method: "GET",
			URL:    f.url,
		}}
	}

	switch {
	case f.stages != "":
		parsed, err := parseStages(f.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		scenario.Executor = "ramping-vus"
		scenario.Stages = parsed
	case f.vus > 0:
		scenario.Executor = "constant-vus"
		scenario.VUs = f.vus
		scenario.Duration = f.duration
		if scenario.Duration == "" {
			scenario.Duration = "30s"
		}
	case f.profile != "":
		scenario.Executor = "ramping-vus"
		scenario.Profile = f.profile
	case f.url != "":
		// Built-in bodies bring their own profile; a bare URL gets the
		// smallest one.
		scenario.Executor = "ramping-vus"
		scenario.Profile = "smoke"
	}

	name := f.name
	if name == "" {
		name = "quick " + scenarioName
	}

	return &config.TestConfig{
		Name:      name,
		Scenarios: map[string]*config.ScenarioConfig{scenarioName: scenario},
	}, nil
}

// parseStages parses stages from CLI format "30s:10,2m:10,30s:0"
func parseStages(stagesStr string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	parts := strings.Split(stagesStr, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// Parse "duration:target" format
		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		if _, err := time.ParseDuration(durationStr); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %d: target must not be negative", i+1)
		}

		stages = append(stages, config.StageConfig{
			Duration: durationStr,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}
