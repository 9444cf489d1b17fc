package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultBucketInterval  = time.Second
	DefaultLiveWindow      = 10 * time.Second
	DefaultLiveInterval    = time.Second
	DefaultSetupTimeout    = time.Minute
	DefaultTeardownTimeout = time.Minute
	DefaultUserAgent       = "groomload/1.0"
	DefaultAuthMode        = "isolated"
	DefaultLoginPath       = "/auth/login"
	DefaultRefreshPath     = "/auth/refresh"
	DefaultLogoutPath      = "/auth/logout"
)

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseScenarioDuration parses the duration for a scenario config.
//
// For stage-based executors, if no explicit duration is set,
// the total duration is calculated from all stages.
func ParseScenarioDuration(sc *ScenarioConfig) (time.Duration, error) {
	if sc.Duration != "" {
		return ParseDurationString(sc.Duration)
	}

	if len(sc.Stages) > 0 {
		var total time.Duration
		for _, stage := range sc.Stages {
			stageDur, err := ParseDurationString(stage.Duration)
			if err != nil {
				return 0, fmt.Errorf("invalid stage duration: %w", err)
			}
			total += stageDur
		}
		return total, nil
	}

	return 0, fmt.Errorf("no duration specified and no stages defined")
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// ResolveVariables replaces {{name}} placeholders with values from vars.
// {{baseUrl}} resolves to settings.BaseURL when vars does not define it.
// Unresolved variables are left as-is.
func ResolveVariables(input string, vars map[string]string, settings *GlobalSettings) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if settings != nil && (name == "baseUrl" || name == "baseURL") && settings.BaseURL != "" {
			return settings.BaseURL
		}
		return m
	})
}

// Placeholders returns the variable names referenced in input.
func Placeholders(input string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(input, -1) {
		names = append(names, m[1])
	}
	return names
}

// MergeVariables merges multiple variable maps in order.
// Later maps override earlier ones.
func MergeVariables(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	s := &config.Settings
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = 100
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}

	if s.Auth.Mode == "" {
		s.Auth.Mode = DefaultAuthMode
	}
	if s.Auth.LoginPath == "" {
		s.Auth.LoginPath = DefaultLoginPath
	}
	if s.Auth.RefreshPath == "" {
		s.Auth.RefreshPath = DefaultRefreshPath
	}
	if s.Auth.LogoutPath == "" {
		s.Auth.LogoutPath = DefaultLogoutPath
	}

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}
	opts := config.Options
	if opts.BucketInterval == 0 {
		opts.BucketInterval = Duration(DefaultBucketInterval)
	}
	if opts.SetupTimeout == 0 {
		opts.SetupTimeout = Duration(DefaultSetupTimeout)
	}
	if opts.TeardownTimeout == 0 {
		opts.TeardownTimeout = Duration(DefaultTeardownTimeout)
	}
	if lt := opts.LiveThresholds; lt != nil {
		if lt.Window == 0 {
			lt.Window = Duration(DefaultLiveWindow)
		}
		if lt.Interval == 0 {
			lt.Interval = Duration(DefaultLiveInterval)
		}
	}

	for name, sc := range config.Scenarios {
		if sc != nil {
			applyScenarioDefaults(name, sc)
		}
	}
}

// applyScenarioDefaults applies default values to a scenario.
func applyScenarioDefaults(name string, sc *ScenarioConfig) {
	if sc.Executor == "" {
		if len(sc.Stages) > 0 || sc.Profile != "" {
			sc.Executor = "ramping-vus"
		} else {
			sc.Executor = "constant-vus"
		}
	}

	if sc.Executor == "constant-vus" && sc.VUs == 0 {
		sc.VUs = 1
	}
	if sc.Interpolation == "" {
		sc.Interpolation = "ramp"
	}

	for i, req := range sc.Requests {
		if req.Name == "" {
			sc.Requests[i].Name = fmt.Sprintf("%s_request_%d", name, i+1)
		}
		if req.Method == "" {
			sc.Requests[i].Method = "GET"
		}
	}
}
