// Package config provides configuration parsing and validation for load runs.
package config

import (
	"strconv"
	"time"
)

// TestConfig is the root configuration for a load run.
//
// Example YAML:
//
//	name: "Salon API load"
//	settings:
//	  baseUrl: "http://localhost:8091/api"
//	  timeout: 30s
//	  auth:
//	    mode: isolated
//	    username: admin
//	    password: admin123
//	scenarios:
//	  appointments:
//	    executor: ramping-vus
//	    profile: standard
//	    body: appointments
//	    setup:
//	      login: true
//	thresholds:
//	  http_req_duration: ["p(95)<500", "p(99)<1000"]
//	  http_req_failed: ["rate<0.01"]
type TestConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global settings for all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are global variables available to declarative requests
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Scenarios defines the load profiles to run concurrently
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds maps a metric selector to its assertions, e.g.
	// http_req_duration: ["p(95)<500"]
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for run execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains global HTTP and auth settings.
type GlobalSettings struct {
	// BaseURL is joined with every relative request path
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the transport timeout per request
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// MaxRPS caps the request rate across all VUs (0 = unlimited)
	MaxRPS float64 `json:"maxRps,omitempty" yaml:"maxRps,omitempty"`

	// Auth configures the session coordinator
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig configures login credentials and token coordination.
type AuthConfig struct {
	// Mode is "isolated" or "shared"
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Username and Password are the fixed setup-phase credentials. In
	// isolated mode a {{vu}} placeholder in Username gives every VU its
	// own account.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Users are the accounts isolated VUs log in with, assigned round-robin
	// by VU id
	Users []UserCredentials `json:"users,omitempty" yaml:"users,omitempty"`

	LoginPath   string `json:"loginPath,omitempty" yaml:"loginPath,omitempty"`
	RefreshPath string `json:"refreshPath,omitempty" yaml:"refreshPath,omitempty"`
	LogoutPath  string `json:"logoutPath,omitempty" yaml:"logoutPath,omitempty"`
}

// UserCredentials is one account of settings.auth.users.
type UserCredentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// ScenarioConfig defines a single load scenario.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy
	// Options: "constant-vus", "ramping-vus"
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (constant-vus)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (e.g., "30s", "2m", "1h")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages defines ramping stages (ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Profile names a preset stage list used when Stages is empty
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// Interpolation is "ramp" (default) or "keyframe"
	Interpolation string `json:"interpolation,omitempty" yaml:"interpolation,omitempty"`

	// TickInterval is how often the VU count is reconciled (default 1s)
	TickInterval string `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`

	// Body names a built-in scenario body; mutually exclusive with Requests
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Requests defines a declarative request list
	Requests []RequestConfig `json:"requests,omitempty" yaml:"requests,omitempty"`

	// Setup and Teardown are one-shot hooks around the scenario
	Setup    *HookConfig `json:"setup,omitempty" yaml:"setup,omitempty"`
	Teardown *HookConfig `json:"teardown,omitempty" yaml:"teardown,omitempty"`

	// Pacing controls time between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// Thresholds scoped to this scenario
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Variables override global variables for this scenario
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// StartTime delays this scenario relative to the ramp start
	StartTime string `json:"startTime,omitempty" yaml:"startTime,omitempty"`
}

// HookConfig configures a setup or teardown hook.
type HookConfig struct {
	// Login performs a setup-phase login with the fixed credentials and
	// hands the access token to every VU.
	Login bool `json:"login,omitempty" yaml:"login,omitempty"`

	// Logout revokes the setup-phase session during teardown.
	Logout bool `json:"logout,omitempty" yaml:"logout,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used as the metric label)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Group prefixes the label, e.g. "List OS with filters"
	Group string `json:"group,omitempty" yaml:"group,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, etc.)
	Method string `json:"method" yaml:"method"`

	// URL is the request path or URL (supports variable substitution)
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body (supports variable substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Auth attaches the VU's bearer token (default true)
	Auth *bool `json:"auth,omitempty" yaml:"auth,omitempty"`

	// ThinkTime is wait time after this request
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Extract defines variable extraction from response
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Assertions validate the response and are recorded as checks
	Assertions []AssertionConfig `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// UsesAuth reports whether the request carries the VU's bearer token.
func (r *RequestConfig) UsesAuth() bool {
	return r.Auth == nil || *r.Auth
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// ExtractConfig defines how to extract variables from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or a gjson path for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// AssertionConfig defines a response validation.
type AssertionConfig struct {
	// Type is the assertion type: "status", "body", "header", "json", "schema", "duration"
	Type string `json:"type" yaml:"type"`

	// Condition is the comparison: "eq", "ne", "gt", "lt", "gte", "lte", "contains", "matches", "in", "exists"
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Value is the expected value; "in" takes a comma separated list
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Path is a gjson path for json, or a header name for header
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Schema is an inline JSON schema for schema assertions
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Name overrides the generated check name
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ExecutionOptions controls run behaviour.
type ExecutionOptions struct {
	// LiveThresholds evaluates thresholds on a rolling window during the run
	LiveThresholds *LiveThresholdsConfig `json:"liveThresholds,omitempty" yaml:"liveThresholds,omitempty"`

	// BucketInterval is the time-series resolution (default 1s)
	BucketInterval Duration `json:"bucketInterval,omitempty" yaml:"bucketInterval,omitempty"`

	// SetupTimeout bounds all setup hooks together
	SetupTimeout Duration `json:"setupTimeout,omitempty" yaml:"setupTimeout,omitempty"`

	// TeardownTimeout bounds all teardown hooks together
	TeardownTimeout Duration `json:"teardownTimeout,omitempty" yaml:"teardownTimeout,omitempty"`

	// MetricsAddr serves Prometheus metrics while the run is live
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	// HistoryPath is the bbolt file that stores run reports
	HistoryPath string `json:"historyPath,omitempty" yaml:"historyPath,omitempty"`
}

// LiveThresholdsConfig configures rolling-window threshold checks.
type LiveThresholdsConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Window   Duration `json:"window,omitempty" yaml:"window,omitempty"`
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	dur, err := ParseDurationString(value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
