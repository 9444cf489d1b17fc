package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/groomload/internal/performance/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire run configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}

	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		validateScenario(name, c.Scenarios[name], &c.Settings, errs)
	}

	validateThresholds("thresholds", c.Thresholds, errs)
	validateSettings(&c.Settings, errs)
	if c.Options != nil {
		validateOptions(c.Options, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateScenario validates a single scenario configuration.
func validateScenario(name string, sc *ScenarioConfig, settings *GlobalSettings, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)
	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	switch sc.Executor {
	case "":
		errs.Add(prefix+".executor", "executor type is required")
	case "constant-vus":
		validateConstantVUs(prefix, sc, errs)
	case "ramping-vus":
		validateRampingVUs(prefix, sc, errs)
	default:
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	switch sc.Interpolation {
	case "", "ramp", "keyframe":
	default:
		errs.Add(prefix+".interpolation", fmt.Sprintf("unknown interpolation: %s (want ramp or keyframe)", sc.Interpolation))
	}

	if sc.TickInterval != "" {
		if d, err := ParseDurationString(sc.TickInterval); err != nil {
			errs.Add(prefix+".tickInterval", fmt.Sprintf("invalid tickInterval: %v", err))
		} else if d <= 0 {
			errs.Add(prefix+".tickInterval", "tickInterval must be greater than 0")
		}
	}
	if sc.StartTime != "" {
		if _, err := ParseDurationString(sc.StartTime); err != nil {
			errs.Add(prefix+".startTime", fmt.Sprintf("invalid startTime: %v", err))
		}
	}

	switch {
	case sc.Body == "" && len(sc.Requests) == 0:
		errs.Add(prefix+".body", "either body or requests is required")
	case sc.Body != "" && len(sc.Requests) > 0:
		errs.Add(prefix+".body", "body and requests are mutually exclusive")
	}

	for i := range sc.Requests {
		validateRequest(fmt.Sprintf("%s.requests[%d]", prefix, i), &sc.Requests[i], settings, errs)
	}

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}

	for i := range sc.Stages {
		validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &sc.Stages[i], errs)
	}

	if (sc.Setup != nil && sc.Setup.Login) && settings.Auth.Username == "" && len(settings.Auth.Users) == 0 {
		errs.Add("settings.auth.username", fmt.Sprintf("required by %s.setup.login", prefix))
	}

	validateThresholds(prefix+".thresholds", sc.Thresholds, errs)
}

// validateConstantVUs validates constant-vus executor config.
func validateConstantVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.VUs <= 0 {
		errs.Add(prefix+".vus", "vus must be greater than 0")
	}

	if sc.Duration == "" {
		errs.Add(prefix+".duration", "duration is required for constant-vus executor")
	} else if d, err := ParseDurationString(sc.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}
}

// validateRampingVUs validates ramping-vus executor config.
func validateRampingVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Stages) == 0 && sc.Profile == "" {
		errs.Add(prefix+".stages", "stages or profile is required for ramping-vus executor")
		return
	}
	if len(sc.Stages) > 0 {
		if total, err := ParseScenarioDuration(&ScenarioConfig{Stages: sc.Stages}); err == nil && total <= 0 {
			errs.Add(prefix+".stages", "total stage duration must be greater than 0")
		}
	}
}

// validateRequest validates a single request configuration.
func validateRequest(prefix string, req *RequestConfig, settings *GlobalSettings, errs *ValidationErrors) {
	validMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		errs.Add(prefix+".method", "method is required")
	} else if !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		// Placeholders are replaced before parsing so templated URLs validate.
		urlToCheck := placeholderRe.ReplaceAllString(req.URL, "placeholder")
		if _, err := url.Parse(urlToCheck); err != nil {
			errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
		} else if settings.BaseURL == "" && !strings.Contains(req.URL, "://") && !strings.HasPrefix(req.URL, "{{") {
			errs.Add(prefix+".url", "relative url requires settings.baseUrl")
		}
	}

	if req.ThinkTime != "" {
		if _, err := ParseDurationString(req.ThinkTime); err != nil {
			errs.Add(prefix+".thinkTime", fmt.Sprintf("invalid thinkTime: %v", err))
		}
	}

	for i := range req.Extract {
		validateExtract(fmt.Sprintf("%s.extract[%d]", prefix, i), &req.Extract[i], errs)
	}

	for i := range req.Assertions {
		validateAssertion(fmt.Sprintf("%s.assertions[%d]", prefix, i), &req.Assertions[i], errs)
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	validTypes := map[string]bool{
		"none": true, "constant": true, "random": true,
	}

	if !validTypes[pacing.Type] {
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}

	switch pacing.Type {
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := ParseDurationString(pacing.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		}

	case "random":
		if pacing.Min == "" {
			errs.Add(prefix+".min", "min is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Min); err != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", err))
		}

		if pacing.Max == "" {
			errs.Add(prefix+".max", "max is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Max); err != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", err))
		}

		if pacing.Min != "" && pacing.Max != "" {
			minDur, _ := ParseDurationString(pacing.Min)
			maxDur, _ := ParseDurationString(pacing.Max)
			if minDur > maxDur {
				errs.Add(prefix, "min must be less than or equal to max")
			}
		}
	}
}

// validateStage validates a single stage configuration.
func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if _, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

// validateExtract validates an extract configuration.
func validateExtract(prefix string, extract *ExtractConfig, errs *ValidationErrors) {
	if extract.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}

	validSources := map[string]bool{
		"body": true, "header": true, "status": true,
	}

	if extract.Source == "" {
		errs.Add(prefix+".source", "source is required")
	} else if !validSources[extract.Source] {
		errs.Add(prefix+".source", fmt.Sprintf("invalid source: %s", extract.Source))
	}
}

// validateAssertion validates an assertion configuration.
func validateAssertion(prefix string, assertion *AssertionConfig, errs *ValidationErrors) {
	validTypes := map[string]bool{
		"status": true, "body": true, "header": true, "json": true, "schema": true, "duration": true,
	}

	if assertion.Type == "" {
		errs.Add(prefix+".type", "type is required")
	} else if !validTypes[assertion.Type] {
		errs.Add(prefix+".type", fmt.Sprintf("invalid assertion type: %s", assertion.Type))
	}

	if assertion.Type == "schema" {
		if assertion.Schema == "" {
			errs.Add(prefix+".schema", "schema is required for schema assertions")
		}
		return
	}

	validConditions := map[string]bool{
		"eq": true, "ne": true, "gt": true, "lt": true,
		"gte": true, "lte": true, "contains": true, "matches": true,
		"in": true, "exists": true,
	}

	if assertion.Condition == "" {
		errs.Add(prefix+".condition", "condition is required")
	} else if !validConditions[assertion.Condition] {
		errs.Add(prefix+".condition", fmt.Sprintf("invalid condition: %s", assertion.Condition))
	}

	if (assertion.Type == "json" || assertion.Type == "header") && assertion.Path == "" {
		errs.Add(prefix+".path", fmt.Sprintf("path is required for %s assertions", assertion.Type))
	}
}

// validateThresholds parses every threshold so bad expressions fail before
// any traffic is generated.
func validateThresholds(prefix string, thresholds map[string][]string, errs *ValidationErrors) {
	selectors := make([]string, 0, len(thresholds))
	for selector := range thresholds {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)

	for _, selector := range selectors {
		for i, expr := range thresholds[selector] {
			if _, err := threshold.Parse(selector, expr); err != nil {
				errs.Add(fmt.Sprintf("%s.%s[%d]", prefix, selector, i), err.Error())
			}
		}
	}
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "scheme must be http or https")
		}
	}

	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
	if s.MaxRPS < 0 {
		errs.Add("settings.maxRps", "cannot be negative")
	}

	shared := false
	switch s.Auth.Mode {
	case "", "isolated":
	case "shared", "shared-account":
		shared = true
	default:
		errs.Add("settings.auth.mode", fmt.Sprintf("unknown auth mode: %s (want isolated or shared)", s.Auth.Mode))
	}
	if shared && len(s.Auth.Users) > 0 {
		errs.Add("settings.auth.users", "requires isolated mode")
	}
	if shared && strings.Contains(s.Auth.Username, "{{vu}}") {
		errs.Add("settings.auth.username", "the {{vu}} placeholder requires isolated mode")
	}
	for i, u := range s.Auth.Users {
		if u.Username == "" {
			errs.Add(fmt.Sprintf("settings.auth.users[%d].username", i), "is required")
		}
	}
}

// validateOptions validates execution options.
func validateOptions(o *ExecutionOptions, errs *ValidationErrors) {
	if o.BucketInterval < 0 {
		errs.Add("options.bucketInterval", "cannot be negative")
	}
	if lt := o.LiveThresholds; lt != nil && lt.Enabled {
		if lt.Window < 0 {
			errs.Add("options.liveThresholds.window", "cannot be negative")
		}
		if lt.Interval < 0 {
			errs.Add("options.liveThresholds.interval", "cannot be negative")
		}
	}
}
