package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *TestConfig {
	return &TestConfig{
		Name:     "Test",
		Settings: GlobalSettings{BaseURL: "http://localhost:8091/api"},
		Scenarios: map[string]*ScenarioConfig{
			"test": {
				Executor: "constant-vus",
				VUs:      10,
				Duration: "30s",
				Requests: []RequestConfig{
					{Method: "GET", URL: "/groomers"},
				},
			},
		},
	}
}

// fields returns the dotted paths of every validation error in err.
func fields(t *testing.T, err error) []string {
	t.Helper()
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %v is not *ValidationErrors", err)
	}
	out := make([]string, 0, len(verrs.Errors))
	for _, e := range verrs.Errors {
		out = append(out, e.Field)
	}
	return out
}

func hasField(list []string, field string) bool {
	for _, f := range list {
		if f == field {
			return true
		}
	}
	return false
}

func TestValidate_MinimalValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() returned error for valid config: %v", err)
	}
}

func TestValidate_NoScenarios(t *testing.T) {
	config := &TestConfig{Name: "Test", Scenarios: map[string]*ScenarioConfig{}}

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() should return error when no scenarios defined")
	}
	if !strings.Contains(err.Error(), "scenario") {
		t.Errorf("Error should mention 'scenario', got: %v", err)
	}
}

func TestValidate_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(sc *ScenarioConfig)
		wantField string
	}{
		{"constant without vus", func(sc *ScenarioConfig) { sc.VUs = 0 }, "scenarios.test.vus"},
		{"constant without duration", func(sc *ScenarioConfig) { sc.Duration = "" }, "scenarios.test.duration"},
		{"constant zero duration", func(sc *ScenarioConfig) { sc.Duration = "0s" }, "scenarios.test.duration"},
		{"unknown executor", func(sc *ScenarioConfig) { sc.Executor = "constant-arrival-rate" }, "scenarios.test.executor"},
		{"ramping without stages", func(sc *ScenarioConfig) { sc.Executor = "ramping-vus" }, "scenarios.test.stages"},
		{"ramping all zero stages", func(sc *ScenarioConfig) {
			sc.Executor = "ramping-vus"
			sc.Stages = []StageConfig{{Duration: "0s", Target: 5}}
		}, "scenarios.test.stages"},
		{"bad stage duration", func(sc *ScenarioConfig) {
			sc.Executor = "ramping-vus"
			sc.Stages = []StageConfig{{Duration: "10s", Target: 1}, {Duration: "soon", Target: 2}}
		}, "scenarios.test.stages[1].duration"},
		{"negative target", func(sc *ScenarioConfig) {
			sc.Executor = "ramping-vus"
			sc.Stages = []StageConfig{{Duration: "10s", Target: -1}}
		}, "scenarios.test.stages[0].target"},
		{"bad interpolation", func(sc *ScenarioConfig) { sc.Interpolation = "cubic" }, "scenarios.test.interpolation"},
		{"no body or requests", func(sc *ScenarioConfig) { sc.Requests = nil }, "scenarios.test.body"},
		{"body and requests", func(sc *ScenarioConfig) { sc.Body = "reports" }, "scenarios.test.body"},
		{"bad method", func(sc *ScenarioConfig) { sc.Requests[0].Method = "FETCH" }, "scenarios.test.requests[0].method"},
		{"missing url", func(sc *ScenarioConfig) { sc.Requests[0].URL = "" }, "scenarios.test.requests[0].url"},
		{"bad extract source", func(sc *ScenarioConfig) {
			sc.Requests[0].Extract = []ExtractConfig{{Name: "id", Source: "cookie"}}
		}, "scenarios.test.requests[0].extract[0].source"},
		{"json assertion without path", func(sc *ScenarioConfig) {
			sc.Requests[0].Assertions = []AssertionConfig{{Type: "json", Condition: "exists"}}
		}, "scenarios.test.requests[0].assertions[0].path"},
		{"schema assertion without schema", func(sc *ScenarioConfig) {
			sc.Requests[0].Assertions = []AssertionConfig{{Type: "schema"}}
		}, "scenarios.test.requests[0].assertions[0].schema"},
		{"bad scenario threshold", func(sc *ScenarioConfig) {
			sc.Thresholds = map[string][]string{"http_req_duration": {"p(95) about 500"}}
		}, "scenarios.test.thresholds.http_req_duration[0]"},
		{"setup login without user", func(sc *ScenarioConfig) { sc.Setup = &HookConfig{Login: true} }, "settings.auth.username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config.Scenarios["test"])

			err := config.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error on %s", tt.wantField)
			}
			if got := fields(t, err); !hasField(got, tt.wantField) {
				t.Errorf("error fields = %v, want %s", got, tt.wantField)
			}
		})
	}
}

func TestValidate_RampingWithProfile(t *testing.T) {
	config := validConfig()
	sc := config.Scenarios["test"]
	sc.Executor = "ramping-vus"
	sc.Profile = "standard"

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_ZeroDurationWarmUpStage(t *testing.T) {
	config := validConfig()
	sc := config.Scenarios["test"]
	sc.Executor = "ramping-vus"
	sc.Stages = []StageConfig{{Duration: "0s", Target: 0}, {Duration: "10s", Target: 5}}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Pacing(t *testing.T) {
	tests := []struct {
		name    string
		pacing  *PacingConfig
		wantErr bool
	}{
		{"none", &PacingConfig{Type: "none"}, false},
		{"constant", &PacingConfig{Type: "constant", Duration: "1s"}, false},
		{"constant missing duration", &PacingConfig{Type: "constant"}, true},
		{"random", &PacingConfig{Type: "random", Min: "100ms", Max: "1s"}, false},
		{"random min > max", &PacingConfig{Type: "random", Min: "2s", Max: "1s"}, true},
		{"unknown", &PacingConfig{Type: "poisson"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.Scenarios["test"].Pacing = tt.pacing
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Thresholds(t *testing.T) {
	config := validConfig()
	config.Thresholds = map[string][]string{
		"http_req_duration": {"p(95)<500", "p99 < 1s", "nonsense"},
		"http_req_failed":   {"rate<0.01"},
		"checks":            {"rate>0.99"},
	}

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() should reject an unparseable threshold")
	}
	got := fields(t, err)
	if len(got) != 1 || got[0] != "thresholds.http_req_duration[2]" {
		t.Errorf("error fields = %v, want only thresholds.http_req_duration[2]", got)
	}
}

func TestValidate_Settings(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *GlobalSettings)
		wantField string
	}{
		{"bad scheme", func(s *GlobalSettings) { s.BaseURL = "ftp://salon" }, "settings.baseUrl"},
		{"negative idle", func(s *GlobalSettings) { s.MaxIdleConnsPerHost = -1 }, "settings.maxIdleConnsPerHost"},
		{"negative rps", func(s *GlobalSettings) { s.MaxRPS = -5 }, "settings.maxRps"},
		{"bad auth mode", func(s *GlobalSettings) { s.Auth.Mode = "pooled" }, "settings.auth.mode"},
		{"users in shared mode", func(s *GlobalSettings) {
			s.Auth.Mode = "shared"
			s.Auth.Users = []UserCredentials{{Username: "groomer1", Password: "pw"}}
		}, "settings.auth.users"},
		{"vu placeholder in shared mode", func(s *GlobalSettings) {
			s.Auth.Mode = "shared"
			s.Auth.Username = "groomer{{vu}}"
		}, "settings.auth.username"},
		{"user without name", func(s *GlobalSettings) {
			s.Auth.Users = []UserCredentials{{Password: "pw"}}
		}, "settings.auth.users[0].username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config.Settings)
			err := config.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error on %s", tt.wantField)
			}
			if got := fields(t, err); !hasField(got, tt.wantField) {
				t.Errorf("error fields = %v, want %s", got, tt.wantField)
			}
		})
	}
}

func TestValidate_RelativeURLNeedsBase(t *testing.T) {
	config := validConfig()
	config.Settings.BaseURL = ""

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() should reject relative URLs without a base URL")
	}
	if got := fields(t, err); !hasField(got, "scenarios.test.requests[0].url") {
		t.Errorf("error fields = %v", got)
	}

	config.Scenarios["test"].Requests[0].URL = "{{baseUrl}}/groomers"
	if err := config.Validate(); err != nil {
		t.Errorf("templated URL should validate, got %v", err)
	}
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	config := validConfig()
	sc := config.Scenarios["test"]
	sc.VUs = 0
	sc.Requests[0].Method = "FETCH"
	config.Settings.Auth.Mode = "pooled"

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	if got := fields(t, err); len(got) != 3 {
		t.Errorf("error fields = %v, want 3 entries", got)
	}
}

func TestValidationErrors(t *testing.T) {
	errs := &ValidationErrors{}

	if errs.HasErrors() {
		t.Error("Empty ValidationErrors should not have errors")
	}

	errs.Add("field1", "message1")
	errs.Add("field2", "message2")

	if !errs.HasErrors() {
		t.Error("ValidationErrors with errors should have errors")
	}

	errStr := errs.Error()
	if !strings.Contains(errStr, "field1") || !strings.Contains(errStr, "field2") {
		t.Errorf("Error string should contain all fields, got: %v", errStr)
	}
	if !strings.Contains(errStr, "2 validation errors") {
		t.Errorf("Error string should mention count, got: %v", errStr)
	}
}

func TestValidationError_Single(t *testing.T) {
	err := &ValidationError{Field: "testField", Message: "test message"}

	errStr := err.Error()
	if !strings.Contains(errStr, "testField") || !strings.Contains(errStr, "test message") {
		t.Errorf("Error() = %v", errStr)
	}
}
