package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides are the environment variables that override file settings.
// The names match the ones the salon load scripts have always read.
type EnvOverrides struct {
	BaseURL   string   `envconfig:"BASE_URL"`
	AdminUser string   `envconfig:"ADMIN_USER"`
	AdminPass string   `envconfig:"ADMIN_PASS"`
	AuthMode  string   `envconfig:"AUTH_MODE"`
	Timeout   Duration `envconfig:"REQUEST_TIMEOUT"`
}

// LoadEnv reads EnvOverrides from the process environment.
func LoadEnv() (*EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &env, nil
}

// Apply copies every non-empty override onto cfg.
func (e *EnvOverrides) Apply(cfg *TestConfig) {
	if e == nil {
		return
	}
	if e.BaseURL != "" {
		cfg.Settings.BaseURL = e.BaseURL
	}
	if e.AdminUser != "" {
		cfg.Settings.Auth.Username = e.AdminUser
	}
	if e.AdminPass != "" {
		cfg.Settings.Auth.Password = e.AdminPass
	}
	if e.AuthMode != "" {
		cfg.Settings.Auth.Mode = e.AuthMode
	}
	if e.Timeout != 0 {
		cfg.Settings.Timeout = e.Timeout
	}
}
