package executor

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/config"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-vus" - Fixed number of VUs for a duration
//   - "ramping-vus" - VU count ramps up/down according to stages
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// CreateExecutorFromScenarioConfig creates and initializes an executor from a
// scenario config. Named profiles must already be resolved into Stages.
func CreateExecutorFromScenarioConfig(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	execConfig, err := ConfigFromScenario(name, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert scenario config: %w", err)
	}

	exec, err := CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		return nil, nil, err
	}

	return exec, execConfig, nil
}

// ConfigFromScenario converts a config.ScenarioConfig to an executor Config.
func ConfigFromScenario(name string, sc *config.ScenarioConfig) (*Config, error) {
	interp, err := ParseInterpolation(sc.Interpolation)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Name:          name,
		Type:          Type(sc.Executor),
		VUs:           sc.VUs,
		Interpolation: interp,
	}

	if sc.Duration != "" {
		dur, err := config.ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		cfg.Duration = dur
	}

	if sc.TickInterval != "" {
		dur, err := config.ParseDurationString(sc.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid tickInterval: %w", err)
		}
		cfg.TickInterval = dur
	}

	if cfg.Type == TypeRampingVUs && len(sc.Stages) == 0 && sc.Profile != "" {
		return nil, fmt.Errorf("profile %q has not been resolved into stages", sc.Profile)
	}

	for _, stage := range sc.Stages {
		stageDur, err := config.ParseDurationString(stage.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid stage duration: %w", err)
		}
		cfg.Stages = append(cfg.Stages, Stage{
			Duration: stageDur,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	return cfg, nil
}

// PacingFromConfig converts a pacing block into the VU loop's Pacing.
// A nil block means no pacing.
func PacingFromConfig(pc *config.PacingConfig) (performance.Pacing, error) {
	if pc == nil {
		return performance.Pacing{Type: performance.PacingNone}, nil
	}

	p := performance.Pacing{Type: performance.PacingType(pc.Type)}
	var err error
	if p.Duration, err = config.ParseDurationString(pc.Duration); err != nil {
		return performance.Pacing{}, fmt.Errorf("invalid pacing duration: %w", err)
	}
	if p.Min, err = config.ParseDurationString(pc.Min); err != nil {
		return performance.Pacing{}, fmt.Errorf("invalid pacing min: %w", err)
	}
	if p.Max, err = config.ParseDurationString(pc.Max); err != nil {
		return performance.Pacing{}, fmt.Errorf("invalid pacing max: %w", err)
	}

	if err := p.Validate(); err != nil {
		return performance.Pacing{}, err
	}
	return p, nil
}

// IsValidExecutorType returns true if the type is a valid executor type.
func IsValidExecutorType(executorType string) bool {
	switch Type(executorType) {
	case TypeConstantVUs, TypeRampingVUs:
		return true
	default:
		return false
	}
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{TypeConstantVUs, TypeRampingVUs}
}
