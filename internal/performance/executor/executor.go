// Package executor turns a load profile into a live VU count. Executors tick
// on a bounded interval and reconcile the scenario's worker pool toward the
// profile's current target.
package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// DefaultTickInterval is how often executors reconcile the VU pool.
const DefaultTickInterval = time.Second

// Executor defines the interface for load generation strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run drives the scheduler until the profile ends and every VU it
	// spawned has finished its current iteration.
	Run(ctx context.Context, scheduler *performance.VUScheduler) error

	// Ramped is closed once the profile has ended and no new VUs spawn.
	Ramped() <-chan struct{}

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the profile early. In-flight iterations still complete.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// constant-vus
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	Stages        []Stage       `json:"stages,omitempty" yaml:"stages,omitempty"`
	Interpolation Interpolation `json:"interpolation,omitempty" yaml:"interpolation,omitempty"`

	// TickInterval bounds how stale the live VU count may be relative to
	// the profile. Zero means DefaultTickInterval.
	TickInterval time.Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`
	PeakVUs   int `json:"peakVUs"`

	// Iteration stats
	Iterations      int64 `json:"iterations"`
	IterationErrors int64 `json:"iterationErrors"`

	// Stage info
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.TickInterval < 0 {
		return &ValidationError{Field: "tickInterval", Message: "tickInterval must be >= 0"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		return c.Profile().Validate()

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// Profile returns the load profile described by the config. constant-vus
// becomes the flat profile [{0s,N},{D,N}].
func (c *Config) Profile() Profile {
	if c.Type == TypeConstantVUs {
		return Profile{
			Stages: []Stage{
				{Duration: 0, Target: c.VUs},
				{Duration: c.Duration, Target: c.VUs},
			},
			Interpolation: InterpolationRamp,
		}
	}

	interp := c.Interpolation
	if interp == "" {
		interp = InterpolationRamp
	}
	return Profile{Stages: c.Stages, Interpolation: interp}
}

// TotalDuration calculates the total duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	return c.Profile().TotalDuration()
}

func (c *Config) tickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return DefaultTickInterval
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
