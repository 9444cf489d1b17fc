package executor

import (
	"fmt"
	"math"
	"time"
)

// Interpolation selects how a Profile moves between stage targets.
type Interpolation string

const (
	// InterpolationRamp ramps each stage from the previous stage's target to
	// its own target. The first stage starts from zero.
	InterpolationRamp Interpolation = "ramp"

	// InterpolationKeyframe treats each stage target as the value at the
	// stage start and ramps toward the next stage's target. The last stage
	// holds its target.
	InterpolationKeyframe Interpolation = "keyframe"
)

// ParseInterpolation converts a config string into an Interpolation. The
// empty string selects InterpolationRamp.
func ParseInterpolation(s string) (Interpolation, error) {
	switch Interpolation(s) {
	case "", InterpolationRamp:
		return InterpolationRamp, nil
	case InterpolationKeyframe:
		return InterpolationKeyframe, nil
	default:
		return "", fmt.Errorf("unknown interpolation %q (want ramp or keyframe)", s)
	}
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile is an ordered list of stages describing target concurrency over
// elapsed time.
type Profile struct {
	Stages        []Stage
	Interpolation Interpolation
}

// MaxTarget returns the highest stage target.
func (p Profile) MaxTarget() int {
	peak := 0
	for _, s := range p.Stages {
		peak = max(peak, s.Target)
	}
	return peak
}

// TotalDuration is the sum of all stage durations.
func (p Profile) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// Validate checks that the profile can be executed.
func (p Profile) Validate() error {
	if len(p.Stages) == 0 {
		return &ValidationError{Field: "stages", Message: "at least one stage is required"}
	}
	for i, s := range p.Stages {
		if s.Duration < 0 {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be >= 0"}
		}
		if s.Target < 0 {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target must be >= 0"}
		}
	}
	if p.TotalDuration() <= 0 {
		return &ValidationError{Field: "stages", Message: "total duration must be > 0"}
	}
	if _, err := ParseInterpolation(string(p.Interpolation)); err != nil {
		return &ValidationError{Field: "interpolation", Message: err.Error()}
	}
	return nil
}

// TargetAt returns the target concurrency at elapsed time t. done is true
// once t is strictly past the end of the profile, in which case the target
// is zero. At a stage boundary the target equals that stage's declared
// value exactly.
func (p Profile) TargetAt(t time.Duration) (target int, done bool) {
	if len(p.Stages) == 0 {
		return 0, true
	}
	total := p.TotalDuration()
	if t > total {
		return 0, true
	}
	last := len(p.Stages) - 1
	if t == total {
		return p.Stages[last].Target, false
	}
	if t < 0 {
		t = 0
	}

	keyframe := p.Interpolation == InterpolationKeyframe
	var start time.Duration
	prev := 0
	for i, s := range p.Stages {
		end := start + s.Duration
		if t < end {
			f := float64(t-start) / float64(s.Duration)
			if !keyframe {
				return lerp(prev, s.Target, f), false
			}
			if i == last {
				return s.Target, false
			}
			return lerp(s.Target, p.Stages[i+1].Target, f), false
		}
		prev = s.Target
		start = end
	}

	return p.Stages[last].Target, false
}

// StageAt returns the index of the stage running at elapsed time t.
func (p Profile) StageAt(t time.Duration) int {
	var start time.Duration
	for i, s := range p.Stages {
		start += s.Duration
		if t < start {
			return i
		}
	}
	return len(p.Stages) - 1
}

func lerp(from, to int, f float64) int {
	v := float64(from) + float64(to-from)*f
	if v < 0 {
		return 0
	}
	return int(math.Floor(v + 0.5))
}
