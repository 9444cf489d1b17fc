package performance

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the delay between two iterations of the same VU.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Validate checks the pacing bounds.
func (p Pacing) Validate() error {
	switch p.Type {
	case "", PacingNone:
	case PacingConstant:
		if p.Duration < 0 {
			return fmt.Errorf("constant pacing duration must be >= 0")
		}
	case PacingRandom:
		if p.Min < 0 || p.Max < p.Min {
			return fmt.Errorf("random pacing requires 0 <= min <= max")
		}
	default:
		return fmt.Errorf("unknown pacing type %q", p.Type)
	}
	return nil
}

// Next returns the delay before the next iteration.
func (p Pacing) Next(rng *rand.Rand) time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		if p.Max <= p.Min {
			return p.Min
		}
		return p.Min + time.Duration(rng.Int64N(int64(p.Max-p.Min)))
	default:
		return 0
	}
}
