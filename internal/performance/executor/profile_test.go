package executor_test

import (
	"testing"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/executor"
)

func standardProfile(interp executor.Interpolation) executor.Profile {
	return executor.Profile{
		Interpolation: interp,
		Stages: []executor.Stage{
			{Duration: 30 * time.Second, Target: 10},
			{Duration: time.Minute, Target: 10},
			{Duration: 30 * time.Second, Target: 30},
			{Duration: time.Minute, Target: 30},
			{Duration: 30 * time.Second, Target: 0},
		},
	}
}

func TestProfile_TargetAt_Keyframe(t *testing.T) {
	p := executor.Profile{
		Interpolation: executor.InterpolationKeyframe,
		Stages: []executor.Stage{
			{Duration: 10 * time.Second, Target: 0},
			{Duration: 10 * time.Second, Target: 10},
		},
	}

	tests := []struct {
		at       time.Duration
		want     int
		wantDone bool
	}{
		{0, 0, false},
		{5 * time.Second, 5, false},
		{10 * time.Second, 10, false},
		{15 * time.Second, 10, false},
		{20 * time.Second, 10, false},
		{21 * time.Second, 0, true},
	}

	for _, tt := range tests {
		got, done := p.TargetAt(tt.at)
		if got != tt.want || done != tt.wantDone {
			t.Errorf("TargetAt(%v) = (%d, %v), want (%d, %v)", tt.at, got, done, tt.want, tt.wantDone)
		}
	}
}

func TestProfile_TargetAt_Ramp(t *testing.T) {
	p := standardProfile(executor.InterpolationRamp)

	tests := []struct {
		at       time.Duration
		want     int
		wantDone bool
	}{
		{0, 0, false},
		{15 * time.Second, 5, false},
		{30 * time.Second, 10, false},
		{60 * time.Second, 10, false},
		{90 * time.Second, 10, false},
		{105 * time.Second, 20, false},
		{120 * time.Second, 30, false},
		{195 * time.Second, 15, false},
		{210 * time.Second, 0, false},
		{210*time.Second + time.Nanosecond, 0, true},
	}

	for _, tt := range tests {
		got, done := p.TargetAt(tt.at)
		if got != tt.want || done != tt.wantDone {
			t.Errorf("TargetAt(%v) = (%d, %v), want (%d, %v)", tt.at, got, done, tt.want, tt.wantDone)
		}
	}
}

func TestProfile_BoundariesMatchDeclaredTargets(t *testing.T) {
	profiles := [][]executor.Stage{
		{{Duration: 7 * time.Second, Target: 3}, {Duration: 13 * time.Second, Target: 17}, {Duration: 3 * time.Second, Target: 1}},
		{{Duration: time.Second, Target: 100}, {Duration: 999 * time.Millisecond, Target: 0}, {Duration: 2 * time.Second, Target: 7}},
		{{Duration: 30 * time.Second, Target: 1}, {Duration: time.Minute, Target: 1}},
	}

	for _, stages := range profiles {
		ramp := executor.Profile{Stages: stages, Interpolation: executor.InterpolationRamp}
		key := executor.Profile{Stages: stages, Interpolation: executor.InterpolationKeyframe}

		var start time.Duration
		for i, s := range stages {
			// keyframe: the declared target holds at the stage start
			if got, _ := key.TargetAt(start); got != s.Target {
				t.Errorf("keyframe TargetAt(%v) = %d, want stage %d target %d", start, got, i, s.Target)
			}
			start += s.Duration
			// ramp: the declared target is reached at the stage end
			if got, _ := ramp.TargetAt(start); got != s.Target {
				t.Errorf("ramp TargetAt(%v) = %d, want stage %d target %d", start, got, i, s.Target)
			}
		}
	}
}

func TestProfile_TargetAt_Rounding(t *testing.T) {
	p := executor.Profile{Stages: []executor.Stage{{Duration: 10 * time.Second, Target: 3}}}

	tests := []struct {
		at   time.Duration
		want int
	}{
		{time.Second, 0},     // 0.3
		{5 * time.Second, 2}, // 1.5 rounds up
		{8 * time.Second, 2}, // 2.4
		{9 * time.Second, 3}, // 2.7
		{10 * time.Second, 3},
	}

	for _, tt := range tests {
		if got, _ := p.TargetAt(tt.at); got != tt.want {
			t.Errorf("TargetAt(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestProfile_ZeroDurationStages(t *testing.T) {
	warmUp := executor.Profile{Stages: []executor.Stage{
		{Duration: 0, Target: 0},
		{Duration: 10 * time.Second, Target: 10},
	}}
	if err := warmUp.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got, done := warmUp.TargetAt(0); got != 0 || done {
		t.Errorf("TargetAt(0) = (%d, %v), want (0, false)", got, done)
	}
	if got, _ := warmUp.TargetAt(5 * time.Second); got != 5 {
		t.Errorf("TargetAt(5s) = %d, want 5", got)
	}

	step := executor.Profile{Stages: []executor.Stage{
		{Duration: 10 * time.Second, Target: 5},
		{Duration: 0, Target: 20},
		{Duration: 10 * time.Second, Target: 20},
	}}
	if got, _ := step.TargetAt(10 * time.Second); got != 20 {
		t.Errorf("TargetAt(10s) across instant step = %d, want 20", got)
	}
	if got, _ := step.TargetAt(15 * time.Second); got != 20 {
		t.Errorf("TargetAt(15s) = %d, want 20", got)
	}
}

func TestProfile_StageAt(t *testing.T) {
	p := standardProfile(executor.InterpolationRamp)

	tests := []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{29 * time.Second, 0},
		{30 * time.Second, 1},
		{125 * time.Second, 3},
		{time.Hour, 4},
	}
	for _, tt := range tests {
		if got := p.StageAt(tt.at); got != tt.want {
			t.Errorf("StageAt(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile executor.Profile
		wantErr bool
	}{
		{"standard", standardProfile(executor.InterpolationRamp), false},
		{"empty", executor.Profile{}, true},
		{"negative duration", executor.Profile{Stages: []executor.Stage{{Duration: -time.Second, Target: 1}}}, true},
		{"negative target", executor.Profile{Stages: []executor.Stage{{Duration: time.Second, Target: -1}}}, true},
		{"zero total", executor.Profile{Stages: []executor.Stage{{Duration: 0, Target: 1}}}, true},
		{"bad interpolation", executor.Profile{Interpolation: "cubic", Stages: []executor.Stage{{Duration: time.Second, Target: 1}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfile_TotalDuration(t *testing.T) {
	if got := standardProfile(executor.InterpolationRamp).TotalDuration(); got != 210*time.Second {
		t.Errorf("TotalDuration() = %v, want 3m30s", got)
	}
}

func TestProfile_MaxTarget(t *testing.T) {
	if got := standardProfile(executor.InterpolationRamp).MaxTarget(); got != 30 {
		t.Errorf("MaxTarget() = %d, want 30", got)
	}
	if got := (executor.Profile{}).MaxTarget(); got != 0 {
		t.Errorf("empty MaxTarget() = %d, want 0", got)
	}
}

func TestParseInterpolation(t *testing.T) {
	if got, err := executor.ParseInterpolation(""); err != nil || got != executor.InterpolationRamp {
		t.Errorf(`ParseInterpolation("") = %v, %v`, got, err)
	}
	if got, err := executor.ParseInterpolation("keyframe"); err != nil || got != executor.InterpolationKeyframe {
		t.Errorf(`ParseInterpolation("keyframe") = %v, %v`, got, err)
	}
	if _, err := executor.ParseInterpolation("linear"); err == nil {
		t.Error(`ParseInterpolation("linear") should fail`)
	}
}
