package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the run summary and live view.
type ColorScheme struct {
	Title    *color.Color
	Rule     *color.Color
	Label    *color.Color
	Value    *color.Color
	Latency  *color.Color
	Stage    *color.Color
	Dim      *color.Color
	Pass     *color.Color
	Warn     *color.Color
	Fail     *color.Color
	Aborted  *color.Color
	Progress *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Title:    color.New(color.Bold),
		Rule:     color.New(color.FgCyan),
		Label:    color.New(color.FgYellow),
		Value:    color.New(color.FgCyan),
		Latency:  color.New(color.FgBlue),
		Stage:    color.New(color.FgMagenta),
		Dim:      color.New(color.Faint),
		Pass:     color.New(color.FgGreen, color.Bold),
		Warn:     color.New(color.FgYellow, color.Bold),
		Fail:     color.New(color.FgRed, color.Bold),
		Aborted:  color.New(color.FgMagenta, color.Bold),
		Progress: color.New(color.FgGreen),
	}
	// fatih/color disables itself when stdout is not a terminal; the
	// console decides for itself.
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Latency, s.Stage,
		s.Dim, s.Pass, s.Warn, s.Fail, s.Aborted, s.Progress,
	}
}

// ErrorRate picks the color for an error rate: green up to 1%, yellow up
// to 5%, red above.
func (s *ColorScheme) ErrorRate(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Fail
	case rate > 0.01:
		return s.Warn
	default:
		return s.Pass
	}
}

// PassIcon returns a colored checkmark or cross.
func (s *ColorScheme) PassIcon(passed bool) string {
	if passed {
		return s.Pass.Sprint("✓")
	}
	return s.Fail.Sprint("✗")
}
