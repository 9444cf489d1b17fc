package performance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/session"
)

// Check is a per-request assertion. It affects reporting, never control
// flow. A check built with StatusIn also declares which statuses count as
// success for the error rate.
type Check struct {
	Name   string
	Fn     func(resp *http.Response) bool
	Expect []int
}

// StatusIn checks that the status is one of codes, and marks those codes
// as expected.
func StatusIn(codes ...int) Check {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return Check{
		Name: "status is " + strings.Join(parts, " or "),
		Fn: func(resp *http.Response) bool {
			for _, c := range codes {
				if resp.StatusCode == c {
					return true
				}
			}
			return false
		},
		Expect: codes,
	}
}

// ContentTypeContains checks the Content-Type header.
func ContentTypeContains(ct string) Check {
	return Check{
		Name: "content type is " + ct,
		Fn:   func(resp *http.Response) bool { return resp.HasContentType(ct) },
	}
}

// NewCheck creates a check from a predicate.
func NewCheck(name string, fn func(resp *http.Response) bool) Check {
	return Check{Name: name, Fn: fn}
}

// VUContext is what a scenario body sees during one iteration.
type VUContext struct {
	vu        *VirtualUser
	iteration int64
	group     string
}

// ID returns the VU identifier.
func (c *VUContext) ID() int { return c.vu.ID }

// Iteration returns the 1-based iteration number of this VU.
func (c *VUContext) Iteration() int64 { return c.iteration }

// Scenario returns the scenario name.
func (c *VUContext) Scenario() string { return c.vu.scenario.Name }

// Session returns the VU's credential state. It is nil when the run has no
// session coordinator.
func (c *VUContext) Session() *session.Session { return c.vu.session }

// Data returns the value produced by the scenario's setup hook.
func (c *VUContext) Data() any { return c.vu.data }

// AccessToken returns the VU's own access token, falling back to the token
// handed out by a setup-phase login.
func (c *VUContext) AccessToken() string {
	if s := c.vu.session; s != nil {
		if tok := s.AccessToken(); tok != "" {
			return tok
		}
	}
	switch d := c.vu.data.(type) {
	case session.TokenPair:
		return d.AccessToken
	case *session.TokenPair:
		if d != nil {
			return d.AccessToken
		}
	}
	return ""
}

// Logger returns a logger tagged with the VU and iteration.
func (c *VUContext) Logger() *zap.Logger {
	return c.vu.rt.Logger.With(
		zap.String("scenario", c.vu.scenario.Name),
		zap.Int("vu", c.vu.ID),
		zap.Int64("iteration", c.iteration),
	)
}

// Metrics returns the shared collector, for custom metrics.
func (c *VUContext) Metrics() *metrics.Collector { return c.vu.rt.Metrics }

// Set and Get access the VU's variable scope, which survives across
// iterations.
func (c *VUContext) Set(key, value string) { c.vu.vars.set(key, value) }

func (c *VUContext) Get(key string) (string, bool) { return c.vu.vars.get(key) }

// Vars returns a copy of the variable scope.
func (c *VUContext) Vars() map[string]string { return c.vu.vars.snapshot() }

// Request issues req, records exactly one RequestOutcome under label and
// evaluates checks against the response.
//
// A transport failure returns a *failure.TransportError; every check is
// then recorded as failed. A completed request with any status returns a
// nil error.
func (c *VUContext) Request(ctx context.Context, label string, req *http.Request, checks ...Check) (*http.Response, error) {
	label = c.label(label)
	rt := c.vu.rt

	var expected []int
	for _, chk := range checks {
		expected = append(expected, chk.Expect...)
	}

	start := rt.Clock.Now()
	resp, err := rt.Client.Do(ctx, req)

	outcome := metrics.RequestOutcome{
		Label:            label,
		Method:           strings.ToUpper(req.Method),
		ExpectedStatuses: expected,
		Timestamp:        start,
	}
	if len(checks) > 0 {
		outcome.Checks = make(map[string]bool, len(checks))
	}

	if err != nil {
		outcome.Err = err
		outcome.Duration = rt.Clock.Now().Sub(start)
		for _, chk := range checks {
			outcome.Checks[chk.Name] = false
		}
		rt.Metrics.Record(outcome)
		return nil, &failure.TransportError{Label: label, Err: err}
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Duration = resp.Duration
	outcome.Bytes = int64(len(resp.Body))
	for _, chk := range checks {
		outcome.Checks[chk.Name] = chk.Fn != nil && chk.Fn(resp)
	}
	rt.Metrics.Record(outcome)

	return resp, nil
}

// Record records an outcome produced outside Request.
func (c *VUContext) Record(o metrics.RequestOutcome) {
	o.Label = c.label(o.Label)
	if o.Timestamp.IsZero() {
		o.Timestamp = c.vu.rt.Clock.Now()
	}
	c.vu.rt.Metrics.Record(o)
}

// Check records a standalone check and returns ok.
func (c *VUContext) Check(name string, ok bool) bool {
	c.vu.rt.Metrics.RecordCheck(name, ok)
	return ok
}

// Group runs fn with name as the label prefix for requests issued inside it.
// A request with an empty label inside a group is labelled with the group
// name.
func (c *VUContext) Group(name string, fn func() error) error {
	prev := c.group
	if prev != "" {
		c.group = prev + "::" + name
	} else {
		c.group = name
	}
	defer func() { c.group = prev }()

	return fn()
}

// Sleep pauses the iteration. It counts towards wall-clock pacing and is
// not interrupted by a retire signal.
func (c *VUContext) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, c.vu.rt.Clock, d)
}

func (c *VUContext) label(label string) string {
	switch {
	case c.group == "":
		return label
	case label == "":
		return c.group
	default:
		return fmt.Sprintf("%s::%s", c.group, label)
	}
}

type varScope struct {
	mu   sync.RWMutex
	vars map[string]string
}

func (s *varScope) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vars == nil {
		s.vars = make(map[string]string)
	}
	s.vars[key] = value
}

func (s *varScope) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[key]
	return v, ok
}

func (s *varScope) snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}
