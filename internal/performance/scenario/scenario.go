// Package scenario turns declarative request lists into scenario bodies.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/pkg/jsonpath"
)

// step is one compiled request of a list.
type step struct {
	cfg       config.RequestConfig
	checks    []performance.Check
	thinkTime time.Duration
}

// Build compiles the requests of scenario name into a body. Everything
// that can fail (durations, regexes, schemas, numbers) fails here, before
// any VU runs.
func Build(name string, sc *config.ScenarioConfig, cfg *config.TestConfig) (performance.Body, error) {
	if len(sc.Requests) == 0 {
		return nil, fmt.Errorf("scenario %s has no requests", name)
	}

	steps := make([]step, 0, len(sc.Requests))
	for i := range sc.Requests {
		rc := sc.Requests[i]
		if rc.Name == "" {
			rc.Name = fmt.Sprintf("%s_request_%d", name, i+1)
		}

		st := step{cfg: rc}
		if rc.ThinkTime != "" {
			d, err := config.ParseDurationString(rc.ThinkTime)
			if err != nil {
				return nil, fmt.Errorf("scenarios.%s.requests[%d].thinkTime: %w", name, i, err)
			}
			st.thinkTime = d
		}

		for j, a := range rc.Assertions {
			chk, err := compileAssertion(rc.Name, a)
			if err != nil {
				return nil, fmt.Errorf("scenarios.%s.requests[%d].assertions[%d]: %w", name, i, j, err)
			}
			st.checks = append(st.checks, chk)
		}

		steps = append(steps, st)
	}

	vars := config.MergeVariables(cfg.Variables, sc.Variables)
	settings := cfg.Settings

	return func(ctx context.Context, vu *performance.VUContext) error {
		for i := range steps {
			if err := runStep(ctx, vu, &steps[i], vars, &settings); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// LogsOut reports whether any request of sc addresses the logout endpoint
// configured in settings.auth. Placeholders are resolved with the static
// variables; URLs built from extracted values cannot be checked up front.
func LogsOut(sc *config.ScenarioConfig, cfg *config.TestConfig) bool {
	settings := cfg.Settings
	if settings.Auth.LogoutPath == "" {
		return false
	}
	logoutURL, err := http.NewRequest("POST", settings.Auth.LogoutPath).ResolveURL(settings.BaseURL)
	if err != nil {
		return false
	}
	logout := endpointPath(logoutURL.Path)

	vars := config.MergeVariables(cfg.Variables, sc.Variables)
	for i := range sc.Requests {
		req := buildRequest(&sc.Requests[i], vars, &settings)
		u, err := req.ResolveURL(settings.BaseURL)
		if err != nil {
			continue
		}
		if endpointPath(u.Path) == logout {
			return true
		}
	}
	return false
}

func endpointPath(p string) string {
	return strings.ToLower(strings.TrimRight(p, "/"))
}

func runStep(ctx context.Context, vu *performance.VUContext, st *step, vars map[string]string, settings *config.GlobalSettings) error {
	do := func() error {
		scope := config.MergeVariables(vars, vu.Vars())
		req := buildRequest(&st.cfg, scope, settings)
		if st.cfg.UsesAuth() {
			req.WithBearer(vu.AccessToken())
		}

		resp, err := vu.Request(ctx, st.cfg.Name, req, st.checks...)
		var terr *failure.TransportError
		switch {
		case errors.As(err, &terr):
			// Already recorded as a failed outcome; the list goes on.
			vu.Logger().Debug("request failed",
				zap.String("request", st.cfg.Name),
				zap.Error(terr.Err))
		case err != nil:
			return err
		default:
			extract(vu, st.cfg.Extract, resp)
		}

		if st.thinkTime > 0 {
			return vu.Sleep(ctx, st.thinkTime)
		}
		return nil
	}

	if st.cfg.Group != "" {
		return vu.Group(st.cfg.Group, do)
	}
	return do()
}

func buildRequest(rc *config.RequestConfig, vars map[string]string, settings *config.GlobalSettings) *http.Request {
	req := http.NewRequest(rc.Method, config.ResolveVariables(rc.URL, vars, settings))
	for k, v := range rc.Headers {
		req.WithHeader(k, config.ResolveVariables(v, vars, settings))
	}
	if rc.Body != "" {
		req.WithBody(config.ResolveVariables(rc.Body, vars, settings))
		if _, ok := rc.Headers["Content-Type"]; !ok {
			req.WithHeader("Content-Type", "application/json")
		}
	}
	return req
}

// extract stores values from resp into the VU's variables. Values that
// cannot be found leave the variable untouched.
func extract(vu *performance.VUContext, extracts []config.ExtractConfig, resp *http.Response) {
	for _, ex := range extracts {
		var value string

		switch ex.Source {
		case "header":
			value = resp.GetHeader(ex.Path)
		case "status":
			value = strconv.Itoa(resp.StatusCode)
		default:
			if ex.Path == "" {
				value = resp.GetBodyAsString()
				break
			}
			v, err := jsonpath.Extract(resp.Body, ex.Path)
			if err != nil {
				vu.Logger().Debug("extract failed",
					zap.String("variable", ex.Name),
					zap.String("path", ex.Path),
					zap.Error(err))
				continue
			}
			value = v
		}

		if value != "" {
			vu.Set(ex.Name, value)
		}
	}
}
