package scenario

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/pkg/jsonpath"
	"github.com/wesleyorama2/groomload/pkg/jsonschema"
)

// compileAssertion turns an assertion into a check named after the
// request, unless the assertion carries its own name.
func compileAssertion(request string, a config.AssertionConfig) (performance.Check, error) {
	cond := a.Condition
	if cond == "" {
		cond = defaultCondition(a)
	}

	name := a.Name
	if name == "" {
		name = checkName(request, a, cond)
	}

	switch a.Type {
	case "status":
		return statusCheck(name, cond, a.Value)

	case "body":
		match, err := matcher(cond, a.Value)
		if err != nil {
			return performance.Check{}, err
		}
		return performance.NewCheck(name, func(resp *http.Response) bool {
			return match(resp.GetBodyAsString(), len(resp.Body) > 0)
		}), nil

	case "header":
		match, err := matcher(cond, a.Value)
		if err != nil {
			return performance.Check{}, err
		}
		return performance.NewCheck(name, func(resp *http.Response) bool {
			present := len(resp.Headers.Values(a.Path)) > 0
			return match(resp.GetHeader(a.Path), present)
		}), nil

	case "json":
		match, err := matcher(cond, a.Value)
		if err != nil {
			return performance.Check{}, err
		}
		path := jsonpath.ToGjsonPath(a.Path)
		return performance.NewCheck(name, func(resp *http.Response) bool {
			r := gjson.GetBytes(resp.Body, path)
			return match(r.String(), r.Exists())
		}), nil

	case "schema":
		schema, err := jsonschema.CompileCached(a.Schema)
		if err != nil {
			return performance.Check{}, err
		}
		return performance.NewCheck(name, func(resp *http.Response) bool {
			return schema.Validate(resp.Body) == nil
		}), nil

	case "duration":
		bound, err := config.ParseDurationString(a.Value)
		if err != nil {
			return performance.Check{}, fmt.Errorf("duration value: %w", err)
		}
		cmp, err := numeric(cond, float64(bound))
		if err != nil {
			return performance.Check{}, err
		}
		return performance.NewCheck(name, func(resp *http.Response) bool {
			return cmp(float64(resp.Duration))
		}), nil
	}

	return performance.Check{}, fmt.Errorf("unknown assertion type %q", a.Type)
}

func defaultCondition(a config.AssertionConfig) string {
	switch a.Type {
	case "body":
		return "contains"
	case "duration":
		return "lt"
	case "header", "json":
		if a.Value == "" {
			return "exists"
		}
	}
	return "eq"
}

func checkName(request string, a config.AssertionConfig, cond string) string {
	parts := []string{request + ":", a.Type}
	if a.Path != "" {
		parts = append(parts, a.Path)
	}
	if a.Type == "schema" {
		return strings.Join(append(parts, "valid"), " ")
	}
	parts = append(parts, cond)
	if a.Value != "" {
		parts = append(parts, a.Value)
	}
	return strings.Join(parts, " ")
}

// statusCheck declares eq and in statuses as expected, so "status in
// 200,404" keeps a 404 out of the error rate.
func statusCheck(name, cond, value string) (performance.Check, error) {
	switch cond {
	case "eq", "in":
		codes, err := statusCodes(value)
		if err != nil {
			return performance.Check{}, err
		}
		chk := performance.StatusIn(codes...)
		chk.Name = name
		return chk, nil
	}

	want, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return performance.Check{}, fmt.Errorf("status value %q: %w", value, err)
	}
	cmp, err := numeric(cond, float64(want))
	if err != nil {
		return performance.Check{}, err
	}
	return performance.NewCheck(name, func(resp *http.Response) bool {
		return cmp(float64(resp.StatusCode))
	}), nil
}

func statusCodes(value string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(value, ",") {
		c, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("status value %q: %w", value, err)
		}
		codes = append(codes, c)
	}
	return codes, nil
}

// matcher compiles a string comparison. The returned func receives the
// actual value and whether it was present at all.
func matcher(cond, want string) (func(actual string, present bool) bool, error) {
	switch cond {
	case "exists":
		return func(_ string, present bool) bool { return present }, nil
	case "eq":
		return func(actual string, present bool) bool { return present && actual == want }, nil
	case "ne":
		return func(actual string, _ bool) bool { return actual != want }, nil
	case "contains":
		return func(actual string, _ bool) bool { return strings.Contains(actual, want) }, nil
	case "matches":
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", want, err)
		}
		return func(actual string, present bool) bool { return present && re.MatchString(actual) }, nil
	case "in":
		set := make(map[string]struct{})
		for _, v := range strings.Split(want, ",") {
			set[strings.TrimSpace(v)] = struct{}{}
		}
		return func(actual string, present bool) bool {
			_, ok := set[actual]
			return present && ok
		}, nil
	case "gt", "lt", "gte", "lte":
		bound, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		if err != nil {
			return nil, fmt.Errorf("numeric value %q: %w", want, err)
		}
		cmp, err := numeric(cond, bound)
		if err != nil {
			return nil, err
		}
		return func(actual string, present bool) bool {
			v, err := strconv.ParseFloat(actual, 64)
			return present && err == nil && cmp(v)
		}, nil
	}
	return nil, fmt.Errorf("unknown condition %q", cond)
}

func numeric(cond string, bound float64) (func(float64) bool, error) {
	switch cond {
	case "eq":
		return func(v float64) bool { return v == bound }, nil
	case "ne":
		return func(v float64) bool { return v != bound }, nil
	case "gt":
		return func(v float64) bool { return v > bound }, nil
	case "lt":
		return func(v float64) bool { return v < bound }, nil
	case "gte":
		return func(v float64) bool { return v >= bound }, nil
	case "lte":
		return func(v float64) bool { return v <= bound }, nil
	}
	return nil, fmt.Errorf("condition %q does not apply to numbers", cond)
}
