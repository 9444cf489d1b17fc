// Package salon holds the built-in load scenarios for the grooming-salon
// API and the stage presets they run under.
package salon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/session"
)

// Definition is a built-in scenario.
type Definition struct {
	Name        string
	Description string
	Body        performance.Body

	// SetupLogin hands every VU the token of one admin login made before
	// the ramp starts.
	SetupLogin bool
	UsesLogout bool

	Profile    string
	Thresholds map[string][]string
}

var registry = map[string]Definition{
	"auth_flow": {
		Name:        "auth_flow",
		Description: "login, refresh and logout with the VU's own account",
		Body:        AuthFlow,
		UsesLogout:  true,
		Profile:     ProfileStandard,
		Thresholds:  DefaultThresholds(),
	},
	"appointments": {
		Name:        "appointments",
		Description: "available slots, appointment listing and groomer availability",
		Body:        Appointments,
		SetupLogin:  true,
		Profile:     ProfileStandard,
		Thresholds:  DefaultThresholds(),
	},
	"os_workflow": {
		Name:        "os_workflow",
		Description: "service order listing and lookups with the catalogs around them",
		Body:        OSWorkflow,
		SetupLogin:  true,
		Profile:     ProfileStandard,
		Thresholds:  DefaultThresholds(),
	},
	"reports": {
		Name:        "reports",
		Description: "report endpoints and CSV/PDF exports",
		Body:        Reports,
		SetupLogin:  true,
		Profile:     ProfileStandard,
		Thresholds:  ReportThresholds(),
	},
}

// Lookup returns the built-in scenario with the given name.
func Lookup(name string) (Definition, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names lists the built-in scenarios in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrNoSession is returned by bodies that manage their own tokens when the
// runtime has no session coordinator.
var ErrNoSession = errors.New("scenario needs a session coordinator")

// now is the clock used for date parameters.
var now = time.Now

func status(name string, codes ...int) performance.Check {
	chk := performance.StatusIn(codes...)
	chk.Name = name
	return chk
}

func contentType(name, ct string) performance.Check {
	chk := performance.ContentTypeContains(ct)
	chk.Name = name
	return chk
}

// AuthFlow logs in, refreshes and logs out with a session of its own.
func AuthFlow(ctx context.Context, vu *performance.VUContext) error {
	sess := vu.Session()
	if sess == nil {
		return ErrNoSession
	}

	err := sess.Login(ctx)
	vu.Check("login status 200", completedWithOK(err))
	vu.Check("has access token", err == nil)
	if err != nil {
		return vu.Sleep(ctx, time.Second)
	}
	if err := vu.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}

	err = sess.Refresh(ctx)
	vu.Check("refresh status 200", completedWithOK(err))
	vu.Check("has new access token", err == nil)

	if err == nil {
		if err := vu.Sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		err = sess.Logout(ctx)
		var cfgErr *failure.ConfigurationError
		if errors.As(err, &cfgErr) {
			return err
		}
		vu.Check("logout status 204", err == nil)
	}

	return vu.Sleep(ctx, time.Second)
}

// completedWithOK reports whether an auth call got its expected status,
// even if the body then failed to parse.
func completedWithOK(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *session.StatusError
	var transportErr *failure.TransportError
	return !errors.As(err, &statusErr) && !errors.As(err, &transportErr) && !errors.Is(err, session.ErrNotLoggedIn)
}

// get is one authenticated GET within a group.
type get struct {
	label  string
	path   func() string
	checks []performance.Check
	pause  time.Duration
}

type group struct {
	name  string
	calls []get
}

func fixed(path string) func() string {
	return func() string { return path }
}

// sequence runs groups in order with the setup token, then pauses for tail.
func sequence(groups []group, tail time.Duration) performance.Body {
	return func(ctx context.Context, vu *performance.VUContext) error {
		token := vu.AccessToken()
		for _, g := range groups {
			err := vu.Group(g.name, func() error {
				for _, c := range g.calls {
					req := http.NewRequest("GET", c.path()).WithBearer(token)
					// Transport failures are already recorded.
					if _, err := vu.Request(ctx, c.label, req, c.checks...); err != nil && ctx.Err() != nil {
						return ctx.Err()
					}
					if err := vu.Sleep(ctx, c.pause); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return vu.Sleep(ctx, tail)
	}
}

// Appointments exercises the scheduling endpoints.
var Appointments = sequence([]group{
	{name: "Available slots query", calls: []get{{
		path: func() string {
			tomorrow := now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
			return fmt.Sprintf("/appointments/available-slots?groomerId=1&serviceTypeId=1&date=%s", tomorrow)
		},
		checks: []performance.Check{status("available slots status 200 or 404", 200, 404)},
		pause:  500 * time.Millisecond,
	}}},
	{name: "List appointments by date range", calls: []get{{
		path:   fixed("/appointments?startDate=2026-01-01&endDate=2026-12-31&page=0&size=20"),
		checks: []performance.Check{status("list appointments status 200", 200)},
		pause:  500 * time.Millisecond,
	}}},
	{name: "Groomer availability windows", calls: []get{{
		path:   fixed("/groomers/1/availability"),
		checks: []performance.Check{status("availability status 200 or 404", 200, 404)},
		pause:  500 * time.Millisecond,
	}}},
}, time.Second)

// OSWorkflow exercises the service order (OS) listing and lookups.
var OSWorkflow = sequence([]group{
	{name: "List OS with filters", calls: []get{
		{
			label:  "all",
			path:   fixed("/os?page=0&size=10"),
			checks: []performance.Check{status("list OS status 200", 200)},
			pause:  300 * time.Millisecond,
		},
		{
			label:  "waiting",
			path:   fixed("/os?status=WAITING&page=0&size=10"),
			checks: []performance.Check{status("filter OS status 200", 200)},
			pause:  300 * time.Millisecond,
		},
	}},
	{name: "Get single OS", calls: []get{{
		path:   fixed("/os/1"),
		checks: []performance.Check{status("get OS status 200 or 404", 200, 404)},
		pause:  300 * time.Millisecond,
	}}},
	{name: "List clients", calls: []get{{
		path:   fixed("/clients?page=0&size=10"),
		checks: []performance.Check{status("list clients status 200", 200)},
		pause:  300 * time.Millisecond,
	}}},
	{name: "List groomers", calls: []get{{
		path:   fixed("/groomers"),
		checks: []performance.Check{status("list groomers status 200", 200)},
		pause:  300 * time.Millisecond,
	}}},
	{name: "List service types", calls: []get{{
		path:   fixed("/service-types"),
		checks: []performance.Check{status("list service types status 200", 200)},
		pause:  300 * time.Millisecond,
	}}},
}, time.Second)

const reportRange = "startDate=2025-01-01&endDate=2026-12-31"

func report(name, path, check string, extra ...performance.Check) group {
	return group{name: name, calls: []get{{
		path:   fixed(path),
		checks: append([]performance.Check{status(check, 200)}, extra...),
		pause:  500 * time.Millisecond,
	}}}
}

// Reports exercises the reporting endpoints and exports.
var Reports = sequence([]group{
	report("Daily revenue report", "/reports/revenue/daily?"+reportRange, "revenue report status 200"),
	report("Service type report", "/reports/service-types?"+reportRange, "service type report status 200"),
	report("Top clients report", "/reports/clients/top?limit=20", "top clients report status 200"),
	report("Groomer performance report", "/reports/groomers/performance?"+reportRange, "groomer performance status 200"),
	report("Status distribution", "/reports/status-distribution", "status distribution status 200"),
	report("Payment methods stats", "/reports/payment-methods", "payment methods status 200"),
	report("CSV export - daily revenue", "/reports/revenue/daily/csv?"+reportRange, "CSV export status 200",
		contentType("CSV content type", "text/csv")),
	report("PDF export - daily revenue", "/reports/revenue/daily/pdf?"+reportRange, "PDF export status 200",
		contentType("PDF content type", "application/pdf")),
}, time.Second)
