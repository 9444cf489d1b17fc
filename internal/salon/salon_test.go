package salon

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/session"
	"github.com/wesleyorama2/groomload/internal/performance/threshold"
)

type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Now() }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

// fakeSalon answers every endpoint the built-in scenarios call.
type fakeSalon struct {
	mu    sync.Mutex
	paths []string
	auth  []string
}

func (f *fakeSalon) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.RequestURI())
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case path == "/auth/login":
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "admin123" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"accessToken":"access-1","refreshToken":"refresh-1"}`))
	case path == "/auth/refresh":
		w.Write([]byte(`{"accessToken":"access-2","refreshToken":"refresh-2"}`))
	case path == "/auth/logout":
		w.WriteHeader(nethttp.StatusNoContent)
	case path == "/os/1", path == "/groomers/1/availability":
		w.WriteHeader(nethttp.StatusNotFound)
	case strings.HasSuffix(path, "/csv"):
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("date,total\n"))
	case strings.HasSuffix(path, "/pdf"):
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[]}`))
	}
}

func newRuntime(t *testing.T, srv *httptest.Server, mode session.Mode, password string) (*performance.Runtime, *fakeClock) {
	t.Helper()
	mcfg := metrics.DefaultConfig()
	mcfg.BucketInterval = 0
	collector := metrics.NewCollector(mcfg)
	t.Cleanup(collector.Stop)

	client := http.NewClient(http.WithBaseURL(srv.URL + "/api"))
	auth := session.NewHTTPAuthenticator(client, session.DefaultPaths(), collector)
	clock := &fakeClock{}
	return &performance.Runtime{
		Client:   client,
		Metrics:  collector,
		Sessions: session.NewCoordinator(mode, auth, session.Credentials{Username: "admin", Password: password}, nil),
		Clock:    clock,
	}, clock
}

func runOnce(rt *performance.Runtime, name string, body performance.Body, data any) error {
	vu := performance.NewVirtualUser(1, &performance.Scenario{Name: name, Body: body}, rt, data)
	return vu.RunIteration(context.Background())
}

func passes(t *testing.T, c *metrics.Collector, name string) int64 {
	t.Helper()
	stats, ok := c.Check(name)
	require.True(t, ok, "check %q not recorded", name)
	return stats.Passes
}

func TestAuthFlow(t *testing.T) {
	api := &fakeSalon{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	rt, clock := newRuntime(t, srv, session.ModeIsolated, "admin123")
	require.NoError(t, runOnce(rt, "auth_flow", AuthFlow, nil))

	for _, name := range []string{"login status 200", "has access token", "refresh status 200", "has new access token", "logout status 204"} {
		assert.Equal(t, int64(1), passes(t, rt.Metrics, name), name)
	}
	assert.Equal(t, 2*time.Second, clock.total())
	assert.Equal(t, "Bearer access-2", api.auth[2], "logout uses the refreshed token")
}

func TestAuthFlow_LoginRejected(t *testing.T) {
	srv := httptest.NewServer(&fakeSalon{})
	defer srv.Close()

	rt, clock := newRuntime(t, srv, session.ModeIsolated, "wrong")
	require.NoError(t, runOnce(rt, "auth_flow", AuthFlow, nil))

	stats, _ := rt.Metrics.Check("login status 200")
	assert.Equal(t, int64(1), stats.Fails)
	_, ok := rt.Metrics.Check("refresh status 200")
	assert.False(t, ok, "refresh must not run after a failed login")
	assert.Equal(t, time.Second, clock.total())
}

func TestAuthFlow_SharedModeLogoutIsFatal(t *testing.T) {
	srv := httptest.NewServer(&fakeSalon{})
	defer srv.Close()

	rt, _ := newRuntime(t, srv, session.ModeShared, "admin123")
	err := runOnce(rt, "auth_flow", AuthFlow, nil)
	require.Error(t, err)

	var cfgErr *failure.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, failure.ErrLogoutForbidden))
}

func TestAuthFlow_NoCoordinator(t *testing.T) {
	srv := httptest.NewServer(&fakeSalon{})
	defer srv.Close()

	rt, _ := newRuntime(t, srv, session.ModeIsolated, "admin123")
	rt.Sessions = nil
	assert.ErrorIs(t, runOnce(rt, "auth_flow", AuthFlow, nil), ErrNoSession)
}

func TestAppointments(t *testing.T) {
	api := &fakeSalon{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	prev := now
	now = func() time.Time { return time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC) }
	defer func() { now = prev }()

	rt, clock := newRuntime(t, srv, session.ModeIsolated, "admin123")
	require.NoError(t, runOnce(rt, "appointments", Appointments, session.TokenPair{AccessToken: "setup-token"}))

	assert.Contains(t, api.paths, "/api/appointments/available-slots?groomerId=1&serviceTypeId=1&date=2026-04-01")
	for _, h := range api.auth {
		assert.Equal(t, "Bearer setup-token", h)
	}
	assert.Equal(t, 2500*time.Millisecond, clock.total())

	v, ok := rt.Metrics.Snapshot("Groomer availability windows")
	require.True(t, ok)
	assert.Equal(t, int64(0), v.Failures(), "404 is an expected status")
	assert.Equal(t, int64(1), passes(t, rt.Metrics, "availability status 200 or 404"))
}

func TestOSWorkflow(t *testing.T) {
	api := &fakeSalon{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	rt, clock := newRuntime(t, srv, session.ModeIsolated, "admin123")
	require.NoError(t, runOnce(rt, "os_workflow", OSWorkflow, session.TokenPair{AccessToken: "t"}))

	assert.Len(t, api.paths, 6)
	assert.Equal(t, 6*300*time.Millisecond+time.Second, clock.total())

	for _, label := range []string{"List OS with filters::all", "List OS with filters::waiting", "Get single OS", "List service types"} {
		v, ok := rt.Metrics.Snapshot(label)
		require.True(t, ok, label)
		assert.Equal(t, int64(0), v.Failures(), label)
	}
	assert.Equal(t, int64(0), rt.Metrics.CheckTotals().Fails)
}

func TestReports(t *testing.T) {
	api := &fakeSalon{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	rt, clock := newRuntime(t, srv, session.ModeIsolated, "admin123")
	require.NoError(t, runOnce(rt, "reports", Reports, session.TokenPair{AccessToken: "t"}))

	assert.Len(t, api.paths, 8)
	assert.Equal(t, 8*500*time.Millisecond+time.Second, clock.total())
	assert.Equal(t, int64(1), passes(t, rt.Metrics, "CSV content type"))
	assert.Equal(t, int64(1), passes(t, rt.Metrics, "PDF content type"))
	assert.Equal(t, int64(10), rt.Metrics.CheckTotals().Passes)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"appointments", "auth_flow", "os_workflow", "reports"}, Names())

	def, ok := Lookup("auth_flow")
	require.True(t, ok)
	assert.True(t, def.UsesLogout)
	assert.False(t, def.SetupLogin)

	def, ok = Lookup("reports")
	require.True(t, ok)
	assert.True(t, def.SetupLogin)
	assert.Equal(t, []string{"p(95)<1000", "p(99)<2000"}, def.Thresholds["http_req_duration"])

	_, ok = Lookup("checkout")
	assert.False(t, ok)

	for _, name := range Names() {
		def, _ := Lookup(name)
		_, err := threshold.ParseAll(def.Thresholds)
		assert.NoError(t, err, name)
		_, ok := Profile(def.Profile)
		assert.True(t, ok, name)
	}
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"smoke", "standard", "stress"}, ProfileNames())

	stages, ok := Profile(ProfileStandard)
	require.True(t, ok)
	require.Len(t, stages, 5)
	assert.Equal(t, config.StageConfig{Duration: "30s", Target: 30, Name: "ramp-up-2"}, stages[2])

	stages[0].Target = 99
	again, _ := Profile(ProfileStandard)
	assert.Equal(t, 10, again[0].Target, "Profile returns a copy")

	stress, _ := Profile(ProfileStress)
	peak := 0
	for _, s := range stress {
		if s.Target > peak {
			peak = s.Target
		}
	}
	assert.Equal(t, 50, peak)

	_, ok = Profile("soak")
	assert.False(t, ok)
}
