package performance

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/session"
)

func salonServer() *httptest.Server {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/api/os/1", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotFound)
	})
	mux.HandleFunc("/api/reports/revenue/daily/csv", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte("date,revenue\n"))
	})
	return httptest.NewServer(mux)
}

func TestVUContext_Request(t *testing.T) {
	srv := salonServer()
	defer srv.Close()

	rt := newTestRuntime(t)
	rt.Client = http.NewClient(http.WithBaseURL(srv.URL + "/api"))

	var got *http.Response
	scenario := &Scenario{
		Name: "reports",
		Body: func(ctx context.Context, vu *VUContext) error {
			if _, err := vu.Request(ctx, "get os", http.NewRequest("GET", "/os/1"), StatusIn(200, 404)); err != nil {
				return err
			}
			return vu.Group("CSV Export", func() error {
				resp, err := vu.Request(ctx, "", http.NewRequest("GET", "/reports/revenue/daily/csv"),
					StatusIn(200), ContentTypeContains("text/csv"))
				got = resp
				return err
			})
		},
	}

	vu := NewVirtualUser(1, scenario, rt, nil)
	require.NoError(t, vu.RunIteration(context.Background()))
	require.NotNil(t, got)
	assert.Equal(t, "date,revenue\n", got.GetBodyAsString())

	getOS, ok := rt.Metrics.Snapshot("get os")
	require.True(t, ok)
	assert.Equal(t, int64(1), getOS.Count())
	assert.Equal(t, int64(0), getOS.Failures(), "404 is declared expected")

	csv, ok := rt.Metrics.Snapshot("CSV Export")
	require.True(t, ok)
	assert.Equal(t, int64(1), csv.Count())

	check, ok := rt.Metrics.Check("content type is text/csv")
	require.True(t, ok)
	assert.Equal(t, int64(1), check.Passes)

	check, _ = rt.Metrics.Check("status is 200 or 404")
	assert.Equal(t, int64(1), check.Passes)
}

func TestVUContext_RequestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(nethttp.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rt := newTestRuntime(t)
	rt.Client = http.NewClient(http.WithBaseURL(url))

	scenario := &Scenario{
		Name: "appointments",
		Body: func(ctx context.Context, vu *VUContext) error {
			_, err := vu.Request(ctx, "list", http.NewRequest("GET", "/appointments"), StatusIn(200))
			return err
		},
	}

	vu := NewVirtualUser(1, scenario, rt, nil)
	err := vu.RunIteration(context.Background())

	var tErr *failure.TransportError
	require.True(t, errors.As(err, &tErr), "error = %v", err)
	assert.Equal(t, "list", tErr.Label)

	view, _ := rt.Metrics.Snapshot("list")
	assert.Equal(t, int64(1), view.Failures())
	check, _ := rt.Metrics.Check("status is 200")
	assert.Equal(t, int64(1), check.Fails)
	assert.Equal(t, int64(1), rt.Metrics.IterationErrors())
}

func TestVUContext_GroupLabelsNest(t *testing.T) {
	rt := newTestRuntime(t)
	vu := NewVirtualUser(3, &Scenario{Name: "s"}, rt, "setup-data")
	c := &VUContext{vu: vu, iteration: 1}

	_ = c.Group("outer", func() error {
		assert.Equal(t, "outer", c.label(""))
		return c.Group("inner", func() error {
			assert.Equal(t, "outer::inner::x", c.label("x"))
			return nil
		})
	})
	assert.Equal(t, "x", c.label("x"))
	assert.Equal(t, "setup-data", c.Data())
	assert.Equal(t, 3, c.ID())
	assert.Nil(t, c.Session())

	c.Set("osId", "42")
	v, ok := c.Get("osId")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestNewVirtualUser_SessionPerVU(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Sessions = session.NewCoordinator(session.ModeIsolated, nil, session.Credentials{}, nil)

	a := NewVirtualUser(1, &Scenario{Name: "s"}, rt, nil)
	b := NewVirtualUser(2, &Scenario{Name: "s"}, rt, nil)
	require.NotNil(t, a.session)
	assert.NotSame(t, a.session, b.session)
}
