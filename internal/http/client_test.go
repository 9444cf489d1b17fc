package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected method GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/groomers" {
			t.Errorf("Expected path /api/groomers, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer abc" {
			t.Errorf("Expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("User-Agent") != "groomload-test" {
			t.Errorf("Expected client default header, got %q", r.Header.Get("User-Agent"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"id":1}]`))
	}))
	defer server.Close()

	client := NewClient(
		WithTimeout(5*time.Second),
		WithHeader("User-Agent", "groomload-test"),
		WithBaseURL(server.URL+"/api"),
	)

	resp, err := client.Do(context.Background(), NewRequest("GET", "/groomers").WithBearer("abc"))
	if err != nil {
		t.Fatalf("Error executing request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !resp.HasContentType("application/json") {
		t.Errorf("Content-Type = %q, want application/json", resp.GetHeader("Content-Type"))
	}
	if resp.GetBodyAsString() != `[{"id":1}]` {
		t.Errorf("Body = %s", resp.GetBodyAsString())
	}
	if resp.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", resp.Duration)
	}
}

func TestClient_Do_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(WithBaseURL(url), WithTimeout(time.Second))
	resp, err := client.Do(context.Background(), NewRequest("GET", "/health"))
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
}

func TestClient_Do_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(WithBaseURL(server.URL))
	if _, err := client.Do(ctx, NewRequest("GET", "/slow")); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestRequest_ResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		query   map[string]string
		want    string
	}{
		{"base with path", "http://localhost:8091/api", "/auth/login", nil, "http://localhost:8091/api/auth/login"},
		{"trailing slash", "http://localhost:8091/api/", "os", nil, "http://localhost:8091/api/os"},
		{"inline query", "http://localhost:8091/api", "/os?page=0&size=10", nil, "http://localhost:8091/api/os?page=0&size=10"},
		{"query params", "http://localhost:8091", "/reports/clients/top", map[string]string{"limit": "20"}, "http://localhost:8091/reports/clients/top?limit=20"},
		{"absolute url wins", "http://localhost:8091/api", "https://other.example.com/x", nil, "https://other.example.com/x"},
		{"no base", "", "http://localhost/x", nil, "http://localhost/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("GET", tt.path)
			for k, v := range tt.query {
				req.WithQueryParam(k, v)
			}
			got, err := req.ResolveURL(tt.baseURL)
			if err != nil {
				t.Fatalf("ResolveURL() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ResolveURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequest_Build_JSONBody(t *testing.T) {
	req := NewRequest("post", "/auth/login").WithBody(map[string]string{"username": "admin"})

	httpReq, err := req.Build("http://localhost:8091/api")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if httpReq.Method != "POST" {
		t.Errorf("Method = %s, want POST", httpReq.Method)
	}
	if httpReq.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", httpReq.Header.Get("Content-Type"))
	}
	if _, ok := req.Headers["Content-Type"]; ok {
		t.Error("Build() must not mutate the request headers")
	}
}
