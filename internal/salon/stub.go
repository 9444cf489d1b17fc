package salon

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	nethttp "net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StubOptions configures the stub salon API.
type StubOptions struct {
	// Username and Password are the admin credentials. An empty Username
	// accepts any login.
	Username string
	Password string

	// Users are further accepted accounts, username to password.
	Users map[string]string

	// Latency is added to every response.
	Latency time.Duration

	// ErrorRate is the fraction of data endpoint calls answered with 500.
	ErrorRate float64

	Logger *zap.Logger
}

// Stub is an in-memory stand-in for the salon API. It serves the auth
// endpoints and every path the built-in scenarios call, so a run can be
// tried without the real backend.
type Stub struct {
	opts StubOptions
	mux  *nethttp.ServeMux

	seq      atomic.Int64
	mu       sync.RWMutex
	access   map[string]string              // access token -> username
	refresh  map[string]string              // refresh token -> username
	accounts map[string]map[string]struct{} // username -> live tokens

	requests atomic.Int64
}

// NewStub creates a stub salon API.
func NewStub(opts StubOptions) *Stub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Stub{
		opts:     opts,
		mux:      nethttp.NewServeMux(),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		accounts: make(map[string]map[string]struct{}),
	}

	s.mux.HandleFunc("POST /auth/login", s.login)
	s.mux.HandleFunc("POST /auth/refresh", s.refreshTokens)
	s.mux.HandleFunc("POST /auth/logout", s.logout)

	s.data("GET /appointments/available-slots", func(r *nethttp.Request) (int, any) {
		if r.URL.Query().Get("date") == "" {
			return nethttp.StatusBadRequest, map[string]string{"error": "date is required"}
		}
		return nethttp.StatusOK, map[string]any{"slots": []string{"09:00", "10:30", "14:00"}}
	})
	s.data("GET /appointments", page)
	s.data("GET /groomers/{id}/availability", func(r *nethttp.Request) (int, any) {
		if r.PathValue("id") != "1" {
			return nethttp.StatusNotFound, map[string]string{"error": "groomer not found"}
		}
		return nethttp.StatusOK, map[string]any{"groomerId": 1, "windows": []string{"08:00-12:00", "13:00-18:00"}}
	})
	s.data("GET /os", page)
	s.data("GET /os/{id}", func(r *nethttp.Request) (int, any) {
		if r.PathValue("id") != "1" {
			return nethttp.StatusNotFound, map[string]string{"error": "service order not found"}
		}
		return nethttp.StatusOK, map[string]any{"id": 1, "status": "WAITING"}
	})
	s.data("GET /clients", page)
	s.data("GET /groomers", list)
	s.data("GET /service-types", list)
	s.data("GET /reports/", func(r *nethttp.Request) (int, any) {
		return nethttp.StatusOK, map[string]any{"report": strings.TrimPrefix(r.URL.Path, "/reports/"), "rows": []any{}}
	})
	s.mux.HandleFunc("GET /reports/revenue/daily/csv", s.authenticated(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "date,revenue\n2026-01-01,0\n")
	}))
	s.mux.HandleFunc("GET /reports/revenue/daily/pdf", s.authenticated(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4\n%%EOF\n")
	}))
	s.mux.HandleFunc("GET /health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprint(w, "healthy")
	})
	return s
}

// Requests returns how many requests the stub has served.
func (s *Stub) Requests() int64 {
	return s.requests.Load()
}

func (s *Stub) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	s.requests.Add(1)
	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return
		}
	}
	// The real API lives under /api; accept both.
	if strings.HasPrefix(r.URL.Path, "/api/") {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/api")
		r.URL.RawPath = ""
	}
	s.opts.Logger.Debug("stub request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
	s.mux.ServeHTTP(w, r)
}

func (s *Stub) login(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if !s.accepts(body.Username, body.Password) {
		writeJSON(w, nethttp.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, nethttp.StatusOK, s.issue(body.Username))
}

func (s *Stub) accepts(username, password string) bool {
	if s.opts.Username == "" {
		return true
	}
	if username == s.opts.Username {
		return password == s.opts.Password
	}
	want, ok := s.opts.Users[username]
	return ok && password == want
}

func (s *Stub) refreshTokens(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, nethttp.StatusBadRequest, map[string]string{"error": "refreshToken is required"})
		return
	}
	s.mu.Lock()
	user, ok := s.refresh[body.RefreshToken]
	if ok {
		delete(s.refresh, body.RefreshToken)
		delete(s.accounts[user], body.RefreshToken)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, nethttp.StatusUnauthorized, map[string]string{"error": "unknown refresh token"})
		return
	}
	writeJSON(w, nethttp.StatusOK, s.issue(user))
}

func (s *Stub) logout(w nethttp.ResponseWriter, r *nethttp.Request) {
	token, ok := s.bearer(r)
	if !ok {
		writeJSON(w, nethttp.StatusUnauthorized, map[string]string{"error": "missing or unknown token"})
		return
	}
	s.revokeAccount(token)
	w.WriteHeader(nethttp.StatusNoContent)
}

// revokeAccount drops every token of the account that owns token, the way
// a logout on the salon API ends all sessions of that account.
func (s *Stub) revokeAccount(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.access[token]
	if !ok {
		return
	}
	for t := range s.accounts[user] {
		delete(s.access, t)
		delete(s.refresh, t)
	}
	delete(s.accounts, user)
}

func (s *Stub) issue(user string) map[string]string {
	n := s.seq.Add(1)
	access := fmt.Sprintf("access-%d", n)
	refresh := fmt.Sprintf("refresh-%d", n)

	s.mu.Lock()
	s.access[access] = user
	s.refresh[refresh] = user
	tokens, ok := s.accounts[user]
	if !ok {
		tokens = make(map[string]struct{})
		s.accounts[user] = tokens
	}
	tokens[access] = struct{}{}
	tokens[refresh] = struct{}{}
	s.mu.Unlock()

	return map[string]string{"accessToken": access, "refreshToken": refresh}
}

func (s *Stub) bearer(r *nethttp.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return "", false
	}
	s.mu.RLock()
	_, ok := s.access[token]
	s.mu.RUnlock()
	return token, ok
}

func (s *Stub) authenticated(next nethttp.HandlerFunc) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if _, ok := s.bearer(r); !ok {
			writeJSON(w, nethttp.StatusUnauthorized, map[string]string{"error": "missing or unknown token"})
			return
		}
		if s.opts.ErrorRate > 0 && rand.Float64() < s.opts.ErrorRate {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next(w, r)
	}
}

func (s *Stub) data(pattern string, fn func(*nethttp.Request) (int, any)) {
	s.mux.HandleFunc(pattern, s.authenticated(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		status, body := fn(r)
		writeJSON(w, status, body)
	}))
}

func page(r *nethttp.Request) (int, any) {
	return nethttp.StatusOK, map[string]any{
		"content":       []any{},
		"page":          r.URL.Query().Get("page"),
		"totalElements": 0,
	}
}

func list(*nethttp.Request) (int, any) {
	return nethttp.StatusOK, []any{}
}

func writeJSON(w nethttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
