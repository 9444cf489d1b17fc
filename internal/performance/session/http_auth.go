package session

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
)

// Outcome labels for authentication calls.
const (
	LabelLogin   = "auth/login"
	LabelRefresh = "auth/refresh"
	LabelLogout  = "auth/logout"
)

// Recorder receives the outcome of every authentication request.
type Recorder interface {
	Record(o metrics.RequestOutcome)
}

// Paths are the authentication endpoints, relative to the base URL.
type Paths struct {
	Login   string
	Refresh string
	Logout  string
}

// DefaultPaths returns the salon API's authentication endpoints.
func DefaultPaths() Paths {
	return Paths{
		Login:   "/auth/login",
		Refresh: "/auth/refresh",
		Logout:  "/auth/logout",
	}
}

// StatusError is a completed authentication call with an unexpected status.
type StatusError struct {
	Label      string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Label, e.StatusCode)
}

// HTTPAuthenticator talks to a JSON token API:
//
//	POST login   {"username","password"} -> 200 {"accessToken","refreshToken"}
//	POST refresh {"refreshToken"}        -> 200 {"accessToken","refreshToken"}
//	POST logout  {"refreshToken"} + bearer -> 204
type HTTPAuthenticator struct {
	client   http.Requester
	paths    Paths
	recorder Recorder
}

// NewHTTPAuthenticator creates an authenticator. recorder may be nil.
func NewHTTPAuthenticator(client http.Requester, paths Paths, recorder Recorder) *HTTPAuthenticator {
	return &HTTPAuthenticator{client: client, paths: paths, recorder: recorder}
}

func (a *HTTPAuthenticator) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	req := http.NewRequest("POST", a.paths.Login).WithBody(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	resp, err := a.do(ctx, LabelLogin, req, 200)
	if err != nil {
		return TokenPair{}, err
	}
	return parseTokens(LabelLogin, resp)
}

func (a *HTTPAuthenticator) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	req := http.NewRequest("POST", a.paths.Refresh).WithBody(map[string]string{
		"refreshToken": refreshToken,
	})
	resp, err := a.do(ctx, LabelRefresh, req, 200)
	if err != nil {
		return TokenPair{}, err
	}
	return parseTokens(LabelRefresh, resp)
}

func (a *HTTPAuthenticator) Logout(ctx context.Context, tokens TokenPair) error {
	req := http.NewRequest("POST", a.paths.Logout).
		WithBearer(tokens.AccessToken).
		WithBody(map[string]string{"refreshToken": tokens.RefreshToken})
	_, err := a.do(ctx, LabelLogout, req, 204, 200)
	return err
}

func (a *HTTPAuthenticator) do(ctx context.Context, label string, req *http.Request, expected ...int) (*http.Response, error) {
	start := time.Now()
	resp, err := a.client.Do(ctx, req)

	outcome := metrics.RequestOutcome{
		Label:            label,
		Method:           "POST",
		ExpectedStatuses: expected,
		Timestamp:        start,
	}
	if err != nil {
		outcome.Duration = time.Since(start)
		outcome.Err = err
		a.record(outcome)
		return nil, &failure.TransportError{Label: label, Err: err}
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Duration = resp.Duration
	outcome.Bytes = int64(len(resp.Body))
	statusOK := !outcome.Failed()
	outcome.Checks = map[string]bool{label + " status ok": statusOK}
	a.record(outcome)

	if !statusOK {
		return nil, &StatusError{Label: label, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (a *HTTPAuthenticator) record(o metrics.RequestOutcome) {
	if a.recorder != nil {
		a.recorder.Record(o)
	}
}

func parseTokens(label string, resp *http.Response) (TokenPair, error) {
	access := gjson.GetBytes(resp.Body, "accessToken")
	refresh := gjson.GetBytes(resp.Body, "refreshToken")
	if !access.Exists() || access.String() == "" {
		return TokenPair{}, fmt.Errorf("%s: response has no accessToken", label)
	}
	return TokenPair{AccessToken: access.String(), RefreshToken: refresh.String()}, nil
}

var _ Authenticator = (*HTTPAuthenticator)(nil)
