package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one call against the API under test. Path is either an
// absolute URL or a path joined onto the client's base URL.
type Request struct {
	Method      string
	Path        string
	QueryParams url.Values
	Headers     map[string]string
	Body        interface{}
}

// NewRequest creates a new HTTP request
func NewRequest(method, path string) *Request {
	return &Request{
		Method:      method,
		Path:        path,
		QueryParams: make(url.Values),
		Headers:     make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithBearer sets the Authorization header to a bearer token.
func (r *Request) WithBearer(token string) *Request {
	if token == "" {
		return r
	}
	return r.WithHeader("Authorization", "Bearer "+token)
}

// WithQueryParam adds a query parameter to the request
func (r *Request) WithQueryParam(key, value string) *Request {
	r.QueryParams.Add(key, value)
	return r
}

// WithBody sets the body of the request. Values other than string, []byte
// and io.Reader are encoded as JSON.
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// ResolveURL returns the final URL of the request against baseURL.
func (r *Request) ResolveURL(baseURL string) (*url.URL, error) {
	var reqURL *url.URL
	var err error

	if strings.HasPrefix(r.Path, "http://") || strings.HasPrefix(r.Path, "https://") || baseURL == "" {
		reqURL, err = url.Parse(r.Path)
	} else {
		reqURL, err = url.Parse(baseURL)
		if err == nil {
			path, rawQuery, _ := strings.Cut(r.Path, "?")
			if reqURL.Path == "" {
				reqURL.Path = "/" + strings.TrimLeft(path, "/")
			} else {
				reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
			}
			reqURL.RawQuery = rawQuery
		}
	}
	if err != nil {
		return nil, err
	}

	if len(r.QueryParams) > 0 {
		query := reqURL.Query()
		for key, values := range r.QueryParams {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		reqURL.RawQuery = query.Encode()
	}

	return reqURL, nil
}

// Build constructs an http.Request from the Request
func (r *Request) Build(baseURL string) (*http.Request, error) {
	reqURL, err := r.ResolveURL(baseURL)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(r.Headers)+1)
	for key, value := range r.Headers {
		headers[key] = value
	}

	var bodyReader io.Reader
	if r.Body != nil {
		switch body := r.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			bodyReader = bytes.NewReader(jsonBody)
			if _, ok := headers["Content-Type"]; !ok {
				headers["Content-Type"] = "application/json"
			}
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(strings.ToUpper(method), reqURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}
