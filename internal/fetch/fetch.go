// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package fetch implements the outbound HTTP client available to bot scripts.
//
// Every request is bounded by a timeout, only http and https URLs are allowed
// and response bodies are truncated to [MaxBodySize].
package fetch

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.astrophena.name/starhost/internal/version"
)

// Limits.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 60 * time.Second
	MaxBodySize    = 5 << 20
)

var (
	// ErrDecode is returned by [Response.JSON] when the body is not valid JSON.
	ErrDecode = errors.New("response body is not valid JSON")
	// ErrScheme is returned for URLs that are not http or https.
	ErrScheme = errors.New("unsupported URL scheme")
)

// Client makes HTTP requests on behalf of a script.
type Client struct {
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, http.DefaultClient will be used. Its own timeout, if
	// any, still applies.
	HTTPClient *http.Client
	// Logger receives failed requests. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Timeout is the default per-request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Request describes one outbound request.
type Request struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	// Body is sent verbatim. JSON, when not nil, is marshaled and sent
	// instead, with a JSON content type.
	Body []byte
	JSON any
	// Timeout overrides the client default. It is clamped to MaxTimeout.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	// Truncated reports whether the body exceeded MaxBodySize.
	Truncated bool
}

// OK reports whether the status code is below 400.
func (r *Response) OK() bool { return r.StatusCode < 400 }

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// JSON decodes the body. Numbers are decoded as [json.Number].
func (r *Response) JSON() (any, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrDecode)
	}
	return v, nil
}

// StatusError is returned by [Response.RaiseForStatus].
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s for url %s", e.Status, e.URL)
}

// RaiseForStatus returns a *StatusError if the response status is not OK.
func (r *Response) RaiseForStatus() error {
	if r.OK() {
		return nil
	}
	return &StatusError{URL: r.URL, StatusCode: r.StatusCode, Status: r.Status}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) timeout(override time.Duration) time.Duration {
	d := cmp.Or(override, c.Timeout, DefaultTimeout)
	return min(d, MaxTimeout)
}

// Do performs the request and returns the response, or an error on transport
// failure. Responses with error statuses are not errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(b), "application/json"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout(req.Timeout))
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, cmp.Or(strings.ToUpper(req.Method), http.MethodGet), u.String(), body)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	httpc := http.DefaultClient
	if c.HTTPClient != nil {
		httpc = c.HTTPClient
	}
	res, err := httpc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	resp := &Response{
		URL:        u.String(),
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Headers:    make(map[string]string, len(res.Header)),
		Body:       b,
	}
	if len(b) > MaxBodySize {
		resp.Body, resp.Truncated = b[:MaxBodySize], true
	}
	for k := range res.Header {
		resp.Headers[strings.ToLower(k)] = res.Header.Get(k)
	}
	return resp, nil
}

// Fetch is like [Client.Do], but logs failures and returns nil instead of an
// error.
func (c *Client) Fetch(ctx context.Context, req Request) *Response {
	resp, err := c.Do(ctx, req)
	if err != nil {
		c.logger().Warn("http request failed", "method", req.Method, "url", req.URL, "err", err)
		return nil
	}
	return resp
}
