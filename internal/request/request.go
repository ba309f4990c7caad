// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request makes JSON requests to the APIs Starhost depends on.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.astrophena.name/starhost/internal/version"
)

// DefaultClient is used when Params.HTTPClient is nil.
var DefaultClient = &http.Client{
	Timeout: 10 * time.Second,
}

// MaxResponseSize limits how much of a response body is read.
const MaxResponseSize = 8 << 20

// Params describe a request made by [Make].
type Params struct {
	Method string
	URL    string
	// Headers are set after User-Agent and Content-Type, so they may
	// override them.
	Headers map[string]string
	// Body, if not nil, is sent as JSON.
	Body       any
	HTTPClient *http.Client
	// Scrubber, if not nil, removes secrets such as bot tokens from the
	// messages of returned errors. Tokens are part of Telegram URLs, and
	// errors from net/http quote the URL.
	Scrubber *strings.Replacer
}

// StatusError is returned by [Make] for responses with a non-2xx status.
// Body holds the raw response, which APIs use to describe the error.
type StatusError struct {
	Method     string
	Host       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(bytes.TrimSpace(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Host, e.StatusCode, body)
}

type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (se *scrubbedError) Error() string { return se.scrubber.Replace(se.err.Error()) }
func (se *scrubbedError) Unwrap() error { return se.err }

// Make sends a request and decodes the JSON response into Response. An empty
// response body leaves Response at its zero value.
func Make[Response any](ctx context.Context, p Params) (resp Response, err error) {
	defer func() {
		if err != nil && p.Scrubber != nil {
			err = &scrubbedError{err: err, scrubber: p.Scrubber}
		}
	}()

	var body io.Reader
	if p.Body != nil {
		b, err := json.Marshal(p.Body)
		if err != nil {
			return resp, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	httpc := p.HTTPClient
	if httpc == nil {
		httpc = DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return resp, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseSize))
	if err != nil {
		return resp, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resp, &StatusError{
			Method:     p.Method,
			Host:       host(p.URL),
			StatusCode: res.StatusCode,
			Body:       b,
		}
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, fmt.Errorf("%s %s: decoding response: %w", p.Method, host(p.URL), err)
	}
	return resp, nil
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "(invalid URL)"
	}
	return u.Host
}
