// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package testutil contains testing helpers shared by Starhost packages,
// including a fake Telegram Bot API.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// UnmarshalJSON parses the JSON data into v, failing the test in case of failure.
func UnmarshalJSON[V any](t testing.TB, b []byte) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatal(err)
	}
	return v
}

// AssertEqual compares two values and if they differ, fails the test and
// prints the difference between them.
func AssertEqual(t testing.TB, got, want any) {
	t.Helper()
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("(-got +want):\n%s", diff)
	}
}

// Run runs a subtest for each file matching the provided glob pattern.
func Run(t *testing.T, glob string, f func(t *testing.T, match string)) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		t.Fatalf("filepath.Glob(%q): %v", glob, err)
	}
	if len(matches) == 0 {
		t.Fatalf("no files match %q", glob)
	}

	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), filepath.Ext(match))
		t.Run(name, func(t *testing.T) {
			f(t, match)
		})
	}
}

// RunGolden runs a subtest for each file matching the provided glob pattern,
// computing the result and comparing it with a golden file, or updating a
// golden file if update is true.
//
// f is a function that should compute the result and return it as a byte slice.
func RunGolden(t *testing.T, glob string, f func(t *testing.T, match string) []byte, update bool) {
	Run(t, glob, func(t *testing.T, match string) {
		got := f(t, match)

		golden := strings.TrimSuffix(match, filepath.Ext(match)) + ".golden"
		if update {
			if err := os.WriteFile(golden, got, 0o644); err != nil {
				t.Fatalf("unable to write golden file %q: %v", golden, err)
			}
			return
		}

		want, err := os.ReadFile(golden)
		if err != nil {
			t.Fatalf("unable to read golden file %q: %v", golden, err)
		}

		AssertEqual(t, string(got), string(want))
	})
}

// MockHTTPClient returns an [http.Client] that serves all requests with h
// instead of going to the network.
//
// Request host is preserved, so h may route on it using patterns like
// "POST api.telegram.org/{token}/{method}".
func MockHTTPClient(h http.Handler) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			w := httptest.NewRecorder()
			if r.Host == "" {
				r.Host = r.URL.Host
			}
			h.ServeHTTP(w, r)
			resp := w.Result()
			resp.Request = r
			return resp, nil
		}),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// TelegramCall is a Bot API request received by [FakeTelegram].
type TelegramCall struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
}

// FakeTelegram records Bot API calls made through its Client and answers
// them with a successful response carrying Result, unless the method was
// told to fail.
type FakeTelegram struct {
	// Result is returned in successful responses. Defaults to true.
	Result any

	t     testing.TB
	token string
	mu    sync.Mutex
	calls []TelegramCall
	fail  map[string]string
}

// NewFakeTelegram returns a FakeTelegram that fails the test when a request
// uses a token other than token.
func NewFakeTelegram(t testing.TB, token string) *FakeTelegram {
	return &FakeTelegram{t: t, token: token, fail: make(map[string]string)}
}

// Fail makes calls to method return a Bot API error with description.
func (f *FakeTelegram) Fail(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = description
}

// Calls returns the calls received so far.
func (f *FakeTelegram) Calls() []TelegramCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Client returns an HTTP client whose requests to api.telegram.org are served
// by f.
func (f *FakeTelegram) Client() *http.Client {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/{method}", f.serve)
	return MockHTTPClient(mux)
}

func (f *FakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	if got := strings.TrimPrefix(r.PathValue("token"), "bot"); got != f.token {
		f.t.Errorf("Telegram request with token %q, want %q", got, f.token)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		f.t.Error(err)
		return
	}
	method := r.PathValue("method")

	f.mu.Lock()
	f.calls = append(f.calls, TelegramCall{
		Method: method,
		Args:   UnmarshalJSON[map[string]any](f.t, b),
	})
	desc, failing := f.fail[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": http.StatusBadRequest, "description": desc})
		return
	}
	result := f.Result
	if result == nil {
		result = true
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}
