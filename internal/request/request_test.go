// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package request_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.astrophena.name/starhost/internal/request"
	"go.astrophena.name/starhost/internal/testutil"
)

func testClient(t *testing.T) *http.Client {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.example.com/echo", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Content-Type"), "application/json")
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body["ua"] = r.Header.Get("User-Agent") != ""
		body["x_test"] = r.Header.Get("X-Test")
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("DELETE api.example.com/item", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET api.example.com/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	})
	mux.HandleFunc("POST api.example.com/{secret}/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
	})
	return testutil.MockHTTPClient(mux)
}

func TestMake(t *testing.T) {
	httpc := testClient(t)

	cases := map[string]struct {
		params    request.Params
		want      map[string]any
		wantErrIn string
	}{
		"json round trip": {
			params: request.Params{
				Method:  http.MethodPost,
				URL:     "https://api.example.com/echo",
				Headers: map[string]string{"X-Test": "yes"},
				Body:    map[string]any{"chat_id": 42},
			},
			want: map[string]any{"chat_id": float64(42), "ua": true, "x_test": "yes"},
		},
		"no content": {
			params: request.Params{
				Method: http.MethodDelete,
				URL:    "https://api.example.com/item",
			},
		},
		"not json": {
			params: request.Params{
				Method: http.MethodGet,
				URL:    "https://api.example.com/broken",
			},
			wantErrIn: "GET api.example.com: decoding response",
		},
		"unencodable body": {
			params: request.Params{
				Method: http.MethodPost,
				URL:    "https://api.example.com/echo",
				Body:   make(chan int),
			},
			wantErrIn: "encoding request",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tc.params.HTTPClient = httpc
			got, err := request.Make[map[string]any](t.Context(), tc.params)
			if tc.wantErrIn != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErrIn) {
					t.Fatalf("Make() error = %v, want it to contain %q", err, tc.wantErrIn)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestMakeStatusError(t *testing.T) {
	_, err := request.Make[json.RawMessage](t.Context(), request.Params{
		Method:     http.MethodPost,
		URL:        "https://api.example.com/hunter2/sendMessage",
		Body:       map[string]string{"text": "hi"},
		HTTPClient: testClient(t),
		Scrubber:   strings.NewReplacer("hunter2", "[EXPUNGED]"),
	})

	var se *request.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Make() error must be a *StatusError, got %v", err)
	}
	testutil.AssertEqual(t, se.StatusCode, http.StatusUnauthorized)
	testutil.AssertEqual(t, se.Host, "api.example.com")
	testutil.AssertEqual(t, strings.TrimSpace(string(se.Body)), `{"ok":false,"description":"Unauthorized"}`)
}

func TestMakeScrubsTransportErrors(t *testing.T) {
	_, err := request.Make[json.RawMessage](t.Context(), request.Params{
		Method:   http.MethodGet,
		URL:      "https://api.example.com/hunter2/getMe",
		Scrubber: strings.NewReplacer("hunter2", "[EXPUNGED]"),
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial failed")
		})},
	})
	if err == nil {
		t.Fatal("Make() must fail")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error message must be scrubbed, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "[EXPUNGED]") {
		t.Errorf("error message must keep the URL, got %q", err.Error())
	}
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	err := &request.StatusError{
		Method:     http.MethodGet,
		Host:       "api.github.com",
		StatusCode: http.StatusBadGateway,
		Body:       []byte(strings.Repeat("x", 500)),
	}
	want := "GET api.github.com: status 502: " + strings.Repeat("x", 200) + "..."
	testutil.AssertEqual(t, err.Error(), want)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
