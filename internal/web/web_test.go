// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/starhost/internal/testutil"
)

func TestRespondJSONError(t *testing.T) {
	cases := map[string]struct {
		err        error
		wantStatus int
		wantError  string
	}{
		"404": {
			err:        ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantError:  "not found",
		},
		"404 (wrapped)": {
			err:        fmt.Errorf("bot %w", ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "bot not found",
		},
		"body too large": {
			err:        fmt.Errorf("%w: %w", ErrBadRequest, &http.MaxBytesError{Limit: 10}),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "bad request: http: request body too large",
		},
		"unauthorized": {
			err:        ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		"plain error": {
			err:        errors.New("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "something went wrong",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				RespondJSONError(w, r, tc.err)
			})
			got := getJSON[errorResponse](t, h, "/", tc.wantStatus)
			testutil.AssertEqual(t, got, errorResponse{Status: "error", Error: tc.wantError})
		})
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, map[string]bool{"ok": true})
	testutil.AssertEqual(t, w.Header().Get("Content-Type"), "application/json")
	testutil.AssertEqual(t, w.Body.String(), "{\n  \"ok\": true\n}\n")

	w = httptest.NewRecorder()
	RespondJSON(w, make(chan int))
	testutil.AssertEqual(t, w.Code, http.StatusInternalServerError)
	got := testutil.UnmarshalJSON[errorResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, got.Status, "error")
}

func TestServer(t *testing.T) {
	cases := map[string]struct {
		s       *Server
		wantErr error
	}{
		"no Addr": {
			s:       &Server{Mux: http.NewServeMux()},
			wantErr: errNoAddr,
		},
		"nil Mux": {
			s:       &Server{Addr: ":3000"},
			wantErr: errNilMux,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.s.ListenAndServe(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestServerListenAndServe(t *testing.T) {
	ready := make(chan string, 1)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	s := &Server{
		Addr:  "127.0.0.1:0",
		Mux:   mux,
		Ready: func(addr string) { ready <- addr },
	}
	go func() { errCh <- s.ListenAndServe(ctx) }()

	addr := <-ready
	// Health handler is registered by ListenAndServe.
	getJSON[HealthResponse](t, mux, "/health", http.StatusOK)

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	testutil.AssertEqual(t, resp.StatusCode, http.StatusOK)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}
