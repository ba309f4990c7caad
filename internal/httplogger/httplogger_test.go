// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package httplogger

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"go.astrophena.name/starhost/internal/testutil"
)

func TestRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := &http.Client{Transport: New(testutil.MockHTTPClient(mux).Transport, logger)}

	resp, err := c.Post("https://api.telegram.org/bot123:SECRET/sendMessage", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	testutil.AssertEqual(t, resp.StatusCode, http.StatusTeapot)

	out := buf.String()
	for _, want := range []string{"method=POST", "host=api.telegram.org", "path=/sendMessage", "status=418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q does not contain %q", out, want)
		}
	}
	if strings.Contains(out, "SECRET") {
		t.Errorf("log output leaks the token: %q", out)
	}
}

func TestLastElem(t *testing.T) {
	testutil.AssertEqual(t, lastElem("/a/b/c"), "/c")
	testutil.AssertEqual(t, lastElem("noslash"), "noslash")
	testutil.AssertEqual(t, lastElem(""), "")
}
