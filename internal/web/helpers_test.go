// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/starhost/internal/testutil"
)

// getJSON serves GET path with h and decodes the JSON response after
// checking its status and content type.
func getJSON[T any](t *testing.T, h http.Handler, path string, wantStatus int) T {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if rec.Code != wantStatus {
		t.Fatalf("GET %s: status %d, want %d; body: %s", path, rec.Code, wantStatus, rec.Body)
	}
	testutil.AssertEqual(t, rec.Header().Get("Content-Type"), "application/json")
	return testutil.UnmarshalJSON[T](t, rec.Body.Bytes())
}
