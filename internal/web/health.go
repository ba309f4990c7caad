// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.astrophena.name/starhost/internal/syncx"
)

// CheckTimeout bounds a single health check.
const CheckTimeout = 5 * time.Second

// Health returns the [HealthHandler] registered on mux at /health, creating it
// if necessary.
func Health(mux *http.ServeMux) *HealthHandler {
	h, pat := mux.Handler(&http.Request{URL: &url.URL{Path: "/health"}})
	if hh, ok := h.(*HealthHandler); ok && pat == "/health" {
		return hh
	}
	ret := &HealthHandler{
		checks: syncx.Protect(make(checksMap)),
	}
	mux.Handle("/health", ret)
	return ret
}

// HealthHandler is an HTTP handler that reports whether the service and the
// backends it depends on are healthy.
type HealthHandler struct{ checks *syncx.Protected[checksMap] }

type checksMap = map[string]HealthFunc

// HealthFunc reports the state of a particular subsystem. The context is
// canceled after CheckTimeout.
type HealthFunc func(ctx context.Context) (status string, ok bool)

// RegisterFunc registers the health check function by the given name. If the
// health check function with this name already exists, RegisterFunc panics.
//
// Health check function must be safe for concurrent use.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.checks.Access(func(checks checksMap) {
		if _, dup := checks[name]; dup {
			panic("health: health check function with this name already exists")
		}
		checks[name] = f
	})
}

// HealthResponse represents a response of the /health endpoint.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse represents a status of an individual check.
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

// ServeHTTP implements the [http.Handler] interface. Checks run concurrently.
// A check that does not return within CheckTimeout is reported as failed.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var checks checksMap
	h.checks.RAccess(func(m checksMap) {
		checks = make(checksMap, len(m))
		for name, f := range m {
			checks[name] = f
		}
	})

	hr := &HealthResponse{
		OK:     true,
		Checks: make(map[string]CheckResponse, len(checks)),
	}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, f := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := runCheck(r.Context(), f)
			mu.Lock()
			defer mu.Unlock()
			hr.Checks[name] = res
			if !res.OK {
				hr.OK = false
			}
		}()
	}
	wg.Wait()

	status := http.StatusOK
	if !hr.OK {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, hr)
}

func runCheck(ctx context.Context, f HealthFunc) CheckResponse {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	done := make(chan CheckResponse, 1)
	go func() {
		status, ok := f(ctx)
		done <- CheckResponse{Status: status, OK: ok}
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return CheckResponse{Status: ctx.Err().Error(), OK: false}
	}
}
