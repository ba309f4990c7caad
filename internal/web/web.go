// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package web holds the HTTP plumbing of Starhost: JSON responses, the health
// endpoint and a server with graceful shutdown.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// StatusErr is an error that maps to an HTTP status code. Wrap it to attach
// details:
//
//	web.RespondJSONError(w, r, fmt.Errorf("%w: bot %q", web.ErrNotFound, id))
type StatusErr int

func (se StatusErr) Error() string { return strings.ToLower(http.StatusText(int(se))) }

const (
	ErrBadRequest            StatusErr = http.StatusBadRequest
	ErrUnauthorized          StatusErr = http.StatusUnauthorized
	ErrNotFound              StatusErr = http.StatusNotFound
	ErrRequestEntityTooLarge StatusErr = http.StatusRequestEntityTooLarge
	ErrInternalServerError   StatusErr = http.StatusInternalServerError
)

// StatusOf returns the status code err maps to. A request body cut off by
// [http.MaxBytesReader] maps to 413 even when the error is also wrapped in
// another StatusErr.
func StatusOf(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	var se StatusErr
	if errors.As(err, &se) {
		return int(se)
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// RespondJSON writes response as indented JSON with status 200.
func RespondJSON(w http.ResponseWriter, response any) {
	writeJSON(w, http.StatusOK, response)
}

// RespondJSONError writes err as a JSON error response with the status
// returned by [StatusOf]. Server errors are logged with the default logger.
func RespondJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "internal server error", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, &errorResponse{Status: "error", Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		status = http.StatusInternalServerError
		b, _ = json.MarshalIndent(&errorResponse{
			Status: "error",
			Error:  "JSON marshal error: " + err.Error(),
		}, "", "  ")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(b, '\n'))
}
