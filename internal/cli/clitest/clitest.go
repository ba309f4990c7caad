// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs table tests against a cli.App.
package clitest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.astrophena.name/starhost/internal/cli"
)

// Case describes one invocation of an application.
type Case[App cli.App] struct {
	Args []string
	Env  map[string]string
	// WantErr is matched with errors.Is. A nil WantErr means the run must
	// succeed.
	WantErr error
	// WantInStderr must be a substring of what the application wrote to
	// stderr, which is where the logs of a server go.
	WantInStderr string
	// CheckFunc inspects the application after a run that matched WantErr.
	CheckFunc func(*testing.T, App)
}

// Run executes every case in parallel with a fresh application made by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			var stderr bytes.Buffer
			ctx := cli.WithEnv(t.Context(), cli.Env{
				Args: tc.Args,
				Getenv: func(name string) string {
					return tc.Env[name]
				},
				Stderr: &stderr,
			})

			checkErr(t, cli.Run(ctx, app), tc.WantErr)

			if tc.WantInStderr != "" && !strings.Contains(stderr.String(), tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got: %q", tc.WantInStderr, stderr.String())
			}
			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

func checkErr(t *testing.T, got, want error) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Fatalf("unexpected error: %v", got)
	case want != nil && got == nil:
		t.Fatalf("must fail with error: %v", want)
	case want != nil && !errors.Is(got, want):
		t.Fatalf("want error %v, got: %v", want, got)
	}
}
