// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sandbox

import (
	"flag"
	"os"
	"slices"
	"testing"

	"go.astrophena.name/starhost/internal/testutil"
	"go.astrophena.name/starhost/internal/update"

	"go.starlark.net/starlark"
)

var updateDoc = flag.Bool("update", false, "update doc.md")

func TestEnvironmentDocumentation(t *testing.T) {
	const docFile = "doc.md"

	got := Documentation()

	if *updateDoc {
		if err := os.WriteFile(docFile, []byte(got), 0o644); err != nil {
			t.Fatalf("failed to update file: %v", err)
		}
		t.Logf("updated file: %s", docFile)
	}

	want, err := os.ReadFile(docFile)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}

	if string(want) != got {
		t.Errorf("Documentation() output does not match file.\nGot:\n%s\n\nWant:\n%s", got, string(want))
		t.Logf("To update the file, run: go test -v ./... -update.")
	}
}

func TestEnvironmentNames(t *testing.T) {
	dict := environment(Invocation{}).StringDict()
	got := make([]string, 0, len(dict))
	for name := range dict {
		got = append(got, name)
	}
	slices.Sort(got)
	testutil.AssertEqual(t, got, []string{
		"bot", "button", "callback_query", "config", "halt", "http", "json",
		"keyboard", "math", "message", "storage", "struct", "time",
	})

	for _, name := range got {
		if !isPredeclared(name) {
			t.Errorf("%s is not predeclared", name)
		}
	}
	if isPredeclared("print") {
		t.Error("universe builtins must not be predeclared")
	}
}

func TestAbsentEntitiesAreNone(t *testing.T) {
	dict := environment(Invocation{}).StringDict()
	testutil.AssertEqual(t, dict["message"], starlark.Value(starlark.None))
	testutil.AssertEqual(t, dict["callback_query"], starlark.Value(starlark.None))
}

func TestMessageMedia(t *testing.T) {
	cases := map[string]struct {
		media     update.Media
		wantPhoto starlark.Value
		wantVoice starlark.Value
	}{
		"no media": {
			wantPhoto: starlark.None,
			wantVoice: starlark.None,
		},
		"photo sizes": {
			media:     update.Media{Photo: []string{"small", "medium", "large"}},
			wantPhoto: starlark.Tuple{starlark.String("small"), starlark.String("medium"), starlark.String("large")},
			wantVoice: starlark.None,
		},
		"voice": {
			media:     update.Media{Voice: "voice-id"},
			wantPhoto: starlark.None,
			wantVoice: starlark.String("voice-id"),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg := MessageValue(&update.Message{ID: 1, Media: tc.media}).(starlark.HasAttrs)
			for attr, want := range map[string]starlark.Value{"photo": tc.wantPhoto, "voice": tc.wantVoice} {
				got, err := msg.Attr(attr)
				if err != nil {
					t.Fatal(err)
				}
				if eq, err := starlark.Equal(got, want); err != nil || !eq {
					t.Errorf("message.%s = %v, want %v", attr, got, want)
				}
			}
		})
	}
}
