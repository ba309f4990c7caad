// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package internal contains helpers shared by the Starlark libraries.
package internal

import (
	"strings"
	"sync"
)

// Documentation returns a function that extracts the module documentation
// from src, an embedded doc.go, on first use.
//
// The documentation is the /* ... */ comment of the file without the line
// naming the Go package.
func Documentation(src []byte) func() string {
	return sync.OnceValue(func() string {
		return parseDocComment(src)
	})
}

func parseDocComment(src []byte) string {
	var (
		sb        strings.Builder
		inComment bool
	)
	for line := range strings.Lines(string(src)) {
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "/*":
			inComment = true
		case line == "*/":
			return sb.String()
		case inComment && !strings.HasPrefix(line, "Package "):
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
