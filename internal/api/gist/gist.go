// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gist provides a client for reading bot scripts from GitHub Gists.
package gist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.astrophena.name/starhost/internal/request"
)

const ghAPI = "https://api.github.com"

// ErrNoFile is returned by [Client.File] when the gist has no matching file.
var ErrNoFile = errors.New("gist: no such file")

// Client represents a GitHub Gist API client.
type Client struct {
	// Token is an optional GitHub access token. Anonymous requests are subject
	// to lower rate limits.
	Token string
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// APIURL overrides the GitHub API URL.
	APIURL string
}

// Gist represents a GitHub Gist data structure.
type Gist struct {
	// Files is a map containing file names as keys and their corresponding File
	// data as values.
	Files map[string]File `json:"files"`
}

// File represents a file within a Gist.
type File struct {
	// Content is the textual content of the file.
	Content string `json:"content"`
}

// Get retrieves a Gist with the specified ID from GitHub.
func (c *Client) Get(ctx context.Context, id string) (*Gist, error) {
	rp := request.Params{
		Method: http.MethodGet,
		URL:    strings.TrimSuffix(c.apiURL(), "/") + "/gists/" + id,
		Headers: map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": "2022-11-28",
		},
		HTTPClient: c.HTTPClient,
	}
	if c.Token != "" {
		rp.Headers["Authorization"] = "Bearer " + c.Token
		rp.Scrubber = strings.NewReplacer(c.Token, "[EXPUNGED]")
	}
	return request.Make[*Gist](ctx, rp)
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return ghAPI
}

// File returns the content of the named file of a gist. If name is empty, the
// gist must contain exactly one file, or a file ending with ".star", which is
// returned.
func (c *Client) File(ctx context.Context, id, name string) (string, error) {
	g, err := c.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if name != "" {
		f, ok := g.Files[name]
		if !ok {
			return "", fmt.Errorf("%w %q in gist %s", ErrNoFile, name, id)
		}
		return f.Content, nil
	}
	if len(g.Files) == 1 {
		for _, f := range g.Files {
			return f.Content, nil
		}
	}
	names := make([]string, 0, len(g.Files))
	for n := range g.Files {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		if strings.HasSuffix(n, ".star") {
			return g.Files[n].Content, nil
		}
	}
	return "", fmt.Errorf("%w: gist %s has no Starlark file", ErrNoFile, id)
}
