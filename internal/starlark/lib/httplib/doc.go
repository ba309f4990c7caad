// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package httplib contains a Starlark module that makes outbound HTTP requests.

The module provides four functions, one per HTTP method: get, post, put and
delete. They take the same arguments:

  - url (string): The URL to request. Only http and https are allowed.
  - params (dict, optional): Query parameters added to the URL.
  - headers (dict, optional): Request headers.
  - body (string, optional): Raw request body.
  - json (optional): A value sent as a JSON request body. Takes precedence
    over body.
  - timeout (int or float, optional): Timeout in seconds. Defaults to 30
    seconds and can't exceed 60 seconds.

For example:

	resp = http.get("https://api.example.com/items", params = {"page": "2"})
	if resp != None and resp.ok:
	    items = resp.json()

A function returns None if the request could not be made at all, for example
because of a network failure or a timeout.

# Response

A response has the following attributes:

  - status_code (int): The HTTP status code.
  - ok (bool): Whether status_code is below 400.
  - headers (dict): Response headers, with lowercase names.
  - text (string): The response body.
  - url (string): The requested URL.

The json method decodes the body and fails with a decode error if it is not
valid JSON. The raise_for_status method fails if ok is False.
*/
package httplib

import (
	_ "embed"

	"go.astrophena.name/starhost/internal/starlark/lib/internal"
)

//go:embed doc.go
var doc []byte

// Documentation returns the documentation of the http module.
var Documentation = internal.Documentation(doc)
