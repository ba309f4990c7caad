// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package httplib

import (
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/starhost/internal/fetch"
	"go.astrophena.name/starhost/internal/starlark/interpreter"
	"go.astrophena.name/starhost/internal/starlark/starconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module returns a Starlark module that makes HTTP requests with c.
func Module(c *fetch.Client) *starlarkstruct.Module {
	m := &module{c: c}
	return &starlarkstruct.Module{
		Name: "http",
		Members: starlark.StringDict{
			"get":    starlark.NewBuiltin("http.get", m.do(http.MethodGet)),
			"post":   starlark.NewBuiltin("http.post", m.do(http.MethodPost)),
			"put":    starlark.NewBuiltin("http.put", m.do(http.MethodPut)),
			"delete": starlark.NewBuiltin("http.delete", m.do(http.MethodDelete)),
		},
	}
}

type module struct {
	c *fetch.Client
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func (m *module) do(method string) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			url        string
			params     starlark.Value = starlark.None
			headers    starlark.Value = starlark.None
			body       starlark.Value = starlark.None
			jsonBody   starlark.Value = starlark.None
			timeoutArg starlark.Value = starlark.None
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"url", &url,
			"params?", &params,
			"headers?", &headers,
			"body?", &body,
			"json?", &jsonBody,
			"timeout?", &timeoutArg,
		); err != nil {
			return nil, err
		}

		req := fetch.Request{Method: method, URL: url}
		var err error
		if req.Params, err = stringMap(params); err != nil {
			return nil, fmt.Errorf("%s: params: %w", b.Name(), err)
		}
		if req.Headers, err = stringMap(headers); err != nil {
			return nil, fmt.Errorf("%s: headers: %w", b.Name(), err)
		}
		switch v := body.(type) {
		case starlark.NoneType:
		case starlark.String:
			req.Body = []byte(v)
		case starlark.Bytes:
			req.Body = []byte(v)
		default:
			return nil, fmt.Errorf("%s: body must be a string or bytes, got %s", b.Name(), body.Type())
		}
		if jsonBody != starlark.None {
			if req.JSON, err = starconv.ToGo(jsonBody); err != nil {
				return nil, fmt.Errorf("%s: json: %w", b.Name(), err)
			}
		}
		if req.Timeout, err = timeout(timeoutArg); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}

		resp := m.c.Fetch(interpreter.Context(thread), req)
		if resp == nil {
			return starlark.None, nil
		}
		return response(resp)
	}
}

func stringMap(v starlark.Value) (map[string]string, error) {
	if v == starlark.None {
		return nil, nil
	}
	d, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("got %s, want dict", v.Type())
	}
	m := make(map[string]string, d.Len())
	for _, item := range d.Items() {
		k, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("key %s is not a string", item[0])
		}
		if v, ok := starlark.AsString(item[1]); ok {
			m[k] = v
		} else {
			m[k] = item[1].String()
		}
	}
	return m, nil
}

func timeout(v starlark.Value) (time.Duration, error) {
	var seconds float64
	switch v := v.(type) {
	case starlark.NoneType:
		return 0, nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return 0, fmt.Errorf("timeout %s out of range", v)
		}
		seconds = float64(i)
	case starlark.Float:
		seconds = float64(v)
	default:
		return 0, fmt.Errorf("timeout must be a number, got %s", v.Type())
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %v", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func response(resp *fetch.Response) (starlark.Value, error) {
	headers, err := starconv.ToValue(resp.Headers)
	if err != nil {
		return nil, err
	}
	return starlarkstruct.FromStringDict(starlark.String("response"), starlark.StringDict{
		"status_code":      starlark.MakeInt(resp.StatusCode),
		"ok":               starlark.Bool(resp.OK()),
		"headers":          headers,
		"text":             starlark.String(resp.Text()),
		"url":              starlark.String(resp.URL),
		"json":             starlark.NewBuiltin("response.json", jsonMethod(resp)),
		"raise_for_status": starlark.NewBuiltin("response.raise_for_status", raiseForStatus(resp)),
	}), nil
}

func jsonMethod(resp *fetch.Response) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		v, err := resp.JSON()
		if err != nil {
			return nil, fmt.Errorf("%s: DecodeError: %w", b.Name(), err)
		}
		return starconv.ToValue(v)
	}
}

func raiseForStatus(resp *fetch.Response) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		if err := resp.RaiseForStatus(); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.None, nil
	}
}
