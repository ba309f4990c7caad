// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package storage contains a Starlark module that persists bot data.

Every bot has its own namespace: keys written by one bot are invisible to the
others. Data survives restarts and has no expiration. Values may be None,
bools, numbers, strings, lists, tuples, dicts with string keys and structs.

If the storage backend fails, a function returns None instead of raising an
error.

# set

	storage.set(key, value)

Stores value under key, replacing the previous one. Returns True.

# get

	storage.get(key, default = None)

Returns the value stored under key, or default if there is none.

# delete

	storage.delete(key)

Removes key. Removing a missing key is not an error. Returns True.

# exists

	storage.exists(key)

Reports whether key is present.

# keys

	storage.keys()

Returns a sorted list of all keys.

# clear

	storage.clear()

Removes every key. Returns True.

# Concurrency

Several updates for the same bot may be handled at the same time. Writes are
last-write-wins and there is no compare-and-swap: checking exists before set
is not atomic.
*/
package storage

import (
	_ "embed"

	"go.astrophena.name/starhost/internal/starlark/lib/internal"
)

//go:embed doc.go
var doc []byte

// Documentation returns the documentation of the storage module.
var Documentation = internal.Documentation(doc)
