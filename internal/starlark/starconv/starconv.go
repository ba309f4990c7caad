// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package starconv implements Starlark value conversion.
//
// [ToValue] and [ToGo] convert between Starlark values and the Go values
// produced by decoding JSON into an empty interface. [Marshal] and
// [Unmarshal] serialize Starlark values to JSON in a form that preserves
// tuples and structs.
package starconv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ErrUnsupported is returned when a value has no representation on the other
// side of the conversion.
var ErrUnsupported = errors.New("unsupported type")

// ToValue converts val to [starlark.Value].
func ToValue(val any) (starlark.Value, error) {
	switch v := val.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int32:
		return starlark.MakeInt(int(v)), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		if canBeInt(v) {
			return starlark.MakeInt64(int64(v)), nil
		}
		return starlark.Float(v), nil
	case json.Number:
		return numberToValue(v)
	case time.Time:
		return starlarktime.Time(v), nil
	case []string:
		list := make([]starlark.Value, 0, len(v))
		for _, s := range v {
			list = append(list, starlark.String(s))
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			conv, err := ToValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, conv)
		}
		return starlark.NewList(list), nil
	case map[string]any:
		return mapToDict(v)
	case map[string]string:
		dict := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			if err := dict.SetKey(starlark.String(k), starlark.String(v[k])); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("%w: Go %T", ErrUnsupported, val)
	}
}

func numberToValue(n json.Number) (starlark.Value, error) {
	if i, err := n.Int64(); err == nil {
		return starlark.MakeInt64(i), nil
	}
	if bi, ok := new(big.Int).SetString(n.String(), 10); ok {
		return starlark.MakeBigInt(bi), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, err
	}
	return starlark.Float(f), nil
}

// canBeInt reports if the float can be converted to int without losing
// precision.
func canBeInt(f float64) bool {
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return false
	}
	return f == math.Trunc(f)
}

func mapToDict(goMap map[string]any) (starlark.Value, error) {
	dict := starlark.NewDict(len(goMap))
	for _, key := range sortedKeys(goMap) {
		val, err := ToValue(goMap[key])
		if err != nil {
			return nil, fmt.Errorf("converting %q: %w", key, err)
		}
		if err := dict.SetKey(starlark.String(key), val); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToGo converts a Starlark value into plain Go values: nil, bool, int64,
// *big.Int, float64, string, []any and map[string]any. Structs become maps.
// Dict keys must be strings.
func ToGo(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.BigInt(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return v.GoString(), nil
	case starlark.Bytes:
		return string(v), nil
	case starlark.Indexable:
		list := make([]any, 0, v.Len())
		for i := range v.Len() {
			item, err := ToGo(v.Index(i))
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%w: dict key %s", ErrUnsupported, item[0].Type())
			}
			val, err := ToGo(item[1])
			if err != nil {
				return nil, err
			}
			m[k.GoString()] = val
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := make(map[string]any)
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := ToGo(attr)
			if err != nil {
				return nil, err
			}
			m[name] = val
		}
		return m, nil
	case starlark.Iterable:
		var list []any
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			item, err := ToGo(x)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%w: Starlark %s", ErrUnsupported, v.Type())
	}
}

// typeKey marks JSON objects that encode tuples and structs.
const typeKey = "__starlark_type__"

// Marshal serializes v to JSON. Tuples and structs are wrapped into objects
// tagged with their type so that [Unmarshal] restores them.
func Marshal(v starlark.Value) ([]byte, error) {
	enc, err := encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

func encode(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return json.Number(v.String()), nil
	case starlark.Float:
		f := float64(v)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("%w: non-finite float %s", ErrUnsupported, v)
		}
		return f, nil
	case starlark.String:
		return v.GoString(), nil
	case *starlark.List:
		return encodeSeq(v)
	case starlark.Tuple:
		values, err := encodeSeq(v)
		if err != nil {
			return nil, err
		}
		return map[string]any{typeKey: "tuple", "values": values}, nil
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%w: dict key %s", ErrUnsupported, item[0].Type())
			}
			val, err := encode(item[1])
			if err != nil {
				return nil, err
			}
			m[k.GoString()] = val
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := make(map[string]any)
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := encode(attr)
			if err != nil {
				return nil, err
			}
			m[name] = val
		}
		return map[string]any{typeKey: "struct", "values": m}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, v.Type())
	}
}

func encodeSeq(v starlark.Indexable) ([]any, error) {
	list := make([]any, 0, v.Len())
	for i := range v.Len() {
		item, err := encode(v.Index(i))
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, nil
}

// Unmarshal parses JSON produced by [Marshal] (or any other JSON document)
// into a Starlark value.
func Unmarshal(data []byte) (starlark.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return decode(v)
}

func decode(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case []any:
		list := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			val, err := decode(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return starlark.NewList(list), nil
	case map[string]any:
		switch v[typeKey] {
		case "tuple":
			values, ok := v["values"].([]any)
			if !ok {
				return nil, errors.New("invalid tuple encoding")
			}
			tuple := make(starlark.Tuple, 0, len(values))
			for _, item := range values {
				val, err := decode(item)
				if err != nil {
					return nil, err
				}
				tuple = append(tuple, val)
			}
			return tuple, nil
		case "struct":
			values, ok := v["values"].(map[string]any)
			if !ok {
				return nil, errors.New("invalid struct encoding")
			}
			kwargs := make([]starlark.Tuple, 0, len(values))
			for _, k := range sortedKeys(values) {
				val, err := decode(values[k])
				if err != nil {
					return nil, err
				}
				kwargs = append(kwargs, starlark.Tuple{starlark.String(k), val})
			}
			return starlarkstruct.FromKeywords(starlarkstruct.Default, kwargs), nil
		}
		dict := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			val, err := decode(v[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), val); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return ToValue(v)
	}
}
