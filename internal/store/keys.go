// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package store

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// Key layout (segments separated by NUL):
//
//	r <collection> <id>                        record JSON
//	i <collection> <index> <encoded value> <id>  empty value
//	m schema                                   persisted Schema
const sep = '\x00'

var metaSchemaKey = []byte("m\x00schema")

func recordPrefix(collection string) []byte {
	return []byte("r\x00" + collection + "\x00")
}

func recordKey(collection, id string) []byte {
	return []byte("r\x00" + collection + "\x00" + id)
}

func collectionIndexPrefix(collection string) []byte {
	return []byte("i\x00" + collection + "\x00")
}

func indexPrefix(collection, index string) []byte {
	return []byte("i\x00" + collection + "\x00" + index + "\x00")
}

func indexValuePrefix(collection, index, encoded string) []byte {
	return []byte("i\x00" + collection + "\x00" + index + "\x00" + encoded + "\x00")
}

func indexKey(collection, index, encoded, id string) []byte {
	return []byte("i\x00" + collection + "\x00" + index + "\x00" + encoded + "\x00" + id)
}

// idFromIndexKey returns the record id of an index key under prefix
// (an indexPrefix). Encoded values never contain NUL.
func idFromIndexKey(key, prefix []byte) string {
	rest := string(key[len(prefix):])
	if i := strings.IndexByte(rest, sep); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

// encodeIndexValue renders v so that byte order matches value order within
// one type. Integers (including integral floats) share one encoding so
// json.Number("5") and int64(5) address the same entry.
func encodeIndexValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", ErrMissingIndexField
	case string:
		if strings.ContainsRune(x, sep) {
			return "", fmt.Errorf("%w: contains NUL", ErrInvalidIndexValue)
		}
		return "s" + x, nil
	case bool:
		if x {
			return "b1", nil
		}
		return "b0", nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return encodeInt(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidIndexValue, x.String())
		}
		return encodeFloat(f), nil
	case float64:
		return encodeFloat(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	}
	if i, ok := models.Int64(v); ok {
		return encodeInt(i), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidIndexValue, v)
}

func encodeInt(i int64) string {
	return fmt.Sprintf("n%016x", uint64(i)^(1<<63))
}

func encodeFloat(f float64) string {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return encodeInt(int64(f))
	}
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return fmt.Sprintf("f%016x", bits)
}

// indexValues returns the encoded entries ix derives from rec.
func indexValues(ix IndexSchema, rec models.Record) ([]string, error) {
	v, present := rec[ix.Field]
	if !ix.MultiEntry {
		if !present || v == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingIndexField, ix.Field)
		}
		enc, err := encodeIndexValue(v)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", ix.Name, err)
		}
		return []string{enc}, nil
	}

	if !present || v == nil {
		return nil, nil
	}
	var elems []any
	switch x := v.(type) {
	case []any:
		elems = x
	case []string:
		elems = make([]any, len(x))
		for i, s := range x {
			elems[i] = s
		}
	default:
		elems = []any{v}
	}

	out := make([]string, 0, len(elems))
	seen := make(map[string]bool, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		enc, err := encodeIndexValue(e)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", ix.Name, err)
		}
		if !seen[enc] {
			seen[enc] = true
			out = append(out, enc)
		}
	}
	return out, nil
}
