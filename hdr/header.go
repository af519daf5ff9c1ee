/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package hdr holds the header multimap shared by every dispatcher and
// the client sender: a mapping of canonical field names to values,
// recycled across pipelined requests on the same connection.
package hdr

import (
	"io"
	"sort"
	"strings"
)

// Header maps canonical field names to their values in order of
// insertion per name. The zero value is unusable; construct with make.
type Header map[string][]string

// Add appends value under key, canonicalizing the name.
func (h Header) Add(key, value string) {
	key = Canonical(key)
	h[key] = append(h[key], value)
}

// Set replaces all values stored under key with the single value.
func (h Header) Set(key, value string) {
	h[Canonical(key)] = []string{value}
}

// Get returns the first value stored under key, or "" if none.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	if vv := h[Canonical(key)]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// Del removes every value stored under key.
func (h Header) Del(key string) {
	delete(h, Canonical(key))
}

// Reset empties the map in place, keeping its backing storage so the
// dispatcher can hand it back to a fresh request without reallocating.
func (h Header) Reset() {
	for k := range h {
		delete(h, k)
	}
}

// CopyFromHeader appends every field of src into h, canonicalizing
// names along the way.
func (h Header) CopyFromHeader(src Header) {
	for k, vv := range src {
		key := Canonical(k)
		h[key] = append(h[key], vv...)
	}
}

// Write emits h in wire format, one "Name: value\r\n" line per stored
// value. Keys are written in sorted order so output is deterministic;
// CR and LF inside a value are flattened to spaces so a stored value
// can never break the field framing.
func (h Header) Write(w io.Writer) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var line []byte
	for _, k := range keys {
		for _, v := range h[k] {
			line = line[:0]
			line = append(line, k...)
			line = append(line, ':', ' ')
			line = append(line, sanitizeValue(v)...)
			line = append(line, '\r', '\n')
			if _, err := w.Write(line); err != nil {
				return err
			}
		}
	}
	return nil
}

func sanitizeValue(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		b := []byte(v)
		for i, c := range b {
			if c == '\r' || c == '\n' {
				b[i] = ' '
			}
		}
		v = string(b)
	}
	return TrimOWS(v)
}
