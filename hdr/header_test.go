/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"content-length":    "Content-Length",
		"CONTENT-LENGTH":    "Content-Length",
		"Content-Length":    "Content-Length",
		"host":              "Host",
		"x-forwarded-for":   "X-Forwarded-For",
		"spaced name":       "spaced name", // invalid token bytes pass through untouched
		"":                  "",
		"weird\x00byte":     "weird\x00byte",
		"transfer-encoding": "Transfer-Encoding",
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonical(in), "Canonical(%q)", in)
	}
}

func TestHeaderAddGetDelAreCaseInsensitive(t *testing.T) {
	h := make(Header)
	h.Add("content-length", "5")
	h.Add("Content-Length", "5")

	assert.Equal(t, "5", h.Get("CONTENT-LENGTH"))
	assert.Len(t, h[ContentLength], 2)

	h.Set("connection", "close")
	assert.Equal(t, "close", h.Get(Connection))

	h.Del("CONNECTION")
	assert.Empty(t, h.Get(Connection))
}

func TestHeaderResetKeepsMapUsable(t *testing.T) {
	h := make(Header)
	h.Set(Host, "example.com")
	h.Set(Date, "whenever")

	h.Reset()

	assert.Empty(t, h)
	h.Set(Host, "other.example")
	assert.Equal(t, "other.example", h.Get(Host))
}

func TestHeaderWriteSortedAndSanitized(t *testing.T) {
	h := make(Header)
	h.Set("B-Second", "two")
	h.Set("A-First", "one")
	h.Add("A-First", "also one")
	h.Set("C-Third", "bad\r\nvalue")

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	want := "A-First: one\r\n" +
		"A-First: also one\r\n" +
		"B-Second: two\r\n" +
		"C-Third: bad  value\r\n"
	assert.Equal(t, want, buf.String())
}

func TestValidNameAndValue(t *testing.T) {
	assert.True(t, ValidName("Content-Length"))
	assert.True(t, ValidName("x-custom_1.2"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("bad name"))
	assert.False(t, ValidName("bad:name"))

	assert.True(t, ValidValue("text/plain; charset=utf-8"))
	assert.True(t, ValidValue("tab\tseparated"))
	assert.False(t, ValidValue("line\nbreak"))
	assert.False(t, ValidValue("del\x7f"))
}

func TestTrimOWS(t *testing.T) {
	assert.Equal(t, "close", TrimOWS("  close\t "))
	assert.Equal(t, "", TrimOWS(" \t"))
	assert.Equal(t, "a b", TrimOWS("a b"))
}
