/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

// Field names the connection-management machinery reads and writes.
const (
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	Date             = "Date"
	Expect           = "Expect"
	Host             = "Host"
	TransferEncoding = "Transfer-Encoding"
	UpgradeHeader    = "Upgrade"
)

// TimeFormat is the HTTP-date layout of RFC 7231 §7.1.1.1, the one
// format encoders emit (parsers must additionally accept the two
// obsolete forms, which nothing here produces).
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// isTokenByte reports whether c is an RFC 7230 tchar, the only bytes a
// field name may contain.
func isTokenByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// ValidName reports whether v is a non-empty RFC 7230 token.
func ValidName(v string) bool {
	if len(v) == 0 {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !isTokenByte(v[i]) {
			return false
		}
	}
	return true
}

// ValidValue reports whether v is free of control bytes (tab excepted),
// the field-content rule of RFC 7230 §3.2.
func ValidValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < ' ' && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}

// TrimOWS strips the optional whitespace (space and horizontal tab)
// RFC 7230 §3.2.3 allows around a field value.
func TrimOWS(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// Canonical returns the Some-Field-Name form of a field name: the
// first byte and each byte following a hyphen upper-cased, everything
// else lowered. Names containing non-token bytes come back unchanged,
// since canonicalizing an invalid name would mask the caller's bug.
func Canonical(s string) string {
	if !ValidName(s) {
		return s
	}
	// Most callers pass names that are already canonical; detect that
	// without allocating.
	mixed := false
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (upper && 'a' <= c && c <= 'z') || (!upper && 'A' <= c && c <= 'Z') {
			mixed = true
			break
		}
		upper = c == '-'
	}
	if !mixed {
		return s
	}

	b := []byte(s)
	upper = true
	for i, c := range b {
		switch {
		case upper && 'a' <= c && c <= 'z':
			b[i] = c - ('a' - 'A')
		case !upper && 'A' <= c && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
		upper = b[i] == '-'
	}
	return string(b)
}
