/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

// statusText holds the reason phrases for status codes referenced by
// this package and its tests/dispatcher; uncommon codes fall back to a
// generic phrase rather than failing.
var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	204: "No Content",
	304: "Not Modified",
	400: "Bad Request",
	404: "Not Found",
	413: "Request Entity Too Large",
	417: "Expectation Failed",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for status, or "Status" as a
// generic fallback for codes this package doesn't special-case.
func StatusText(status int) string {
	if t, ok := statusText[status]; ok {
		return t
	}
	return "Status"
}
