/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import "strings"

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func trimOWS(s string) string {
	return strings.Trim(s, " \t")
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
