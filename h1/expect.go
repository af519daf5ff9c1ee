/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"context"
	"net"

	"github.com/badu/htx"
)

// expectContinueBody wraps a body decoder so that "HTTP/1.1 100
// Continue\r\n\r\n" is written lazily, the first time the handler
// actually reads from the body — not eagerly when the request head is
// parsed (§4.5 Reading state, §8 scenario 3: "written before any body
// read occurs").
type expectContinueBody struct {
	inner htx.BodyReader
	bw    *bufio.Writer
	conn  net.Conn
	date  *htx.DateTimeHandle
	wrote bool
}

func newExpectContinueBody(inner htx.BodyReader, bw *bufio.Writer, conn net.Conn, date *htx.DateTimeHandle) *expectContinueBody {
	return &expectContinueBody{inner: inner, bw: bw, conn: conn, date: date}
}

func (b *expectContinueBody) Next(ctx context.Context) ([]byte, error) {
	if !b.wrote {
		b.wrote = true
		enc := NewEncoder(b.bw, b.conn, b.date)
		if err := enc.Write100Continue(); err != nil {
			return nil, err
		}
	}
	return b.inner.Next(ctx)
}

func (b *expectContinueBody) SizeHint() htx.SizeHint { return b.inner.SizeHint() }
