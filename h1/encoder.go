/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"fmt"
	"net"
	"strconv"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
)

// bodyBatchChunks is the BufList capacity given to each Encoder: three
// pieces per chunked write (size line, data, trailing CRLF), enough for
// one in-flight chunk without growing the backing slice.
const bodyBatchChunks = 4

var crlf = []byte("\r\n")
var zeroLengthChunk = []byte("0\r\n\r\n")

// Encoder writes HTTP/1.x response heads and bodies, stamping Date from
// the shared handle and batching body chunks through a BufList so
// multi-chunk writes become one writev against the raw connection (§4.1,
// §4.4).
type Encoder struct {
	bw   *bufio.Writer
	conn net.Conn
	date *htx.DateTimeHandle
	bl   *htx.BufList
}

// NewEncoder wraps bw, using date to stamp a missing Date header. conn is
// the same connection bw buffers for, used for the vectored body writes
// that bypass bw once headers are flushed.
func NewEncoder(bw *bufio.Writer, conn net.Conn, date *htx.DateTimeHandle) *Encoder {
	return &Encoder{bw: bw, conn: conn, date: date, bl: htx.NewBufList(bodyBatchChunks)}
}

// DetermineResponseFraming picks the wire framing for a response given
// its declared size hint, mutating header to carry the matching
// Content-Length/Transfer-Encoding (§4.4 Encoder, §9 open question (a)):
// HTTP/1.0 with a Stream hint falls back to EOF-termination;
// HTTP/1.1+ with a Stream hint always gets chunked, resolving the
// ambiguity the design notes flag rather than leaving it to EOF framing.
func DetermineResponseFraming(version htx.Version, hint htx.SizeHint, header hdr.Header, isHead bool, status int) BodyMode {
	if isHead || status == 204 || status == 304 || (status >= 100 && status < 200) {
		return BodyNone
	}
	switch hint.Kind {
	case htx.SizeNone:
		header.Set(hdr.ContentLength, "0")
		return BodyFixed
	case htx.SizeSized:
		header.Set(hdr.ContentLength, strconv.FormatUint(hint.N, 10))
		return BodyFixed
	default: // SizeStream
		if version.AtLeast(htx.HTTP11) {
			header.Set(hdr.TransferEncoding, "chunked")
			return BodyChunked
		}
		return BodyEOF
	}
}

// WriteStatusLineAndHeaders writes "HTTP/x.y status reason\r\n" followed
// by headers and the terminating blank line (hdr.Header.Write emits keys
// in sorted order; see DESIGN.md on header write order). If Date is
// absent it is stamped from the shared date handle — one allocation-free
// copy, not a format call (§4.4, §9).
func (e *Encoder) WriteStatusLineAndHeaders(version htx.Version, status int, header hdr.Header) error {
	if _, err := fmt.Fprintf(e.bw, "HTTP/%d.%d %03d %s\r\n", version.Major, version.Minor, status, StatusText(status)); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	if header.Get(hdr.Date) == "" {
		header.Set(hdr.Date, e.date.String())
	}
	if err := header.Write(e.bw); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	if _, err := e.bw.WriteString("\r\n"); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	return nil
}

// WriteRequestLineAndHeaders writes a client request line and headers,
// the mirror of WriteStatusLineAndHeaders for the send side of §4.8.
func (e *Encoder) WriteRequestLineAndHeaders(method, uri string, version htx.Version, header hdr.Header) error {
	if _, err := fmt.Fprintf(e.bw, "%s %s HTTP/%d.%d\r\n", method, uri, version.Major, version.Minor); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	if err := header.Write(e.bw); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	if _, err := e.bw.WriteString("\r\n"); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	return nil
}

// Write100Continue synthesizes and writes the interim response for
// Expect: 100-continue (§4.5 Reading state, §8 scenario 3), ahead of any
// body read by the handler.
func (e *Encoder) Write100Continue() error {
	if _, err := e.bw.WriteString("HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	return e.bw.Flush()
}

// WriteChunk writes one chunked-encoding chunk ("<hex size>\r\n<data>\r\n"),
// queuing its three pieces on the BufList and flushing them as a single
// writev rather than three separate Write calls.
func (e *Encoder) WriteChunk(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	e.bl.Push([]byte(fmt.Sprintf("%x\r\n", len(chunk))))
	e.bl.Push(chunk)
	e.bl.Push(crlf)
	return e.flushBody()
}

// WriteChunkedTrailer writes the terminating zero-length chunk.
func (e *Encoder) WriteChunkedTrailer() error {
	e.bl.Push(zeroLengthChunk)
	return e.flushBody()
}

// WriteRaw writes a fixed/EOF-framed body chunk verbatim.
func (e *Encoder) WriteRaw(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	e.bl.Push(chunk)
	return e.flushBody()
}

// flushBody drains the BufList through AsNetBuffers, handing the
// underlying connection a net.Buffers so the runtime issues one writev
// for the pending pieces instead of a Write per piece (§4.1, §4.4). bw is
// flushed first so any still-buffered header bytes reach the wire ahead
// of the body, since the vectored write below goes straight to conn and
// bypasses bw.
func (e *Encoder) flushBody() error {
	if e.bl.Len() == 0 {
		return nil
	}
	if err := e.bw.Flush(); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	bufs := e.bl.AsNetBuffers()
	n := e.bl.Remaining()
	if _, err := bufs.WriteTo(e.conn); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	e.bl.Advance(n)
	return nil
}

// Flush drains any pending body chunks, then flushes the buffered writer.
func (e *Encoder) Flush() error {
	if err := e.flushBody(); err != nil {
		return err
	}
	if err := e.bw.Flush(); err != nil {
		return htx.NewError(htx.KindIO, err)
	}
	return nil
}
