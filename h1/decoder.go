/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package h1 implements the HTTP/1.1 per-connection dispatcher: the
// request decoder and response encoder (§4.4) plus the half-duplex
// state machine that drives them (§4.5). It generalizes badu/http's
// conn.go/response_server.go/utils_chunks.go to the htx data model.
package h1

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
)

// DefaultHeaderLimit is the default maximum number of headers a request
// or response may carry (§4.4, §6); configurable per Decoder.
const DefaultHeaderLimit = 96

const maxRequestLineLength = 64 << 10

// BodyMode classifies how a message body is framed on the wire,
// mirroring RFC 7230 §3.3.3 (§4.4).
type BodyMode int

const (
	BodyNone BodyMode = iota
	BodyChunked
	BodyFixed
	BodyEOF // response only
)

// DecodedHead is the result of successfully decoding a request line and
// headers.
type DecodedHead struct {
	Method       string
	URI          string
	Version      htx.Version
	Header       hdr.Header
	Mode         BodyMode
	ContentLen   int64
	ConnHeader   string
	HasUpgrade   bool
	IsConnect    bool
	ExpectHeader string
}

// Decoder parses HTTP/1.x request heads off a buffered reader, reusing
// the caller-supplied header map across pipelined requests.
type Decoder struct {
	br          *bufio.Reader
	headerLimit int
}

// NewDecoder returns a Decoder reading from br with headerLimit headers
// allowed per message (0 selects DefaultHeaderLimit).
func NewDecoder(br *bufio.Reader, headerLimit int) *Decoder {
	if headerLimit <= 0 {
		headerLimit = DefaultHeaderLimit
	}
	return &Decoder{br: br, headerLimit: headerLimit}
}

// DecodeRequest parses one request line plus headers into dst (which the
// dispatcher took from ConnectionContext.TakeHeaders), deriving the body
// decoding mode per RFC 7230 §3.3.3 (§4.4 item 1-4).
func (d *Decoder) DecodeRequest(dst hdr.Header) (*DecodedHead, error) {
	method, uri, version, err := d.readRequestLine()
	if err != nil {
		return nil, err
	}

	if err := d.readHeaders(dst); err != nil {
		return nil, err
	}

	head := &DecodedHead{
		Method:  method,
		URI:     uri,
		Version: version,
		Header:  dst,
	}
	head.ConnHeader = dst.Get(hdr.Connection)
	head.HasUpgrade = dst.Get(hdr.UpgradeHeader) != ""
	head.IsConnect = method == "CONNECT"
	head.ExpectHeader = dst.Get(hdr.Expect)

	if err := head.resolveRequestBodyMode(); err != nil {
		return nil, err
	}
	return head, nil
}

// DecodeResponse parses a client-side response status line plus headers
// into dst, the mirror of DecodeRequest used by the connection pool's
// send pipeline (§4.8).
func (d *Decoder) DecodeResponse(dst hdr.Header) (status int, reason string, version htx.Version, err error) {
	line, err := d.br.ReadSlice('\n')
	if err != nil {
		return 0, "", htx.Version{}, htx.NewError(htx.KindIO, err)
	}
	line = bytes.TrimRight(line, "\r\n")
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) < 2 {
		return 0, "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, nil)
	}
	major, minor, ok := parseHTTPVersion(parts[0])
	if !ok {
		return 0, "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, nil)
	}
	status, serr := strconv.Atoi(string(parts[1]))
	if serr != nil {
		return 0, "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, serr)
	}
	if len(parts) == 3 {
		reason = string(parts[2])
	}
	if err := d.readHeaders(dst); err != nil {
		return 0, "", htx.Version{}, err
	}
	return status, reason, htx.Version{Major: major, Minor: minor}, nil
}

// resolveRequestBodyMode implements §4.4's framing derivation for a
// request message (CONNECT ⇒ no body; chunked must be last; fixed
// Content-Length; otherwise length 0). Conflicting or duplicate-but-
// differing framing headers are rejected (§4.4, §8 scenario 4).
func (h *DecodedHead) resolveRequestBodyMode() error {
	te := h.Header[hdr.TransferEncoding]
	cls := h.Header[hdr.ContentLength]

	if h.IsConnect {
		h.Mode = BodyNone
		return nil
	}

	hasTE := len(te) > 0 && strings.EqualFold(strings.TrimSpace(te[len(te)-1]), "chunked")
	if len(te) > 0 && len(cls) > 0 {
		return htx.ErrConflictingFraming
	}
	if hasTE {
		h.Mode = BodyChunked
		return nil
	}
	if len(cls) > 0 {
		n, err := parseContentLength(cls)
		if err != nil {
			return err
		}
		h.ContentLen = n
		h.Mode = BodyFixed
		return nil
	}
	h.Mode = BodyNone
	return nil
}

// ResolveResponseBodyMode implements §4.4's framing derivation for a
// response: 1xx/204/304 or CONNECT ⇒ no body; chunked; fixed
// Content-Length; otherwise EOF-terminated (stream size hint).
func ResolveResponseBodyMode(status int, header hdr.Header, isConnect bool) (BodyMode, int64, error) {
	if isConnect || status == 204 || status == 304 || (status >= 100 && status < 200) {
		return BodyNone, 0, nil
	}
	te := header[hdr.TransferEncoding]
	cls := header[hdr.ContentLength]
	hasTE := len(te) > 0 && strings.EqualFold(strings.TrimSpace(te[len(te)-1]), "chunked")
	if hasTE && len(cls) > 0 {
		return 0, 0, htx.ErrConflictingFraming
	}
	if hasTE {
		return BodyChunked, 0, nil
	}
	if len(cls) > 0 {
		n, err := parseContentLength(cls)
		if err != nil {
			return 0, 0, err
		}
		return BodyFixed, n, nil
	}
	return BodyEOF, 0, nil
}

// parseContentLength rejects multiple differing Content-Length values
// (§4.4) and malformed ones.
func parseContentLength(values []string) (int64, error) {
	first := strings.TrimSpace(values[0])
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n < 0 {
		return 0, htx.NewError(htx.KindInvalidHeader, err)
	}
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != first {
			return 0, htx.ErrConflictingFraming
		}
	}
	return n, nil
}

func (d *Decoder) readRequestLine() (method, uri string, version htx.Version, err error) {
	line, err := d.br.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return "", "", htx.Version{}, htx.NewError(htx.KindHeaderTooLarge, err)
		}
		return "", "", htx.Version{}, htx.NewError(htx.KindIO, err)
	}
	if len(line) > maxRequestLineLength {
		return "", "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, io.ErrShortBuffer)
	}
	line = bytes.TrimRight(line, "\r\n")
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return "", "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, nil)
	}
	method = string(parts[0])
	uri = string(parts[1])
	major, minor, ok := parseHTTPVersion(parts[2])
	if !ok {
		return "", "", htx.Version{}, htx.NewError(htx.KindInvalidRequestLine, nil)
	}
	return method, uri, htx.Version{Major: major, Minor: minor}, nil
}

func parseHTTPVersion(v []byte) (major, minor int, ok bool) {
	if !bytes.HasPrefix(v, []byte("HTTP/")) {
		return 0, 0, false
	}
	v = v[len("HTTP/"):]
	dot := bytes.IndexByte(v, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(string(v[:dot]))
	min, err2 := strconv.Atoi(string(v[dot+1:]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}

// readHeaders parses up to d.headerLimit header lines into dst.
func (d *Decoder) readHeaders(dst hdr.Header) error {
	count := 0
	var lastKey string
	for {
		line, err := d.br.ReadSlice('\n')
		if err != nil {
			if err == bufio.ErrBufferFull {
				return htx.NewError(htx.KindHeaderTooLarge, err)
			}
			return htx.NewError(htx.KindIO, err)
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			return nil // end of headers
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			// obsolete line folding: continuation of the previous value.
			if lastKey == "" {
				return htx.NewError(htx.KindInvalidHeader, nil)
			}
			cont := hdr.TrimOWS(string(trimmed))
			vv := dst[lastKey]
			if len(vv) > 0 {
				vv[len(vv)-1] = vv[len(vv)-1] + " " + cont
			}
			continue
		}
		colon := bytes.IndexByte(trimmed, ':')
		if colon < 0 {
			return htx.NewError(htx.KindInvalidHeader, nil)
		}
		key := string(trimmed[:colon])
		val := hdr.TrimOWS(string(trimmed[colon+1:]))
		if !hdr.ValidName(key) || !hdr.ValidValue(val) {
			return htx.NewError(htx.KindInvalidHeader, nil)
		}
		count++
		if count > d.headerLimit {
			return htx.NewError(htx.KindTooManyHeaders, nil)
		}
		dst.Add(key, val)
		lastKey = hdr.Canonical(key)
	}
}
