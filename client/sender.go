/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/badu/htx"
	"github.com/badu/htx/h1"
	"github.com/badu/htx/hdr"
	"github.com/badu/htx/internal/telemetry"
)

// Client pairs a Pool with the shared date handle and sends requests
// through it, implementing the §4.8 send pipeline: a separate timeout
// for each of the resolve, request and response phases, protocol dispatch
// on the checkout, and payload-limit enforcement on response collection.
type Client struct {
	pool *Pool
	date *htx.DateTimeHandle
	tel  *telemetry.Hook
}

// NewClient constructs a Client over pool, stamping responses with date
// and reporting to tel (both default if nil).
func NewClient(pool *Pool, date *htx.DateTimeHandle, tel *telemetry.Hook) *Client {
	if date == nil {
		date = htx.NewDateTimeHandle()
	}
	if tel == nil {
		tel = telemetry.Default()
	}
	return &Client{pool: pool, date: date, tel: tel}
}

// Send resolves req's authority, acquires a pooled connection (dialing
// under resolve_timeout if none exists), and sends req under
// request_timeout/response_timeout, enforcing the configured payload
// limit on the collected response body (§4.8, §8 scenario 6).
func (c *Client) Send(ctx context.Context, req *htx.Request) (*htx.Response, error) {
	authority, err := ParseAuthority(req.URI)
	if err != nil {
		return nil, htx.NewError(htx.KindInvalidRequestLine, err)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, c.pool.cfg.ResolveTimeout)
	co, err := c.pool.Acquire(resolveCtx, Connect{Authority: authority, TLSConfig: c.pool.cfg.TLSConfig}, 0)
	cancel()
	if err != nil {
		if resolveCtx.Err() == context.DeadlineExceeded {
			return nil, htx.NewError(htx.KindResolveTimeout, err)
		}
		return nil, htx.NewError(htx.KindIO, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.pool.cfg.RequestTimeout)
	defer cancel()

	var resp *htx.Response
	switch co.Conn().Variant {
	case VariantTCP, VariantTLS, VariantUnix:
		resp, err = c.sendH1(reqCtx, co, req)
	case VariantH2:
		resp, err = c.sendH2(reqCtx, co, req)
	case VariantH3:
		resp, err = c.sendH3(reqCtx, co, req)
	}
	if err != nil {
		co.Destroy()
		co.Release(err)
		return nil, classifySendError(reqCtx, err)
	}

	respCtx, cancel := context.WithTimeout(ctx, c.pool.cfg.ResponseTimeout)
	defer cancel()
	body, err := c.collectWithLimit(respCtx, resp.Body, resp.Header)
	if err != nil {
		co.Destroy()
		co.Release(err)
		return nil, err
	}
	resp.Body = body

	isClose := resp.Header.Get(hdr.Connection) == "close" || (!resp.Version.AtLeast(htx.HTTP11) && resp.Header.Get(hdr.Connection) != "keep-alive")
	if isClose {
		co.Destroy()
	}
	co.Release(nil)
	return resp, nil
}

// classifySendError maps a protocol-dispatch failure onto a single §7
// Kind instead of collapsing every cause into KindRequestTimeout: reqCtx
// expiring is the only case that earns the timeout kind, an already-typed
// *htx.Error (from the H1 encoder/decoder) is passed through unchanged,
// and anything else (H2/H3 transport failures from the vendored
// RoundTrip) is a plain I/O cause.
func classifySendError(reqCtx context.Context, err error) error {
	if reqCtx.Err() == context.DeadlineExceeded {
		return htx.NewError(htx.KindRequestTimeout, err)
	}
	var herr *htx.Error
	if errors.As(err, &herr) {
		return herr
	}
	return htx.NewError(htx.KindIO, err)
}

// sendH1 writes req over the checkout's connection and decodes the
// response head, mirroring the server dispatcher's framing rules
// (§4.8 "is-close derived from response Connection header and version").
func (c *Client) sendH1(ctx context.Context, co *Checkout, req *htx.Request) (*htx.Response, error) {
	conn := co.Conn()
	enc := h1.NewEncoder(conn.bw, conn.conn, c.date)
	if req.Header == nil {
		req.Header = make(hdr.Header)
	}
	req.Header.Set(hdr.Host, hostFromURI(req.URI))
	hint := req.Body.SizeHint()
	switch hint.Kind {
	case htx.SizeSized:
		req.Header.Set(hdr.ContentLength, strconv.FormatUint(hint.N, 10))
	case htx.SizeStream:
		// Unknown length on the send side gets chunked framing, the same
		// rule the server encoder applies to streamed responses.
		req.Header.Set(hdr.TransferEncoding, "chunked")
	}
	if err := enc.WriteRequestLineAndHeaders(req.Method, requestTarget(req.URI), htx.HTTP11, req.Header); err != nil {
		return nil, err
	}
	chunked := hint.Kind == htx.SizeStream
	for {
		chunk, berr := req.Body.Next(ctx)
		if len(chunk) > 0 {
			var werr error
			if chunked {
				werr = enc.WriteChunk(chunk)
			} else {
				werr = enc.WriteRaw(chunk)
			}
			if werr != nil {
				return nil, werr
			}
		}
		if berr != nil {
			if berr != io.EOF {
				return nil, berr
			}
			break
		}
	}
	if chunked {
		if err := enc.WriteChunkedTrailer(); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	dec := h1.NewDecoder(conn.br, h1.DefaultHeaderLimit)
	respHeader := make(hdr.Header)
	status, _, version, err := dec.DecodeResponse(respHeader)
	if err != nil {
		return nil, err
	}
	mode, n, err := h1.ResolveResponseBodyMode(status, respHeader, false)
	if err != nil {
		return nil, err
	}
	var body htx.BodyReader
	switch mode {
	case h1.BodyFixed:
		body = h1.NewFixedLengthBody(conn.br, n)
	case h1.BodyChunked:
		body = h1.NewChunkedBody(conn.br)
	case h1.BodyEOF:
		body = h1.NewEOFBody(conn.br)
	default:
		body = htx.NoBody
	}

	return &htx.Response{ResponseHead: htx.ResponseHead{Status: status, Version: version, Header: respHeader}, Body: body}, nil
}

func hostFromURI(uri string) string {
	a, err := ParseAuthority(uri)
	if err != nil {
		return ""
	}
	if a.Scheme == "unix" {
		// A Unix socket has no authority to name; the conventional
		// placeholder keeps origin servers that require Host happy.
		return "localhost"
	}
	return a.Host + ":" + a.Port
}

// requestTarget reduces a full request URI to the origin-form target an
// origin server expects on the request line (absolute-form is only for
// proxies, RFC 7230 §5.3).
func requestTarget(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "unix" || u.Path == "" {
		return "/"
	}
	return u.RequestURI()
}

// sendH2 adapts req onto net/http types for golang.org/x/net/http2's
// ClientConn.RoundTrip, the real library's client-side H2 entry point.
func (c *Client) sendH2(ctx context.Context, co *Checkout, req *htx.Request) (*htx.Response, error) {
	httpReq, err := toHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpResp, err := co.Conn().h2conn.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	return fromHTTPResponse(httpResp, htx.HTTP2), nil
}

// sendH3 delegates to quic-go/http3's Transport.RoundTrip, which owns
// QUIC connection pooling internally per remote address (§4.8 H3 row).
func (c *Client) sendH3(ctx context.Context, co *Checkout, req *htx.Request) (*htx.Response, error) {
	httpReq, err := toHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpResp, err := co.Conn().h3rt.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	return fromHTTPResponse(httpResp, htx.HTTP3), nil
}

func toHTTPRequest(ctx context.Context, req *htx.Request) (*http.Request, error) {
	var buf bytes.Buffer
	for {
		chunk, err := req.Body.Next(ctx)
		if len(chunk) > 0 {
			buf.Write(chunk)
		}
		if err != nil {
			break
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	httpReq.Header = http.Header(req.Header)
	return httpReq, nil
}

func fromHTTPResponse(httpResp *http.Response, version htx.Version) *htx.Response {
	return &htx.Response{
		ResponseHead: htx.ResponseHead{
			Status:  httpResp.StatusCode,
			Version: version,
			Header:  hdr.Header(httpResp.Header),
		},
		Body: &httpBodyReader{rc: httpResp.Body},
	}
}

type httpBodyReader struct {
	rc  io.ReadCloser
	buf [32 << 10]byte
}

func (b *httpBodyReader) Next(ctx context.Context) ([]byte, error) {
	for {
		n, err := b.rc.Read(b.buf[:])
		if n > 0 {
			return b.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (b *httpBodyReader) SizeHint() htx.SizeHint { return htx.SizeHint{Kind: htx.SizeStream} }
