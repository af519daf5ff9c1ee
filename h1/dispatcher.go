/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"time"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
	"github.com/badu/htx/internal/telemetry"
)

// State names the H1 dispatcher's per-request phase (§4.5).
type State int

const (
	StateIdle State = iota
	StateReading
	StateDispatching
	StateWriting
	StateClosing
	StateUpgraded
)

// Config bounds the dispatcher's buffers and timeouts (§6 Server configuration).
type Config struct {
	HeaderLimit         int
	ReadBufferSize      int
	WriteBufferSize     int
	KeepAliveTimeout    time.Duration
	FirstRequestTimeout time.Duration
	// MaxDrainBytes bounds how much of an unconsumed request body the
	// dispatcher will discard before giving up and forcing CloseForce
	// (§4.5 Writing state).
	MaxDrainBytes int64
}

func (c Config) withDefaults() Config {
	if c.HeaderLimit <= 0 {
		c.HeaderLimit = DefaultHeaderLimit
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4 << 10
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4 << 10
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 120 * time.Second
	}
	if c.FirstRequestTimeout <= 0 {
		c.FirstRequestTimeout = c.KeepAliveTimeout
	}
	if c.MaxDrainBytes <= 0 {
		c.MaxDrainBytes = 4 << 20
	}
	return c
}

// Upgrader is handed the raw connection and unparsed read buffer when a
// request negotiates a protocol upgrade (§4.5 Writing: Upgrade branch).
type Upgrader func(conn net.Conn, buffered *bufio.Reader)

// Dispatcher is the per-connection HTTP/1.x state machine of §4.5: it
// coordinates read → service-call → write, with pipelining, keep-alive,
// Expect: 100-continue and protocol upgrade.
type Dispatcher struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	ctx *htx.ConnectionContext
	svc htx.Service
	cfg Config
	tel *telemetry.Hook

	onUpgrade Upgrader

	state    State
	firstReq bool
}

// NewDispatcher constructs a Dispatcher over conn, using ctx for the
// recyclable header map/extension bag and date stamping.
func NewDispatcher(conn net.Conn, ctx *htx.ConnectionContext, svc htx.Service, cfg Config, tel *telemetry.Hook, onUpgrade Upgrader) *Dispatcher {
	cfg = cfg.withDefaults()
	if tel == nil {
		tel = telemetry.Default()
	}
	return &Dispatcher{
		conn:      conn,
		br:        bufio.NewReaderSize(conn, cfg.ReadBufferSize),
		bw:        bufio.NewWriterSize(conn, cfg.WriteBufferSize),
		ctx:       ctx,
		svc:       svc,
		cfg:       cfg,
		tel:       tel,
		onUpgrade: onUpgrade,
		state:     StateIdle,
		firstReq:  true,
	}
}

// Run drives the dispatcher to completion: one request/response cycle
// per loop iteration, pipelined half-duplex (§4.5 Dispatching: "does not
// begin reading the next request until the current response body is
// fully written", satisfying P2).
func (d *Dispatcher) Run(parentCtx context.Context) error {
	for {
		d.state = StateIdle
		if err := d.awaitReadable(); err != nil {
			if isGracefulIdleTimeout(err) {
				d.closeGraceful()
				return nil
			}
			d.conn.Close()
			return nil
		}

		d.state = StateReading
		head, err := d.readHead()
		if err != nil {
			d.handleReadError(err)
			return nil
		}
		d.firstReq = false

		d.ctx.ApplyVersionAndConnectionHeader(head.Version.Minor, head.ConnHeader, head.HasUpgrade)
		if head.IsConnect {
			d.ctx.SetConnectMethod()
		}

		body := d.buildRequestBody(head)
		if head.ExpectHeader != "" {
			switch {
			case !isHundredContinue(head.ExpectHeader):
				d.writeSimpleStatus(417)
				d.ctx.SetForceCloseOnError()
				d.conn.Close()
				return nil
			case head.Version.AtLeast(htx.HTTP11) && (head.Mode == BodyFixed || head.Mode == BodyChunked):
				d.ctx.SetExpectHeader()
				body = newExpectContinueBody(body, d.bw, d.conn, d.ctx.DateTime())
			}
		}

		req := &htx.Request{
			RequestHead: htx.RequestHead{
				Method:  head.Method,
				URI:     head.URI,
				Version: head.Version,
				Header:  head.Header,
			},
			Body: body,
		}

		d.state = StateDispatching
		resp, callErr := d.callService(parentCtx, req)

		d.state = StateWriting
		if callErr != nil {
			d.handleServiceError(callErr)
		} else {
			d.writeResponse(req, resp)
		}

		ctype := d.ctx.ConnectionType()
		switch ctype {
		case htx.KeepAlive:
			d.ctx.Reset()
			// Re-take the map that was loaned to the request and rebind it
			// for the next parse, rather than allocating a new one per cycle.
			req.Header.Reset()
			d.ctx.ReplaceHeaders(req.Header)
			d.state = StateIdle
			continue
		case htx.Close:
			d.closeGraceful()
			return nil
		case htx.Upgrade:
			d.state = StateUpgraded
			if d.onUpgrade != nil {
				d.onUpgrade(d.conn, d.br)
			}
			return nil
		default: // CloseForce
			d.conn.Close()
			return nil
		}
	}
}

func (d *Dispatcher) awaitReadable() error {
	deadline := d.cfg.KeepAliveTimeout
	if d.firstReq {
		deadline = d.cfg.FirstRequestTimeout
	}
	d.conn.SetReadDeadline(time.Now().Add(deadline))
	_, err := d.br.Peek(1)
	return err
}

func isHundredContinue(v string) bool {
	return equalFoldASCII(v, "100-continue")
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func isGracefulIdleTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (d *Dispatcher) readHead() (*DecodedHead, error) {
	d.conn.SetReadDeadline(time.Now().Add(d.cfg.KeepAliveTimeout))
	dec := NewDecoder(d.br, d.cfg.HeaderLimit)
	h := d.ctx.TakeHeaders()
	head, err := dec.DecodeRequest(h)
	if err != nil {
		return nil, err
	}
	return head, nil
}

func (d *Dispatcher) buildRequestBody(head *DecodedHead) htx.BodyReader {
	switch head.Mode {
	case BodyChunked:
		return NewChunkedBody(d.br)
	case BodyFixed:
		return NewFixedLengthBody(d.br, head.ContentLen)
	default:
		return htx.NoBody
	}
}

func (d *Dispatcher) callService(parentCtx context.Context, req *htx.Request) (resp *htx.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			d.tel.HandlerPanic(d.ctx.ID(), d.conn.RemoteAddr().String(), r, buf)
			err = htx.NewError(htx.KindService, errors.New("panic in service"))
		}
	}()
	if rerr := d.svc.Ready(parentCtx); rerr != nil {
		return nil, rerr
	}
	return d.svc.Call(parentCtx, req)
}

// handleServiceError implements §7's service-error propagation policy:
// logged, and mapped to 500 only if no response has been sent yet (which
// is always true here since writeResponse hasn't run).
func (d *Dispatcher) handleServiceError(err error) {
	d.tel.ServiceError(d.ctx.ID(), d.conn.RemoteAddr().String(), err)
	d.writeSimpleStatus(500)
	d.ctx.SetForceCloseOnError()
}

func (d *Dispatcher) writeSimpleStatus(status int) {
	d.conn.SetWriteDeadline(time.Now().Add(d.cfg.KeepAliveTimeout))
	enc := NewEncoder(d.bw, d.conn, d.ctx.DateTime())
	h := make(hdr.Header)
	h.Set(hdr.ContentLength, "0")
	h.Set(hdr.Connection, "close")
	_ = enc.WriteStatusLineAndHeaders(htx.HTTP11, status, h)
	_ = enc.Flush()
}

func (d *Dispatcher) writeResponse(req *htx.Request, resp *htx.Response) {
	d.conn.SetWriteDeadline(time.Now().Add(d.cfg.KeepAliveTimeout))
	enc := NewEncoder(d.bw, d.conn, d.ctx.DateTime())

	if resp.Header == nil {
		resp.Header = make(hdr.Header)
	}
	mode := DetermineResponseFraming(req.Version, resp.Body.SizeHint(), resp.Header, false, resp.Status)
	if d.ctx.IsConnectionClosed() {
		resp.Header.Set(hdr.Connection, "close")
	}

	if err := enc.WriteStatusLineAndHeaders(req.Version, resp.Status, resp.Header); err != nil {
		d.ctx.SetForceCloseOnError()
		return
	}

	if err := d.streamBody(enc, mode, resp.Body); err != nil {
		d.ctx.SetForceCloseOnError()
		return
	}
	if err := enc.Flush(); err != nil {
		d.ctx.SetForceCloseOnError()
		return
	}

	d.drainRequestBodyIfNeeded(req.Body)
}

func (d *Dispatcher) streamBody(enc *Encoder, mode BodyMode, body htx.BodyReader) error {
	ctx := context.Background()
	for {
		chunk, err := body.Next(ctx)
		if err != nil {
			if err == io.EOF {
				if mode == BodyChunked {
					return enc.WriteChunkedTrailer()
				}
				return nil
			}
			return err
		}
		switch mode {
		case BodyChunked:
			if err := enc.WriteChunk(chunk); err != nil {
				return err
			}
		default:
			if err := enc.WriteRaw(chunk); err != nil {
				return err
			}
		}
	}
}

// drainRequestBodyIfNeeded implements §4.5 Writing state's drain-and-
// discard policy: if the service didn't consume the request body,
// discard up to MaxDrainBytes; beyond that, force-close (§3 "request
// body not fully drained" invariant).
func (d *Dispatcher) drainRequestBodyIfNeeded(body htx.BodyReader) {
	if d.ctx.IsConnectionClosed() {
		return
	}
	ctx := context.Background()
	var drained int64
	for {
		chunk, err := body.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return
			}
			d.ctx.SetForceCloseOnNonEOF()
			return
		}
		drained += int64(len(chunk))
		if drained > d.cfg.MaxDrainBytes {
			d.ctx.SetForceCloseOnNonEOF()
			return
		}
	}
}

func (d *Dispatcher) handleReadError(err error) {
	var htxErr *htx.Error
	if errors.As(err, &htxErr) {
		switch htxErr.Kind {
		case htx.KindHeaderTooLarge:
			d.writeSimpleStatus(431)
		case htx.KindTooManyHeaders:
			d.writeSimpleStatus(431)
		case htx.KindInvalidRequestLine, htx.KindInvalidHeader, htx.KindConflictingFraming:
			d.writeSimpleStatus(400)
		default:
			// IO errors: don't reply, peer is likely already gone.
		}
	}
	d.tel.ConnectionError(d.ctx.ID(), d.conn.RemoteAddr().String(), "http/1.1", err)
	d.ctx.SetForceCloseOnError()
	d.conn.Close()
}

// closeGraceful flushes and shuts down the write half, then waits
// briefly before closing the connection (§4.3 Close, §9): this gives the
// peer a chance to see the FIN before any subsequent RST.
func (d *Dispatcher) closeGraceful() {
	d.bw.Flush()
	if cw, ok := d.conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	time.Sleep(5 * time.Millisecond)
	d.conn.Close()
}
