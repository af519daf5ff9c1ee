/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package htx is the core HTTP service runtime shared by the HTTP/1.1,
// HTTP/2 and HTTP/3 dispatchers and by the client connection pool: the
// request/response data model, the per-connection context, the
// keep-alive timer and the process-wide date cache.
package htx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the observable cause of an Error. Each dispatcher and
// the client pool map failures onto exactly one Kind; there is no
// catch-all variant, matching the one-cause-per-error-kind shape of
// http-ws/src/error.rs in the original source.
type Kind int

const (
	// Transport.
	KindIO Kind = iota
	KindTLSAccept
	KindTLSHandshake

	// Timeouts.
	KindResolveTimeout
	KindTLSAcceptTimeout
	KindH2HandshakeTimeout
	KindRequestTimeout
	KindResponseTimeout
	KindKeepAliveTimeout

	// H1 protocol.
	KindInvalidRequestLine
	KindHeaderTooLarge
	KindTooManyHeaders
	KindInvalidHeader
	KindConflictingFraming
	KindBodyOverflow
	KindChunkedDecode

	// H2 protocol.
	KindH2Handshake
	KindStreamReset
	KindFlowControl
	KindGoAway

	// Body.
	KindOverflow
	KindInvalidUTF8

	// Service: opaque user error, logged and mapped to 500 if headers
	// haven't been sent yet.
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTLSAccept:
		return "tls_accept"
	case KindTLSHandshake:
		return "tls_handshake"
	case KindResolveTimeout:
		return "resolve_timeout"
	case KindTLSAcceptTimeout:
		return "tls_accept_timeout"
	case KindH2HandshakeTimeout:
		return "h2_handshake_timeout"
	case KindRequestTimeout:
		return "request_timeout"
	case KindResponseTimeout:
		return "response_timeout"
	case KindKeepAliveTimeout:
		return "keep_alive_timeout"
	case KindInvalidRequestLine:
		return "invalid_request_line"
	case KindHeaderTooLarge:
		return "header_too_large"
	case KindTooManyHeaders:
		return "too_many_headers"
	case KindInvalidHeader:
		return "invalid_header"
	case KindConflictingFraming:
		return "conflicting_framing"
	case KindBodyOverflow:
		return "body_overflow"
	case KindChunkedDecode:
		return "chunked_decode"
	case KindH2Handshake:
		return "h2_handshake"
	case KindStreamReset:
		return "stream_reset"
	case KindFlowControl:
		return "flow_control"
	case KindGoAway:
		return "go_away"
	case KindOverflow:
		return "overflow"
	case KindInvalidUTF8:
		return "invalid_utf8"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Error is the typed error value propagated across dispatcher and client
// boundaries. Cause carries the original error (I/O failure, parse
// failure, user service error) via github.com/pkg/errors so the chain
// survives CloseForce without losing context.
type Error struct {
	Kind  Kind
	cause error
}

func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("htx: %s", e.Kind)
	}
	return fmt.Sprintf("htx: %s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// IsTimeout reports whether e is one of the timeout Kinds.
func (e *Error) IsTimeout() bool {
	switch e.Kind {
	case KindResolveTimeout, KindTLSAcceptTimeout, KindH2HandshakeTimeout,
		KindRequestTimeout, KindResponseTimeout, KindKeepAliveTimeout:
		return true
	}
	return false
}

var (
	// ErrBodyOverflow is returned by response-body collection on the
	// client side when the payload-limit (§4.8) is exceeded.
	ErrBodyOverflow = NewError(KindOverflow, errors.New("body exceeds configured payload limit"))
	// ErrConflictingFraming is returned by the H1 decoder when a
	// request carries both Content-Length and Transfer-Encoding, or
	// differing Content-Length values.
	ErrConflictingFraming = NewError(KindConflictingFraming, errors.New("conflicting Content-Length/Transfer-Encoding"))
)
