/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import (
	"github.com/badu/htx/hdr"
	"github.com/google/uuid"
)

// ConnectionType is the per-connection state a dispatcher tracks after
// each request/response cycle (§3). Once Upgrade it must never
// downgrade; set_force_close_on_non_eof must never override Upgrade.
type ConnectionType int

const (
	// Init: no request parsed yet on this connection.
	Init ConnectionType = iota
	// KeepAlive: connection may serve another request.
	KeepAlive
	// Close: shut down IO gracefully (flush, then close) after this response.
	Close
	// CloseForce: drop the connection without flush.
	CloseForce
	// Upgrade: hand the raw stream to an upgraded protocol after headers are written.
	Upgrade
)

func (c ConnectionType) String() string {
	switch c {
	case Init:
		return "Init"
	case KeepAlive:
		return "KeepAlive"
	case Close:
		return "Close"
	case CloseForce:
		return "CloseForce"
	case Upgrade:
		return "Upgrade"
	default:
		return "Unknown"
	}
}

// contextState is a bit-flag set for the current request, valid only
// until the connection moves to the next one (reset on each request).
type contextState uint8

const (
	// stateExpect: the request carried Expect: 100-continue.
	stateExpect contextState = 1 << iota
	// stateConnect: the request's method is CONNECT.
	stateConnect
)

func (s contextState) contains(bit contextState) bool { return s&bit == bit }

// ExtensionBag is a type-keyed heterogeneous mapping attached to a
// request or response, analogous to Rust's http::Extensions.
type ExtensionBag struct {
	values map[any]any
}

// NewExtensionBag returns an empty bag.
func NewExtensionBag() ExtensionBag { return ExtensionBag{} }

// Get retrieves the value stored under key, if any.
func (b ExtensionBag) Get(key any) (any, bool) {
	if b.values == nil {
		return nil, false
	}
	v, ok := b.values[key]
	return v, ok
}

// Insert stores value under key, creating the backing map on first use.
func (b *ExtensionBag) Insert(key, value any) {
	if b.values == nil {
		b.values = make(map[any]any)
	}
	b.values[key] = value
}

// IsEmpty reports whether the bag holds no entries.
func (b ExtensionBag) IsEmpty() bool { return len(b.values) == 0 }

// Reset empties the bag in place so it can be reused for the next request.
func (b *ExtensionBag) Reset() {
	for k := range b.values {
		delete(b.values, k)
	}
}

// ConnectionContext is the per-connection mutable state owned exclusively
// by the dispatcher that created it (§3, §4.3, §5). It recycles a header
// map and an extension bag across pipelined requests on the same
// connection: take_headers/replace_headers model ownership handoff to
// and from the user service.
type ConnectionContext struct {
	id         string
	state      contextState
	ctype      ConnectionType
	header     hdr.Header // nil when currently on loan to a request
	extensions ExtensionBag
	date       *DateTimeHandle
}

// NewConnectionContext constructs a context bound to date, the shared
// HTTP-date cache used to stamp Date headers without formatting time.
// Each context is stamped with a random connection ID, used to correlate
// telemetry for a single connection's lifetime across pipelined requests.
func NewConnectionContext(date *DateTimeHandle) *ConnectionContext {
	return &ConnectionContext{ctype: Init, date: date, id: uuid.NewString()}
}

// DateTime exposes the connection's date handle, read-only.
func (c *ConnectionContext) DateTime() *DateTimeHandle { return c.date }

// ID returns the connection's correlation ID, stable for its lifetime.
func (c *ConnectionContext) ID() string { return c.id }

// TakeHeaders returns the stored header map, constructing a fresh empty
// one if Context doesn't currently hold one.
func (c *ConnectionContext) TakeHeaders() hdr.Header {
	if c.header == nil {
		return make(hdr.Header)
	}
	h := c.header
	c.header = nil
	return h
}

// ReplaceHeaders stores map for the next request. The map must be empty;
// callers violating the by-contract "service returns it drained"
// invariant will leak stale headers into the next request.
func (c *ConnectionContext) ReplaceHeaders(h hdr.Header) {
	c.header = h
}

// TakeExtensions returns the stored extension bag, resetting Context's copy.
func (c *ConnectionContext) TakeExtensions() ExtensionBag {
	e := c.extensions
	c.extensions = ExtensionBag{}
	return e
}

// ReplaceExtensions stores bag for the next request; bag must be empty.
func (c *ConnectionContext) ReplaceExtensions(bag ExtensionBag) {
	c.extensions = bag
}

// Reset clears per-request state and moves ctype to KeepAlive, the
// dispatcher's default until header parsing says otherwise (§4.3).
func (c *ConnectionContext) Reset() {
	c.ctype = KeepAlive
	c.state = 0
}

// SetExpectHeader records that Expect: 100-continue was present.
func (c *ConnectionContext) SetExpectHeader() { c.state |= stateExpect }

// SetConnectMethod records that the method is CONNECT.
func (c *ConnectionContext) SetConnectMethod() { c.state |= stateConnect }

// SetForceCloseOnError unconditionally forces CloseForce, used on
// parse/IO errors where no further negotiation with the peer is possible.
func (c *ConnectionContext) SetForceCloseOnError() { c.ctype = CloseForce }

// SetForceCloseOnNonEOF forces CloseForce unless the connection has
// already been upgraded, matching the invariant that Upgrade never
// downgrades (used when the request body was not fully drained).
func (c *ConnectionContext) SetForceCloseOnNonEOF() {
	if c.ctype != Upgrade {
		c.ctype = CloseForce
	}
}

// SetConnectionType sets the connection type directly.
func (c *ConnectionContext) SetConnectionType(ctype ConnectionType) { c.ctype = ctype }

// IsExpectHeader reports the EXPECT flag for the current request.
func (c *ConnectionContext) IsExpectHeader() bool { return c.state.contains(stateExpect) }

// IsConnectMethod reports the CONNECT flag for the current request.
func (c *ConnectionContext) IsConnectMethod() bool { return c.state.contains(stateConnect) }

// IsConnectionClosed reports whether ctype is Close or CloseForce.
func (c *ConnectionContext) IsConnectionClosed() bool {
	return c.ctype == Close || c.ctype == CloseForce
}

// ConnectionType returns the current connection type.
func (c *ConnectionContext) ConnectionType() ConnectionType { return c.ctype }

// ApplyVersionAndConnectionHeader implements the ctype transition policy
// of §4.3, applied by the H1 dispatcher right after parsing headers.
func (c *ConnectionContext) ApplyVersionAndConnectionHeader(httpMinor int, connHeader string, hasUpgrade bool) {
	switch {
	case hasUpgrade && isTokenListContains(connHeader, "upgrade"):
		c.ctype = Upgrade
	case httpMinor == 0:
		if !isTokenListContains(connHeader, "keep-alive") {
			c.ctype = Close
		} else {
			c.ctype = KeepAlive
		}
	default: // HTTP/1.1+
		if isTokenListContains(connHeader, "close") {
			c.ctype = Close
		} else {
			c.ctype = KeepAlive
		}
	}
}

// isTokenListContains reports whether the comma-separated header value
// list contains token, case-insensitively, per RFC 7230 §7.
func isTokenListContains(list, token string) bool {
	for _, part := range splitComma(list) {
		if equalFold(trimOWS(part), token) {
			return true
		}
	}
	return false
}
