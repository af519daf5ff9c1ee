/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package tlsnext implements the TLS-acceptor boundary consumed by the
// dispatchers (§6): given a *tls.Conn that has completed its handshake,
// it maps the ALPN-negotiated protocol onto the version a listener
// should hand the connection off to. TLS acceptor implementation and
// certificate provisioning themselves stay out of scope per §1; this
// package only speaks the contract, grounded in
// http/src/tls/rustls.rs's AsVersion::as_version (alpn_protocol →
// Version, defaulting to HTTP/1.1 when absent).
package tlsnext

import (
	"crypto/tls"

	"github.com/badu/htx"
)

const (
	alpnH2   = "h2"
	alpnHTTP = "http/1.1"
)

// NextProtos is the ALPN protocol list a TLS config should advertise to
// support both HTTP/2 and HTTP/1.1 negotiation.
var NextProtos = []string{alpnH2, alpnHTTP}

// ConfigureALPN clones cfg with NextProtos set for client dials that
// should negotiate H2 when the server supports it and fall back to H1
// otherwise (§4.8 dial-time variant selection).
func ConfigureALPN(cfg *tls.Config) *tls.Config {
	out := cfg.Clone()
	out.NextProtos = NextProtos
	return out
}

// Version maps a completed TLS handshake's negotiated ALPN protocol onto
// an htx.Version. Absence of a negotiated protocol, or an unrecognized
// one, maps to HTTP/1.1 (§6: "absence ⇒ HTTP/1.1").
func Version(state tls.ConnectionState) htx.Version {
	switch state.NegotiatedProtocol {
	case alpnH2:
		return htx.HTTP2
	default:
		return htx.HTTP11
	}
}
