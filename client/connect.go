/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"crypto/tls"
	"net"

	"golang.org/x/net/http2"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/badu/htx/tlsnext"
)

// Connect is a dial record combining the authority with the caller's
// TLS configuration, the mirror of the original's Connect type (§4.8).
type Connect struct {
	Authority Authority
	TLSConfig *tls.Config
}

// dial constructs a fresh Connection for connect under ctx's deadline
// (Client.Send binds ctx to resolve_timeout before calling Pool.Acquire,
// which passes it through here). ALPN (for
// TLS) picks the H1 vs H2 variant; HTTP/3 is only ever selected
// explicitly via requestedVersion since it doesn't share a TCP listener.
func dial(ctx context.Context, c Connect, requestedVersion int, readBuf, writeBuf int) (*Connection, error) {
	if requestedVersion == 3 {
		return dialH3(ctx, c)
	}

	var dialer net.Dialer

	if c.Authority.Scheme == "unix" {
		conn, err := dialer.DialContext(ctx, "unix", c.Authority.Host)
		if err != nil {
			return nil, err
		}
		return newH1Connection(VariantUnix, conn, readBuf, writeBuf), nil
	}

	addr := net.JoinHostPort(c.Authority.Host, c.Authority.Port)

	if !c.Authority.IsTLS() {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return newH1Connection(VariantTCP, conn, readBuf, writeBuf), nil
	}

	tlsConf := c.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	tlsConf = tlsnext.ConfigureALPN(tlsConf)
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = c.Authority.SNI
	}

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(rawConn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}

	if tlsnext.Version(tlsConn.ConnectionState()).Major == 2 {
		t2 := &http2.Transport{}
		cc, err := t2.NewClientConn(tlsConn)
		if err != nil {
			tlsConn.Close()
			return nil, err
		}
		return newH2Connection(cc), nil
	}
	return newH1Connection(VariantTLS, tlsConn, readBuf, writeBuf), nil
}

func dialH3(ctx context.Context, c Connect) (*Connection, error) {
	tlsConf := c.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{http3.NextProtoH3}
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = c.Authority.SNI
	}
	rt := &http3.Transport{TLSClientConfig: tlsConf, QUICConfig: &quic.Config{}}
	return newH3Connection(rt), nil
}
