/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"bufio"
	"net"

	"golang.org/x/net/http2"

	"github.com/quic-go/quic-go/http3"

	"github.com/badu/htx"
)

// Variant tags which protocol a pooled Connection speaks (§4.8).
type Variant int

const (
	VariantTCP Variant = iota
	VariantTLS
	VariantUnix
	VariantH2
	VariantH3
)

func (v Variant) String() string {
	switch v {
	case VariantTCP:
		return "tcp"
	case VariantTLS:
		return "tls"
	case VariantUnix:
		return "unix"
	case VariantH2:
		return "h2"
	case VariantH3:
		return "h3"
	default:
		return "unknown"
	}
}

// Connection is one pooled transport, tagged by Variant. H1 variants
// (Tcp/Tls/Unix) hold an exclusive net.Conn checked out by one request
// at a time; H2/H3 hold a shared multiplexing client usable by many
// concurrent requests.
type Connection struct {
	Variant Variant
	Version htx.Version

	// H1 variants
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	// H2
	h2conn *http2.ClientConn

	// H3: quic-go/http3's Transport owns QUIC connection pooling
	// internally per authority, so the pooled "connection" here is the
	// shared RoundTripper rather than a raw QUIC stream — wiring our own
	// QUIC-connection-level pooling on top would duplicate what the
	// library already does correctly.
	h3rt *http3.Transport

	destroy htx.DestroyOnDrop
}

func newH1Connection(variant Variant, conn net.Conn, readBuf, writeBuf int) *Connection {
	return &Connection{
		Variant: variant,
		Version: htx.HTTP11,
		conn:    conn,
		br:      bufio.NewReaderSize(conn, readBuf),
		bw:      bufio.NewWriterSize(conn, writeBuf),
	}
}

func newH2Connection(cc *http2.ClientConn) *Connection {
	return &Connection{Variant: VariantH2, Version: htx.HTTP2, h2conn: cc}
}

func newH3Connection(rt *http3.Transport) *Connection {
	return &Connection{Variant: VariantH3, Version: htx.HTTP3, h3rt: rt}
}

// DestroyOnDrop marks the checkout for removal instead of return-to-pool
// (§4.8, §9).
func (c *Connection) DestroyOnDrop() *htx.DestroyOnDrop { return &c.destroy }

// Close releases the underlying transport resource.
func (c *Connection) Close() error {
	switch c.Variant {
	case VariantH2:
		return c.h2conn.Close()
	case VariantH3:
		return nil // shared transport outlives any one checkout
	default:
		return c.conn.Close()
	}
}
