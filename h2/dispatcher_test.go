/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h2

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/htx"
)

func echoService() htx.Service {
	return htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		return htx.NewResponse(200, htx.NewBytesBody([]byte("ok"))), nil
	})
}

// clientHandshake writes the connection preface and an empty SETTINGS
// frame, then reads the server's SETTINGS and its ACK, mirroring what a
// real H2 client does before issuing requests.
func clientHandshake(t *testing.T, conn net.Conn) *http2.Framer {
	t.Helper()
	if _, err := conn.Write([]byte(preface)); err != nil {
		t.Fatalf("write preface: %v", err)
	}
	fr := http2.NewFramer(conn, conn)
	// net.Pipe has no buffering and the server writes its SETTINGS before
	// reading ours, so our SETTINGS write runs alongside the read below.
	settingsErr := make(chan error, 1)
	go func() { settingsErr <- fr.WriteSettings() }()
	if _, err := fr.ReadFrame(); err != nil { // server SETTINGS
		t.Fatalf("read server settings: %v", err)
	}
	if err := <-settingsErr; err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if _, err := fr.ReadFrame(); err != nil { // server SETTINGS ACK
		t.Fatalf("read server settings ack: %v", err)
	}
	return fr
}

func TestH2RequestResponse(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	d := NewDispatcher(server, echoService(), Config{KeepAliveInterval: time.Second}, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	fr := clientHandshake(t, client)

	var buf []byte
	enc := hpack.NewEncoder(sliceWriter{&buf})
	enc.WriteField(hpack.HeaderField{Name: ":method", Value: "GET"})
	enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/"})
	if err := fr.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: buf, EndHeaders: true, EndStream: true}); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	for {
		f, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if hf, ok := f.(*http2.HeadersFrame); ok {
			_ = hf
			break
		}
	}

	client.Close()
	<-done
}

func TestH2GoAwayOnConnectionCloseHeader(t *testing.T) {
	svc := htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		resp := htx.NewResponse(200, htx.NewBytesBody([]byte("ok")))
		resp.Header.Set("Connection", "close")
		return resp, nil
	})

	server, client := net.Pipe()
	defer client.Close()

	d := NewDispatcher(server, svc, Config{KeepAliveInterval: time.Second}, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	fr := clientHandshake(t, client)

	var buf []byte
	enc := hpack.NewEncoder(sliceWriter{&buf})
	enc.WriteField(hpack.HeaderField{Name: ":method", Value: "GET"})
	enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/"})
	if err := fr.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: buf, EndHeaders: true, EndStream: true}); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	sawGoAway := false
	dec := hpack.NewDecoder(4096, nil)
	for !sawGoAway {
		f, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		switch f := f.(type) {
		case *http2.HeadersFrame:
			fields, derr := dec.DecodeFull(f.HeaderBlockFragment())
			if derr != nil {
				t.Fatalf("decode response headers: %v", derr)
			}
			for _, hf := range fields {
				if hf.Name == "connection" {
					t.Fatalf("Connection header must be stripped from the wire, got %q", hf.Value)
				}
			}
		case *http2.GoAwayFrame:
			sawGoAway = true
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("dispatcher returned %v after graceful GOAWAY shutdown", err)
	}
}

func TestH2PingPongTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	d := NewDispatcher(server, echoService(), Config{KeepAliveInterval: 30 * time.Millisecond}, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	fr := clientHandshake(t, client)

	// Swallow the server's PING (and anything else) without ever
	// answering, so the extended 10x deadline fires.
	go func() {
		for {
			if _, err := fr.ReadFrame(); err != nil {
				return
			}
		}
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a keep-alive timeout error, got nil")
		}
		var herr *htx.Error
		if !errors.As(err, &herr) || herr.Kind != htx.KindKeepAliveTimeout {
			t.Fatalf("expected KindKeepAliveTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not time out on missing PONG")
	}
}

type sliceWriter struct{ buf *[]byte }

func (w sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
