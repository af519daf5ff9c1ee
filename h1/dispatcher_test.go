/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/badu/htx"
)

func echoService() htx.Service {
	return htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		return htx.NewResponse(200, htx.NewBytesBody([]byte("ok:"+req.URI))), nil
	})
}

// bodyReadingService consumes the whole request body before replying, so
// the handler's first body read is what triggers a pending 100 Continue.
func bodyReadingService() htx.Service {
	return htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		for {
			if _, err := req.Body.Next(ctx); err != nil {
				if err == io.EOF {
					break
				}
				return nil, err
			}
		}
		return htx.NewResponse(200, htx.NewBytesBody([]byte("ok:"+req.URI))), nil
	})
}

func newTestDispatcher(conn net.Conn, svc htx.Service) *Dispatcher {
	cfg := Config{KeepAliveTimeout: 2 * time.Second, FirstRequestTimeout: 2 * time.Second}
	return NewDispatcher(conn, htx.NewConnectionContext(htx.NewDateTimeHandle()), svc, cfg, nil, nil)
}

func TestH1KeepAlivePipelining(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	d := newTestDispatcher(server, echoService())
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\nGET /b HTTP/1.1\r\nHost: x\r\n\r\n"))

	r := bufio.NewReader(client)
	line1, _ := r.ReadString('\n')
	if !strings.Contains(line1, "200") {
		t.Fatalf("unexpected first status line: %q", line1)
	}
	line2, _ := r.ReadString('\n')
	t.Logf("second line start: %q", line2)

	client.Close()
	<-done
}

func TestH1CloseOnHTTP10(t *testing.T) {
	server, client := net.Pipe()
	d := newTestDispatcher(server, echoService())
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	client.Write([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"))
	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.Contains(line, "200") {
		t.Fatalf("unexpected status line: %q", line)
	}
	<-done
	client.Close()
}

func TestH1ConflictingFramingRejected(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	d := newTestDispatcher(server, echoService())
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	client.Write([]byte("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"))
	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.Contains(line, "400") {
		t.Fatalf("expected 400 Bad Request, got %q", line)
	}
	<-done
}

func TestH1Expect100Continue(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	d := newTestDispatcher(server, bodyReadingService())
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	client.Write([]byte("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n"))
	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.Contains(line, "100 Continue") {
		t.Fatalf("expected 100 Continue, got %q", line)
	}

	client.Write([]byte("hello"))
	r.ReadString('\n') // blank line after 100 Continue
	statusLine, _ := r.ReadString('\n')
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("expected 200 after body, got %q", statusLine)
	}
	client.Close()
	<-done
}
