/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ResolveTimeout != 10*time.Second {
		t.Fatalf("resolve timeout = %v", cfg.ResolveTimeout)
	}
	if cfg.PoolCapacityPerAuthority != 32 {
		t.Fatalf("pool capacity = %d", cfg.PoolCapacityPerAuthority)
	}
	if cfg.PayloadLimit != 8<<20 {
		t.Fatalf("payload limit = %d", cfg.PayloadLimit)
	}
}

func TestParseAuthorityDefaultsPortByScheme(t *testing.T) {
	a, err := ParseAuthority("https://example.com/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Port != "443" || a.Scheme != "https" || a.Host != "example.com" {
		t.Fatalf("unexpected authority: %+v", a)
	}

	a, err = ParseAuthority("http://example.com:8080/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Port != "8080" {
		t.Fatalf("unexpected port: %q", a.Port)
	}

	a, err = ParseAuthority("unix:///var/run/app.sock")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Scheme != "unix" || a.Host != "/var/run/app.sock" || a.Port != "" {
		t.Fatalf("unexpected unix authority: %+v", a)
	}
}

func TestPoolAcquireReleaseReusesIdleConnection(t *testing.T) {
	p := NewPool(Config{}, nil)
	a := Authority{Scheme: "http", Host: "127.0.0.1", Port: "0"}
	e := p.entryFor(a)

	fakeConn, otherEnd := net.Pipe()
	defer otherEnd.Close()
	fake := newH1Connection(VariantTCP, fakeConn, 4096, 4096)
	e.idle = append(e.idle, fake)

	co, err := p.Acquire(context.Background(), Connect{Authority: a}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if co.Conn() != fake {
		t.Fatal("expected the idle connection to be reused")
	}
	co.Release(nil)
	if len(e.idle) != 1 {
		t.Fatalf("expected connection returned to idle list, got %d", len(e.idle))
	}
}

func TestCheckoutDestroyEvictsInsteadOfReturning(t *testing.T) {
	p := NewPool(Config{}, nil)
	a := Authority{Scheme: "http", Host: "127.0.0.1", Port: "0"}
	e := p.entryFor(a)

	fakeConn, otherEnd := net.Pipe()
	defer otherEnd.Close()
	fake := newH1Connection(VariantTCP, fakeConn, 4096, 4096)
	co := &Checkout{pool: p, authority: a, conn: fake}
	co.Destroy()
	co.Release(nil)

	if len(e.idle) != 0 {
		t.Fatalf("destroyed connection should not return to idle list")
	}
}
