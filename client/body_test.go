/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"testing"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
	"github.com/badu/htx/internal/telemetry"
)

func newTestClient(limit int64) *Client {
	pool := NewPool(Config{PayloadLimit: limit}, telemetry.Default())
	return NewClient(pool, htx.NewDateTimeHandle(), telemetry.Default())
}

func TestCollectWithLimitRejectsOversizedContentLength(t *testing.T) {
	c := newTestClient(8 << 20)
	h := make(hdr.Header)
	h.Set(hdr.ContentLength, "9437184") // 9 MiB, over the 8 MiB default

	_, err := c.collectWithLimit(context.Background(), htx.NoBody, h)
	if err != htx.ErrBodyOverflow {
		t.Fatalf("expected ErrBodyOverflow, got %v", err)
	}
}

func TestCollectWithLimitAllowsWithinBounds(t *testing.T) {
	c := newTestClient(1024)
	h := make(hdr.Header)
	body := htx.NewBytesBody([]byte("hello"))

	got, err := c.collectWithLimit(context.Background(), body, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunk, _ := got.Next(context.Background())
	if string(chunk) != "hello" {
		t.Fatalf("got %q", chunk)
	}
}

func TestCollectWithLimitRejectsOversizedStream(t *testing.T) {
	c := newTestClient(4)
	h := make(hdr.Header)
	body := htx.NewBytesBody([]byte("hello world"))

	_, err := c.collectWithLimit(context.Background(), body, h)
	if err != htx.ErrBodyOverflow {
		t.Fatalf("expected ErrBodyOverflow, got %v", err)
	}
}
