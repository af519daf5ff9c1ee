/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import (
	"bytes"
	"testing"
)

func helloWorldBufList() *BufList {
	b := NewBufList(4)
	b.Push([]byte("Hello"))
	b.Push([]byte(" "))
	b.Push([]byte("World"))
	return b
}

func TestBufListCopyToBytesShorter(t *testing.T) {
	b := helloWorldBufList()
	oldPtr := &b.Chunk()[0]
	start := b.CopyToBytes(4)
	if string(start) != "Hell" {
		t.Fatalf("got %q", start)
	}
	if &start[0] != oldPtr {
		t.Fatalf("expected zero-copy: pointer identity broken")
	}
	if string(b.Chunk()) != "o" {
		t.Fatalf("remaining front chunk = %q", b.Chunk())
	}
	if b.Remaining() != 7 {
		t.Fatalf("remaining = %d, want 7", b.Remaining())
	}
}

func TestBufListCopyToBytesExact(t *testing.T) {
	b := helloWorldBufList()
	oldPtr := &b.Chunk()[0]
	start := b.CopyToBytes(5)
	if string(start) != "Hello" {
		t.Fatalf("got %q", start)
	}
	if &start[0] != oldPtr {
		t.Fatalf("expected zero-copy: pointer identity broken")
	}
	if string(b.Chunk()) != " " {
		t.Fatalf("remaining front chunk = %q", b.Chunk())
	}
	if b.Remaining() != 6 {
		t.Fatalf("remaining = %d, want 6", b.Remaining())
	}
}

func TestBufListCopyToBytesLonger(t *testing.T) {
	b := helloWorldBufList()
	start := b.CopyToBytes(7)
	if string(start) != "Hello W" {
		t.Fatalf("got %q", start)
	}
	if b.Remaining() != 4 {
		t.Fatalf("remaining = %d, want 4", b.Remaining())
	}
}

func TestBufListCopyToBytesTooMany(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on over-read")
		}
	}()
	helloWorldBufList().CopyToBytes(42)
}

func TestBufListChunksVectored(t *testing.T) {
	b := helloWorldBufList()
	dst := make([][]byte, 2)
	n := b.ChunksVectored(dst)
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if string(dst[0]) != "Hello" || string(dst[1]) != " " {
		t.Fatalf("unexpected chunks: %q %q", dst[0], dst[1])
	}
}

func TestBufListAdvance(t *testing.T) {
	b := helloWorldBufList()
	b.Advance(6)
	if string(b.Chunk()) != "World" {
		t.Fatalf("chunk = %q, want World", b.Chunk())
	}
	if b.Remaining() != 5 {
		t.Fatalf("remaining = %d, want 5", b.Remaining())
	}
}

func TestBufListAsNetBuffers(t *testing.T) {
	b := helloWorldBufList()
	bufs := b.AsNetBuffers()
	var got bytes.Buffer
	for _, c := range bufs {
		got.Write(c)
	}
	if got.String() != "Hello World" {
		t.Fatalf("got %q", got.String())
	}
}

func TestBufListPushEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty push")
		}
	}()
	NewBufList(1).Push(nil)
}
