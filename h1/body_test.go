/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFixedLengthBodyReadsExactly(t *testing.T) {
	br := bufio.NewReader(bytes.NewBufferString("hello world, extra"))
	body := NewFixedLengthBody(br, 11)
	var got []byte
	for {
		chunk, err := body.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestChunkedBodyDecodesFrames(t *testing.T) {
	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	br := bufio.NewReader(bytes.NewBufferString(raw))
	body := NewChunkedBody(br)
	var got []byte
	for {
		chunk, err := body.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestChunkedBodyWithExtensionAndTrailer(t *testing.T) {
	raw := "3;foo=bar\r\nabc\r\n0\r\nX-Trailer: 1\r\n\r\n"
	br := bufio.NewReader(bytes.NewBufferString(raw))
	body := NewChunkedBody(br)
	chunk, err := body.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(chunk) != "abc" {
		t.Fatalf("got %q", chunk)
	}
	_, err = body.Next(context.Background())
	if err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
